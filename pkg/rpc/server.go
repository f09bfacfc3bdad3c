// Package rpc provides a lightweight JSON-over-TCP RPC framework for
// programmatic access to the resolver without going through HTTP.
//
// Protocol: newline-delimited JSON over a persistent TCP connection. Each
// Request carries a method name in "Service.Method" form and an ID that is
// echoed back in the matching Response.
//
// Example server:
//
//	s := rpc.NewServer(rpc.ServerConfig{RequestTimeout: 5 * time.Second})
//	s.Register("BinderService.Resolve", func(ctx context.Context, req json.RawMessage) (any, error) {
//	    var params ResolveParams
//	    if err := json.Unmarshal(req, &params); err != nil {
//	        return nil, err
//	    }
//	    return svc.Resolve(ctx, params.PID)
//	})
//	s.ListenAndServe(":9091")
//
// Example client:
//
//	c, _ := rpc.Dial("localhost:9091")
//	var res binder.Resolution
//	c.Call("BinderService.Resolve", map[string]int{"pid": 1234}, &res)
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bindertrack/pkg/resilience"
)

// HandlerFunc processes an RPC request and returns a response or error.
type HandlerFunc func(ctx context.Context, req json.RawMessage) (any, error)

// Request is the wire format for an RPC request.
type Request struct {
	Method string          `json:"method"`
	ID     string          `json:"id"`
	Params json.RawMessage `json:"params"`
}

// Response is the wire format for an RPC response.
type Response struct {
	ID    string `json:"id"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// ServerConfig bounds each request. A zero RequestTimeout means no limit.
type ServerConfig struct {
	RequestTimeout time.Duration
}

// Server is a lightweight JSON-over-TCP RPC server.
type Server struct {
	cfg      ServerConfig
	handlers map[string]HandlerFunc
	listener net.Listener
	logger   *slog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.RWMutex
	wg       sync.WaitGroup
	done     chan struct{}
	conns    map[net.Conn]struct{}
}

// NewServer creates a new RPC server.
func NewServer(cfg ServerConfig) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:      cfg,
		handlers: make(map[string]HandlerFunc),
		logger:   slog.Default().With("component", "rpc-server"),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		conns:    make(map[net.Conn]struct{}),
	}
}

// Register adds a handler for the given RPC method name.
// Method names follow the "Service.Method" convention.
func (s *Server) Register(method string, handler HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = handler
	s.logger.Debug("method registered", "method", method)
}

// Listen binds addr. Use ":0" to pick a free port and Addr to read it back.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.logger.Info("rpc server listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ListenAndServe binds addr and serves until Stop is called.
func (s *Server) ListenAndServe(addr string) error {
	if err := s.Listen(addr); err != nil {
		return err
	}
	return s.Serve()
}

// Serve accepts connections on the bound listener. It blocks until Stop is
// called.
func (s *Server) Serve() error {
	s.mu.RLock()
	ln := s.listener
	s.mu.RUnlock()
	if ln == nil {
		return fmt.Errorf("rpc server: Serve called before Listen")
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.done:
				return nil
			default:
				s.logger.Error("accept error", "error", err)
				continue
			}
		}
		s.track(conn, true)
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer s.track(conn, false)
	defer conn.Close()

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	for {
		var req Request
		if err := decoder.Decode(&req); err != nil {
			return // connection closed or read error
		}

		resp := s.dispatch(req)
		if err := encoder.Encode(resp); err != nil {
			s.logger.Error("write error", "method", req.Method, "error", err)
			return
		}
	}
}

func (s *Server) dispatch(req Request) Response {
	s.mu.RLock()
	handler, exists := s.handlers[req.Method]
	s.mu.RUnlock()

	resp := Response{ID: req.ID}
	if !exists {
		resp.Error = fmt.Sprintf("unknown method: %s", req.Method)
		return resp
	}

	start := time.Now()
	var data any
	err := resilience.WithTimeout(s.ctx, s.cfg.RequestTimeout, req.Method, func(ctx context.Context) error {
		var err error
		data, err = handler(ctx, req.Params)
		return err
	})
	if err != nil {
		s.logger.Warn("rpc call failed", "method", req.Method, "id", req.ID, "error", err)
		resp.Error = err.Error()
		return resp
	}
	s.logger.Debug("rpc call served", "method", req.Method, "id", req.ID, "duration", time.Since(start))
	resp.Data = data
	return resp
}

// MethodCount returns the number of registered methods.
func (s *Server) MethodCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handlers)
}

// Stop closes the listener and open connections, cancels in-flight calls
// and waits for connection goroutines to exit.
func (s *Server) Stop() {
	close(s.done)
	s.cancel()
	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	s.logger.Info("rpc server stopped")
}
