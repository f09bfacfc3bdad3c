package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func startServer(t *testing.T, cfg ServerConfig) *Server {
	t.Helper()
	s := NewServer(cfg)
	s.Register("Echo.Double", func(_ context.Context, req json.RawMessage) (any, error) {
		var p struct {
			N int `json:"n"`
		}
		if err := json.Unmarshal(req, &p); err != nil {
			return nil, err
		}
		if p.N < 0 {
			return nil, errors.New("negative")
		}
		return map[string]int{"n": p.N * 2}, nil
	})
	s.Register("Echo.Block", func(ctx context.Context, _ json.RawMessage) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	if err := s.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go s.Serve()
	t.Cleanup(s.Stop)
	return s
}

func TestCall(t *testing.T) {
	s := startServer(t, ServerConfig{})
	c, err := Dial(s.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	var out struct {
		N int `json:"n"`
	}
	if err := c.Call("Echo.Double", map[string]int{"n": 21}, &out); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out.N != 42 {
		t.Errorf("n = %d, want 42", out.N)
	}

	if err := c.Call("Echo.Double", map[string]int{"n": -1}, &out); err == nil || !strings.Contains(err.Error(), "negative") {
		t.Errorf("handler error = %v", err)
	}
	if err := c.Call("Echo.Missing", nil, nil); err == nil || !strings.Contains(err.Error(), "unknown method") {
		t.Errorf("unknown method error = %v", err)
	}
	if s.MethodCount() != 2 {
		t.Errorf("MethodCount = %d", s.MethodCount())
	}
}

func TestRequestTimeout(t *testing.T) {
	s := startServer(t, ServerConfig{RequestTimeout: 20 * time.Millisecond})
	c, err := Dial(s.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	err = c.Call("Echo.Block", nil, nil)
	if err == nil || !strings.Contains(err.Error(), "deadline exceeded") {
		t.Errorf("Call = %v, want deadline exceeded", err)
	}
}

func TestServeBeforeListen(t *testing.T) {
	if err := NewServer(ServerConfig{}).Serve(); err == nil {
		t.Error("expected error")
	}
}
