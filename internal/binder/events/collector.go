package events

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bindertrack/pkg/kafka"
)

// Publisher is the producer side the Collector writes to. *kafka.Producer
// satisfies it.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Collector buffers resolution events and publishes them from a single
// goroutine so that tracking never blocks a resolution.
type Collector struct {
	publisher Publisher
	eventCh   chan ResolutionEvent
	logger    *slog.Logger
	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
}

func NewCollector(publisher Publisher, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &Collector{
		publisher: publisher,
		eventCh:   make(chan ResolutionEvent, bufferSize),
		logger:    slog.Default().With("component", "resolution-collector"),
		done:      make(chan struct{}),
	}
}

func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					return
				}
				if err := c.publisher.Publish(ctx, toKafka(event)); err != nil {
					c.logger.Error("failed to publish resolution event", "id", event.ID, "error", err)
				}
			case <-ctx.Done():
				c.drainRemaining()
				return
			}
		}
	}()
	c.logger.Info("resolution collector started", "buffer_size", cap(c.eventCh))
}

// Track enqueues event, dropping it when the buffer is full or the collector
// has been closed. Handlers that outlive a timeout may still call it during
// shutdown.
func (c *Collector) Track(event ResolutionEvent) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		c.logger.Debug("resolution event dropped (collector closed)", "target_pid", event.TargetPID)
		return
	}
	select {
	case c.eventCh <- event:
	default:
		c.logger.Warn("resolution event dropped (buffer full)", "target_pid", event.TargetPID)
	}
}

// Close stops accepting events and waits for the publisher goroutine. Start
// must have been called. Calling Close more than once is safe.
func (c *Collector) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.eventCh)
	}
	c.mu.Unlock()
	<-c.done
}

func (c *Collector) drainRemaining() {
	var pending []kafka.Event
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				c.flush(pending)
				return
			}
			pending = append(pending, toKafka(event))
		default:
			c.flush(pending)
			return
		}
	}
}

func (c *Collector) flush(pending []kafka.Event) {
	if len(pending) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.publisher.PublishBatch(ctx, pending); err != nil {
		c.logger.Error("failed to publish remaining events", "count", len(pending), "error", err)
	}
}

func toKafka(event ResolutionEvent) kafka.Event {
	return kafka.Event{
		Key:   strconv.Itoa(event.TargetPID),
		Type:  TypeResolution,
		Value: event,
	}
}
