// Package relay exports engine events to an append-only stream so other
// processes can follow sessions and teleports.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/exezbcz/paraport/internal/metrics"
)

const defaultBufferSize = 256

// Record is one exported event.
type Record struct {
	Type    string
	ID      string
	Status  string
	Error   string
	Payload any
}

func (r Record) fields(now time.Time) (map[string]any, error) {
	payload, err := json.Marshal(r.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", r.Type, err)
	}
	return map[string]any{
		"type":      r.Type,
		"id":        r.ID,
		"status":    r.Status,
		"error":     r.Error,
		"payload":   string(payload),
		"timestamp": now.UTC().Format(time.RFC3339Nano),
	}, nil
}

// Publisher buffers records and writes them to a Sink from one worker
// goroutine. Enqueue never blocks; records are dropped when the buffer is full.
type Publisher struct {
	sink   Sink
	stream string
	buf    chan Record
	logger *slog.Logger
	nowFn  func() time.Time

	mu      sync.RWMutex
	closed  bool
	done    chan struct{}
	started bool
}

func NewPublisher(sink Sink, stream string, bufferSize int, logger *slog.Logger) *Publisher {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		sink:   sink,
		stream: stream,
		buf:    make(chan Record, bufferSize),
		logger: logger.With("component", "relay", "stream", stream),
		nowFn:  time.Now,
		done:   make(chan struct{}),
	}
}

// Start launches the worker. It stops after Close drained the buffer.
func (p *Publisher) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go p.run(context.WithoutCancel(ctx))
}

func (p *Publisher) run(ctx context.Context) {
	defer close(p.done)
	for r := range p.buf {
		p.publish(ctx, r)
	}
}

func (p *Publisher) publish(ctx context.Context, r Record) {
	fields, err := r.fields(p.nowFn())
	if err == nil {
		pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = p.sink.Publish(pubCtx, p.stream, fields)
		cancel()
	}
	if err != nil {
		metrics.RelayPublishedTotal.WithLabelValues(p.stream, "error").Inc()
		p.logger.Warn("relay publish failed", "type", r.Type, "id", r.ID, "error", err)
		return
	}
	metrics.RelayPublishedTotal.WithLabelValues(p.stream, "ok").Inc()
}

// Enqueue queues r and reports whether it was accepted.
func (p *Publisher) Enqueue(r Record) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.buf <- r:
		return true
	default:
		metrics.RelayDroppedTotal.WithLabelValues(p.stream).Inc()
		p.logger.Warn("relay buffer full, dropping record", "type", r.Type, "id", r.ID)
		return false
	}
}

// Close stops accepting records, waits for the worker to flush what is
// buffered, then closes the sink.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.buf)
	started := p.started
	p.mu.Unlock()

	if started {
		<-p.done
	}
	return p.sink.Close()
}
