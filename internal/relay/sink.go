package relay

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Sink appends one record to a named stream.
type Sink interface {
	Publish(ctx context.Context, stream string, fields map[string]any) error
	Close() error
}

// RedisSink writes records to Redis Streams with XADD.
type RedisSink struct {
	client *redis.Client
	maxLen int64
}

// NewRedisSink connects to url and verifies the connection. Streams are
// trimmed to roughly maxLen entries; zero disables trimming.
func NewRedisSink(ctx context.Context, url string, maxLen int64) (*RedisSink, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisSink{client: client, maxLen: maxLen}, nil
}

func (s *RedisSink) Publish(ctx context.Context, stream string, fields map[string]any) error {
	args := &redis.XAddArgs{Stream: stream, Values: fields}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", stream, err)
	}
	return nil
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}

// Entry is one record held by a MemorySink.
type Entry struct {
	ID     string
	Fields map[string]any
}

// MemorySink keeps streams in memory. Used when no Redis is configured and
// in tests.
type MemorySink struct {
	mu      sync.Mutex
	streams map[string][]Entry
	seq     int64
	closed  bool
}

func NewMemorySink() *MemorySink {
	return &MemorySink{streams: make(map[string][]Entry)}
}

func (m *MemorySink) Publish(_ context.Context, stream string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("memory sink closed")
	}
	m.seq++
	cp := make(map[string]any, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	m.streams[stream] = append(m.streams[stream], Entry{ID: strconv.FormatInt(m.seq, 10) + "-0", Fields: cp})
	return nil
}

// Entries returns a copy of stream's records in publish order.
func (m *MemorySink) Entries(stream string) []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.streams[stream]...)
}

func (m *MemorySink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
