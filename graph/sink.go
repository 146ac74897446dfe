// Package graph hands topology events to downstream consumers: a JSON-lines
// log on disk or a NATS JetStream stream feeding the event store.
package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/c360studio/semtopo/processor/topology"
)

// Sink receives the ordered events of one run.
type Sink interface {
	Publish(ctx context.Context, events []topology.Event) error
}

// MultiSink publishes to every sink in order. Every sink is attempted even
// when an earlier one fails; the failures are joined.
type MultiSink []Sink

func (m MultiSink) Publish(ctx context.Context, events []topology.Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Publish(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// JSONLinesSink writes one JSON object per event per line.
type JSONLinesSink struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
}

// NewJSONLinesSink writes events to w.
func NewJSONLinesSink(w io.Writer) *JSONLinesSink {
	return &JSONLinesSink{w: w}
}

// OpenJSONLines appends events to the file at path, creating it if needed.
// The path "-" writes to stdout.
func OpenJSONLines(path string) (*JSONLinesSink, error) {
	if path == "-" {
		return NewJSONLinesSink(os.Stdout), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create events directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open events file: %w", err)
	}
	return &JSONLinesSink{w: f, closer: f}, nil
}

func (s *JSONLinesSink) Publish(ctx context.Context, events []topology.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	enc := json.NewEncoder(s.w)
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := enc.Encode(ev); err != nil {
			return fmt.Errorf("write event %s: %w", ev.EventID, err)
		}
	}
	return nil
}

// Close closes the underlying file, if the sink opened one.
func (s *JSONLinesSink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
