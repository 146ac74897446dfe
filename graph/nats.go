package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/semtopo/processor/topology"
)

// Defaults for the topology event stream.
const (
	DefaultSubjectPrefix = "topo.events"
	DefaultStream        = "TOPOLOGY"
)

// publisher is the subset of jetstream.JetStream used for publishing.
type publisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NATSPublisher publishes events to JetStream on
// <prefix>.<target>.<event type>. The event id is sent as the message id,
// so a re-published run is deduplicated by the stream.
type NATSPublisher struct {
	js     publisher
	prefix string
}

// NewNATSPublisher creates a publisher. An empty prefix uses DefaultSubjectPrefix.
func NewNATSPublisher(js jetstream.JetStream, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{js: js, prefix: prefix}
}

// EnsureStream creates or updates the stream capturing <prefix>.>.
func EnsureStream(ctx context.Context, js jetstream.JetStream, name, prefix string) error {
	if name == "" {
		name = DefaultStream
	}
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        name,
		Description: "Topology run events",
		Subjects:    []string{prefix + ".>"},
		Duplicates:  10 * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("ensure stream %s: %w", name, err)
	}
	return nil
}

// Subject returns the subject an event is published on.
func Subject(prefix, target, eventType string) string {
	return prefix + "." + subjectToken(target) + "." + eventType
}

// subjectToken maps a target id onto a single subject token.
func subjectToken(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

func (p *NATSPublisher) Publish(ctx context.Context, events []topology.Event) error {
	if p == nil || p.js == nil {
		return nil // Skip publishing if no JetStream (graceful degradation)
	}

	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", ev.EventID, err)
		}
		subject := Subject(p.prefix, runTarget(ev), ev.EventType)
		if _, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(ev.EventID)); err != nil {
			return fmt.Errorf("publish %s: %w", ev.EventType, err)
		}
	}
	return nil
}

func runTarget(ev topology.Event) string {
	if run, ok := ev.Payload["run"].(topology.RunContext); ok {
		return run.TargetID
	}
	return ""
}
