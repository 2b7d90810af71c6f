package pipeline

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/WessleyAI/patentrag/pkg/natsutil"
)

// SectionEvent is published when a section reaches a terminal state.
type SectionEvent struct {
	RunID      string   `json:"run_id"`
	Kind       string   `json:"section"`
	Ordinal    int      `json:"ordinal"`
	State      State    `json:"state"`
	Confidence float64  `json:"confidence,omitempty"`
	Band       string   `json:"band,omitempty"`
	Degraded   []string `json:"degraded,omitempty"`
	Reason     string   `json:"reason,omitempty"`
}

// EventSink receives section events. Publishing failures never fail a section.
type EventSink interface {
	Publish(ctx context.Context, ev SectionEvent) error
}

// NATSSink publishes events as JSON on a NATS subject.
type NATSSink struct {
	nc      *nats.Conn
	subject string
}

// NewNATSSink creates a sink publishing on subject.
func NewNATSSink(nc *nats.Conn, subject string) *NATSSink {
	return &NATSSink{nc: nc, subject: subject}
}

// Publish sends ev with the caller's trace context in the headers.
func (s *NATSSink) Publish(ctx context.Context, ev SectionEvent) error {
	return natsutil.Publish(ctx, s.nc, s.subject, ev)
}

func eventFor(runID string, o Outcome) SectionEvent {
	ev := SectionEvent{
		RunID:   runID,
		Kind:    string(o.Section.Kind),
		Ordinal: o.Section.Ordinal,
		State:   o.State,
		Reason:  o.Reason,
	}
	if o.Result != nil {
		ev.Confidence = o.Result.Confidence
		ev.Band = o.Band()
		ev.Degraded = o.Result.Degraded
	}
	return ev
}
