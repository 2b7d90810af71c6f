// Package natsutil provides typed NATS publish/subscribe/request helpers
// with OpenTelemetry trace propagation.
package natsutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

// DefaultRequestTimeout applies when the request context carries no deadline.
const DefaultRequestTimeout = 10 * time.Minute

// natsHeaderCarrier adapts nats.Msg headers for OTel TextMapCarrier.
type natsHeaderCarrier nats.Msg

func (c *natsHeaderCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *natsHeaderCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *natsHeaderCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// reply is the envelope used by Handle and Request.
type reply[T any] struct {
	Data  T      `json:"data"`
	Error string `json:"error,omitempty"`
}

// RemoteError is returned by Request when the responder's handler failed.
type RemoteError struct {
	Subject string
	Msg     string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("natsutil: %s: remote: %s", e.Subject, e.Msg)
}

func newMsg(ctx context.Context, subject string, v any) (*nats.Msg, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("natsutil: marshal %s: %w", subject, err)
	}
	msg := &nats.Msg{Subject: subject, Data: data}
	otel.GetTextMapPropagator().Inject(ctx, (*natsHeaderCarrier)(msg))
	return msg, nil
}

// Publish serializes v as JSON and publishes to the given subject.
// Trace context from ctx is injected into NATS message headers.
func Publish[T any](ctx context.Context, nc *nats.Conn, subject string, v T) error {
	msg, err := newMsg(ctx, subject, v)
	if err != nil {
		return err
	}
	return nc.PublishMsg(msg)
}

// Subscribe registers a handler that deserializes JSON messages of type T.
// Trace context is extracted from NATS message headers and passed to the handler.
// Malformed messages are silently dropped.
func Subscribe[T any](nc *nats.Conn, subject string, handler func(context.Context, T)) (*nats.Subscription, error) {
	return nc.Subscribe(subject, func(msg *nats.Msg) {
		var v T
		if err := json.Unmarshal(msg.Data, &v); err != nil {
			return
		}
		ctx := otel.GetTextMapPropagator().Extract(context.Background(), (*natsHeaderCarrier)(msg))
		handler(ctx, v)
	})
}

// Handle serves request/reply on subject within a queue group
// (plain subscription when queue is empty). Each request is
// decoded into Req, passed to handler, and answered with the JSON envelope
// that Request expects. ctx bounds every handler invocation.
func Handle[Req, Resp any](ctx context.Context, nc *nats.Conn, subject, queue string, handler func(context.Context, Req) (Resp, error)) (*nats.Subscription, error) {
	cb := func(msg *nats.Msg) {
		var out reply[Resp]
		var req Req
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			out.Error = "malformed request: " + err.Error()
		} else {
			hctx := otel.GetTextMapPropagator().Extract(ctx, (*natsHeaderCarrier)(msg))
			resp, err := handler(hctx, req)
			if err != nil {
				out.Error = err.Error()
			} else {
				out.Data = resp
			}
		}
		data, err := json.Marshal(out)
		if err != nil {
			data, _ = json.Marshal(reply[Resp]{Error: "marshal response: " + err.Error()})
		}
		msg.Respond(data)
	}
	if queue == "" {
		return nc.Subscribe(subject, cb)
	}
	return nc.QueueSubscribe(subject, queue, cb)
}

// Request sends a JSON-encoded request to a Handle responder and decodes the
// reply. Without a deadline on ctx, DefaultRequestTimeout applies.
func Request[Req, Resp any](ctx context.Context, nc *nats.Conn, subject string, req Req) (Resp, error) {
	var zero Resp
	msg, err := newMsg(ctx, subject, req)
	if err != nil {
		return zero, err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultRequestTimeout)
		defer cancel()
	}
	resp, err := nc.RequestMsgWithContext(ctx, msg)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return zero, fmt.Errorf("natsutil: %s: %w", subject, err)
		}
		return zero, err
	}
	var out reply[Resp]
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		return zero, fmt.Errorf("natsutil: decode %s reply: %w", subject, err)
	}
	if out.Error != "" {
		return zero, &RemoteError{Subject: subject, Msg: out.Error}
	}
	return out.Data, nil
}
