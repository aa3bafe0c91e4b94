package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	nats "github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/hive-corporation/iocscope/internal/core/domain"
	"github.com/hive-corporation/iocscope/internal/core/ports"
)

var _ ports.ResultPublisher = (*NATSPublisher)(nil)

type fakeConn struct {
	msgs    []*nats.Msg
	err     error
	drained bool
}

func (c *fakeConn) PublishMsg(msg *nats.Msg) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *fakeConn) Drain() error {
	c.drained = true
	return nil
}

func TestPublish(t *testing.T) {
	nc := &fakeConn{}
	p := NewNATSPublisher(nc, "")

	record := domain.LookupRecord{
		ID:        "3f1c",
		Indicator: "evil.com",
		Type:      domain.Domain,
		Timestamp: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	// a sampled remote span context so the traceparent header is written
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithRemoteSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	}))

	if err := p.Publish(ctx, record); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if len(nc.msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(nc.msgs))
	}

	msg := nc.msgs[0]
	if msg.Subject != "iocscope.lookups.domain" {
		t.Errorf("Subject = %q", msg.Subject)
	}
	if got := propagation.HeaderCarrier(msg.Header).Get("traceparent"); got != "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01" {
		t.Errorf("traceparent = %q", got)
	}

	var decoded domain.LookupRecord
	if err := json.Unmarshal(msg.Data, &decoded); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if decoded.ID != record.ID || decoded.Indicator != record.Indicator {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestPublishError(t *testing.T) {
	p := NewNATSPublisher(&fakeConn{err: nats.ErrConnectionClosed}, "alerts")

	err := p.Publish(context.Background(), domain.LookupRecord{ID: "x", Type: domain.IPv4})
	if !errors.Is(err, nats.ErrConnectionClosed) {
		t.Errorf("err = %v, want wrapped ErrConnectionClosed", err)
	}
}

func TestCloseDrains(t *testing.T) {
	nc := &fakeConn{}
	if err := NewNATSPublisher(nc, "alerts").Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !nc.drained {
		t.Error("Close should drain the connection")
	}
}
