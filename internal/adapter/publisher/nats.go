package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	nats "github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/propagation"

	"github.com/hive-corporation/iocscope/internal/core/domain"
)

// DefaultSubjectPrefix is used when no prefix is configured. Records go to
// "<prefix>.<indicator type>", e.g. "iocscope.lookups.ipv4".
const DefaultSubjectPrefix = "iocscope.lookups"

var propagator = propagation.TraceContext{}

// conn is the part of *nats.Conn the publisher uses.
type conn interface {
	PublishMsg(msg *nats.Msg) error
	Drain() error
}

// NATSPublisher publishes every finished lookup as JSON on NATS.
type NATSPublisher struct {
	nc     conn
	prefix string
}

func NewNATSPublisher(nc conn, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{nc: nc, prefix: prefix}
}

// Connect dials url and keeps reconnecting in the background for the life of the process.
func Connect(url, prefix string, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	nc, err := nats.Connect(url,
		nats.Name("iocscope"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", url, err)
	}

	return NewNATSPublisher(nc, prefix), nil
}

// Subject returns the subject a record of type typ is published on.
func (p *NATSPublisher) Subject(typ domain.IndicatorType) string {
	return p.prefix + "." + typ.String()
}

// Publish injects the trace context into the message headers and publishes the record.
func (p *NATSPublisher) Publish(ctx context.Context, record domain.LookupRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode lookup %s: %w", record.ID, err)
	}

	hdr := nats.Header{}
	propagator.Inject(ctx, propagation.HeaderCarrier(hdr))
	hdr.Set("Content-Type", "application/json")

	msg := &nats.Msg{Subject: p.Subject(record.Type), Data: data, Header: hdr}
	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish lookup %s: %w", record.ID, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}
