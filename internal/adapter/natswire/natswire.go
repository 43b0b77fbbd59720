// Package natswire implements the wire transport and agent announcement
// feed over NATS. Delegation endpoints use nats://<subject> and are served
// request-reply; announcements flow through a JetStream stream so an
// orchestrator that starts late still learns about running specialists.
package natswire

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/SwarmGate/internal/domain/agent"
)

const (
	scheme     = "nats"
	streamName = "SWARMGATE"
)

// Conn wraps a NATS connection with the JetStream announcement stream.
type Conn struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// Connect establishes the NATS connection and ensures the announcement
// stream exists.
func Connect(ctx context.Context, url string) (*Conn, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{"agents.>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", url, "stream", streamName)
	return &Conn{nc: nc, js: js}, nil
}

// Scheme implements transport.Transport.
func (c *Conn) Scheme() string { return scheme }

// RoundTrip sends the envelope request-reply on the endpoint's subject.
// The reply deadline comes from the caller's context.
func (c *Conn) RoundTrip(ctx context.Context, endpoint string, payload []byte) ([]byte, error) {
	subject := strings.TrimPrefix(endpoint, scheme+"://")

	msg, err := c.nc.RequestWithContext(ctx, subject, payload)
	if err != nil {
		return nil, fmt.Errorf("nats request %s: %w", subject, err)
	}
	return msg.Data, nil
}

// Registrar accepts agent descriptors from the announcement feed. The
// service registry satisfies it.
type Registrar interface {
	Register(d agent.Descriptor) error
}

// SubscribeAnnouncements consumes agent announcements and registers each
// descriptor. Duplicate or invalid announcements are logged and dropped so
// a re-announcing specialist never poisons the stream. The returned stop
// function detaches the consumer.
func (c *Conn) SubscribeAnnouncements(ctx context.Context, subject string, reg Registrar) (func(), error) {
	consumer, err := c.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("nats consumer create: %w", err)
	}

	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		var d agent.Descriptor
		if err := json.Unmarshal(msg.Data(), &d); err != nil {
			slog.Warn("malformed agent announcement", "subject", msg.Subject(), "error", err)
			_ = msg.Ack()
			return
		}
		if err := reg.Register(d); err != nil {
			slog.Debug("announcement skipped", "agent_id", d.ID, "error", err)
		} else {
			slog.Info("agent announced", "agent_id", d.ID, "endpoint", d.Endpoint)
		}
		if ackErr := msg.Ack(); ackErr != nil {
			slog.Error("nats ack failed", "error", ackErr)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("nats consume: %w", err)
	}
	return cons.Stop, nil
}

// Announce publishes this process's own specialist descriptor, for agents
// embedding the package.
func (c *Conn) Announce(ctx context.Context, subject string, d agent.Descriptor) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal descriptor: %w", err)
	}
	if _, err := c.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// KeyValue creates or opens a JetStream KV bucket. Entries expire at the
// bucket level after ttl.
func (c *Conn) KeyValue(ctx context.Context, bucket string, ttl time.Duration) (jetstream.KeyValue, error) {
	kv, err := c.js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: bucket,
		TTL:    ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("nats kv bucket %s: %w", bucket, err)
	}
	return kv, nil
}

// Close shuts down the NATS connection.
func (c *Conn) Close() error {
	c.nc.Close()
	return nil
}
