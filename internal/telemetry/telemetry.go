// Package telemetry publishes per-iteration heading/point-cloud
// summaries to NATS JetStream, off the synchronous master/slave RPC
// path. This is a supplement beyond the distilled spec (which treats
// persistence as out of scope): it gives the out-of-scope "consumed,
// not defined" filesystem/DB layer a concrete, injectable producer, the
// way the teacher's queue package feeds its own API/worker split.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/blade-inspector/internal/models"
)

const (
	StreamName   = "BLADE_TELEMETRY"
	SubjectBase  = "blade.telemetry"
)

// IterationEvent summarises one Coordinator iteration for downstream
// consumers (store, diag websocket hub).
type IterationEvent struct {
	CorrelationID string          `json:"correlation_id"`
	Iteration     int             `json:"iteration"`
	Phase         string          `json:"phase"`
	TowardsTip    bool            `json:"towards_tip"`
	Heading       models.Heading  `json:"heading"`
	KeypointCount int             `json:"keypoint_count"`
	Points        []models.Point3D `json:"points,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// Publisher wraps a NATS JetStream connection dedicated to telemetry
// fan-out, mirroring the teacher's queue.Producer shape.
type Publisher struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// NewPublisher connects to natsURL and opens a JetStream context.
func NewPublisher(natsURL string) (*Publisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	return &Publisher{nc: nc, js: js}, nil
}

// EnsureStream creates the telemetry stream if it doesn't exist.
func (p *Publisher) EnsureStream(ctx context.Context) error {
	_, err := p.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectBase + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      24 * time.Hour,
		MaxMsgs:     1_000_000,
		Storage:     jetstream.FileStorage,
		Description: "Per-iteration heading/point-cloud telemetry",
	})
	if err != nil {
		return fmt.Errorf("ensure telemetry stream: %w", err)
	}
	return nil
}

// PublishIteration publishes ev asynchronously; send errors are logged,
// not propagated, since telemetry never blocks the master/slave loop.
func (p *Publisher) PublishIteration(ctx context.Context, node string, ev IterationEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("telemetry: marshal iteration event", "error", err)
		return
	}

	subject := fmt.Sprintf("%s.%s", SubjectBase, node)
	go func() {
		pubCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := p.js.Publish(pubCtx, subject, payload); err != nil {
			slog.Warn("telemetry: publish iteration event", "error", err, "correlation_id", ev.CorrelationID)
		}
	}()
	_ = ctx
}

// Ping reports whether the underlying NATS connection is up, mirroring
// the teacher's queue.Producer.Ping for use in /healthz.
func (p *Publisher) Ping() error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func (p *Publisher) Close() {
	p.nc.Close()
}

// NoopPublisher discards telemetry, for tests and the simulate CLI path
// that doesn't stand up a NATS server.
type NoopPublisher struct{}

func (NoopPublisher) PublishIteration(context.Context, string, IterationEvent) {}

// Sink is the subset of Publisher the coordinator depends on.
type Sink interface {
	PublishIteration(ctx context.Context, node string, ev IterationEvent)
}

// Broadcaster is the diag package's websocket hub, kept as a narrow
// interface here (rather than importing internal/diag, which itself
// imports this package) so FanoutSink can feed both the durable
// JetStream stream and the live diagnostics feed from one call site.
type Broadcaster interface {
	BroadcastIteration(node string, ev IterationEvent)
}

// FanoutSink publishes to a durable Sink (NATS, or NoopPublisher) and,
// if non-nil, also pushes straight onto a live Broadcaster — letting
// cmd/master and cmd/slave wire one TelemetrySink that serves both the
// store's eventual consumer and the diag server's connected operators.
type FanoutSink struct {
	Durable     Sink
	Broadcaster Broadcaster
}

func (f FanoutSink) PublishIteration(ctx context.Context, node string, ev IterationEvent) {
	if f.Durable != nil {
		f.Durable.PublishIteration(ctx, node, ev)
	}
	if f.Broadcaster != nil {
		f.Broadcaster.BroadcastIteration(node, ev)
	}
}
