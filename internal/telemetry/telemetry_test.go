package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingSink struct {
	calls []IterationEvent
}

func (r *recordingSink) PublishIteration(_ context.Context, node string, ev IterationEvent) {
	r.calls = append(r.calls, ev)
}

type recordingBroadcaster struct {
	nodes []string
}

func (r *recordingBroadcaster) BroadcastIteration(node string, ev IterationEvent) {
	r.nodes = append(r.nodes, node)
}

func TestFanoutSinkCallsBothDurableAndBroadcaster(t *testing.T) {
	sink := &recordingSink{}
	bc := &recordingBroadcaster{}
	fanout := FanoutSink{Durable: sink, Broadcaster: bc}

	fanout.PublishIteration(context.Background(), "master", IterationEvent{Iteration: 5})

	assert.Len(t, sink.calls, 1)
	assert.Equal(t, 5, sink.calls[0].Iteration)
	assert.Equal(t, []string{"master"}, bc.nodes)
}

func TestFanoutSinkToleratesNilComponents(t *testing.T) {
	fanout := FanoutSink{}
	assert.NotPanics(t, func() {
		fanout.PublishIteration(context.Background(), "slave", IterationEvent{})
	})
}

func TestFanoutSinkDurableOnly(t *testing.T) {
	sink := &recordingSink{}
	fanout := FanoutSink{Durable: sink}
	fanout.PublishIteration(context.Background(), "master", IterationEvent{Iteration: 1})
	assert.Len(t, sink.calls, 1)
}

func TestNoopPublisherDiscardsEvents(t *testing.T) {
	var p Sink = NoopPublisher{}
	assert.NotPanics(t, func() {
		p.PublishIteration(context.Background(), "master", IterationEvent{})
	})
}
