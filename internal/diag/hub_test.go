package diag

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/blade-inspector/internal/telemetry"
)

func newRunningHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub()
	go h.Run()
	return h
}

func registerClient(t *testing.T, h *Hub, node string) *Client {
	t.Helper()
	c := &Client{send: make(chan []byte, 8), node: node}
	h.register <- c
	return c
}

func recvWithin(t *testing.T, ch chan []byte, d time.Duration) ([]byte, bool) {
	t.Helper()
	select {
	case msg := <-ch:
		return msg, true
	case <-time.After(d):
		return nil, false
	}
}

func TestBroadcastIterationReachesUnfilteredClient(t *testing.T) {
	h := newRunningHub(t)
	c := registerClient(t, h, "")

	h.BroadcastIteration("master", telemetry.IterationEvent{Iteration: 3})

	msg, ok := recvWithin(t, c.send, time.Second)
	require.True(t, ok, "expected a broadcast message")

	var wrapped wireEvent
	require.NoError(t, json.Unmarshal(msg, &wrapped))
	assert.Equal(t, "master", wrapped.Node)
	assert.Equal(t, 3, wrapped.Iteration)
}

func TestBroadcastIterationFiltersByNode(t *testing.T) {
	h := newRunningHub(t)
	masterOnly := registerClient(t, h, "master")
	slaveOnly := registerClient(t, h, "slave")

	h.BroadcastIteration("master", telemetry.IterationEvent{Iteration: 1})

	_, gotMaster := recvWithin(t, masterOnly.send, time.Second)
	assert.True(t, gotMaster, "master-filtered client should receive a master event")

	_, gotSlave := recvWithin(t, slaveOnly.send, 200*time.Millisecond)
	assert.False(t, gotSlave, "slave-filtered client should not receive a master event")
}

func TestUnregisterClosesSendChannel(t *testing.T) {
	h := newRunningHub(t)
	c := registerClient(t, h, "")

	h.unregister <- c

	_, open := <-c.send
	assert.False(t, open, "send channel should be closed after unregister")
}
