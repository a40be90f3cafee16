package protocol

import (
	"encoding/json"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSendRecvRoundTrip(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	sc := NewConn(server, 4096, time.Second)
	cc := NewConn(client, 4096, time.Second)

	done := make(chan error, 1)
	go func() {
		env, err := sc.Recv()
		if err != nil {
			done <- err
			return
		}
		if env.Request != ReqSetTimestamp {
			done <- fmt.Errorf("unexpected request %q", env.Request)
			return
		}
		done <- nil
	}()

	content, _ := json.Marshal(SetTimestampContent{Timestamp: "2026-07-29T00:00:00Z"})
	err := cc.Send(Envelope{Request: ReqSetTimestamp, Content: content})
	require.NoError(t, err)
	require.NoError(t, <-done)
}

func TestSendRecvOversizedPayloadHandshake(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	sc := NewConn(server, 64, time.Second)
	cc := NewConn(client, 64, time.Second)

	bigKeypoints := make([]KeypointWire, 50)
	for i := range bigKeypoints {
		bigKeypoints[i] = KeypointWire{X: float64(i), Y: float64(i), Size: 4, Response: 0.5}
	}
	content, _ := json.Marshal(GetFrameContent{RawNormal: FrameWire{ShapeH: 480, ShapeW: 640, Dtype: "uint8"}, Keypoints: bigKeypoints, Valid: true})

	done := make(chan error, 1)
	go func() {
		env, err := sc.Recv()
		if err != nil {
			done <- err
			return
		}
		if env.Request != ReqResponseSize {
			done <- fmt.Errorf("expected response_size, got %q", env.Request)
			return
		}
		if err := sc.SendAck(); err != nil {
			done <- err
			return
		}
		payload, err := sc.Recv()
		if err != nil {
			done <- err
			return
		}
		if payload.Request != ReqGetFrame {
			done <- fmt.Errorf("expected getFrame payload, got %q", payload.Request)
			return
		}
		done <- nil
	}()

	err := cc.Send(Envelope{Request: ReqGetFrame, Content: content})
	require.NoError(t, err)
	require.NoError(t, <-done)
}
