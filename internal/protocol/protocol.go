// Package protocol implements the master/slave wire protocol: a single
// persistent TCP connection carrying length-prefixed JSON frames, with
// a response_size/ack round trip ahead of any payload larger than the
// peer's configured buffer size, per spec §4.9 and §6.
package protocol

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
)

// Request names, the catalogue of spec §4.9.
const (
	ReqSetTimestamp      = "setTimestamp"
	ReqCalibrateCV       = "calibrateCV"
	ReqSlaveReady        = "slaveReady"
	ReqSendFlagToSlave   = "sendFlagToSlave"
	ReqSetNewFrame       = "setNewFrame"
	ReqGetFrame          = "getFrame"
	ReqGetPointList      = "getPointList"
	ReqGetOriginalFrame  = "getOriginalFrame"
	ReqTradeFrame        = "tradeFrame"
	ReqRestartPtGrey     = "restartPtGrey"
	ReqStop              = "stop"
	ReqDisconnect        = "disconnect"
	ReqRestart           = "restart"
	ReqAck               = "ack"
	ReqResponseSize      = "response_size"
	ReqError             = "error"
)

// Envelope is the wire shape of every logical message:
// {"request": str, "content": any}.
type Envelope struct {
	Request string          `json:"request"`
	Content json.RawMessage `json:"content,omitempty"`
}

// ResponseSizeContent announces an upcoming oversized payload.
type ResponseSizeContent struct {
	Length int `json:"length"`
}

// Conn wraps a TCP connection with the framing discipline: every frame
// is a 4-byte big-endian length prefix followed by the frame's JSON
// bytes, read/written in bufferSize-sized chunks looped to completion
// (spec's "loop until the byte count is satisfied"). Oversized frames
// (content larger than bufferSize) are preceded by an explicit
// response_size/ack control exchange so the receiving side can log and
// prepare for the larger read, matching spec §4.9's documented
// handshake on top of the length-prefix framing.
type Conn struct {
	nc         net.Conn
	r          *bufio.Reader
	w          *bufio.Writer
	bufferSize int
	timeout    time.Duration
}

// NewConn wraps an established net.Conn.
func NewConn(nc net.Conn, bufferSize int, timeout time.Duration) *Conn {
	return &Conn{
		nc:         nc,
		r:          bufio.NewReaderSize(nc, bufferSize),
		w:          bufio.NewWriterSize(nc, bufferSize),
		bufferSize: bufferSize,
		timeout:    timeout,
	}
}

// Listen opens a listener on addr; the caller Accepts once (master
// binds a single persistent connection per spec §4.9).
func Listen(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}

// Dial connects to addr, blocking until accepted (slave's role).
func Dial(addr string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", addr, timeout)
}

// CorrelationID returns a fresh UUID for structured-logging correlation.
// This never rides on the wire — only in log fields around Send/Recv
// calls — so it doesn't change the documented JSON shape.
func CorrelationID() string {
	return uuid.NewString()
}

// Send writes env as a frame, routing through the response_size/ack
// handshake when the serialized envelope exceeds bufferSize.
func (c *Conn) Send(env Envelope) error {
	c.nc.SetWriteDeadline(time.Now().Add(c.timeout))

	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	if len(payload) > c.bufferSize {
		sizeEnv := Envelope{Request: ReqResponseSize}
		sizeContent, _ := json.Marshal(ResponseSizeContent{Length: len(payload)})
		sizeEnv.Content = sizeContent
		if err := c.writeFrame(mustMarshal(sizeEnv)); err != nil {
			return fmt.Errorf("send response_size: %w", err)
		}
		ack, err := c.Recv()
		if err != nil {
			return fmt.Errorf("await ack: %w", err)
		}
		if ack.Request != ReqAck {
			return fmt.Errorf("expected ack, got %q", ack.Request)
		}
	}

	return c.writeFrame(payload)
}

// Recv blocks for the next frame.
func (c *Conn) Recv() (Envelope, error) {
	c.nc.SetReadDeadline(time.Now().Add(c.timeout))

	payload, err := c.readFrame()
	if err != nil {
		return Envelope{}, err
	}

	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return env, nil
}

// SendAck replies with a bare {"request":"ack"} frame.
func (c *Conn) SendAck() error {
	return c.Send(Envelope{Request: ReqAck})
}

func (c *Conn) writeFrame(payload []byte) error {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))

	written := 0
	buf := append(header[:], payload...)
	for written < len(buf) {
		n, err := c.w.Write(buf[written:])
		if err != nil {
			return err
		}
		written += n
	}
	return c.w.Flush()
}

func (c *Conn) readFrame() ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(c.r, header[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header[:])

	payload := make([]byte, length)
	read := 0
	for read < int(length) {
		n, err := c.r.Read(payload[read:])
		if err != nil {
			return nil, err
		}
		read += n
	}
	return payload, nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.nc.Close()
}

func mustMarshal(env Envelope) []byte {
	b, _ := json.Marshal(env)
	return b
}
