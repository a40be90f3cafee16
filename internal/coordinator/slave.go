package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/your-org/blade-inspector/internal/calib"
	"github.com/your-org/blade-inspector/internal/config"
	"github.com/your-org/blade-inspector/internal/delta"
	"github.com/your-org/blade-inspector/internal/models"
	"github.com/your-org/blade-inspector/internal/observability"
	"github.com/your-org/blade-inspector/internal/protocol"
	"github.com/your-org/blade-inspector/internal/telemetry"
)

// SlaveNode owns the right-camera pipeline and responds to the master's
// request catalogue. The source's shared-flag-plus-mutex discipline
// (process_new_frame_flag, prepared_frame_content slot) is replaced by
// frameCh, a single-slot channel written once by the setNewFrame
// capture goroutine and read once by the following getPointList —
// Go's normal way of expressing "at most one writer, at most one
// pending value" without a bespoke flag/lock pair.
type SlaveNode struct {
	Cfg       *config.Config
	Conn      *protocol.Conn
	Pipeline  *Pipeline
	Source    calib.FrameSource
	Calib     calib.StereoCalibration
	Telemetry TelemetrySink

	frameCh chan frameResult
}

type frameResult struct {
	keypoints   []models.Keypoint
	descriptors []models.Descriptor
	shape       models.Shape
	err         error
}

func NewSlaveNode(cfg *config.Config, conn *protocol.Conn, pipeline *Pipeline, src calib.FrameSource, c calib.StereoCalibration, sink TelemetrySink) *SlaveNode {
	return &SlaveNode{
		Cfg: cfg, Conn: conn, Pipeline: pipeline, Source: src, Calib: c, Telemetry: sink,
		frameCh: make(chan frameResult, 1),
	}
}

// Run enters the slave's receive loop and streams point lists per the
// setNewFrame/getPointList handshake (spec §4.10), until disconnect or
// ctx cancel. setTimestamp and calibrateCV are accepted in any order and
// only logged and acknowledged: no calibration runs on the slave.
func (s *SlaveNode) Run(ctx context.Context) error {
	watchdog := time.NewTimer(s.masterTimeout())
	defer watchdog.Stop()

	errCh := make(chan error, 1)
	go s.receiveLoop(ctx, errCh, watchdog)

	select {
	case <-ctx.Done():
		_ = s.Conn.Close()
		return nil
	case <-watchdog.C:
		_ = s.Conn.Close()
		return models.NewErrorf(models.KindTimeoutCapturingFrame, "master timed out", nil)
	case err := <-errCh:
		return err
	}
}

func (s *SlaveNode) masterTimeout() time.Duration {
	if s.Cfg.Protocol.MasterTimeout <= 0 {
		return 24 * time.Hour
	}
	return s.Cfg.Protocol.MasterTimeout
}

func (s *SlaveNode) receiveLoop(ctx context.Context, errCh chan<- error, watchdog *time.Timer) {
	iteration := 0
	for {
		env, err := s.Conn.Recv()
		if err != nil {
			observability.ProtocolDisconnects.Inc()
			errCh <- fmt.Errorf("slave: receive loop: %w", err)
			return
		}
		resetTimer(watchdog, s.masterTimeout())

		corrID := protocol.CorrelationID()

		switch env.Request {
		case protocol.ReqSetTimestamp:
			var c protocol.SetTimestampContent
			_ = json.Unmarshal(env.Content, &c)
			slog.Debug("slave: setTimestamp", "timestamp", c.Timestamp, "correlation_id", corrID)
			_ = s.Conn.SendAck()

		case protocol.ReqCalibrateCV:
			var c protocol.CalibrateCVContent
			_ = json.Unmarshal(env.Content, &c)
			slog.Info("slave: calibrateCV", "stereopsis", c.CalibrateStereopsisSession,
				"blob_scale", c.CalibrateBlobScaleDetectorSession, "correlation_id", corrID)
			_ = s.Conn.SendAck()

		case protocol.ReqSlaveReady:
			content, _ := json.Marshal(protocol.SlaveReadyContent{Ready: true})
			_ = s.Conn.Send(protocol.Envelope{Request: protocol.ReqSlaveReady, Content: content})

		case protocol.ReqSetNewFrame:
			_ = s.Conn.SendAck()
			go s.captureAndDetect(ctx)

		case protocol.ReqGetPointList:
			ev, outcome := s.respondPointList(ctx)
			observability.IterationsTotal.WithLabelValues("slave", outcome).Inc()
			ev.CorrelationID = corrID
			ev.Iteration = iteration
			s.Telemetry.PublishIteration(ctx, "slave", ev)
			iteration++

		case protocol.ReqGetFrame:
			s.respondGetFrame(corrID)

		case protocol.ReqRestartPtGrey:
			if err := s.Source.Rearm(ctx); err != nil {
				slog.Warn("slave: restart ptgrey", "error", err, "correlation_id", corrID)
			}
			_ = s.Conn.SendAck()

		case protocol.ReqStop:
			_ = s.Conn.SendAck()

		case protocol.ReqDisconnect:
			errCh <- nil
			return

		default:
			_ = s.Conn.SendAck()
		}
	}
}

func (s *SlaveNode) captureAndDetect(ctx context.Context) {
	normal, structured, err := s.Source.Capture(ctx)
	if err != nil {
		s.frameCh <- frameResult{err: err}
		return
	}
	defer normal.Close()
	defer structured.Close()

	kps, descs, shape, err := s.Pipeline.Detect(normal, structured)
	s.frameCh <- frameResult{keypoints: kps, descriptors: descs, shape: shape, err: err}

	if err := s.Source.Rearm(ctx); err != nil {
		slog.Warn("slave: rearm capture source", "error", err)
	}
}

// respondPointList waits for the in-flight captureAndDetect result (or
// the frame-request timeout) and replies on the wire.
func (s *SlaveNode) respondPointList(ctx context.Context) (telemetry.IterationEvent, string) {
	var res frameResult
	select {
	case res = <-s.frameCh:
	case <-time.After(s.Cfg.Protocol.FrameReqTimeout):
		res = frameResult{err: models.ErrTimeoutCapturingFrame}
	case <-ctx.Done():
		res = frameResult{err: ctx.Err()}
	}

	content := protocol.GetPointListContent{
		ShapeH: res.shape.H,
		ShapeW: res.shape.W,
		Valid:  res.err == nil,
	}
	if res.err != nil {
		content.Error = stageKind(res.err)
	} else {
		content.Keypoints = protocol.EncodeKeypoints(res.keypoints)
		content.Descriptors = protocol.EncodeDescriptors(res.descriptors)
	}

	raw, _ := json.Marshal(content)
	if err := s.Conn.Send(protocol.Envelope{Request: protocol.ReqGetPointList, Content: raw}); err != nil {
		observability.ProtocolDisconnects.Inc()
	}

	ev := telemetry.IterationEvent{KeypointCount: len(res.keypoints)}
	if res.err != nil {
		ev.Error = res.err.Error()
		return ev, "error"
	}
	return ev, "ok"
}

// respondGetFrame captures one fresh pair on demand and replies with the
// raw/undistorted/delta frames plus the detector output, per spec
// §4.9's getFrame tuple. Unlike getPointList, this path is not gated by
// the setNewFrame/frameCh handshake — it's a diagnostic/inspection pull.
func (s *SlaveNode) respondGetFrame(corrID string) {
	content := protocol.GetFrameContent{}

	normal, structured, err := s.Source.Capture(context.Background())
	if err != nil {
		content.Error = stageKind(err)
		s.sendGetFrame(content)
		return
	}
	defer normal.Close()
	defer structured.Close()

	content.RawNormal = protocol.EncodeFrame(normal)
	content.RawSL = protocol.EncodeFrame(structured)

	if s.Calib != nil {
		undistorted, err := s.Calib.UndistortRight(normal)
		if err != nil {
			slog.Warn("slave: undistort for getFrame", "error", err, "correlation_id", corrID)
		} else {
			defer undistorted.Close()
			content.Undistorted = protocol.EncodeFrame(undistorted)
		}
	}

	deltaFrame := delta.Delta(normal, structured, s.Cfg.Vision.DeltaThreshold)
	defer deltaFrame.Close()
	content.Delta = protocol.EncodeFrame(deltaFrame)

	kps, descs, _, err := s.Pipeline.Detect(normal, structured)
	if err != nil {
		content.Error = stageKind(err)
	} else {
		content.Valid = true
		content.Keypoints = protocol.EncodeKeypoints(kps)
		content.Descriptors = protocol.EncodeDescriptors(descs)
	}

	s.sendGetFrame(content)
}

func (s *SlaveNode) sendGetFrame(content protocol.GetFrameContent) {
	raw, _ := json.Marshal(content)
	if err := s.Conn.Send(protocol.Envelope{Request: protocol.ReqGetFrame, Content: raw}); err != nil {
		observability.ProtocolDisconnects.Inc()
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
