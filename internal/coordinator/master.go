package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/your-org/blade-inspector/internal/calib"
	"github.com/your-org/blade-inspector/internal/config"
	"github.com/your-org/blade-inspector/internal/edge"
	"github.com/your-org/blade-inspector/internal/heading"
	"github.com/your-org/blade-inspector/internal/linegrid"
	"github.com/your-org/blade-inspector/internal/models"
	"github.com/your-org/blade-inspector/internal/observability"
	"github.com/your-org/blade-inspector/internal/protocol"
	"github.com/your-org/blade-inspector/internal/stereo"
	"github.com/your-org/blade-inspector/internal/telemetry"
)

// TelemetrySink is the subset of telemetry.Publisher the Coordinator
// depends on, so tests can inject telemetry.NoopPublisher.
type TelemetrySink interface {
	PublishIteration(ctx context.Context, node string, ev telemetry.IterationEvent)
}

// MasterNode owns the left-camera pipeline, the TCP connection to the
// slave, and the mission state machine. Plain-struct composition per
// the decomposition-over-inheritance redesign note: no embedded base
// node, no virtual dispatch — MasterNode and SlaveNode share only the
// Pipeline and protocol helpers they each hold as fields.
type MasterNode struct {
	Cfg       *config.Config
	Conn      *protocol.Conn
	Pipeline  *Pipeline
	Calib     calib.StereoCalibration
	Source    calib.FrameSource
	State     *models.CoordinatorState
	Heading   *heading.Engine
	Telemetry TelemetrySink

	matchCfg stereo.MatchConfig
	reconCfg stereo.ReconstructConfig
}

// NewMasterNode wires a MasterNode's stereo matcher/reconstructor
// configuration from cfg and the standard spacing derived by
// ScaleCalibrator. Before calibration the spacing is 0: block matching's
// window then has k=1 (zero half-widths), so only keypoints at identical
// positions are paired, and the grid fit uses its keypoint-size radius.
func NewMasterNode(cfg *config.Config, conn *protocol.Conn, pipeline *Pipeline, c calib.StereoCalibration, src calib.FrameSource, state *models.CoordinatorState, eng *heading.Engine, sink TelemetrySink, standardSpacing float64) *MasterNode {
	return &MasterNode{
		Cfg: cfg, Conn: conn, Pipeline: pipeline, Calib: c, Source: src,
		State: state, Heading: eng, Telemetry: sink,
		matchCfg: stereo.MatchConfig{
			UseBlockMatching:  cfg.Vision.UseBlockMatching,
			BlockMatchingParam: cfg.Vision.BlockMatchingParam,
			UseBruteForce:     cfg.Vision.UseBruteForce,
			CalibratedSpacing: standardSpacing,
		},
		reconCfg: stereo.ReconstructConfig{
			UseTriangulation:    cfg.Vision.UseTriangulation,
			UseCV2Triangulation: cfg.Vision.UseCV2Triangulation,
			SigmaFilter:         true,
			Calib:               c,
		},
	}
}

type slaveResult struct {
	keypoints   []models.Keypoint
	descriptors []models.Descriptor
	shape       models.Shape
	valid       bool
	err         error
}

// Run drives the master loop of spec §4.10 until stop is requested,
// n_frames is reached, or HeadingEngine emits the mission-complete
// sentinel.
func (m *MasterNode) Run(ctx context.Context) error {
	m.State.Phase = models.PhaseRunning
	iteration := 0

	for m.Cfg.Master.NFrames == 0 || iteration < m.Cfg.Master.NFrames {
		select {
		case <-ctx.Done():
			return m.shutdown()
		default:
		}

		corrID := protocol.CorrelationID()
		start := time.Now()

		ev, outcome := m.runIteration(ctx, iteration, corrID)
		observability.IterationsTotal.WithLabelValues("master", outcome).Inc()
		observability.IterationDuration.WithLabelValues("master").Observe(time.Since(start).Seconds())
		m.Telemetry.PublishIteration(ctx, "master", ev)

		if outcome == "mission_complete" {
			m.State.Phase = models.PhaseFinished
			return m.shutdown()
		}
		if outcome == "camera_error" {
			if err := m.requestRestartPtGrey(); err != nil {
				slog.Warn("master: restart ptgrey after camera error", "error", err, "correlation_id", corrID)
			}
		}

		iteration++
	}

	return m.shutdown()
}

func (m *MasterNode) runIteration(ctx context.Context, iteration int, corrID string) (telemetry.IterationEvent, string) {
	ev := telemetry.IterationEvent{CorrelationID: corrID, Iteration: iteration, Phase: m.State.Phase.String(), TowardsTip: m.State.TowardsTip}

	if err := m.sendSetNewFrame(); err != nil {
		ev.Error = err.Error()
		return ev, "protocol_error"
	}

	slaveCh := make(chan slaveResult, 1)
	go func() {
		kps, descs, shp, err := m.fetchSlavePointList(ctx)
		slaveCh <- slaveResult{keypoints: kps, descriptors: descs, shape: shp, valid: err == nil, err: err}
	}()

	normal, structured, err := m.Source.Capture(ctx)
	if err != nil {
		<-slaveCh
		ev.Error = err.Error()
		if errors.Is(err, models.ErrCameraNotConnected) || errors.Is(err, models.ErrFailedCapturingFrame) || errors.Is(err, models.ErrTimeoutCapturingFrame) {
			return ev, "camera_error"
		}
		return ev, "fatal"
	}
	defer normal.Close()
	defer structured.Close()

	masterKps, masterDescs, shape, err := m.Pipeline.Detect(normal, structured)
	slave := <-slaveCh

	if err != nil {
		observability.StageErrors.WithLabelValues("pipeline", stageKind(err)).Inc()
		ev.Error = err.Error()
		return ev, "pipeline_error"
	}
	if slave.err != nil {
		observability.StageErrors.WithLabelValues("slave_pipeline", stageKind(slave.err)).Inc()
		ev.Error = slave.err.Error()
		if errors.Is(slave.err, models.ErrCameraNotConnected) || errors.Is(slave.err, models.ErrFailedCapturingFrame) || errors.Is(slave.err, models.ErrTimeoutCapturingFrame) {
			return ev, "camera_error"
		}
	}

	observability.KeypointsDetected.WithLabelValues("master").Observe(float64(len(masterKps)))
	ev.KeypointCount = len(masterKps)

	undistorted, err := m.Calib.UndistortLeft(normal)
	if err != nil {
		ev.Error = err.Error()
		return ev, "calib_error"
	}
	defer undistorted.Close()

	// Grid-fit radius: 0.3x the calibrated spacing; nil before calibration,
	// so Fit falls back to the largest keypoint size.
	var r *float64
	if spacing := m.matchCfg.CalibratedSpacing; spacing > 0 {
		rv := 0.3 * spacing
		r = &rv
	}
	grid, err := linegrid.Fit(masterKps, shape, r)
	if err != nil {
		observability.StageErrors.WithLabelValues("linegrid", stageKind(err)).Inc()
		ev.Error = err.Error()
		return ev, "linegrid_error"
	}

	edges, err := edge.FindEdges(undistorted.Mat, shape, grid.Segments, grid.Extremes, m.Cfg.Master.ScaleThreshold)
	if err != nil {
		observability.StageErrors.WithLabelValues("edge", stageKind(err)).Inc()
		ev.Error = err.Error()
		return ev, "edge_error"
	}

	headingOut, err := m.Heading.Step(edges, shape)
	if err != nil {
		observability.StageErrors.WithLabelValues("heading", stageKind(err)).Inc()
		ev.Error = err.Error()
		return ev, "heading_error"
	}
	ev.Heading = headingOut
	ev.TowardsTip = m.State.TowardsTip
	observability.HeadingRho.Set(headingOut.Rho)
	observability.HeadingTheta.Set(headingOut.Theta)
	if m.State.TowardsTip {
		observability.TowardsTip.Set(1)
	} else {
		observability.TowardsTip.Set(0)
	}

	if headingOut.Complete() {
		return ev, "mission_complete"
	}

	if slave.valid {
		matches, err := stereo.Match(masterKps, slave.keypoints, masterDescs, slave.descriptors, m.matchCfg)
		if err != nil {
			observability.StageErrors.WithLabelValues("stereo_match", stageKind(err)).Inc()
			slog.Warn("master: stereo match failed", "error", err, "correlation_id", corrID)
		} else {
			points, err := stereo.Reconstruct(matches, masterKps, slave.keypoints, m.reconCfg)
			if err != nil {
				observability.StageErrors.WithLabelValues("stereo_reconstruct", stageKind(err)).Inc()
				slog.Warn("master: stereo reconstruct failed", "error", err, "correlation_id", corrID)
			} else {
				ev.Points = points
				observability.PointsReconstructed.WithLabelValues().Observe(float64(len(points)))
			}
		}
	}

	if err := m.Source.Rearm(ctx); err != nil {
		slog.Warn("master: rearm capture source", "error", err, "correlation_id", corrID)
	}

	return ev, "ok"
}

func stageKind(err error) string {
	var ce *models.CoreError
	if errors.As(err, &ce) {
		return string(ce.Kind)
	}
	return "unknown"
}

func (m *MasterNode) sendSetNewFrame() error {
	_, err := m.call(protocol.ReqSetNewFrame, nil)
	return err
}

func (m *MasterNode) fetchSlavePointList(ctx context.Context) ([]models.Keypoint, []models.Descriptor, models.Shape, error) {
	env, err := m.call(protocol.ReqGetPointList, nil)
	if err != nil {
		return nil, nil, models.Shape{}, err
	}
	var content protocol.GetPointListContent
	if err := json.Unmarshal(env.Content, &content); err != nil {
		return nil, nil, models.Shape{}, fmt.Errorf("decode getPointList reply: %w", err)
	}
	if content.Error != "" {
		return nil, nil, models.Shape{}, models.NewErrorf(models.ErrorKind(content.Error), "slave", nil)
	}
	if !content.Valid {
		return nil, nil, models.Shape{}, models.ErrNoBlobs
	}
	return protocol.DecodeKeypoints(content.Keypoints), protocol.DecodeDescriptors(content.Descriptors),
		models.Shape{H: content.ShapeH, W: content.ShapeW}, nil
}

func (m *MasterNode) requestRestartPtGrey() error {
	_, err := m.call(protocol.ReqRestartPtGrey, nil)
	return err
}

func (m *MasterNode) call(request string, content interface{}) (protocol.Envelope, error) {
	var raw []byte
	if content != nil {
		var err error
		raw, err = json.Marshal(content)
		if err != nil {
			return protocol.Envelope{}, fmt.Errorf("marshal %s content: %w", request, err)
		}
	}
	start := time.Now()
	if err := m.Conn.Send(protocol.Envelope{Request: request, Content: raw}); err != nil {
		observability.ProtocolDisconnects.Inc()
		return protocol.Envelope{}, fmt.Errorf("send %s: %w", request, err)
	}
	env, err := m.Conn.Recv()
	observability.ProtocolRequestDuration.WithLabelValues(request).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.ProtocolDisconnects.Inc()
		return protocol.Envelope{}, fmt.Errorf("recv reply to %s: %w", request, err)
	}
	return env, nil
}

func (m *MasterNode) shutdown() error {
	if err := m.Conn.Send(protocol.Envelope{Request: protocol.ReqStop}); err != nil {
		slog.Warn("master: send stop", "error", err)
	}
	if err := m.Conn.Send(protocol.Envelope{Request: protocol.ReqDisconnect}); err != nil {
		slog.Warn("master: send disconnect", "error", err)
	}
	return m.Conn.Close()
}
