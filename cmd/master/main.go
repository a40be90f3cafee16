package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/your-org/blade-inspector/internal/blob"
	"github.com/your-org/blade-inspector/internal/calib/calibfile"
	"github.com/your-org/blade-inspector/internal/calib/simfs"
	"github.com/your-org/blade-inspector/internal/config"
	"github.com/your-org/blade-inspector/internal/coordinator"
	"github.com/your-org/blade-inspector/internal/diag"
	"github.com/your-org/blade-inspector/internal/heading"
	"github.com/your-org/blade-inspector/internal/logging"
	"github.com/your-org/blade-inspector/internal/models"
	"github.com/your-org/blade-inspector/internal/protocol"
	"github.com/your-org/blade-inspector/internal/store"
	"github.com/your-org/blade-inspector/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	sourceDir := flag.String("source-dir", "", "recorded normal/sl frame pair directory (simfs.FrameSource); required until a live camera driver is wired")
	calibPath := flag.String("calib", "", "stereo calibration sidecar JSON path")
	scalePath := flag.String("scale-calib", "", "blob scale calibration JSON path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting blade-inspector master node", "port", cfg.Protocol.Port)

	if *sourceDir == "" {
		slog.Error("master: --source-dir is required (no live camera driver is wired into this core)")
		os.Exit(1)
	}
	source, err := simfs.New(*sourceDir)
	if err != nil {
		slog.Error("master: open frame source", "error", err)
		os.Exit(1)
	}

	if *calibPath == "" {
		slog.Error("master: --calib is required")
		os.Exit(1)
	}
	stereoCalib, err := calibfile.Load(*calibPath)
	if err != nil {
		slog.Error("master: load stereo calibration", "error", err)
		os.Exit(1)
	}
	defer stereoCalib.Close()

	detector := blob.NewDetector(blob.DetectorType(cfg.Vision.DetectorType))
	standardSpacing := 0.0
	if *scalePath != "" {
		spacing, blobSize, err := calibfile.LoadScale(*scalePath)
		if err != nil {
			slog.Warn("master: load scale calibration, using unscaled thresholds", "error", err)
		} else {
			detector.ApplyScale(spacing, blobSize)
			standardSpacing = spacing
		}
	}

	pipeline := coordinator.NewPipeline(cfg.Vision, detector)

	listener, err := protocol.Listen(fmt.Sprintf(":%d", cfg.Protocol.Port))
	if err != nil {
		slog.Error("master: listen", "error", err)
		os.Exit(1)
	}
	defer listener.Close()

	slog.Info("master: waiting for slave connection", "addr", listener.Addr())
	nc, err := listener.Accept()
	if err != nil {
		slog.Error("master: accept slave connection", "error", err)
		os.Exit(1)
	}
	conn := protocol.NewConn(nc, cfg.Protocol.MasterBufferSize, cfg.Protocol.TCPTimeout)

	var durable telemetry.Sink = telemetry.NoopPublisher{}
	var pub *telemetry.Publisher
	if cfg.Telemetry.URL != "" {
		var err error
		pub, err = telemetry.NewPublisher(cfg.Telemetry.URL)
		if err != nil {
			slog.Warn("master: connect telemetry, falling back to noop", "error", err)
			pub = nil
		} else {
			defer pub.Close()
			ctx := context.Background()
			if err := pub.EnsureStream(ctx); err != nil {
				slog.Warn("master: ensure telemetry stream", "error", err)
			}
			durable = pub
		}
	}

	var pgStore *store.PostgresStore
	if cfg.Store.Database.Host != "" {
		pgStore, err = store.NewPostgresStore(cfg.Store.Database)
		if err != nil {
			slog.Warn("master: connect postgres, telemetry history will not persist", "error", err)
		} else {
			defer pgStore.Close()
		}
	}

	var blobStore *store.BlobStore
	if cfg.Store.MinIO.Endpoint != "" {
		blobStore, err = store.NewBlobStore(cfg.Store.MinIO)
		if err != nil {
			slog.Warn("master: connect minio, frame snapshots will not persist", "error", err)
		} else if err := blobStore.EnsureBucket(context.Background()); err != nil {
			slog.Warn("master: ensure minio bucket", "error", err)
		}
	}

	hub := diag.NewHub()
	go hub.Run()
	sink := coordinator.TelemetrySink(telemetry.FanoutSink{Durable: durable, Broadcaster: hub})

	diagRouter := diag.NewRouter(diag.RouterConfig{APIKey: cfg.Diag.APIKey, DB: pgStore, Blobs: blobStore, Telemetry: pub, Hub: hub})
	if cfg.Diag.Port != 0 {
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Diag.Port)
			slog.Info("master: diagnostics server listening", "addr", addr)
			if err := diagRouter.Run(addr); err != nil {
				slog.Error("master: diagnostics server exited", "error", err)
			}
		}()
	}

	state := &models.CoordinatorState{}
	var rhoStep float64
	if cfg.Master.RhoStepDistance != nil {
		rhoStep = *cfg.Master.RhoStepDistance
	}
	engine := heading.NewEngine(state, rhoStep, cfg.Master.RhoMinDiagPerc, heading.AlwaysFalseRootSensor{})

	master := coordinator.NewMasterNode(cfg, conn, pipeline, stereoCalib, source, state, engine, sink, standardSpacing)

	ctx, cancel := context.WithCancel(context.Background())
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		slog.Info("master: shutdown requested")
		cancel()
	}()

	if err := master.Run(ctx); err != nil {
		slog.Error("master: run loop exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("master: mission finished", "phase", state.Phase.String())
}
