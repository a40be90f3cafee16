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
	"github.com/your-org/blade-inspector/internal/calib"
	"github.com/your-org/blade-inspector/internal/calib/calibfile"
	"github.com/your-org/blade-inspector/internal/calib/simfs"
	"github.com/your-org/blade-inspector/internal/config"
	"github.com/your-org/blade-inspector/internal/coordinator"
	"github.com/your-org/blade-inspector/internal/diag"
	"github.com/your-org/blade-inspector/internal/logging"
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

	slog.Info("starting blade-inspector slave node", "master_ip", cfg.Protocol.MasterIP, "port", cfg.Protocol.Port)

	if *sourceDir == "" {
		slog.Error("slave: --source-dir is required (no live camera driver is wired into this core)")
		os.Exit(1)
	}
	source, err := simfs.New(*sourceDir)
	if err != nil {
		slog.Error("slave: open frame source", "error", err)
		os.Exit(1)
	}

	var stereoCalib *calibfile.Calibration
	if *calibPath != "" {
		stereoCalib, err = calibfile.Load(*calibPath)
		if err != nil {
			slog.Error("slave: load stereo calibration", "error", err)
			os.Exit(1)
		}
		defer stereoCalib.Close()
	}

	detector := blob.NewDetector(blob.DetectorType(cfg.Vision.DetectorType))
	if *scalePath != "" {
		spacing, blobSize, err := calibfile.LoadScale(*scalePath)
		if err != nil {
			slog.Warn("slave: load scale calibration, using unscaled thresholds", "error", err)
		} else {
			detector.ApplyScale(spacing, blobSize)
		}
	}
	pipeline := coordinator.NewPipeline(cfg.Vision, detector)

	addr := fmt.Sprintf("%s:%d", cfg.Protocol.MasterIP, cfg.Protocol.Port)
	slog.Info("slave: dialing master", "addr", addr)
	nc, err := protocol.Dial(addr, cfg.Protocol.TCPTimeout)
	if err != nil {
		slog.Error("slave: dial master", "error", err)
		os.Exit(1)
	}
	conn := protocol.NewConn(nc, cfg.Protocol.SlaveBufferSize, cfg.Protocol.TCPTimeout)

	var durable telemetry.Sink = telemetry.NoopPublisher{}
	var pub *telemetry.Publisher
	if cfg.Telemetry.URL != "" {
		var err error
		pub, err = telemetry.NewPublisher(cfg.Telemetry.URL)
		if err != nil {
			slog.Warn("slave: connect telemetry, falling back to noop", "error", err)
			pub = nil
		} else {
			defer pub.Close()
			if err := pub.EnsureStream(context.Background()); err != nil {
				slog.Warn("slave: ensure telemetry stream", "error", err)
			}
			durable = pub
		}
	}

	var pgStore *store.PostgresStore
	if cfg.Store.Database.Host != "" {
		ps, err := store.NewPostgresStore(cfg.Store.Database)
		if err != nil {
			slog.Warn("slave: connect postgres, telemetry history will not persist", "error", err)
		} else {
			pgStore = ps
			defer pgStore.Close()
		}
	}

	var blobStore *store.BlobStore
	if cfg.Store.MinIO.Endpoint != "" {
		bs, err := store.NewBlobStore(cfg.Store.MinIO)
		if err != nil {
			slog.Warn("slave: connect minio, frame snapshots will not persist", "error", err)
		} else if err := bs.EnsureBucket(context.Background()); err != nil {
			slog.Warn("slave: ensure minio bucket", "error", err)
		} else {
			blobStore = bs
		}
	}

	hub := diag.NewHub()
	go hub.Run()
	sink := coordinator.TelemetrySink(telemetry.FanoutSink{Durable: durable, Broadcaster: hub})

	diagRouter := diag.NewRouter(diag.RouterConfig{APIKey: cfg.Diag.APIKey, DB: pgStore, Blobs: blobStore, Telemetry: pub, Hub: hub})
	if cfg.Diag.Port != 0 {
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Diag.Port)
			slog.Info("slave: diagnostics server listening", "addr", addr)
			if err := diagRouter.Run(addr); err != nil {
				slog.Error("slave: diagnostics server exited", "error", err)
			}
		}()
	}

	var calibForSlave calib.StereoCalibration
	if stereoCalib != nil {
		calibForSlave = stereoCalib
	}

	slaveNode := coordinator.NewSlaveNode(cfg, conn, pipeline, source, calibForSlave, sink)

	ctx, cancel := context.WithCancel(context.Background())
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		slog.Info("slave: shutdown requested")
		cancel()
	}()

	if err := slaveNode.Run(ctx); err != nil {
		slog.Error("slave: run loop exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("slave: disconnected")
}
