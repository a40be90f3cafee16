// Command blade-ctl is the shared operator CLI: the simulate and
// calibrate subcommands that don't warrant their own long-running
// daemon binary (those are cmd/master and cmd/slave).
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/your-org/blade-inspector/internal/blob"
	"github.com/your-org/blade-inspector/internal/calib/calibfile"
	"github.com/your-org/blade-inspector/internal/calib/simfs"
	"github.com/your-org/blade-inspector/internal/config"
	"github.com/your-org/blade-inspector/internal/coordinator"
	"github.com/your-org/blade-inspector/internal/logging"
	"github.com/your-org/blade-inspector/internal/models"
	"github.com/your-org/blade-inspector/internal/scale"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "blade-ctl",
		Short: "Operator CLI for the wind-blade inspection vision core",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "path to config file")

	root.AddCommand(newSimulateCmd(&configPath))
	root.AddCommand(newCalibrateCmd(&configPath))
	return root
}

func newSimulateCmd(configPath *string) *cobra.Command {
	var sourceDir string

	cmd := &cobra.Command{
		Use:   "simulate {video|image}",
		Short: "Replay recorded normal/sl frame pairs through the point-detection pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := args[0]
			if mode != "video" && mode != "image" {
				return fmt.Errorf("simulate: mode must be %q or %q, got %q", "video", "image", mode)
			}

			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

			source, err := simfs.New(sourceDir)
			if err != nil {
				return fmt.Errorf("open frame source: %w", err)
			}

			detector := blob.NewDetector(blob.DetectorType(cfg.Vision.DetectorType))
			pipeline := coordinator.NewPipeline(cfg.Vision, detector)

			frameLimit := 1
			if mode == "video" {
				frameLimit = -1 // unbounded, stop on Capture error
			}

			for i := 0; frameLimit < 0 || i < frameLimit; i++ {
				normal, structured, err := source.Capture(cmd.Context())
				if err != nil {
					if i == 0 {
						return fmt.Errorf("capture frame %d: %w", i, err)
					}
					break
				}

				kps, _, shape, err := pipeline.Detect(normal, structured)
				normal.Close()
				structured.Close()
				if err != nil {
					slog.Warn("simulate: pipeline error", "frame", i, "error", err)
				} else {
					slog.Info("simulate: frame processed", "frame", i, "shape", shape, "keypoints", len(kps))
				}

				if err := source.Rearm(cmd.Context()); err != nil {
					break
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sourceDir, "source-dir", "", "recorded normal/sl frame pair directory")
	_ = cmd.MarkFlagRequired("source-dir")
	return cmd
}

func newCalibrateCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Calibration subcommands",
	}
	cmd.AddCommand(newCalibrateScaleCmd(configPath))
	cmd.AddCommand(newCalibrateStereoCmd())
	return cmd
}

func newCalibrateScaleCmd(configPath *string) *cobra.Command {
	var sourceDir, outPath string

	cmd := &cobra.Command{
		Use:   "scale",
		Short: "Derive blob scale thresholds from recorded normal/sl frame pairs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

			source, err := simfs.New(sourceDir)
			if err != nil {
				return fmt.Errorf("open frame source: %w", err)
			}

			var pairs []scale.CalibrationPair
			for {
				normal, structured, err := source.Capture(cmd.Context())
				if err != nil {
					break
				}
				pairs = append(pairs, scale.CalibrationPair{Normal: normal, Structured: structured})
				if err := source.Rearm(cmd.Context()); err != nil {
					break
				}
			}
			if len(pairs) == 0 {
				return fmt.Errorf("calibrate scale: no frame pairs found under %s", sourceDir)
			}
			defer func() {
				for _, p := range pairs {
					p.Normal.Close()
					p.Structured.Close()
				}
			}()

			detector := blob.NewDetector(blob.DetectorType(cfg.Vision.DetectorType))
			result, err := scale.Calibrate(pairs, scale.Config{
				DefaultDownsamplingDivisor: cfg.Vision.DefaultDownsamplingDivisor,
				DesiredShape:               models.Shape{H: cfg.Vision.DesiredFrameShapeH, W: cfg.Vision.DesiredFrameShapeW},
				HueTolerance:               cfg.Vision.HueTolerance,
				DeltaThreshold:             cfg.Vision.DeltaThreshold,
				Detector:                   detector,
			})
			if err != nil {
				return fmt.Errorf("calibrate scale: %w", err)
			}

			if err := calibfile.SaveScale(outPath, result.StandardSpacing, result.StandardBlobSize); err != nil {
				return fmt.Errorf("save scale calibration: %w", err)
			}
			slog.Info("calibrate scale: done", "standard_spacing", result.StandardSpacing,
				"standard_blob_size", result.StandardBlobSize, "out", outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&sourceDir, "source-dir", "", "scale_calib_folder-shaped normal/sl directory")
	cmd.Flags().StringVar(&outPath, "out", "blob-scale.json", "output path for the derived scale calibration")
	_ = cmd.MarkFlagRequired("source-dir")
	return cmd
}

func newCalibrateStereoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stereo",
		Short: "Stereo (chessboard) calibration — not part of this core",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("calibrate stereo: chessboard intrinsic/extrinsic solving is outside this core's scope; " +
				"supply a calibration sidecar JSON for --calib on cmd/master and cmd/slave instead")
		},
	}
}
