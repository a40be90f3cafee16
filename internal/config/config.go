// Package config loads process configuration from YAML with environment
// variable overrides, mirroring the settings-loading layer the core
// consumes but does not itself define (spec §1) — this package is the
// concrete adapter the master/slave entrypoints wire up.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Master      MasterConfig      `yaml:"master"`
	Vision      VisionConfig      `yaml:"vision"`
	Protocol    ProtocolConfig    `yaml:"protocol"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Store       StoreConfig       `yaml:"store"`
	Diag        DiagConfig        `yaml:"diag"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// MasterConfig holds the heading-engine cropping constants and mission
// bookkeeping that only the master side evaluates.
type MasterConfig struct {
	RhoStepDistance *float64 `yaml:"rho_step_distance"` // nil -> 1/4 frame diagonal
	RhoMinDiagPerc  float64  `yaml:"rho_min_diag_perc"`
	NFrames         int      `yaml:"n_frames"` // 0 = unbounded
	ScaleThreshold  float64  `yaml:"scale_threshold"`
}

// VisionConfig holds the point-detection pipeline's tunables.
type VisionConfig struct {
	DefaultDownsamplingDivisor int     `yaml:"default_downsampling_divisor"`
	DesiredFrameShapeH         int     `yaml:"desired_frame_shape_h"`
	DesiredFrameShapeW         int     `yaml:"desired_frame_shape_w"`
	DetectorType               int     `yaml:"detector_type"` // 0=simple-blob,1=ORB,2=SIFT,3=SURF
	CropFrames                 bool    `yaml:"crop_frames"`
	CameraFanAngle             float64 `yaml:"camera_fan_angle"`
	LaserFanAngle              float64 `yaml:"laser_fan_angle"`
	DeltaThreshold             int     `yaml:"delta_threshold"`
	HueTolerance               float64 `yaml:"hue_tolerance"`

	UseTriangulation    bool    `yaml:"use_triangulation"`
	UseCV2Triangulation bool    `yaml:"use_cv2_triangulation"`
	UseBlockMatching    bool    `yaml:"use_block_matching"`
	BlockMatchingParam  float64 `yaml:"block_matching_parameter"`
	UseBruteForce       bool    `yaml:"use_brute_force"`

	BaselineMM     float64 `yaml:"baseline"`
	FocalLengthMM  float64 `yaml:"focal_length"`
	SensorSizeMM   float64 `yaml:"sensor_size"`
}

// ProtocolConfig holds the TCP transport's configured shape.
type ProtocolConfig struct {
	MasterIP         string        `yaml:"master_ip"`
	Port             int           `yaml:"port"`
	MasterBufferSize int           `yaml:"master_buffer_size"`
	SlaveBufferSize  int           `yaml:"slave_buffer_size"`
	TCPTimeout       time.Duration `yaml:"tcp_timeout"`
	FrameReqTimeout  time.Duration `yaml:"frame_req_timeout"`
	MasterTimeout    time.Duration `yaml:"master_timeout"`
	CalibTimeout     time.Duration `yaml:"calib_timeout"` // negative = unbounded
}

// CalibrationConfig points at the consumed, out-of-scope filesystem
// layout for calibration inputs/outputs (spec §6).
type CalibrationConfig struct {
	SaveFolder       string `yaml:"calib_save_folder"`
	ScaleCalibFolder string `yaml:"scale_calib_folder"`
	Reset            bool   `yaml:"reset"`
}

// TelemetryConfig configures the async NATS JetStream fan-out of
// per-iteration heading/point-cloud summaries.
type TelemetryConfig struct {
	URL string `yaml:"url"`
}

// StoreConfig configures the Postgres telemetry-row store and the MinIO
// blob store for frame/snapshot persistence.
type StoreConfig struct {
	Database DatabaseConfig `yaml:"database"`
	MinIO    MinIOConfig    `yaml:"minio"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// DiagConfig configures the gin-based diagnostics server.
type DiagConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Master.RhoMinDiagPerc == 0 {
		cfg.Master.RhoMinDiagPerc = 0.25
	}
	if cfg.Master.ScaleThreshold == 0 {
		cfg.Master.ScaleThreshold = 0.05
	}
	if cfg.Vision.DefaultDownsamplingDivisor == 0 {
		cfg.Vision.DefaultDownsamplingDivisor = 2
	}
	if cfg.Vision.DeltaThreshold == 0 {
		cfg.Vision.DeltaThreshold = 10
	}
	if cfg.Vision.HueTolerance == 0 {
		cfg.Vision.HueTolerance = 10
	}
	if cfg.Vision.BlockMatchingParam == 0 {
		cfg.Vision.BlockMatchingParam = 2.5
	}
	if cfg.Protocol.Port == 0 {
		cfg.Protocol.Port = 1991
	}
	if cfg.Protocol.MasterBufferSize == 0 {
		cfg.Protocol.MasterBufferSize = 3072
	}
	if cfg.Protocol.SlaveBufferSize == 0 {
		cfg.Protocol.SlaveBufferSize = 256
	}
	if cfg.Protocol.TCPTimeout == 0 {
		cfg.Protocol.TCPTimeout = 10 * time.Second
	}
	if cfg.Protocol.FrameReqTimeout == 0 {
		cfg.Protocol.FrameReqTimeout = 10 * time.Second
	}
	if cfg.Store.Database.Port == 0 {
		cfg.Store.Database.Port = 5432
	}
	if cfg.Store.Database.MaxConns == 0 {
		cfg.Store.Database.MaxConns = 10
	}
	if cfg.Diag.Port == 0 {
		cfg.Diag.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BI_MASTER_IP"); v != "" {
		cfg.Protocol.MasterIP = v
	}
	if v := os.Getenv("BI_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Protocol.Port = n
		}
	}
	if v := os.Getenv("BI_DETECTOR_TYPE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Vision.DetectorType = n
		}
	}
	if v := os.Getenv("BI_DB_HOST"); v != "" {
		cfg.Store.Database.Host = v
	}
	if v := os.Getenv("BI_DB_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Store.Database.Port = n
		}
	}
	if v := os.Getenv("BI_DB_NAME"); v != "" {
		cfg.Store.Database.Name = v
	}
	if v := os.Getenv("BI_DB_USER"); v != "" {
		cfg.Store.Database.User = v
	}
	if v := os.Getenv("BI_DB_PASSWORD"); v != "" {
		cfg.Store.Database.Password = v
	}
	if v := os.Getenv("BI_NATS_URL"); v != "" {
		cfg.Telemetry.URL = v
	}
	if v := os.Getenv("BI_MINIO_ENDPOINT"); v != "" {
		cfg.Store.MinIO.Endpoint = v
	}
	if v := os.Getenv("BI_MINIO_ACCESS_KEY"); v != "" {
		cfg.Store.MinIO.AccessKey = v
	}
	if v := os.Getenv("BI_MINIO_SECRET_KEY"); v != "" {
		cfg.Store.MinIO.SecretKey = v
	}
	if v := os.Getenv("BI_MINIO_BUCKET"); v != "" {
		cfg.Store.MinIO.Bucket = v
	}
	if v := os.Getenv("BI_DIAG_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Diag.Port = n
		}
	}
	if v := os.Getenv("BI_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
