// Package config loads the typed, YAML-backed configuration document this
// service runs from, applies environment overrides, and fills defaults.
// Unknown top-level keys are rejected so a misspelled key fails loudly at
// startup rather than being silently ignored.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level document.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Detector DetectorConfig `yaml:"detector"`
	Tracker  TrackerConfig  `yaml:"tracker"`
	ReID     ReIDConfig     `yaml:"reid"`
	Logging  LoggingConfig  `yaml:"logging"`
	Cameras  []CameraConfig `yaml:"cameras"`
	// Overlap is the adjacency list for the camera overlap graph: camera id ->
	// list of camera ids it shares a view with. Symmetric edges only need to
	// be listed once.
	Overlap map[string][]string `yaml:"overlap"`
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Port              int           `yaml:"port"`
	APIKey            string        `yaml:"api_key"`
	FreshnessBound    time.Duration `yaml:"freshness_bound"`
	StatusTTL         time.Duration `yaml:"status_ttl"`
	StatusLockTimeout time.Duration `yaml:"status_lock_timeout"`
	JPEGQuality       int           `yaml:"jpeg_quality"`
}

// DetectorConfig controls the person-detection model.
type DetectorConfig struct {
	ModelPath          string  `yaml:"model_path"`
	EmbedderModelPath  string  `yaml:"embedder_model_path"`
	Device             string  `yaml:"device"` // "cuda:0" or "cpu"
	ConfidenceThresh   float32 `yaml:"confidence_threshold"`
	NMSIoUThresh       float32 `yaml:"nms_iou_threshold"`
	IntraOpThreads     int     `yaml:"intra_op_threads"`
	InterOpThreads     int     `yaml:"inter_op_threads"`
	EmbeddingDimension int     `yaml:"embedding_dimension"`
}

// TrackerConfig controls per-camera local track association.
type TrackerConfig struct {
	HighConf     float32       `yaml:"high_conf"`
	LowConf      float32       `yaml:"low_conf"`
	MatchIoU     float32       `yaml:"match_iou"`
	SecondIoU    float32       `yaml:"second_pass_iou"`
	AppThresh    float32       `yaml:"app_thresh"`
	WIoU         float32       `yaml:"w_iou"`
	WApp         float32       `yaml:"w_app"`
	MinHits      int           `yaml:"min_hits"`
	TrackBuffer  int           `yaml:"track_buffer"`
	NominalFPS   int           `yaml:"nominal_fps"`
	ReembedEvery time.Duration `yaml:"reembed_every"`
}

// ReIDConfig controls the global identity registry.
type ReIDConfig struct {
	ReIDThreshold  float32       `yaml:"reid_threshold"`
	SpatialWindow  time.Duration `yaml:"spatial_window"`
	SpatialIoU     float32       `yaml:"spatial_iou"`
	TrackTimeout   time.Duration `yaml:"track_timeout"`
	LockTimeout    time.Duration `yaml:"lock_timeout"`
	RingCapacity   int           `yaml:"ring_capacity"`
	PrimaryCamera  *string       `yaml:"primary_camera"`
	EventsNATSURL  string        `yaml:"events_nats_url"`
	EventsSubject  string        `yaml:"events_subject"`
}

// LoggingConfig controls the process-wide logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// CameraConfig describes one RTSP source.
type CameraConfig struct {
	ID  string `yaml:"id"`
	URL string `yaml:"url"`
	FPS int    `yaml:"fps"`
}

// Load reads the YAML document at path, rejects unknown fields, applies
// environment overrides, and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.FreshnessBound == 0 {
		cfg.Server.FreshnessBound = 50 * time.Millisecond
	}
	if cfg.Server.StatusTTL == 0 {
		cfg.Server.StatusTTL = 500 * time.Millisecond
	}
	if cfg.Server.StatusLockTimeout == 0 {
		cfg.Server.StatusLockTimeout = 100 * time.Millisecond
	}
	if cfg.Server.JPEGQuality == 0 {
		cfg.Server.JPEGQuality = 78
	}

	if cfg.Detector.Device == "" {
		cfg.Detector.Device = "cpu"
	}
	if cfg.Detector.ConfidenceThresh == 0 {
		cfg.Detector.ConfidenceThresh = 0.5
	}
	if cfg.Detector.NMSIoUThresh == 0 {
		cfg.Detector.NMSIoUThresh = 0.7
	}
	if cfg.Detector.EmbeddingDimension == 0 {
		cfg.Detector.EmbeddingDimension = 512
	}

	if cfg.Tracker.HighConf == 0 {
		cfg.Tracker.HighConf = 0.5
	}
	if cfg.Tracker.LowConf == 0 {
		cfg.Tracker.LowConf = 0.1
	}
	if cfg.Tracker.MatchIoU == 0 {
		cfg.Tracker.MatchIoU = 0.8
	}
	if cfg.Tracker.SecondIoU == 0 {
		cfg.Tracker.SecondIoU = 0.5
	}
	if cfg.Tracker.AppThresh == 0 {
		cfg.Tracker.AppThresh = 0.25
	}
	if cfg.Tracker.WIoU == 0 {
		cfg.Tracker.WIoU = 0.5
	}
	if cfg.Tracker.WApp == 0 {
		cfg.Tracker.WApp = 0.5
	}
	if cfg.Tracker.MinHits == 0 {
		cfg.Tracker.MinHits = 3
	}
	if cfg.Tracker.TrackBuffer == 0 {
		cfg.Tracker.TrackBuffer = 30
	}
	if cfg.Tracker.NominalFPS == 0 {
		cfg.Tracker.NominalFPS = 30
	}
	if cfg.Tracker.ReembedEvery == 0 {
		cfg.Tracker.ReembedEvery = time.Second
	}

	if cfg.ReID.ReIDThreshold == 0 {
		cfg.ReID.ReIDThreshold = 0.75
	}
	if cfg.ReID.SpatialWindow == 0 {
		cfg.ReID.SpatialWindow = 2 * time.Second
	}
	if cfg.ReID.SpatialIoU == 0 {
		cfg.ReID.SpatialIoU = 0.30
	}
	if cfg.ReID.TrackTimeout == 0 {
		cfg.ReID.TrackTimeout = 3 * time.Second
	}
	if cfg.ReID.LockTimeout == 0 {
		cfg.ReID.LockTimeout = 100 * time.Millisecond
	}
	if cfg.ReID.RingCapacity == 0 {
		cfg.ReID.RingCapacity = 10
	}
	if cfg.ReID.EventsSubject == "" {
		cfg.ReID.EventsSubject = "persontrack.identity"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	for i := range cfg.Cameras {
		if cfg.Cameras[i].FPS == 0 {
			cfg.Cameras[i].FPS = 15
		}
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PT_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PT_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("PT_DETECTOR_DEVICE"); v != "" {
		cfg.Detector.Device = v
	}
	if v := os.Getenv("PT_DETECTOR_MODEL_PATH"); v != "" {
		cfg.Detector.ModelPath = v
	}
	if v := os.Getenv("PT_EMBEDDER_MODEL_PATH"); v != "" {
		cfg.Detector.EmbedderModelPath = v
	}
	if v := os.Getenv("PT_REID_EVENTS_NATS_URL"); v != "" {
		cfg.ReID.EventsNATSURL = v
	}
	if v := os.Getenv("PT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
