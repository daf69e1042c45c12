// Package config loads application settings from a YAML file and PANTRY_*
// environment variables.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-pantry/logging"
)

// ModelConfig locates the detection model and tunes the runtime.
type ModelConfig struct {
	Path           string  `yaml:"path"`
	Manifest       string  `yaml:"manifest"`
	SharedLibrary  string  `yaml:"shared_library"`
	InputSize      int     `yaml:"input_size"`
	NMSThreshold   float32 `yaml:"nms_threshold"`
	IntraOpThreads int     `yaml:"intra_op_threads"`
	InterOpThreads int     `yaml:"inter_op_threads"`
	// Provider is the execution provider: cpu, cuda, coreml or openvino.
	Provider string `yaml:"provider"`
	DeviceID int    `yaml:"device_id"`
}

// CameraConfig selects the frame source and the annotation cadence.
type CameraConfig struct {
	// Source is a device index, stream URL, video file or frame directory.
	// Empty selects the default device.
	Source   string `yaml:"source"`
	TickRate int    `yaml:"tick_rate"`
}

// Config is the complete application configuration.
type Config struct {
	Model   ModelConfig    `yaml:"model"`
	Camera  CameraConfig   `yaml:"camera"`
	Logging logging.Config `yaml:"logging"`
	// Display opens a window showing the annotated stream.
	Display bool `yaml:"display"`
	// Listen is the address of the inventory feed and metrics server. Empty
	// disables it.
	Listen string `yaml:"listen"`
	// HistoryDB is the sqlite file archiving exported lists. Empty disables it.
	HistoryDB string `yaml:"history_db"`
}

// Default returns the settings used when no file is given.
func Default() Config {
	return Config{
		Model: ModelConfig{
			Path:           filepath.Join("results", "model.onnx"),
			Manifest:       filepath.Join("datasets", "data.yaml"),
			InputSize:      640,
			NMSThreshold:   0.7,
			IntraOpThreads: 4,
			InterOpThreads: 2,
			Provider:       "cpu",
		},
		Camera: CameraConfig{
			TickRate: 60,
		},
		Logging: logging.DefaultConfig(),
		Display: true,
	}
}

// Load reads the YAML file at path over the defaults. An empty path returns
// the defaults.
//
// Arguments:
//   - path: The config file, or "".
//
// Returns:
//   - Config: The merged configuration.
//   - error: An error if the file cannot be read or parsed.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "failed to read config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "failed to parse config %s", path)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from PANTRY_* environment variables. Unset or
// unparsable variables leave the current value.
func (c *Config) ApplyEnv() {
	c.Model.Path = getEnv("PANTRY_MODEL_PATH", c.Model.Path)
	c.Model.Manifest = getEnv("PANTRY_MODEL_MANIFEST", c.Model.Manifest)
	c.Model.SharedLibrary = getEnv("PANTRY_ONNXRUNTIME_LIB", c.Model.SharedLibrary)
	c.Model.InputSize = getEnvAsInt("PANTRY_MODEL_INPUT_SIZE", c.Model.InputSize)
	c.Model.IntraOpThreads = getEnvAsInt("PANTRY_INTRA_OP_THREADS", c.Model.IntraOpThreads)
	c.Model.InterOpThreads = getEnvAsInt("PANTRY_INTER_OP_THREADS", c.Model.InterOpThreads)
	c.Model.Provider = getEnv("PANTRY_EXECUTION_PROVIDER", c.Model.Provider)
	c.Model.DeviceID = getEnvAsInt("PANTRY_DEVICE_ID", c.Model.DeviceID)
	c.Camera.Source = getEnv("PANTRY_CAMERA_SOURCE", c.Camera.Source)
	c.Camera.TickRate = getEnvAsInt("PANTRY_TICK_RATE", c.Camera.TickRate)
	c.Logging.Level = getEnv("PANTRY_LOG_LEVEL", c.Logging.Level)
	c.Logging.File = getEnv("PANTRY_LOG_FILE", c.Logging.File)
	c.Display = getEnvAsBool("PANTRY_DISPLAY", c.Display)
	c.Listen = getEnv("PANTRY_LISTEN", c.Listen)
	c.HistoryDB = getEnv("PANTRY_HISTORY_DB", c.HistoryDB)
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var err error
	if c.Model.Path == "" {
		err = multierr.Append(err, errors.New("model.path is required"))
	}
	if c.Model.Manifest == "" {
		err = multierr.Append(err, errors.New("model.manifest is required"))
	}
	if c.Model.InputSize <= 0 || c.Model.InputSize%32 != 0 {
		err = multierr.Append(err, errors.Errorf("model.input_size must be a positive multiple of 32, got %d", c.Model.InputSize))
	}
	if c.Model.NMSThreshold <= 0 || c.Model.NMSThreshold > 1 {
		err = multierr.Append(err, errors.Errorf("model.nms_threshold must be in (0, 1], got %v", c.Model.NMSThreshold))
	}
	if c.Camera.TickRate <= 0 {
		err = multierr.Append(err, errors.Errorf("camera.tick_rate must be positive, got %d", c.Camera.TickRate))
	}
	return err
}

// TickInterval is the period between annotation ticks.
func (c *Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.Camera.TickRate)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
