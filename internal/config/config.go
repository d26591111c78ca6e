// Package config provides configuration management for camon using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/nsg/camon/internal/codec"
)

// Default configuration values.
const (
	defaultServerPort      = 8080
	defaultServerTimeout   = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultHotBufferSecs   = 600
	defaultSampleFPS       = 5
	defaultPrePaddingSecs  = 5
	defaultPostPaddingSecs = 10
	defaultMotionThreshold = 0.05
	defaultDecoderTimeout  = 500 * time.Millisecond
	defaultPollInterval    = 200 * time.Millisecond
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	FFmpeg    FFmpegConfig    `mapstructure:"ffmpeg"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
	Cameras   []CameraConfig  `mapstructure:"cameras"`
}

// ServerConfig holds HTTP server configuration for the read-only query surface.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StorageConfig holds file storage configuration.
type StorageConfig struct {
	// DataDir is the root directory warm event files and the camera registry database are written under.
	DataDir string `mapstructure:"data_dir"`
	// MaxWarmSize bounds the warm storage directory (0 = unbounded). Supports
	// human-readable values like "50GB".
	MaxWarmSize ByteSize `mapstructure:"max_warm_size"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // trace, debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// FFmpegConfig holds FFmpeg binary configuration used for the transcoder and
// analytics decoder child processes.
type FFmpegConfig struct {
	BinaryPath string `mapstructure:"binary_path"` // Path to ffmpeg binary (empty = auto-detect)
}

// AnalyticsConfig holds the motion/object detection pipeline settings, applied
// to every camera; cameras have no per-camera override of these values.
type AnalyticsConfig struct {
	SampleFPS           int           `mapstructure:"sample_fps"`
	MotionThreshold     float64       `mapstructure:"motion_threshold"`
	ObjectModelPath     string        `mapstructure:"object_model_path"`
	ObjectConfidence    float64       `mapstructure:"object_confidence"`
	ObjectAllowedClass  []string      `mapstructure:"object_allowed_classes"`
	DecoderReadTimeout  time.Duration `mapstructure:"decoder_read_timeout"`
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	PrePaddingDuration   time.Duration `mapstructure:"pre_padding"`
	PostPaddingDuration  time.Duration `mapstructure:"post_padding"`
}

// CameraConfig describes a single configured camera.
type CameraConfig struct {
	ID                string        `mapstructure:"id"`
	URL               string        `mapstructure:"url"`
	Codec             string        `mapstructure:"codec"` // h264 or h265; defaults to h264
	HotBufferDuration time.Duration `mapstructure:"hot_buffer_duration"`
}

// EffectiveCodec returns the configured codec, defaulting to h264.
func (c *CameraConfig) EffectiveCodec() string {
	if c.Codec == "" {
		return "h264"
	}
	return c.Codec
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with CAMON_ and use underscores for nesting.
// Example: CAMON_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/camon")
		v.AddConfigPath("$HOME/.camon")
	}

	v.SetEnvPrefix("CAMON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)

	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("storage.max_warm_size", 0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	v.SetDefault("ffmpeg.binary_path", "")

	v.SetDefault("analytics.sample_fps", defaultSampleFPS)
	v.SetDefault("analytics.motion_threshold", defaultMotionThreshold)
	v.SetDefault("analytics.object_confidence", 0.5)
	v.SetDefault("analytics.decoder_read_timeout", defaultDecoderTimeout)
	v.SetDefault("analytics.poll_interval", defaultPollInterval)
	v.SetDefault("analytics.pre_padding", defaultPrePaddingSecs*time.Second)
	v.SetDefault("analytics.post_padding", defaultPostPaddingSecs*time.Second)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required")
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if len(c.Cameras) == 0 {
		return ErrNoCameras
	}
	seen := make(map[string]bool, len(c.Cameras))
	for _, cam := range c.Cameras {
		if cam.ID == "" {
			return ErrCameraIDRequired
		}
		if cam.URL == "" {
			return fmt.Errorf("camera %q: url is required", cam.ID)
		}
		if seen[cam.ID] {
			return fmt.Errorf("duplicate camera id %q", cam.ID)
		}
		seen[cam.ID] = true
		if err := codec.Validate(cam.EffectiveCodec()); err != nil {
			return fmt.Errorf("camera %q: %w", cam.ID, err)
		}
	}

	if c.Analytics.SampleFPS < 1 {
		return fmt.Errorf("analytics.sample_fps must be at least 1")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// EffectiveHotBufferDuration returns the configured hot-buffer retention for a camera,
// falling back to the package default when unset.
func (c *CameraConfig) EffectiveHotBufferDuration() time.Duration {
	if c.HotBufferDuration > 0 {
		return c.HotBufferDuration
	}
	return defaultHotBufferSecs * time.Second
}

// CameraDir returns a camera's warm storage directory under DataDir.
func (c *StorageConfig) CameraDir(cameraID string) string {
	return fmt.Sprintf("%s/%s", c.DataDir, cameraID)
}
