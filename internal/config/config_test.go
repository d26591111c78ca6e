package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsButNoCamerasFails(t *testing.T) {
	// Defaults alone have no cameras configured, which Validate rejects.
	_, err := Load("")
	require.ErrorIs(t, err, ErrNoCameras)
}

func TestLoad_FromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 9090
storage:
  data_dir: /var/lib/camon
analytics:
  sample_fps: 10
cameras:
  - id: front-door
    url: rtsp://127.0.0.1:8554/front
  - id: driveway
    url: rtsp://127.0.0.1:8554/driveway
    hot_buffer_duration: 900s
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/var/lib/camon", cfg.Storage.DataDir)
	assert.Equal(t, 10, cfg.Analytics.SampleFPS)
	require.Len(t, cfg.Cameras, 2)
	assert.Equal(t, "front-door", cfg.Cameras[0].ID)
	assert.Equal(t, 600*time.Second, cfg.Cameras[0].EffectiveHotBufferDuration())
	assert.Equal(t, 900*time.Second, cfg.Cameras[1].EffectiveHotBufferDuration())
}

func TestValidate_RejectsBadPort(t *testing.T) {
	cfg := &Config{
		Server:    ServerConfig{Port: 0},
		Storage:   StorageConfig{DataDir: "./data"},
		Logging:   LoggingConfig{Level: "info", Format: "json"},
		Analytics: AnalyticsConfig{SampleFPS: 5},
		Cameras:   []CameraConfig{{ID: "a", URL: "rtsp://x"}},
	}
	err := cfg.Validate()
	require.Error(t, err)
}

func TestValidate_RejectsDuplicateCameraIDs(t *testing.T) {
	cfg := &Config{
		Server:    ServerConfig{Port: 8080},
		Storage:   StorageConfig{DataDir: "./data"},
		Logging:   LoggingConfig{Level: "info", Format: "json"},
		Analytics: AnalyticsConfig{SampleFPS: 5},
		Cameras: []CameraConfig{
			{ID: "a", URL: "rtsp://x"},
			{ID: "a", URL: "rtsp://y"},
		},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate camera id")
}

func TestValidate_RejectsMissingCameraURL(t *testing.T) {
	cfg := &Config{
		Server:    ServerConfig{Port: 8080},
		Storage:   StorageConfig{DataDir: "./data"},
		Logging:   LoggingConfig{Level: "info", Format: "json"},
		Analytics: AnalyticsConfig{SampleFPS: 5},
		Cameras:   []CameraConfig{{ID: "a"}},
	}
	err := cfg.Validate()
	require.Error(t, err)
}
