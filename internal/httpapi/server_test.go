package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsg/camon/internal/config"
	"github.com/nsg/camon/internal/daemon"
)

func testSupervisor(t *testing.T) *daemon.Supervisor {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Storage: config.StorageConfig{DataDir: dir},
		FFmpeg:  config.FFmpegConfig{BinaryPath: "ffmpeg"},
		Cameras: []config.CameraConfig{
			{ID: "front-door", URL: "rtsp://example/front"},
		},
	}
	sup, err := daemon.New(nil, cfg, filepath.Join(dir, "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sup.Close() })
	require.NoError(t, sup.Registry.UpsertCamera("front-door", "rtsp://example/front", "h264"))
	return sup
}

func TestServer_HealthEndpointReturnsOK(t *testing.T) {
	sup := testSupervisor(t)
	srv := New(nil, Config{}, "test", sup)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
}

func TestServer_ListCamerasReturnsRegisteredCamera(t *testing.T) {
	sup := testSupervisor(t)
	srv := New(nil, Config{}, "test", sup)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/cameras")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Cameras []cameraSummary `json:"cameras"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Cameras, 1)
	assert.Equal(t, "front-door", body.Cameras[0].ID)
}

func TestServer_LivePlaylistNotFoundForUnknownCamera(t *testing.T) {
	sup := testSupervisor(t)
	srv := New(nil, Config{}, "test", sup)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/cameras/unknown/live/playlist.m3u8")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
