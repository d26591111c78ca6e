package decoder

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireFFmpeg(t *testing.T) string {
	t.Helper()
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not installed")
	}
	return path
}

func TestConfig_FrameSize(t *testing.T) {
	cfg := Config{Width: 320, Height: 240, Format: PixelFormatGray8}
	assert.Equal(t, 320*240, cfg.FrameSize())

	cfg.Format = PixelFormatRGB24
	assert.Equal(t, 320*240*3, cfg.FrameSize())
}

func TestFrameDecoder_IsAliveReflectsProcessLifecycle(t *testing.T) {
	binary := requireFFmpeg(t)

	d := New(binary, Config{Width: 64, Height: 64, FPS: 5, Format: PixelFormatGray8})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, d.Start(ctx))
	assert.True(t, d.IsAlive())

	require.NoError(t, d.Close())

	require.Eventually(t, func() bool {
		return !d.IsAlive()
	}, 2*time.Second, 10*time.Millisecond, "decoder should report dead once its child process is killed")
}
