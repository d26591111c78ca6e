package motion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func flatFrame(w, h int, value byte) []byte {
	buf := make([]byte, w*h)
	for i := range buf {
		buf[i] = value
	}
	return buf
}

func TestDetector_StableSceneHasNoForeground(t *testing.T) {
	d := NewDetector(8, 8, DefaultConfig())

	d.Observe(flatFrame(8, 8, 100)) // first frame only seeds the model
	for i := 0; i < 10; i++ {
		score := d.Observe(flatFrame(8, 8, 100))
		assert.Zero(t, score.ForegroundPixels)
	}
}

func TestDetector_FlagsSuddenChange(t *testing.T) {
	d := NewDetector(8, 8, DefaultConfig())

	for i := 0; i < 10; i++ {
		d.Observe(flatFrame(8, 8, 100))
	}

	score := d.Observe(flatFrame(8, 8, 240))
	assert.Equal(t, 64, score.ForegroundPixels)
	assert.Equal(t, 1.0, score.ForegroundRatio)
}

func TestDetector_WarmupSuppressesScoreForFirstHundredFrames(t *testing.T) {
	d := NewDetector(8, 8, DefaultConfig())

	d.Observe(flatFrame(8, 8, 100)) // seeds the background model

	for i := 0; i < 99; i++ {
		score := d.Observe(flatFrame(8, 8, 240))
		assert.Zero(t, score.Value, "frame %d is still within warmup", i+1)
	}

	score := d.Observe(flatFrame(8, 8, 240))
	assert.InDelta(t, float32(1.0), score.Value, 0.001, "the 100th post-seed frame ends warmup and reports a saturated score")
}

func TestDetector_ScoreScalesLinearlyBelowTenPercentForeground(t *testing.T) {
	d := NewDetector(10, 10, DefaultConfig())
	d.Observe(flatFrame(10, 10, 100))
	for i := 0; i < warmupFrames; i++ {
		d.Observe(flatFrame(10, 10, 100))
	}

	frame := flatFrame(10, 10, 100)
	for i := 0; i < 5; i++ { // 5/100 = 5% foreground, under the 10x gain's saturation point
		frame[i] = 240
	}
	score := d.Observe(frame)
	assert.InDelta(t, float64(0.5), float64(score.Value), 0.05)
}

func TestDetector_Reset(t *testing.T) {
	d := NewDetector(4, 4, DefaultConfig())
	d.Observe(flatFrame(4, 4, 50))
	d.Reset()
	score := d.Observe(flatFrame(4, 4, 200))
	assert.Zero(t, score.ForegroundPixels, "first frame after reset only reseeds the model")
}
