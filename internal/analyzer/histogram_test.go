package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreHistogram_UsesFloorBeforeEnoughSamples(t *testing.T) {
	h := NewScoreHistogram(0.90, 0.05)
	for i := 0; i < 999; i++ {
		h.Record(0.2)
	}
	assert.Equal(t, 999, h.Samples())
	assert.Equal(t, float32(0.05), h.Threshold(), "warmup requires 1000 samples, not fewer")
}

func TestScoreHistogram_AdaptsToPercentileOnceWarm(t *testing.T) {
	h := NewScoreHistogram(0.90, 0.01)
	for i := 0; i < 900; i++ {
		h.Record(0.05)
	}
	for i := 0; i < 100; i++ {
		h.Record(0.95)
	}
	assert.Equal(t, 1000, h.Samples())
	// 90% of recorded scores are 0.05; the 90th percentile rank falls at the
	// boundary of that mass, landing in the bucket covering 0.05.
	assert.InDelta(t, 0.055, h.Threshold(), 0.001)
}

func TestScoreHistogram_DoesNotClampAboveComputedPercentile(t *testing.T) {
	h := NewScoreHistogram(0.90, 0.5)
	for i := 0; i < 1000; i++ {
		h.Record(0.01)
	}
	// The true 90th percentile of an all-0.01 distribution sits near 0.01,
	// well below the configured floor; nothing clamps it back up once warm.
	assert.Less(t, h.Threshold(), float32(0.5))
}

func TestScoreHistogram_IgnoresNonPositiveScores(t *testing.T) {
	h := NewScoreHistogram(0.90, 0.05)
	h.Record(0)
	h.Record(-1)
	assert.Equal(t, 0, h.Samples())
}
