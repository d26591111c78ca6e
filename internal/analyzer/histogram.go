package analyzer

const (
	histogramBuckets = 100
	warmupSamples    = 1000
)

// ScoreHistogram maintains a running distribution of per-segment motion
// scores as a fixed set of linear buckets over (0,1], and derives an
// adaptive threshold from a configured percentile once enough samples have
// accumulated. Hard thresholds are fragile across cameras and lighting; a
// per-camera running percentile self-calibrates to flag whatever fraction
// of segments is busiest for that particular camera.
type ScoreHistogram struct {
	percentile   float64
	defaultFloor float32
	counts       [histogramBuckets]int
	total        int
}

// NewScoreHistogram creates a histogram targeting the given percentile
// (e.g. 0.90), with defaultFloor used as the threshold until at least
// warmupSamples scores have been recorded.
func NewScoreHistogram(percentile float64, defaultFloor float32) *ScoreHistogram {
	return &ScoreHistogram{percentile: percentile, defaultFloor: defaultFloor}
}

// Record adds a new score sample to its bucket. Scores at or below zero
// (warmup, or no foreground at all) carry no distribution information and
// are ignored.
func (h *ScoreHistogram) Record(score float32) {
	if score <= 0 {
		return
	}
	bucket := int(score * histogramBuckets)
	if bucket > histogramBuckets-1 {
		bucket = histogramBuckets - 1
	}
	h.counts[bucket]++
	h.total++
}

// Threshold returns the adaptive threshold: the recorded-score distribution's
// configured percentile, as the midpoint of whichever bucket holds that rank,
// once at least warmupSamples scores have been recorded. Before that, the
// configured default floor is returned directly.
func (h *ScoreHistogram) Threshold() float32 {
	if h.total < warmupSamples {
		return h.defaultFloor
	}

	target := int(float64(h.total) * h.percentile)
	cumulative := 0
	for bucket, count := range h.counts {
		cumulative += count
		if cumulative >= target {
			return bucketMidpoint(bucket)
		}
	}
	return bucketMidpoint(histogramBuckets - 1)
}

func bucketMidpoint(bucket int) float32 {
	return (float32(bucket) + 0.5) / histogramBuckets
}

// Samples returns the number of recorded (non-ignored) samples.
func (h *ScoreHistogram) Samples() int {
	return h.total
}
