// Package motion implements a from-scratch adaptive background subtraction
// model for the grayscale analysis frame stream. No OpenCV/gocv-equivalent
// binding exists among the reference examples, so this is a standard-library
// implementation: a per-pixel single-Gaussian running background (mean and
// variance updated by exponential decay) in the style of early MOG
// formulations, simplified to the single-mode case since the camera frame
// rate (a handful of FPS) gives the model very few samples to adapt from
// between segments.
package motion

import (
	"image"
	"math"
)

// warmupFrames is the number of frames, per detector lifetime, during which
// the background model is still stabilizing; Observe reports score 0 for
// all of them regardless of what the raw foreground ratio looks like.
const warmupFrames = 100

// scoreGain is the multiplier applied to the raw foreground ratio before
// clamping to [0,1]. Small motions (on the order of 10% foreground) should
// saturate the score rather than barely register.
const scoreGain = 10

// Config tunes the adaptive background model.
type Config struct {
	// Alpha is the exponential decay rate applied to the running mean and
	// variance on every frame; smaller values adapt more slowly.
	Alpha float64

	// Threshold is the number of standard deviations a pixel must deviate
	// from the background mean to be counted as foreground.
	Threshold float64

	// MinVariance floors the per-pixel variance so a pixel that has never
	// moved doesn't become infinitely sensitive.
	MinVariance float64
}

// DefaultConfig returns a baseline tuning for the background model.
func DefaultConfig() Config {
	return Config{
		Alpha:       0.05,
		Threshold:   2.5,
		MinVariance: 4.0,
	}
}

// Detector tracks a per-pixel background model for one camera's analysis
// stream and scores incoming frames against it.
type Detector struct {
	cfg Config

	width, height int
	mean          []float64
	variance      []float64
	initialized   bool
	framesSeen    int
}

// NewDetector creates a Detector for frames of the given dimensions.
func NewDetector(width, height int, cfg Config) *Detector {
	n := width * height
	return &Detector{
		cfg:      cfg,
		width:    width,
		height:   height,
		mean:     make([]float64, n),
		variance: make([]float64, n),
	}
}

// Score is the result of scoring one frame against the background model.
type Score struct {
	// ForegroundRatio is the fraction of pixels classified as foreground,
	// in [0, 1].
	ForegroundRatio float64

	// ForegroundPixels is the count of foreground pixels.
	ForegroundPixels int

	// Value is the frame's motion score: 0 during the per-lifetime warmup,
	// otherwise min(1.0, ForegroundRatio * scoreGain).
	Value float32
}

// Observe scores a grayscale frame against the current background model and
// updates the model from it. frame must be width*height bytes, row-major.
// The first warmupFrames calls always report score 0 while the background
// model stabilizes.
func (d *Detector) Observe(frame []byte) Score {
	if len(frame) != len(d.mean) {
		return Score{}
	}
	d.framesSeen++

	if !d.initialized {
		for i, px := range frame {
			d.mean[i] = float64(px)
			d.variance[i] = d.cfg.MinVariance
		}
		d.initialized = true
		return Score{}
	}

	foreground := 0
	alpha := d.cfg.Alpha
	for i, px := range frame {
		v := float64(px)
		diff := v - d.mean[i]
		std := math.Sqrt(d.variance[i])
		if std < 1e-6 {
			std = 1e-6
		}

		if math.Abs(diff) > d.cfg.Threshold*std {
			foreground++
			// Foreground pixels update the model much more slowly, so a
			// moving object doesn't get absorbed into the background before
			// it leaves the frame.
			d.mean[i] += alpha * 0.1 * diff
			d.variance[i] = math.Max(d.cfg.MinVariance, d.variance[i])
			continue
		}

		d.mean[i] += alpha * diff
		d.variance[i] = (1-alpha)*d.variance[i] + alpha*diff*diff
		if d.variance[i] < d.cfg.MinVariance {
			d.variance[i] = d.cfg.MinVariance
		}
	}

	total := len(frame)
	ratio := float64(foreground) / float64(total)

	var value float32
	if d.framesSeen > warmupFrames {
		value = float32(math.Min(1.0, ratio*scoreGain))
	}

	return Score{
		ForegroundRatio:  ratio,
		ForegroundPixels: foreground,
		Value:            value,
	}
}

// ForegroundMask renders frame's classification against the current
// background model as an image.Gray, white for foreground and black for
// background; the model is not updated. It is
// provided for diagnostics; the hot path only needs Score.ForegroundRatio.
func (d *Detector) ForegroundMask(frame []byte) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, d.width, d.height))
	if len(frame) != len(d.mean) {
		return img
	}
	for i, px := range frame {
		diff := float64(px) - d.mean[i]
		std := math.Sqrt(d.variance[i])
		if std < 1e-6 {
			std = 1e-6
		}
		if math.Abs(diff) > d.cfg.Threshold*std {
			img.Pix[i] = 255
		}
	}
	return img
}

// Reset clears the learned background, used when a camera's transcoder child
// restarts and the analysis stream resumes from an unrelated frame.
func (d *Detector) Reset() {
	d.initialized = false
}
