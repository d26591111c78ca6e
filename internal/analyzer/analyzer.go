// Package analyzer runs the two-stage motion/object analytics pipeline
// against a camera's hot buffer: a cheap grayscale motion pass over every
// segment, and a more expensive RGB object-detection pass reserved for the
// boundary segments of a motion run.
package analyzer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"time"

	"github.com/nsg/camon/internal/decoder"
	"github.com/nsg/camon/internal/gop"
	"github.com/nsg/camon/internal/hotbuffer"
	"github.com/nsg/camon/internal/motion"
	"github.com/nsg/camon/internal/object"
	"github.com/nsg/camon/internal/observability"
	"github.com/nsg/camon/internal/store"
)

const motionPercentile = 0.90

// decoderRestartDelay is how long the analyzer main loop sleeps before
// retrying decoder creation after a failed (re)start.
const decoderRestartDelay = 5 * time.Second

// Config configures one camera's analyzer.
type Config struct {
	FFmpegBinary    string
	SampleFPS       int
	MotionWidth     int
	MotionHeight    int
	DetectionWidth  int
	DetectionHeight int
	MotionThreshold float32
	PollInterval    time.Duration
}

// Analyzer polls a camera's hot buffer for newly arrived segments, scores
// them for motion, and runs object detection on motion-run boundaries. It
// owns two long-lived sibling decoder children for the camera's lifetime —
// one for the grayscale analysis stream, one for the RGB detection stream —
// and restarts either one if it dies.
type Analyzer struct {
	logger   *slog.Logger
	cameraID string
	cfg      Config

	buffer         *hotbuffer.HotBuffer
	motionStore    *store.MotionStore
	detectionStore *store.DetectionStore
	objectDetector *object.Detector // nil disables the object detection stage

	analysisDecoder  *decoder.FrameDecoder
	detectionDecoder *decoder.FrameDecoder

	motionDetector *motion.Detector
	histogram      *ScoreHistogram

	lastProcessed uint64
}

// New creates an Analyzer for one camera. objectDetector may be nil, in
// which case only the motion stage runs.
func New(logger *slog.Logger, cameraID string, cfg Config, buffer *hotbuffer.HotBuffer, motionStore *store.MotionStore, detectionStore *store.DetectionStore, objectDetector *object.Detector) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	lastProcessed := uint64(0)
	if last, ok := motionStore.LastSequence(cameraID); ok {
		lastProcessed = last + 1
	}

	return &Analyzer{
		logger:         logger,
		cameraID:       cameraID,
		cfg:            cfg,
		buffer:         buffer,
		motionStore:    motionStore,
		detectionStore: detectionStore,
		objectDetector: objectDetector,
		motionDetector: motion.NewDetector(cfg.MotionWidth, cfg.MotionHeight, motion.Config{
			Alpha:       0.05,
			Threshold:   2.5,
			MinVariance: 4.0,
		}),
		histogram:     NewScoreHistogram(motionPercentile, cfg.MotionThreshold),
		lastProcessed: lastProcessed,
	}
}

// Run polls the hot buffer until ctx is canceled. It is a blocking worker
// that the supervisor starts on its own goroutine, since it blocks on its
// decoder children's I/O.
func (a *Analyzer) Run(ctx context.Context) {
	a.logger.Info("motion analyzer started", "camera", a.cameraID)
	defer a.logger.Info("motion analyzer stopped", "camera", a.cameraID)
	defer a.closeDecoders()

	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !a.ensureDecoders(ctx) {
				select {
				case <-ctx.Done():
					return
				case <-time.After(decoderRestartDelay):
				}
				continue
			}
			if err := a.processNewSegments(ctx); err != nil {
				a.logger.Error("motion analysis error", "camera", a.cameraID, "error", err)
			}
		}
	}
}

// ensureDecoders (re)creates either decoder child that is missing or dead.
// It reports false if either decoder's creation failed, in which case the
// caller sleeps and retries rather than processing this pass.
func (a *Analyzer) ensureDecoders(ctx context.Context) bool {
	if a.analysisDecoder == nil || !a.analysisDecoder.IsAlive() {
		fd := decoder.New(a.cfg.FFmpegBinary, decoder.Config{
			Width:  a.cfg.MotionWidth,
			Height: a.cfg.MotionHeight,
			FPS:    a.cfg.SampleFPS,
			Format: decoder.PixelFormatGray8,
		})
		if err := fd.Start(ctx); err != nil {
			a.logger.Error("analysis decoder restart failed", "camera", a.cameraID, "error", err)
			return false
		}
		if a.analysisDecoder != nil {
			a.analysisDecoder.Close()
		}
		a.analysisDecoder = fd
		// The previous decoder's process restarted; the background model
		// it was trained against is gone with it.
		a.motionDetector.Reset()
	}

	if a.objectDetector != nil && (a.detectionDecoder == nil || !a.detectionDecoder.IsAlive()) {
		fd := decoder.New(a.cfg.FFmpegBinary, decoder.Config{
			Width:  a.cfg.DetectionWidth,
			Height: a.cfg.DetectionHeight,
			FPS:    a.cfg.SampleFPS,
			Format: decoder.PixelFormatRGB24,
		})
		if err := fd.Start(ctx); err != nil {
			a.logger.Error("detection decoder restart failed", "camera", a.cameraID, "error", err)
			return false
		}
		if a.detectionDecoder != nil {
			a.detectionDecoder.Close()
		}
		a.detectionDecoder = fd
	}
	return true
}

func (a *Analyzer) closeDecoders() {
	if a.analysisDecoder != nil {
		a.analysisDecoder.Close()
	}
	if a.detectionDecoder != nil {
		a.detectionDecoder.Close()
	}
}

func (a *Analyzer) processNewSegments(ctx context.Context) error {
	firstSeq, ok := a.buffer.FirstSequence()
	if ok && firstSeq > 0 {
		a.motionStore.Cleanup(a.cameraID, firstSeq)
		a.detectionStore.Cleanup(a.cameraID, firstSeq)
	}
	if ok && a.lastProcessed < firstSeq {
		a.lastProcessed = firstSeq
	}

	lastSeq, ok := a.buffer.LastSequence()
	if !ok {
		return nil
	}

	var flagged []*gop.Segment
	for seq := a.lastProcessed; seq < lastSeq; seq++ {
		segment, ok := a.buffer.Get(seq)
		if !ok {
			continue
		}
		hasMotion, err := a.processSegment(ctx, segment)
		if err != nil {
			return fmt.Errorf("segment %d: %w", seq, err)
		}
		if hasMotion {
			flagged = append(flagged, segment)
		}
		a.lastProcessed = seq + 1
	}

	if a.objectDetector != nil {
		a.detectFlaggedRuns(ctx, flagged)
	}
	return nil
}

// processSegment runs the motion stage for a single segment and reports
// whether it was flagged. Object detection does not happen here: it is
// gated on whole runs of flagged segments from this pass, see
// detectFlaggedRuns.
func (a *Analyzer) processSegment(ctx context.Context, segment *gop.Segment) (bool, error) {
	score, err := a.scoreMotion(ctx, segment)
	if err != nil {
		return false, err
	}

	a.histogram.Record(score)
	threshold := a.histogram.Threshold()
	hasMotion := score >= threshold
	if !hasMotion {
		return false, nil
	}

	a.motionStore.Insert(a.cameraID, store.MotionEntry{
		SegmentSequence: segment.Sequence,
		StartTimeNS:     segment.StartPTS,
		EndTimeNS:       segment.StartPTS + segment.DurationNS,
		MotionScore:     score,
	})

	a.logger.Debug("motion detected",
		"camera", a.cameraID, "sequence", segment.Sequence,
		"score", score, "threshold", threshold, "samples", a.histogram.Samples())
	return true, nil
}

// detectFlaggedRuns groups this pass's motion-flagged segments into runs of
// contiguous sequence numbers and applies boundary coarsening to each run.
func (a *Analyzer) detectFlaggedRuns(ctx context.Context, flagged []*gop.Segment) {
	for _, run := range groupContiguousRuns(flagged) {
		a.detectRun(ctx, run)
	}
}

func groupContiguousRuns(segments []*gop.Segment) [][]*gop.Segment {
	var runs [][]*gop.Segment
	var current []*gop.Segment
	for _, seg := range segments {
		if len(current) > 0 && seg.Sequence != current[len(current)-1].Sequence+1 {
			runs = append(runs, current)
			current = nil
		}
		current = append(current, seg)
	}
	if len(current) > 0 {
		runs = append(runs, current)
	}
	return runs
}

// detectRun implements gated object detection with boundary coarsening
// (spec'd as detecting a run's first and last segment, then propagating
// or subdividing the interior, rather than detecting every segment).
func (a *Analyzer) detectRun(ctx context.Context, run []*gop.Segment) {
	if len(run) <= 2 {
		for _, seg := range run {
			det, jpeg := a.detectSegment(ctx, seg)
			a.storeDetections(seg, det, jpeg)
		}
		return
	}

	first := run[0]
	last := run[len(run)-1]
	firstDet, firstJPEG := a.detectSegment(ctx, first)
	lastDet, lastJPEG := a.detectSegment(ctx, last)
	a.storeDetections(first, firstDet, firstJPEG)
	a.storeDetections(last, lastDet, lastJPEG)

	interior := run[1 : len(run)-1]
	if len(firstDet) > 0 && len(lastDet) > 0 && sameClassSet(firstDet, lastDet) {
		a.interpolateInterior(interior, firstDet, firstJPEG, lastDet, lastJPEG)
		return
	}

	// Boundaries disagree (or one produced nothing conclusive): their
	// results already stand as recorded above. Subdivide the interior at
	// its midpoint and recurse so disagreement gets localized rather than
	// smeared across the whole run.
	mid := len(interior) / 2
	if left := interior[:mid]; len(left) > 0 {
		a.detectRun(ctx, left)
	}
	if right := interior[mid:]; len(right) > 0 {
		a.detectRun(ctx, right)
	}
}

// interpolateInterior stamps every interior segment of an agreeing run with
// the elementwise-min confidence per class between the two boundary
// detections, attaching whichever boundary's JPEG is nearest.
func (a *Analyzer) interpolateInterior(interior []*gop.Segment, firstDet []object.Detection, firstJPEG []byte, lastDet []object.Detection, lastJPEG []byte) {
	if len(interior) == 0 {
		return
	}
	combined := minByClass(firstDet, lastDet)

	n := len(interior)
	nearestFirst := (n - 1) / 2
	for i, seg := range interior {
		jpeg := lastJPEG
		if i <= nearestFirst {
			jpeg = firstJPEG
		}
		for _, det := range combined {
			a.detectionStore.Insert(a.cameraID, seg.Sequence, det.ClassName, det.Confidence, jpeg)
		}
		a.logger.Debug("object detection interpolated",
			"camera", a.cameraID, "sequence", seg.Sequence, "classes", len(combined))
	}
}

func sameClassSet(a, b []object.Detection) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, d := range a {
		set[d.ClassName] = struct{}{}
	}
	for _, d := range b {
		if _, ok := set[d.ClassName]; !ok {
			return false
		}
	}
	return true
}

func minByClass(a, b []object.Detection) []object.Detection {
	byClass := make(map[string]float32, len(b))
	for _, d := range b {
		byClass[d.ClassName] = d.Confidence
	}
	out := make([]object.Detection, 0, len(a))
	for _, d := range a {
		conf := d.Confidence
		if other, ok := byClass[d.ClassName]; ok && other < conf {
			conf = other
		}
		out = append(out, object.Detection{ClassName: d.ClassName, Confidence: conf})
	}
	return out
}

func (a *Analyzer) storeDetections(segment *gop.Segment, detections []object.Detection, frameJPEG []byte) {
	if len(detections) == 0 {
		return
	}
	for _, det := range detections {
		a.detectionStore.Insert(a.cameraID, segment.Sequence, det.ClassName, det.Confidence, frameJPEG)
		a.logger.Debug("object detected",
			"camera", a.cameraID, "sequence", segment.Sequence,
			"class", det.ClassName, "confidence", det.Confidence)
	}
}

func (a *Analyzer) scoreMotion(ctx context.Context, segment *gop.Segment) (float32, error) {
	frames := a.analysisDecoder.DecodeSegment(segment.Data, segment.DurationNS)
	if len(frames) == 0 {
		return 0, nil
	}

	var total float64
	for _, frame := range frames {
		result := a.motionDetector.Observe(frame)
		total += float64(result.Value)
	}
	return float32(total / float64(len(frames))), nil
}

// detectSegment decodes a segment through the detection decoder and runs the
// object detector frame by frame, stopping at the first frame that produces
// at least one detection. It returns that frame's detections and its JPEG
// encoding, or (nil, nil) if no frame in the segment produced anything.
func (a *Analyzer) detectSegment(ctx context.Context, segment *gop.Segment) ([]object.Detection, []byte) {
	frames := a.detectionDecoder.DecodeSegment(segment.Data, segment.DurationNS)

	for _, frame := range frames {
		detections, err := a.objectDetector.Detect(frame, a.cfg.DetectionWidth, a.cfg.DetectionHeight)
		if err != nil {
			a.logger.Log(ctx, observability.LevelTrace, "object detection error", "camera", a.cameraID, "error", err)
			continue
		}
		if len(detections) == 0 {
			continue
		}

		frameJPEG, err := encodeJPEG(frame, a.cfg.DetectionWidth, a.cfg.DetectionHeight)
		if err != nil {
			continue
		}
		return detections, frameJPEG
	}
	return nil, nil
}

func encodeJPEG(frame []byte, width, height int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := (y*width + x) * 3
			o := img.PixOffset(x, y)
			img.Pix[o] = frame[i]
			img.Pix[o+1] = frame[i+1]
			img.Pix[o+2] = frame[i+2]
			img.Pix[o+3] = 0xFF
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

