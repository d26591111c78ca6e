// Package warm implements the warm-storage event writer: it watches the
// stream of segments evicted from the hot buffer and, whenever motion was
// observed, concatenates a padded run of segments into a single MPEG-TS
// event file under the camera's movements/ or objects/ subdirectory.
package warm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nsg/camon/internal/gop"
	"github.com/nsg/camon/internal/store"
)

// EvictedSegment pairs a segment evicted from the hot buffer with the
// camera it belongs to.
type EvictedSegment struct {
	CameraID string
	Sequence uint64
	Segment  *gop.Segment
}

type event struct {
	segments      []*gop.Segment
	firstPTS      uint64
	lastMotionPTS uint64
	totalBytes    int
	hasObjects    bool
}

func (e *event) durationNS() uint64 {
	var total uint64
	for _, s := range e.segments {
		total += s.DurationNS
	}
	return total
}

// Writer consumes evicted segments for one camera and finalizes warm-storage
// event files once motion has stopped for longer than the post-padding
// window.
type Writer struct {
	logger *slog.Logger

	motionStore    *store.MotionStore
	detectionStore *store.DetectionStore
	warmIndex      *store.WarmEventIndex

	dataDir  string
	cameraID string

	prePaddingNS  uint64
	postPaddingNS uint64

	preBuffer           []*gop.Segment
	preBufferDurationNS uint64
	current             *event
}

// Config configures a Writer.
type Config struct {
	DataDir       string
	CameraID      string
	PrePaddingNS  uint64
	PostPaddingNS uint64
}

// New creates a Writer for one camera.
func New(logger *slog.Logger, cfg Config, motionStore *store.MotionStore, detectionStore *store.DetectionStore, warmIndex *store.WarmEventIndex) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		logger:         logger,
		motionStore:    motionStore,
		detectionStore: detectionStore,
		warmIndex:      warmIndex,
		dataDir:        cfg.DataDir,
		cameraID:       cfg.CameraID,
		prePaddingNS:   cfg.PrePaddingNS,
		postPaddingNS:  cfg.PostPaddingNS,
	}
}

// Run drains evicted segments from ch until it is closed, then finalizes any
// event still in progress.
func (w *Writer) Run(ctx context.Context, ch <-chan EvictedSegment) {
	for {
		select {
		case evicted, ok := <-ch:
			if !ok {
				if w.current != nil {
					w.finalizeEvent(ctx)
				}
				w.logger.Debug("warm writer shutting down", "camera", w.cameraID)
				return
			}
			w.processSegment(ctx, evicted)
		case <-ctx.Done():
			if w.current != nil {
				w.finalizeEvent(ctx)
			}
			return
		}
	}
}

func (w *Writer) processSegment(ctx context.Context, evicted EvictedSegment) {
	hasMotion := w.motionStore.HasMotion(evicted.CameraID, evicted.Sequence)
	segment := evicted.Segment
	hasObjects := hasMotion && w.detectionStore.HasDetections(evicted.CameraID, evicted.Sequence)

	switch {
	case hasMotion && w.current != nil:
		w.current.lastMotionPTS = segment.StartPTS
		w.current.totalBytes += segment.Size()
		if hasObjects {
			w.current.hasObjects = true
		}
		w.current.segments = append(w.current.segments, segment)

	case hasMotion:
		segments := w.preBuffer
		w.preBuffer = nil
		w.preBufferDurationNS = 0

		firstPTS := segment.StartPTS
		if len(segments) > 0 {
			firstPTS = segments[0].StartPTS
		}
		totalBytes := segment.Size()
		for _, s := range segments {
			totalBytes += s.Size()
		}
		segments = append(segments, segment)

		w.current = &event{
			segments:      segments,
			firstPTS:      firstPTS,
			lastMotionPTS: segment.StartPTS,
			totalBytes:    totalBytes,
			hasObjects:    hasObjects,
		}

	case w.current != nil:
		elapsed := segment.StartPTS - w.current.lastMotionPTS
		if segment.StartPTS < w.current.lastMotionPTS {
			elapsed = 0
		}
		if elapsed <= w.postPaddingNS {
			w.current.totalBytes += segment.Size()
			w.current.segments = append(w.current.segments, segment)
		} else {
			w.finalizeEvent(ctx)
			w.pushPreBuffer(segment)
		}

	default:
		w.pushPreBuffer(segment)
	}
}

func (w *Writer) pushPreBuffer(segment *gop.Segment) {
	w.preBufferDurationNS += segment.DurationNS
	w.preBuffer = append(w.preBuffer, segment)
	for w.preBufferDurationNS > w.prePaddingNS && len(w.preBuffer) > 0 {
		old := w.preBuffer[0]
		w.preBuffer = w.preBuffer[1:]
		if old.DurationNS > w.preBufferDurationNS {
			w.preBufferDurationNS = 0
		} else {
			w.preBufferDurationNS -= old.DurationNS
		}
	}
}

func (w *Writer) finalizeEvent(ctx context.Context) {
	ev := w.current
	w.current = nil
	if ev == nil {
		return
	}
	go w.writeEvent(ctx, ev)
}

func (w *Writer) writeEvent(_ context.Context, ev *event) {
	durationNS := ev.durationNS()
	durationMS := durationNS / 1_000_000

	eventType := store.EventTypeMovement
	subdir := "movements"
	if ev.hasObjects {
		eventType = store.EventTypeObject
		subdir = "objects"
	}

	cameraDir := filepath.Join(w.dataDir, w.cameraID, subdir)
	if err := os.MkdirAll(cameraDir, 0o755); err != nil {
		w.logger.Error("failed to create warm storage directory", "camera", w.cameraID, "error", err)
		return
	}

	filename := fmt.Sprintf("%d_%d.ts", ev.firstPTS, durationMS)
	filePath := filepath.Join(cameraDir, filename)

	data := make([]byte, 0, ev.totalBytes)
	for _, s := range ev.segments {
		data = append(data, s.Data...)
	}

	if err := os.WriteFile(filePath, data, 0o644); err != nil {
		w.logger.Error("failed to write warm event file", "camera", w.cameraID, "path", filePath, "error", err)
		return
	}

	w.logger.Info("wrote warm event file",
		"camera", w.cameraID,
		"path", filePath,
		"segments", len(ev.segments),
		"bytes", ev.totalBytes,
		"duration_ms", durationMS,
	)

	if w.warmIndex != nil {
		w.warmIndex.Insert(w.cameraID, store.WarmEventEntry{
			StartPTSNS: ev.firstPTS,
			DurationMS: uint32(durationMS),
			EventType:  eventType,
			FileSize:   uint64(len(data)),
		})
	}
}
