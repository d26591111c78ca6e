// Package daemon wires together, per camera, the ingest pipeline (RTSP
// transcode → GOP segmenter → hot buffer), the motion/object analyzer, and
// the warm-storage writer, and supervises their lifetimes.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nsg/camon/internal/analyzer"
	"github.com/nsg/camon/internal/camera"
	"github.com/nsg/camon/internal/config"
	"github.com/nsg/camon/internal/hotbuffer"
	"github.com/nsg/camon/internal/object"
	"github.com/nsg/camon/internal/store"
	"github.com/nsg/camon/internal/warm"
)

// CameraUnit bundles the pieces a running camera owns, exposed so the HTTP
// query surface can read from the hot buffer and the stores directly.
type CameraUnit struct {
	ID     string
	Buffer *hotbuffer.HotBuffer
}

// Supervisor owns every configured camera's pipeline, analyzer, and warm
// writer, and the stores shared across the query surface.
type Supervisor struct {
	logger *slog.Logger
	cfg    *config.Config

	MotionStore    *store.MotionStore
	DetectionStore *store.DetectionStore
	WarmIndex      *store.WarmEventIndex
	Registry       *store.Registry

	janitor *Janitor

	mu      sync.RWMutex
	cameras map[string]*CameraUnit

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New creates a Supervisor for the given configuration. registryPath is the
// SQLite file backing the camera registry.
func New(logger *slog.Logger, cfg *config.Config, registryPath string) (*Supervisor, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cameraIDs := make([]string, len(cfg.Cameras))
	for i, cam := range cfg.Cameras {
		cameraIDs[i] = cam.ID
	}

	registry, err := store.OpenRegistry(registryPath)
	if err != nil {
		return nil, fmt.Errorf("opening camera registry: %w", err)
	}

	warmIndex := store.NewWarmEventIndex(cameraIDs, cfg.Storage.DataDir)
	if err := warmIndex.Scan(); err != nil {
		return nil, fmt.Errorf("scanning warm storage: %w", err)
	}

	return &Supervisor{
		logger:         logger,
		cfg:            cfg,
		MotionStore:    store.NewMotionStore(cameraIDs),
		DetectionStore: store.NewDetectionStore(cameraIDs),
		WarmIndex:      warmIndex,
		Registry:       registry,
		janitor:        NewJanitor(logger, cfg.Storage),
		cameras:        make(map[string]*CameraUnit, len(cameraIDs)),
	}, nil
}

// Run starts every configured camera's pipeline and blocks until ctx is
// canceled, then waits for all pipelines to stop.
func (s *Supervisor) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	defer cancel()

	if err := s.janitor.Start(); err != nil {
		return fmt.Errorf("starting storage janitor: %w", err)
	}
	defer s.janitor.Stop()

	var objectDetector *object.Detector
	if s.cfg.Analytics.ObjectModelPath != "" {
		det, err := object.New(object.Config{
			ModelPath:        s.cfg.Analytics.ObjectModelPath,
			ConfidenceThresh: float32(s.cfg.Analytics.ObjectConfidence),
			AllowedClasses:   s.cfg.Analytics.ObjectAllowedClass,
		})
		if err != nil {
			return fmt.Errorf("loading object detection model: %w", err)
		}
		defer det.Close()
		objectDetector = det
	} else {
		s.logger.Warn("no object detection model configured; motion-only analysis")
	}

	for _, camCfg := range s.cfg.Cameras {
		if err := s.Registry.UpsertCamera(camCfg.ID, camCfg.URL, camCfg.EffectiveCodec()); err != nil {
			s.logger.Warn("recording camera in registry failed", "camera", camCfg.ID, "error", err)
		}
		s.startCamera(runCtx, camCfg, objectDetector)
	}

	<-ctx.Done()
	s.logger.Info("shutting down camera pipelines")
	cancel()
	s.wg.Wait()
	return nil
}

func (s *Supervisor) startCamera(ctx context.Context, camCfg config.CameraConfig, objectDetector *object.Detector) {
	buffer := hotbuffer.New(camCfg.EffectiveHotBufferDuration())

	s.mu.Lock()
	s.cameras[camCfg.ID] = &CameraUnit{ID: camCfg.ID, Buffer: buffer}
	s.mu.Unlock()

	logger := s.logger.With("camera", camCfg.ID)

	pipeline := camera.New(logger, camera.Config{
		CameraID:     camCfg.ID,
		URL:          camCfg.URL,
		FFmpegBinary: s.cfg.FFmpeg.BinaryPath,
	}, buffer)

	an := analyzer.New(logger, camCfg.ID, analyzer.Config{
		FFmpegBinary:    s.cfg.FFmpeg.BinaryPath,
		SampleFPS:       s.cfg.Analytics.SampleFPS,
		MotionWidth:     320,
		MotionHeight:    180,
		DetectionWidth:  640,
		DetectionHeight: 640,
		MotionThreshold: float32(s.cfg.Analytics.MotionThreshold),
		PollInterval:    s.cfg.Analytics.PollInterval,
	}, buffer, s.MotionStore, s.DetectionStore, objectDetector)

	writer := warm.New(logger, warm.Config{
		DataDir:       s.cfg.Storage.CameraDir(camCfg.ID),
		CameraID:      camCfg.ID,
		PrePaddingNS:  uint64(s.cfg.Analytics.PrePaddingDuration.Nanoseconds()),
		PostPaddingNS: uint64(s.cfg.Analytics.PostPaddingDuration.Nanoseconds()),
	}, s.MotionStore, s.DetectionStore, s.WarmIndex)

	warmCh := make(chan warm.EvictedSegment, 64)

	s.wg.Add(4)
	go func() { defer s.wg.Done(); pipeline.Run(ctx) }()
	go func() { defer s.wg.Done(); an.Run(ctx) }()
	go func() { defer s.wg.Done(); writer.Run(ctx, warmCh) }()
	go func() {
		defer s.wg.Done()
		defer close(warmCh)
		for {
			select {
			case <-ctx.Done():
				return
			case seg, ok := <-buffer.Evicted():
				if !ok {
					return
				}
				select {
				case warmCh <- warm.EvictedSegment{CameraID: camCfg.ID, Sequence: seg.Sequence, Segment: seg}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	logger.Info("camera pipeline started", "url", camCfg.URL, "codec", camCfg.EffectiveCodec())
}

// Camera returns the running unit for a camera ID, if any.
func (s *Supervisor) Camera(id string) (*CameraUnit, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	unit, ok := s.cameras[id]
	return unit, ok
}

// Cameras returns the IDs of every running camera.
func (s *Supervisor) Cameras() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.cameras))
	for id := range s.cameras {
		ids = append(ids, id)
	}
	return ids
}

// Close releases resources not tied to ctx cancellation (the registry's
// database handle).
func (s *Supervisor) Close() error {
	return s.Registry.Close()
}
