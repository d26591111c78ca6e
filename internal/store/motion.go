// Package store holds the in-memory motion/detection history, the in-memory
// index of on-disk warm event files, and the camera registry that back the
// read-only query surface.
package store

import "sync"

// MotionEntry records one segment's motion scoring result.
type MotionEntry struct {
	SegmentSequence uint64
	StartTimeNS     uint64
	EndTimeNS       uint64
	MotionScore     float32
	MaskJPEG        []byte
}

// MotionSnapshot is the subset of a MotionEntry exposed to API readers.
type MotionSnapshot struct {
	SegmentSequence uint64
	DurationNS      uint64
	MotionScore     float32
}

// MotionStore retains a rolling history of per-segment motion scores, one
// queue per camera, trimmed as the hot buffer evicts older segments.
type MotionStore struct {
	mu      sync.RWMutex
	cameras map[string][]MotionEntry
}

// NewMotionStore creates a MotionStore with an empty queue for each camera ID.
func NewMotionStore(cameraIDs []string) *MotionStore {
	cameras := make(map[string][]MotionEntry, len(cameraIDs))
	for _, id := range cameraIDs {
		cameras[id] = nil
	}
	return &MotionStore{cameras: cameras}
}

// Insert appends a motion entry for the given camera.
func (s *MotionStore) Insert(cameraID string, entry MotionEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cameras[cameraID]; !ok {
		return
	}
	s.cameras[cameraID] = append(s.cameras[cameraID], entry)
}

// GetMotion returns every retained motion snapshot for a camera, oldest first.
func (s *MotionStore) GetMotion(cameraID string) []MotionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.cameras[cameraID]
	out := make([]MotionSnapshot, len(entries))
	for i, e := range entries {
		out[i] = MotionSnapshot{
			SegmentSequence: e.SegmentSequence,
			DurationNS:      e.EndTimeNS - e.StartTimeNS,
			MotionScore:     e.MotionScore,
		}
	}
	return out
}

// GetMask returns the stored foreground mask JPEG for a segment, if any.
func (s *MotionStore) GetMask(cameraID string, segmentSequence uint64) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.cameras[cameraID] {
		if e.SegmentSequence == segmentSequence {
			return e.MaskJPEG, e.MaskJPEG != nil
		}
	}
	return nil, false
}

// HasMotion reports whether a segment was scored with nonzero motion.
func (s *MotionStore) HasMotion(cameraID string, segmentSequence uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.cameras[cameraID] {
		if e.SegmentSequence == segmentSequence && e.MotionScore > 0 {
			return true
		}
	}
	return false
}

// Cleanup discards entries for segments older than minSequence, keeping the
// store bounded to what the hot buffer still retains.
func (s *MotionStore) Cleanup(cameraID string, minSequence uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.cameras[cameraID]
	i := 0
	for i < len(entries) && entries[i].SegmentSequence < minSequence {
		i++
	}
	s.cameras[cameraID] = entries[i:]
}

// LastSequence returns the most recently scored segment's sequence number.
func (s *MotionStore) LastSequence(cameraID string) (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.cameras[cameraID]
	if len(entries) == 0 {
		return 0, false
	}
	return entries[len(entries)-1].SegmentSequence, true
}
