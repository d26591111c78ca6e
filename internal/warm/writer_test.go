package warm

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsg/camon/internal/gop"
	"github.com/nsg/camon/internal/store"
)

func testSegment(seq uint64, startSec uint64, durSec uint64) *gop.Segment {
	s := gop.NewSegment(seq, startSec*uint64(time.Second))
	s.DurationNS = durSec * uint64(time.Second)
	s.Data = []byte{0x47, 0x00, 0x01}
	return s
}

func TestWriter_WritesEventAfterPostPaddingExpires(t *testing.T) {
	dataDir := t.TempDir()
	cameraID := "front-door"

	motionStore := store.NewMotionStore([]string{cameraID})
	detectionStore := store.NewDetectionStore([]string{cameraID})
	warmIndex := store.NewWarmEventIndex([]string{cameraID}, dataDir)

	w := New(nil, Config{
		DataDir:       dataDir,
		CameraID:      cameraID,
		PrePaddingNS:  uint64(2 * time.Second),
		PostPaddingNS: uint64(3 * time.Second),
	}, motionStore, detectionStore, warmIndex)

	motionStore.Insert(cameraID, store.MotionEntry{SegmentSequence: 5, MotionScore: 1.0})

	ch := make(chan EvictedSegment, 10)
	ch <- EvictedSegment{CameraID: cameraID, Sequence: 4, Segment: testSegment(4, 0, 2)}  // pre-buffer
	ch <- EvictedSegment{CameraID: cameraID, Sequence: 5, Segment: testSegment(5, 2, 2)}  // motion start
	ch <- EvictedSegment{CameraID: cameraID, Sequence: 6, Segment: testSegment(6, 10, 2)} // 8s later, exceeds post-padding
	close(ch)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	w.Run(ctx, ch)

	// Event finalization happens in a goroutine; give it a moment.
	require.Eventually(t, func() bool {
		entries := warmIndex.Query(cameraID, 0, uint64(20*time.Second))
		return len(entries) == 1
	}, time.Second, 10*time.Millisecond)

	entries := warmIndex.Query(cameraID, 0, uint64(20*time.Second))
	require.Len(t, entries, 1)
	assert.Equal(t, store.EventTypeMovement, entries[0].EventType)

	path := warmIndex.ResolveFilePath(cameraID, entries[0])
	assert.FileExists(t, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	assert.True(t, filepath.IsAbs(path) || filepath.Dir(path) != "")
}
