package hotbuffer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsg/camon/internal/gop"
)

func seg(seq uint64, startPTSSeconds uint64, duration time.Duration) *gop.Segment {
	s := gop.NewSegment(seq, startPTSSeconds*uint64(time.Second))
	s.Data = []byte{0x47}
	s.DurationNS = uint64(duration)
	return s
}

func TestHotBuffer_EvictsBeyondMaxSpan(t *testing.T) {
	b := New(10 * time.Second)

	for i := uint64(1); i <= 15; i++ {
		b.Push(seg(i, i, time.Second))
	}

	first, ok := b.FirstSequence()
	require.True(t, ok)
	last, ok := b.LastSequence()
	require.True(t, ok)

	assert.Equal(t, uint64(15), last)
	assert.LessOrEqual(t, last-first, uint64(10))
	assert.LessOrEqual(t, b.TotalDuration(), 10*time.Second)
}

func TestHotBuffer_GetAndOffset(t *testing.T) {
	b := New(time.Minute)
	b.Push(seg(100, 0, time.Second))
	b.Push(seg(101, 1, time.Second))
	b.Push(seg(102, 2, time.Second))

	got, ok := b.Get(101)
	require.True(t, ok)
	assert.EqualValues(t, 101, got.Sequence)

	offset, ok := b.SequenceToOffset(101)
	require.True(t, ok)
	assert.Equal(t, 1, offset)

	_, ok = b.Get(50)
	assert.False(t, ok)
}

func TestHotBuffer_EvictedChannelReceivesOldestFirst(t *testing.T) {
	b := New(2 * time.Second)
	b.Push(seg(1, 0, time.Second))
	b.Push(seg(2, 1, time.Second))
	b.Push(seg(3, 2, time.Second)) // running duration 3s forces eviction of segment 1

	select {
	case ev := <-b.Evicted():
		assert.EqualValues(t, 1, ev.Sequence)
	case <-time.After(time.Second):
		t.Fatal("expected an eviction notice")
	}
}

// TestHotBuffer_EvictsByRunningDurationSum exercises the scenario where three
// contiguous 400ms segments exceed a 1s cap: the summed duration (1200ms) is
// what drives eviction, not the start-PTS span between first and last
// (800ms), which alone would never trigger an eviction.
func TestHotBuffer_EvictsByRunningDurationSum(t *testing.T) {
	b := New(time.Second)
	b.Push(seg(0, 0, 400*time.Millisecond))
	b.Push(seg(1, 0, 400*time.Millisecond))
	b.Push(seg(2, 0, 400*time.Millisecond))

	select {
	case ev := <-b.Evicted():
		assert.EqualValues(t, 0, ev.Sequence)
	case <-time.After(time.Second):
		t.Fatal("expected an eviction notice")
	}

	first, ok := b.FirstSequence()
	require.True(t, ok)
	assert.EqualValues(t, 1, first)
	assert.Equal(t, 2, b.Len())
	assert.Equal(t, 800*time.Millisecond, b.TotalDuration())
}
