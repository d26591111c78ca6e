// Package hotbuffer implements the in-memory ring of recent GOP segments
// that backs live playback and the pre-recording window for warm-storage
// events.
package hotbuffer

import (
	"sync"
	"time"

	"github.com/nsg/camon/internal/gop"
)

// HotBuffer retains up to a configured duration of the most recent segments
// for one camera, evicting the oldest segment whenever the retained span
// exceeds that duration. It is safe for concurrent use: one writer goroutine
// pushes new segments while any number of readers fetch by sequence number
// for live playback.
type HotBuffer struct {
	mu                sync.RWMutex
	segments          []*gop.Segment
	maxSpan           time.Duration
	currentDurationNS uint64

	evictCond *sync.Cond
	pending   []*gop.Segment
	evicted   chan *gop.Segment
}

// New creates a HotBuffer that retains segments spanning up to maxSpan of
// wall-clock duration. Evicted segments are sent on the returned buffer's
// Evicted channel; delivery is backed by an unbounded internal queue and a
// forwarding goroutine, so Push never blocks or drops an eviction notice
// when the consumer falls behind.
func New(maxSpan time.Duration) *HotBuffer {
	b := &HotBuffer{
		maxSpan: maxSpan,
		evicted: make(chan *gop.Segment),
	}
	b.evictCond = sync.NewCond(&sync.Mutex{})
	go b.forwardEvictions()
	return b
}

// forwardEvictions drains the unbounded pending queue onto the public
// Evicted channel, blocking on the channel send (not on Push) when the
// consumer is slow.
func (b *HotBuffer) forwardEvictions() {
	for {
		b.evictCond.L.Lock()
		for len(b.pending) == 0 {
			b.evictCond.Wait()
		}
		seg := b.pending[0]
		b.pending = b.pending[1:]
		b.evictCond.L.Unlock()
		b.evicted <- seg
	}
}

// Evicted returns the channel on which segments dropped from the ring are
// delivered, oldest first.
func (b *HotBuffer) Evicted() <-chan *gop.Segment {
	return b.evicted
}

// Push appends a new segment to the ring and evicts segments from the front
// until the retained duration is within maxSpan again.
func (b *HotBuffer) Push(seg *gop.Segment) {
	b.mu.Lock()
	b.segments = append(b.segments, seg)
	b.currentDurationNS += seg.DurationNS
	evicted := b.evictLocked()
	b.mu.Unlock()

	if len(evicted) > 0 {
		b.evictCond.L.Lock()
		b.pending = append(b.pending, evicted...)
		b.evictCond.L.Unlock()
		b.evictCond.Signal()
	}
}

// evictLocked pops segments from the front while the running sum of segment
// durations exceeds maxSpan, mirroring the original recorder's
// current_duration_ns accounting rather than a start/end timestamp span.
func (b *HotBuffer) evictLocked() []*gop.Segment {
	var evicted []*gop.Segment
	for len(b.segments) > 1 && time.Duration(b.currentDurationNS) > b.maxSpan {
		first := b.segments[0]
		b.segments = b.segments[1:]
		b.currentDurationNS -= first.DurationNS
		evicted = append(evicted, first)
	}
	return evicted
}

// FirstSequence returns the sequence number of the oldest retained segment,
// and false if the buffer is empty.
func (b *HotBuffer) FirstSequence() (uint64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.segments) == 0 {
		return 0, false
	}
	return b.segments[0].Sequence, true
}

// LastSequence returns the sequence number of the newest retained segment,
// and false if the buffer is empty.
func (b *HotBuffer) LastSequence() (uint64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.segments) == 0 {
		return 0, false
	}
	return b.segments[len(b.segments)-1].Sequence, true
}

// Get returns the segment with the given sequence number, and false if it
// has already been evicted or has not yet been pushed.
func (b *HotBuffer) Get(sequence uint64) (*gop.Segment, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	first, ok := b.firstSequenceLocked()
	if !ok || sequence < first {
		return nil, false
	}
	idx := int(sequence - first)
	if idx >= len(b.segments) {
		return nil, false
	}
	return b.segments[idx], true
}

func (b *HotBuffer) firstSequenceLocked() (uint64, bool) {
	if len(b.segments) == 0 {
		return 0, false
	}
	return b.segments[0].Sequence, true
}

// Range returns the retained segments in order, a snapshot safe for the
// caller to iterate without holding the buffer's lock.
func (b *HotBuffer) Range() []*gop.Segment {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*gop.Segment, len(b.segments))
	copy(out, b.segments)
	return out
}

// TotalDuration returns the running sum of retained segment durations.
func (b *HotBuffer) TotalDuration() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return time.Duration(b.currentDurationNS)
}

// SequenceToOffset converts a segment sequence number into its offset from
// the start of the retained window, i.e. relative to whatever is currently
// the head of the ring rather than the camera's lifetime sequence counter.
func (b *HotBuffer) SequenceToOffset(sequence uint64) (int, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	first, ok := b.firstSequenceLocked()
	if !ok || sequence < first {
		return 0, false
	}
	offset := int(sequence - first)
	if offset >= len(b.segments) {
		return 0, false
	}
	return offset, true
}

// Len returns the number of segments currently retained.
func (b *HotBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.segments)
}
