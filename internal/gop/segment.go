// Package gop implements the MPEG-TS GOP segmenter: it splits a continuous
// transport stream into keyframe-aligned segments suitable for hot-buffer
// retention, live playback and warm-storage concatenation.
package gop

import "time"

// Segment is a single GOP-aligned chunk of MPEG-TS bytes, starting at a
// video keyframe and running up to (but not including) the next one.
type Segment struct {
	// Sequence is the camera-lifetime monotonically increasing segment number.
	Sequence uint64

	// StartPTS is the presentation timestamp, in nanoseconds, of the first
	// frame in the segment.
	StartPTS uint64

	// DurationNS is the wall-clock span of the segment, computed once the
	// next segment's start PTS is known.
	DurationNS uint64

	// Data is the raw MPEG-TS bytes, starting with a fresh PAT/PMT.
	Data []byte

	// FrameCount is the number of video access units observed in the segment.
	FrameCount uint32

	// Timestamp is the wall-clock time the segment was finalized.
	Timestamp time.Time
}

// NewSegment creates a segment starting at the given presentation timestamp.
func NewSegment(sequence uint64, startPTS uint64) *Segment {
	return &Segment{Sequence: sequence, StartPTS: startPTS}
}

// Finalize sets the segment's duration from the following segment's start
// PTS. A non-positive span (out-of-order or repeated timestamps) leaves the
// duration at zero rather than wrapping, matching the upstream recorder's
// "never report a negative duration" rule.
func (s *Segment) Finalize(endPTS uint64) {
	if endPTS > s.StartPTS {
		s.DurationNS = endPTS - s.StartPTS
	}
	s.Timestamp = time.Now()
}

// Size returns the byte size of the segment's data.
func (s *Segment) Size() int {
	return len(s.Data)
}

// IsEmpty reports whether the segment carries no data.
func (s *Segment) IsEmpty() bool {
	return len(s.Data) == 0
}

// Clone returns a deep copy of the segment with its own data buffer.
func (s *Segment) Clone() *Segment {
	clone := &Segment{
		Sequence:   s.Sequence,
		StartPTS:   s.StartPTS,
		DurationNS: s.DurationNS,
		FrameCount: s.FrameCount,
		Timestamp:  s.Timestamp,
	}
	if len(s.Data) > 0 {
		clone.Data = make([]byte, len(s.Data))
		copy(clone.Data, s.Data)
	}
	return clone
}
