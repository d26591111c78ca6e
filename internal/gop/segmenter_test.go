package gop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func patPacket(pmtPID int) []byte {
	pkt := make([]byte, PacketSize)
	pkt[0] = SyncByte
	pkt[1] = 0x40 // payload_unit_start_indicator, PID high bits 0
	pkt[2] = 0x00
	pkt[3] = 0x10 // payload only, continuity counter 0

	section := []byte{
		0x00,                   // pointer field
		0x00,                   // table_id
		0xB0, 0x0D,             // section_syntax_indicator + section_length=13
		0x00, 0x01, // transport_stream_id
		0xC1,       // version/current_next
		0x00, 0x00, // section_number, last_section_number
		0x00, 0x01, // program_number = 1
		byte(pmtPID >> 8), byte(pmtPID), // reserved bits + PMT PID
		0x00, 0x00, 0x00, 0x00, // CRC32 (not validated)
	}
	copy(pkt[4:], section)
	return pkt
}

func pmtPacket(pmtPID, videoPID int) []byte {
	pkt := make([]byte, PacketSize)
	pkt[0] = SyncByte
	pkt[1] = 0x40 | byte(pmtPID>>8)
	pkt[2] = byte(pmtPID)
	pkt[3] = 0x10

	section := []byte{
		0x00,       // pointer field
		0x02,       // table_id
		0xB0, 0x12, // section_length = 18
		0x00, 0x01, // program_number
		0xC1,
		0x00, 0x00,
		0xE0, 0x00, // PCR PID (unused by test)
		0xF0, 0x00, // program_info_length = 0
		0x1B, byte(videoPID >> 8), byte(videoPID), 0xF0, 0x00, // H.264 ES entry
		0x00, 0x00, 0x00, 0x00, // CRC32
	}
	copy(pkt[4:], section)
	return pkt
}

func keyframeVideoPacket(videoPID int, withPCR bool) []byte {
	pkt := make([]byte, PacketSize)
	pkt[0] = SyncByte
	pkt[1] = 0x40 | byte(videoPID>>8)
	pkt[2] = byte(videoPID)
	if withPCR {
		pkt[3] = 0x30 // adaptation field + payload
		pkt[4] = 7    // adaptation_field_length
		pkt[5] = 0x50 // random_access_indicator | PCR_flag
		// PCR base=0, extension=0
		pkt[6], pkt[7], pkt[8], pkt[9], pkt[10], pkt[11] = 0, 0, 0, 0, 0x7E, 0
	} else {
		pkt[3] = 0x30
		pkt[4] = 1
		pkt[5] = 0x40 // random_access_indicator only
	}
	return pkt
}

func plainVideoPacket(videoPID int) []byte {
	pkt := make([]byte, PacketSize)
	pkt[0] = SyncByte
	pkt[1] = byte(videoPID >> 8)
	pkt[2] = byte(videoPID)
	pkt[3] = 0x10
	return pkt
}

func TestSegmenter_LearnsPIDsAndEmitsOnKeyframe(t *testing.T) {
	const pmtPID = 0x1000
	const videoPID = 0x0100

	s := NewSegmenter(nil)

	var emitted []*Segment
	emit := func(seg *Segment) { emitted = append(emitted, seg) }

	var stream []byte
	stream = append(stream, patPacket(pmtPID)...)
	stream = append(stream, pmtPacket(pmtPID, videoPID)...)
	stream = append(stream, keyframeVideoPacket(videoPID, true)...)
	stream = append(stream, plainVideoPacket(videoPID)...)
	stream = append(stream, plainVideoPacket(videoPID)...)
	stream = append(stream, keyframeVideoPacket(videoPID, true)...)
	stream = append(stream, plainVideoPacket(videoPID)...)

	require.NoError(t, s.Write(stream, emit))

	require.Len(t, emitted, 1, "first keyframe opens a segment; the second finalizes and emits it")
	first := emitted[0]
	assert.EqualValues(t, 0, first.Sequence)
	assert.False(t, first.IsEmpty())
}

func TestSegmenter_ResetClearsLearnedState(t *testing.T) {
	const pmtPID = 0x1000
	const videoPID = 0x0100

	s := NewSegmenter(nil)
	require.NoError(t, s.Write(patPacket(pmtPID), nil))
	require.NoError(t, s.Write(pmtPacket(pmtPID, videoPID), nil))
	assert.True(t, s.haveVideo)

	s.Reset()
	assert.False(t, s.haveVideo)
	assert.Equal(t, -1, s.pmtPID)
	assert.Equal(t, -1, s.videoPID)
}

func TestSegmenter_LatchesPMTPIDOnce(t *testing.T) {
	s := NewSegmenter(nil)
	require.NoError(t, s.Write(patPacket(0x1000), nil))
	assert.Equal(t, 0x1000, s.pmtPID)

	require.NoError(t, s.Write(patPacket(0x2000), nil))
	assert.Equal(t, 0x1000, s.pmtPID, "PMT PID must latch once and ignore later PAT packets")
}

func TestSegmenter_ResyncsAfterGarbageBytes(t *testing.T) {
	s := NewSegmenter(nil)
	garbage := []byte{0x00, 0x01, 0x02}
	stream := append(garbage, patPacket(0x1000)...)
	require.NoError(t, s.Write(stream, nil))
	assert.Equal(t, 0x1000, s.pmtPID)
}
