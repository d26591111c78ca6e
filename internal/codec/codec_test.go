package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate_AcceptsH264(t *testing.T) {
	assert.NoError(t, Validate("h264"))
}

func TestValidate_RejectsUnknownCodec(t *testing.T) {
	assert.Error(t, Validate("mjpeg"))
}

func TestParseVideo_RoundTrips(t *testing.T) {
	v, ok := ParseVideo("h265")
	assert.True(t, ok)
	assert.Equal(t, VideoH265, v)
}
