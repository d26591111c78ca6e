// Package codec detects, at runtime, which video codecs the vendored
// mediacommon MPEG-TS library actually supports demuxing. Camera configs
// name a codec by string; this package is how that string gets validated
// against what the transport layer can actually carry.
package codec

import (
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/mpegts"
)

// Video identifies a camera's elementary stream video codec.
type Video string

const (
	VideoH264 Video = "h264"
	VideoH265 Video = "h265"
)

var mediacommonSupport = struct {
	H264 bool
	H265 bool
}{}

func init() {
	var h264 mpegts.Codec = &mpegts.CodecH264{}
	mediacommonSupport.H264 = !isUnsupportedCodec(h264)

	var h265 mpegts.Codec = &mpegts.CodecH265{}
	mediacommonSupport.H265 = !isUnsupportedCodec(h265)
}

func isUnsupportedCodec(c mpegts.Codec) bool {
	_, isUnsupported := c.(*mpegts.CodecUnsupported)
	return isUnsupported
}

// ParseVideo parses a camera config's codec string.
func ParseVideo(name string) (Video, bool) {
	switch Video(name) {
	case VideoH264, VideoH265:
		return Video(name), true
	default:
		return "", false
	}
}

// Supported reports whether mediacommon supports demuxing this codec from an
// MPEG-TS stream. Detected at runtime via type assertion rather than hardcoded,
// so this automatically tracks whatever the vendored library actually ships.
func Supported(v Video) bool {
	switch v {
	case VideoH264:
		return mediacommonSupport.H264
	case VideoH265:
		return mediacommonSupport.H265
	default:
		return false
	}
}

// Validate returns an error if name isn't a recognized, demuxable codec.
func Validate(name string) error {
	v, ok := ParseVideo(name)
	if !ok {
		return fmt.Errorf("unknown video codec %q", name)
	}
	if !Supported(v) {
		return fmt.Errorf("video codec %q is not supported by the MPEG-TS demuxer build", name)
	}
	return nil
}
