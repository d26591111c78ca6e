// Package decoder spawns long-lived ffmpeg child processes that turn
// MPEG-TS segments into raw frames for the motion and object detection
// stages. Both stages use the same child-process plumbing, parameterized by
// output resolution, pixel format and sample rate. A FrameDecoder is meant
// to live for a camera's lifetime and serve many segments, not be rebuilt
// per segment: dedicated writer and reader goroutines own the child's
// stdin/stdout so DecodeSegment never blocks on pipe I/O directly.
package decoder

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync/atomic"
	"time"

	"github.com/nsg/camon/internal/ffmpeg"
)

const (
	// segmentQueueSize bounds how many segments may be queued to the
	// writer goroutine before DecodeSegment blocks; the analyzer is
	// single-threaded per camera so this is expected to stay shallow.
	segmentQueueSize = 16
	// frameQueueSize bounds the reader goroutine's output queue.
	frameQueueSize = 64
	// frameReadTimeout bounds how long DecodeSegment waits for a single
	// frame before giving up and returning whatever it already has.
	frameReadTimeout = 500 * time.Millisecond
)

// PixelFormat is the raw pixel format a decoder is asked to emit.
type PixelFormat string

const (
	// PixelFormatGray8 is used by the motion stage: one luma byte per pixel.
	PixelFormatGray8 PixelFormat = "gray"
	// PixelFormatRGB24 is used by the object detection stage.
	PixelFormatRGB24 PixelFormat = "rgb24"
)

// BytesPerPixel returns the number of bytes each pixel occupies in this
// format's raw output.
func (p PixelFormat) BytesPerPixel() int {
	switch p {
	case PixelFormatGray8:
		return 1
	case PixelFormatRGB24:
		return 3
	default:
		return 0
	}
}

// Config describes the frame stream a FrameDecoder should produce.
type Config struct {
	Width  int
	Height int
	FPS    int
	Format PixelFormat
}

// FrameSize returns the byte size of a single decoded frame.
func (c Config) FrameSize() int {
	return c.Width * c.Height * c.Format.BytesPerPixel()
}

// FrameDecoder wraps a persistent ffmpeg child process that reads MPEG-TS
// bytes from stdin and writes a raw frame stream to stdout, scaled and
// converted to the configured resolution and pixel format. One FrameDecoder
// decodes many segments in succession over its lifetime.
type FrameDecoder struct {
	binaryPath string
	cfg        Config

	cmd   *ffmpeg.Command
	stdin io.WriteCloser

	segments chan []byte
	frames   chan []byte
	done     chan struct{}
	alive    atomic.Bool
}

// New creates a FrameDecoder for the given configuration. The ffmpeg process
// is not started until Start is called.
func New(binaryPath string, cfg Config) *FrameDecoder {
	return &FrameDecoder{binaryPath: binaryPath, cfg: cfg}
}

// Start launches the ffmpeg child process and its writer/reader goroutines.
func (d *FrameDecoder) Start(ctx context.Context) error {
	pixFmt := string(d.cfg.Format)
	if d.cfg.Format == PixelFormatGray8 {
		pixFmt = "gray"
	}

	builder := ffmpeg.NewCommandBuilder(d.binaryPath).
		HideBanner().
		LogLevel("error").
		InputArgs("-f", "mpegts").
		Input("pipe:0").
		VideoFilter(fmt.Sprintf("fps=%d,scale=%d:%d", d.cfg.FPS, d.cfg.Width, d.cfg.Height)).
		OutputArgs("-f", "rawvideo", "-pix_fmt", pixFmt, "-an").
		Output("pipe:1")

	d.cmd = builder.Build()

	// Stdin must be obtained first: it lazily creates the underlying
	// exec.Cmd that Stdout()'s pipe and Start() then share.
	stdinPipe, err := d.cmd.Stdin(ctx)
	if err != nil {
		return fmt.Errorf("decoder stdin pipe: %w", err)
	}
	d.stdin = stdinPipe

	stdoutPipe, err := d.cmd.Stdout()
	if err != nil {
		return fmt.Errorf("decoder stdout pipe: %w", err)
	}

	if err := d.cmd.Start(ctx); err != nil {
		return fmt.Errorf("decoder start: %w", err)
	}
	d.alive.Store(true)

	d.segments = make(chan []byte, segmentQueueSize)
	d.frames = make(chan []byte, frameQueueSize)
	d.done = make(chan struct{})

	go d.writeLoop()
	go d.readLoop(stdoutPipe)
	go d.waitLoop()

	return nil
}

// IsAlive reports whether the child process is still running. It reflects
// the last-observed exit status, not a live probe, so callers should expect
// a brief lag between the process actually dying and IsAlive returning
// false.
func (d *FrameDecoder) IsAlive() bool {
	return d.alive.Load()
}

func (d *FrameDecoder) writeLoop() {
	for data := range d.segments {
		if _, err := d.stdin.Write(data); err != nil {
			return
		}
	}
}

func (d *FrameDecoder) readLoop(stdout io.ReadCloser) {
	defer close(d.frames)
	frameSize := d.cfg.FrameSize()
	for {
		buf := make([]byte, frameSize)
		if _, err := io.ReadFull(stdout, buf); err != nil {
			return
		}
		select {
		case d.frames <- buf:
		case <-d.done:
			return
		}
	}
}

func (d *FrameDecoder) waitLoop() {
	_ = d.cmd.Wait()
	d.alive.Store(false)
}

// DecodeSegment feeds a segment's MPEG-TS bytes to the decoder and collects
// the frames it produces. The expected frame count is derived from
// durationNS and the configured sample rate; a single frame read stalling
// past frameReadTimeout ends collection early and returns whatever frames
// arrived so far, rather than blocking indefinitely on a wedged child.
func (d *FrameDecoder) DecodeSegment(data []byte, durationNS uint64) [][]byte {
	select {
	case d.segments <- data:
	case <-d.done:
		return nil
	}

	durationSecs := float64(durationNS) / 1e9
	expected := int(math.Ceil(durationSecs * float64(d.cfg.FPS)))
	if expected < 1 {
		expected = 1
	}

	frames := make([][]byte, 0, expected)
	for i := 0; i < expected; i++ {
		select {
		case frame, ok := <-d.frames:
			if !ok {
				return frames
			}
			frames = append(frames, frame)
		case <-time.After(frameReadTimeout):
			return frames
		}
	}
	return frames
}

// Close terminates the ffmpeg child process and stops its worker goroutines.
func (d *FrameDecoder) Close() error {
	if d.cmd == nil {
		return nil
	}
	if d.done != nil {
		select {
		case <-d.done:
		default:
			close(d.done)
		}
	}
	if d.segments != nil {
		close(d.segments)
	}
	return d.cmd.Kill()
}
