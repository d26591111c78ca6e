// Package camera supervises the per-camera RTSP ingest: an ffmpeg child
// process remuxes the camera's RTSP stream into MPEG-TS on stdout, which
// feeds the GOP segmenter and, from there, the hot buffer.
package camera

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/nsg/camon/internal/ffmpeg"
	"github.com/nsg/camon/internal/gop"
	"github.com/nsg/camon/internal/hotbuffer"
)

const (
	readChunkSize   = 64 * 1024
	restartBackoff  = 2 * time.Second
	maxRestartDelay = 30 * time.Second
)

// Config configures one camera's ingest pipeline.
type Config struct {
	CameraID     string
	URL          string
	FFmpegBinary string
}

// Pipeline supervises the ffmpeg remux child for one camera, restarting it
// on crash with exponential backoff, and feeds its output through a
// Segmenter into a HotBuffer.
type Pipeline struct {
	logger    *slog.Logger
	cfg       Config
	segmenter *gop.Segmenter
	buffer    *hotbuffer.HotBuffer
}

// New creates a Pipeline for one camera.
func New(logger *slog.Logger, cfg Config, buffer *hotbuffer.HotBuffer) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		logger:    logger,
		cfg:       cfg,
		segmenter: gop.NewSegmenter(logger.With("camera", cfg.CameraID)),
		buffer:    buffer,
	}
}

// Run ingests the camera's RTSP stream until ctx is canceled, restarting the
// ffmpeg child with backoff whenever it exits unexpectedly.
func (p *Pipeline) Run(ctx context.Context) {
	delay := restartBackoff
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		started := time.Now()
		err := p.runOnce(ctx)
		if ctx.Err() != nil {
			return
		}

		p.segmenter.Reset()

		if time.Since(started) > maxRestartDelay {
			delay = restartBackoff // a long-lived run resets the backoff
		}

		p.logger.Warn("transcoder exited, restarting", "camera", p.cfg.CameraID, "error", err, "retry_in", delay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxRestartDelay {
			delay = maxRestartDelay
		}
	}
}

func (p *Pipeline) runOnce(ctx context.Context) error {
	cmd := ffmpeg.NewCommandBuilder(p.cfg.FFmpegBinary).
		HideBanner().
		LogLevel("error").
		InputArgs("-rtsp_transport", "tcp").
		Reconnect().
		Input(p.cfg.URL).
		VideoCodec("copy").
		AudioCodec("copy").
		MpegtsArgs().
		Output("pipe:1").
		Build()

	stdoutPipe, err := cmd.Stdout()
	if err != nil {
		return fmt.Errorf("camera %s: stdout pipe: %w", p.cfg.CameraID, err)
	}

	if err := cmd.Start(ctx); err != nil {
		return fmt.Errorf("camera %s: start: %w", p.cfg.CameraID, err)
	}
	defer cmd.Kill()

	monitor := ffmpeg.NewProcessMonitor(cmd.Pid())
	monitor.Start()
	defer monitor.Stop()

	buf := make([]byte, readChunkSize)
	for {
		n, readErr := stdoutPipe.Read(buf)
		if n > 0 {
			monitor.AddBytesRead(uint64(n))
			if writeErr := p.segmenter.Write(buf[:n], p.onSegment); writeErr != nil {
				return fmt.Errorf("camera %s: segmenter: %w", p.cfg.CameraID, writeErr)
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				err := cmd.Wait()
				stats := monitor.Stats()
				p.logger.Debug("transcoder exited", "camera", p.cfg.CameraID,
					"cpu_percent", stats.CPUPercent, "rss_bytes", stats.MemoryRSSBytes, "bytes_read", stats.BytesRead)
				return err
			}
			return readErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func (p *Pipeline) onSegment(seg *gop.Segment) {
	p.buffer.Push(seg)
}
