package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nsg/camon/internal/config"
	"github.com/nsg/camon/internal/daemon"
	"github.com/nsg/camon/internal/ffmpeg"
	"github.com/nsg/camon/internal/httpapi"
	"github.com/nsg/camon/internal/observability"
	"github.com/nsg/camon/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the camon recorder",
	Long: `Start every configured camera's ingest, analytics, and warm-storage
pipeline, and serve the read-only query API.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	appCfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := observability.NewLogger(appCfg.Logging)
	observability.SetDefault(logger)

	detector := ffmpeg.NewBinaryDetector()
	binInfo, err := detector.Detect(context.Background())
	if err != nil {
		return fmt.Errorf("detecting ffmpeg binary: %w", err)
	}
	if appCfg.FFmpeg.BinaryPath == "" {
		appCfg.FFmpeg.BinaryPath = binInfo.FFmpegPath
	}
	logger.Info("ffmpeg detected", "path", binInfo.FFmpegPath, "version", binInfo.Version)
	for _, cam := range appCfg.Cameras {
		decoder := decoderForCodec(cam.EffectiveCodec())
		if decoder != "" && len(binInfo.Decoders) > 0 && !binInfo.HasDecoder(decoder) {
			logger.Warn("configured ffmpeg build may lack decoder support", "camera", cam.ID, "decoder", decoder)
		}
	}

	registryPath := filepath.Join(appCfg.Storage.DataDir, "registry.db")
	if err := os.MkdirAll(appCfg.Storage.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	sup, err := daemon.New(logger, appCfg, registryPath)
	if err != nil {
		return fmt.Errorf("initializing supervisor: %w", err)
	}
	defer sup.Close()

	server := httpapi.New(logger, httpapi.Config{
		Host:            appCfg.Server.Host,
		Port:            appCfg.Server.Port,
		ReadTimeout:     appCfg.Server.ReadTimeout,
		WriteTimeout:    appCfg.Server.WriteTimeout,
		ShutdownTimeout: appCfg.Server.ShutdownTimeout,
	}, version.Short(), sup)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- sup.Run(ctx)
	}()

	logger.Info("camon starting",
		"version", version.Short(),
		"cameras", len(appCfg.Cameras),
		"host", appCfg.Server.Host,
		"port", appCfg.Server.Port,
	)

	if err := server.ListenAndServe(ctx); err != nil {
		logger.Error("http server error", slog.String("error", err.Error()))
	}

	cancel()
	return <-errCh
}

// decoderForCodec maps a configured camera codec to the ffmpeg decoder name
// used to report capability warnings at startup.
func decoderForCodec(codec string) string {
	switch codec {
	case "h264":
		return "h264"
	case "h265":
		return "hevc"
	default:
		return ""
	}
}
