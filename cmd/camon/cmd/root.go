// Package cmd implements the CLI commands for camon.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nsg/camon/internal/version"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "camon",
	Short:   "Multi-camera motion-triggered video recorder",
	Version: version.Short(),
	Long: `camon ingests RTSP camera streams, segments them by keyframe, runs a
two-stage motion/object analytics pipeline over the segments, and writes
motion-triggered events to warm storage. A read-only HTTP API exposes live
playback, motion and detection history, and recorded event playback.`,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml, /etc/camon/config.yaml)")
}
