// Package cmd implements the CLI commands for robotvd.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pipelka/robotv-go/internal/version"
)

var (
	cfgFile      string
	logLevelFlag string
	logFormatFlag string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "robotvd",
	Short:   "Live-streaming TCP server for DVR/PVR hosts",
	Version: version.Short(),
	Long: `robotvd is a live-streaming server that demuxes MPEG transport streams
from a host's tuner devices and relays them to remote clients over a
length-prefixed binary protocol.

It owns no persisted state of its own: channels, timers, and recordings
are served by a host implementation of the internal hostapi.Host
interface, with internal/hostdb providing a GORM-backed reference
implementation for development and testing.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ./config.yaml, /etc/robotv, $HOME/.robotv)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "override logging.level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "", "override logging.format (json, text)")
}
