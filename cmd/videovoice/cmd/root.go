// Package cmd implements the CLI commands for videovoice.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/videovoice/videovoice/internal/config"
	"github.com/videovoice/videovoice/internal/observability"
	"github.com/videovoice/videovoice/internal/version"
)

// cfgFile holds the config file path from the CLI flag.
var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "videovoice",
	Short:   "Media dubbing and subtitling service",
	Version: version.Short(),
	Long: `videovoice turns an uploaded audio or video file into a dubbed media
file with a translated voice track, or a subtitled video with translated
captions.

It orchestrates speech recognition, translation, quality evaluation and
speech synthesis across several providers, with transparent fallback when
a provider is unavailable or over quota.`,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	// PersistentPreRunE is set here to avoid an initialization cycle with
	// the flag definitions below.
	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		return initLogging()
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default videovoice.yaml in . or /etc/videovoice)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json)")
}

// loadConfig reads the configuration honoring the --config flag.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// initLogging builds the default logger. CLI flags win over config and
// environment, but only when explicitly set.
func initLogging() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logCfg := cfg.Logging
	if rootCmd.PersistentFlags().Changed("log-level") {
		logCfg.Level, _ = rootCmd.PersistentFlags().GetString("log-level")
	}
	if rootCmd.PersistentFlags().Changed("log-format") {
		logCfg.Format, _ = rootCmd.PersistentFlags().GetString("log-format")
	}
	if strings.EqualFold(logCfg.Level, "warning") {
		logCfg.Level = "warn"
	}

	logger := observability.NewLoggerWithWriter(logCfg, os.Stderr)
	observability.SetDefault(logger)
	return nil
}
