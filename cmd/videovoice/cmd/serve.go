package cmd

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/videovoice/videovoice/internal/config"
	"github.com/videovoice/videovoice/internal/startup"
	"github.com/videovoice/videovoice/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the videovoice server",
	Long: `Start the videovoice HTTP server.

The server provides:
- REST API for submitting, tracking and cancelling dubbing jobs
- Artifact and caption downloads
- A system status endpoint with host metrics and provider availability`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("host", "", "interface to bind to")
	serveCmd.Flags().Int("port", 0, "port to listen on")
	serveCmd.Flags().String("static-dir", "", "root directory for uploads and outputs")

	rootCmd.AddCommand(serveCmd)
}

// serveFlagBinds maps config keys to the serve flags that override them.
func serveFlagBinds(flags *pflag.FlagSet) map[string]*pflag.Flag {
	return map[string]*pflag.Flag{
		"server.host":        flags.Lookup("host"),
		"server.port":        flags.Lookup("port"),
		"storage.static_dir": flags.Lookup("static-dir"),
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadWithFlags(cfgFile, serveFlagBinds(cmd.Flags()))
	if err != nil {
		return err
	}
	logger := slog.Default()

	app, err := startup.NewApp(cfg, version.Version, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("videovoice starting",
		slog.String("version", version.Short()),
		slog.String("static_dir", cfg.Storage.StaticDir))
	return app.Run(ctx)
}
