package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/porticodev/portico/internal/app"
	"github.com/porticodev/portico/internal/config"
	"github.com/porticodev/portico/internal/logger"
	"github.com/porticodev/portico/internal/version"
)

var serveFlags struct {
	port     int
	logLevel string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway",
	Long: `Start the gateway on the configured loopback port.

Startup probes every configured provider once before accepting traffic, so
the first served request already has health data. A second launch on the
same machine detects the running instance and exits instead.

Examples:
  # Start with default config
  portico serve

  # Start with a custom config
  portico serve --config /etc/portico/config.yaml

  # Override the listening port
  portico serve --port 2334`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVarP(&serveFlags.port, "port", "p", 0, "override listening port")
	serveCmd.Flags().StringVar(&serveFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}

func runServe(cmd *cobra.Command, args []string) error {
	vlog := log.New(log.Writer(), "", 0)
	version.PrintVersionInfo(false, vlog)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if serveFlags.port > 0 {
		cfg.Server.Port = serveFlags.port
	}
	if serveFlags.logLevel != "" {
		cfg.Logging.Level = serveFlags.logLevel
	}
	if verbose {
		cfg.Gateway.Verbose = true
	}

	logInstance, styledLogger, cleanup, err := logger.New(loggerConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to initialise logger: %w", err)
	}
	defer cleanup()
	slog.SetDefault(logInstance)

	styledLogger.Info("Initialising", "version", version.Version, "pid", os.Getpid())

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		styledLogger.Info("Shutdown signal received", "signal", sig.String())
		cancel()
	}()

	application, err := app.New(cfg, styledLogger)
	if err != nil {
		logger.FatalWithLogger(styledLogger, "Failed to create application", "error", err)
	}

	if err := application.Start(ctx); err != nil {
		logger.FatalWithLogger(styledLogger, "Failed to start application", "error", err)
	}

	<-ctx.Done()

	if err := application.Stop(context.Background()); err != nil {
		styledLogger.Error("Error during shutdown", "error", err)
	}

	styledLogger.Info("Portico has shutdown")
	return nil
}

func loggerConfig(cfg *config.Config) *logger.Config {
	return &logger.Config{
		Level:      cfg.Logging.Level,
		LogDir:     cfg.Logging.Dir,
		Theme:      cfg.Logging.Theme,
		FileOutput: cfg.Logging.FileOutput,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
	}
}
