package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"epdtimeline/internal/config"
	appLog "epdtimeline/internal/log"
)

// Set with -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootOptions holds the flags shared by every subcommand.
type rootOptions struct {
	configPath string
	listen     string
	debug      bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "epdtimeline",
		Short:        "Day timeline for a tri-color e-paper panel, fed by ICS calendars.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "/etc/epdtimeline/config.yaml", "Path to config file (created with defaults if missing)")
	pf.StringVar(&opts.listen, "listen", "", "HTTP listen address (overrides config)")
	pf.BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(
		newServeCommand(opts),
		newOnceCommand(opts),
		newLayoutCommand(opts),
		newVersionCommand(),
	)
	return cmd
}

// loadConfig reads the config file, applies EPDTIMELINE_* environment and
// --listen overrides, then validates the result.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", opts.configPath, err)
	}

	v := config.NewOverrides()
	if f := cmd.Flag("listen"); f != nil {
		if err := v.BindPFlag("listen", f); err != nil {
			return nil, err
		}
	}
	cfg.ApplyOverrides(v)
	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level, ok := appLog.ParseLevel(cfg.LogLevel)
	if !ok {
		appLog.Warn("unknown log level, using info", "log_level", cfg.LogLevel)
	}
	if opts.debug {
		level = appLog.LevelDebug
	}
	appLog.SetLevel(level)

	appLog.Info("effective config",
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"refresh", cfg.RefreshCron,
		"horizon_days", cfg.HorizonDays,
		"ics_count", len(cfg.ICS),
	)
	return cfg, nil
}

// signalContext is canceled on SIGINT/SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}
