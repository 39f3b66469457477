package main

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"epdtimeline/internal/capture"
	appLog "epdtimeline/internal/log"
	"epdtimeline/internal/schedule"
	"epdtimeline/internal/timeline"
	"epdtimeline/internal/web"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	var noCapture bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and the scheduled refresh/capture loop.",
		Example: `
epdtimeline serve --config ./config.yaml
EPDTIMELINE_LISTEN=0.0.0.0:8080 epdtimeline serve --no-capture
`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, root)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			svc := timeline.New(cfg)
			runner, err := schedule.New(cfg.RefreshCron)
			if err != nil {
				return err
			}
			runner.Add("refresh", svc.Refresh)
			if !noCapture {
				runner.Add("capture", func(ctx context.Context) error {
					_, err := capture.CapturePNG(ctx, capture.OptionsFor(cfg, time.Now()))
					return err
				})
			}

			// Bind first so the initial capture finds the page.
			ln, err := net.Listen("tcp", cfg.Listen)
			if err != nil {
				return err
			}

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				runner.Start(ctx)
			}()

			err = web.Serve(ctx, ln, cfg, svc)
			cancel()
			wg.Wait()
			appLog.Info("epdtimeline exiting")
			return err
		},
	}
	cmd.Flags().BoolVar(&noCapture, "no-capture", false, "Refresh only; do not launch Chromium")
	return cmd
}
