package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"epdtimeline/internal/capture"
	"epdtimeline/internal/convert"
	appLog "epdtimeline/internal/log"
	"epdtimeline/internal/timeline"
	"epdtimeline/internal/web"
)

func newOnceCommand(root *rootOptions) *cobra.Command {
	var dumpDir string
	cmd := &cobra.Command{
		Use:   "once",
		Short: "Refresh, capture the timeline once and exit.",
		Example: `
epdtimeline once
epdtimeline once --dump ./cache
`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, root)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			svc := timeline.New(cfg)
			if err := svc.Refresh(ctx); err != nil {
				return err
			}

			// Serve the page on a private port for the duration of the capture.
			ln, err := net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				return err
			}
			srvCtx, stop := context.WithCancel(ctx)
			srvDone := make(chan error, 1)
			go func() { srvDone <- web.Serve(srvCtx, ln, cfg, svc) }()
			defer func() {
				stop()
				<-srvDone
			}()

			local := *cfg
			local.Listen = ln.Addr().String()
			png, err := capture.CapturePNG(ctx, capture.OptionsFor(&local, time.Now()))
			if err != nil {
				return err
			}
			appLog.Info("preview written", "path", cfg.PreviewPath, "bytes", len(png))

			if dumpDir == "" {
				return nil
			}
			planes, err := convert.PackPNG(png)
			if err != nil {
				return err
			}
			if err := convert.WriteDump(dumpDir, planes); err != nil {
				return fmt.Errorf("dump: %w", err)
			}
			black, red := planes.Ink()
			appLog.Info("planes dumped", "dir", dumpDir, "black_px", black, "red_px", red)
			return nil
		},
	}
	cmd.Flags().StringVar(&dumpDir, "dump", "", "Also write black.bin and red.bin into this directory")
	return cmd
}
