package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"

	"epdtimeline/internal/config"
)

// Defaults match the 12.48" tri-color panel in landscape.
const (
	DefaultWidth   = 1304
	DefaultHeight  = 984
	DefaultTimeout = 30 * time.Second

	// readySelector is set on the /timeline root once the page is complete.
	readySelector = `[data-ready="true"]`
)

// Options defines one screenshot of the timeline page.
type Options struct {
	// URL to capture, e.g. "http://127.0.0.1:8080/timeline".
	URL string

	// OutputPath is where the PNG is written. Empty means the PNG is only
	// returned.
	OutputPath string

	// Width and Height are the viewport in pixels. Zero means the defaults.
	Width  int
	Height int

	// Timeout bounds the whole capture. Zero means DefaultTimeout.
	Timeout time.Duration
}

// OptionsFor builds capture options for the timeline page of a local server
// listening on cfg.Listen.
func OptionsFor(cfg *config.Config, date time.Time) Options {
	return Options{
		URL:        fmt.Sprintf("http://%s/timeline?date=%s", cfg.Listen, date.Format(time.DateOnly)),
		OutputPath: cfg.PreviewPath,
		Width:      cfg.Capture.Width,
		Height:     cfg.Capture.Height,
		Timeout:    cfg.Capture.Timeout(),
	}
}

func (o *Options) normalize() error {
	if o.URL == "" {
		return errors.New("capture: URL is required")
	}
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return nil
}

// CapturePNG loads opts.URL in headless Chromium, waits for the page to mark
// itself ready and returns a viewport-sized PNG. The PNG is also written to
// opts.OutputPath when set.
func CapturePNG(parentCtx context.Context, opts Options) ([]byte, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()
	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var png []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible(readySelector, chromedp.ByQuery),
		// Let fonts settle before the shot.
		chromedp.Sleep(300 * time.Millisecond),
		chromedp.CaptureScreenshot(&png),
	}
	if err := chromedp.Run(ctx, tasks); err != nil {
		return nil, fmt.Errorf("capture: chromedp run failed: %w", err)
	}

	if opts.OutputPath != "" {
		if err := writeFileAtomic(opts.OutputPath, png); err != nil {
			return nil, fmt.Errorf("capture: write PNG: %w", err)
		}
	}
	return png, nil
}

// writeFileAtomic replaces path so /preview.png never serves a partial file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".preview-*.png")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
