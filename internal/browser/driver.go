package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"browsermcp/internal/infra/config"
)

// Driver abstracts the synchronous command interface of the automation
// session. Implementations accept one in-flight command at a time; callers
// must hold the session lock (see Manager.Acquire) for the duration of a
// navigate→read sequence.
type Driver interface {
	// Navigate loads a URL in the session's tab.
	Navigate(ctx context.Context, url string) error
	// CurrentURL returns the tab's URL after any redirects.
	CurrentURL(ctx context.Context) (string, error)
	// Title returns the current page title.
	Title(ctx context.Context) (string, error)
	// PageSource returns the full page markup.
	PageSource(ctx context.Context) (string, error)
	// Evaluate executes a JavaScript expression and unmarshals the result into out.
	Evaluate(ctx context.Context, expression string, out any) error
	// CountElements returns the number of elements matching a CSS selector.
	CountElements(ctx context.Context, selector string) (int, error)
	// Click clicks the first element matching the CSS selector.
	Click(ctx context.Context, selector string) error
	// Fill types text into the first element matching the CSS selector.
	Fill(ctx context.Context, selector, text string) error
	// WaitVisible waits for an element matching the selector to become visible.
	WaitVisible(ctx context.Context, selector string) error
	// PrintPDF renders the current page to PDF.
	PrintPDF(ctx context.Context) ([]byte, error)
}

// cdpDriver implements Driver on a chromedp tab context.
type cdpDriver struct {
	tabCtx  context.Context
	timeout time.Duration
}

// withTimeout creates a timeout-derived context from the tab context.
func (d *cdpDriver) withTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(d.tabCtx, d.timeout)
}

func (d *cdpDriver) Navigate(ctx context.Context, url string) error {
	tctx, cancel := d.withTimeout()
	defer cancel()
	return chromedp.Run(tctx, chromedp.Navigate(url))
}

func (d *cdpDriver) CurrentURL(ctx context.Context) (string, error) {
	tctx, cancel := d.withTimeout()
	defer cancel()
	var url string
	err := chromedp.Run(tctx, chromedp.Location(&url))
	return url, err
}

func (d *cdpDriver) Title(ctx context.Context) (string, error) {
	tctx, cancel := d.withTimeout()
	defer cancel()
	var title string
	err := chromedp.Run(tctx, chromedp.Title(&title))
	return title, err
}

func (d *cdpDriver) PageSource(ctx context.Context) (string, error) {
	tctx, cancel := d.withTimeout()
	defer cancel()
	var html string
	err := chromedp.Run(tctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (d *cdpDriver) Evaluate(ctx context.Context, expression string, out any) error {
	tctx, cancel := d.withTimeout()
	defer cancel()
	return chromedp.Run(tctx, chromedp.Evaluate(expression, out))
}

func (d *cdpDriver) CountElements(ctx context.Context, selector string) (int, error) {
	tctx, cancel := d.withTimeout()
	defer cancel()
	var nodes []*cdp.Node
	if err := chromedp.Run(tctx,
		chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)),
	); err != nil {
		return 0, err
	}
	return len(nodes), nil
}

func (d *cdpDriver) Click(ctx context.Context, selector string) error {
	tctx, cancel := d.withTimeout()
	defer cancel()
	return chromedp.Run(tctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
}

func (d *cdpDriver) Fill(ctx context.Context, selector, text string) error {
	tctx, cancel := d.withTimeout()
	defer cancel()
	return chromedp.Run(tctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	)
}

func (d *cdpDriver) WaitVisible(ctx context.Context, selector string) error {
	tctx, cancel := d.withTimeout()
	defer cancel()
	return chromedp.Run(tctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (d *cdpDriver) PrintPDF(ctx context.Context) ([]byte, error) {
	tctx, cancel := d.withTimeout()
	defer cancel()
	var buf []byte
	err := chromedp.Run(tctx, chromedp.ActionFunc(func(actx context.Context) error {
		data, _, err := page.PrintToPDF().WithPrintBackground(true).Do(actx)
		if err != nil {
			return err
		}
		buf = data
		return nil
	}))
	return buf, err
}

// newChromeDriver launches (or attaches to) a Chrome instance and returns a
// driver bound to its initial tab, plus a shutdown function that releases
// all browser resources.
func newChromeDriver(ctx context.Context, cfg config.BrowserConfig, logger *slog.Logger) (Driver, func(), error) {
	var allocCtx context.Context
	var allocCancel context.CancelFunc

	if cfg.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), cfg.RemoteURL)
		logger.Info("connecting to remote browser", "url", cfg.RemoteURL)
	} else {
		// Copy default options to avoid mutating the package-level slice.
		opts := make([]chromedp.ExecAllocatorOption, len(chromedp.DefaultExecAllocatorOptions))
		copy(opts, chromedp.DefaultExecAllocatorOptions[:])
		opts = append(opts,
			chromedp.Flag("headless", cfg.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.WindowSize(1280, 720),
		)
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
		logger.Info("launching local browser", "headless", cfg.Headless)
	}

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	tabCtx, tabCancel := chromedp.NewContext(browserCtx)

	shutdown := func() {
		tabCancel()
		browserCancel()
		allocCancel()
	}

	// Start the browser by running an empty action. The CDP session binds to
	// the context passed to the first Run, so tabCtx must not be wrapped in
	// a timeout context here; the launch deadline is enforced externally.
	startDone := make(chan error, 1)
	go func() { startDone <- chromedp.Run(tabCtx) }()
	select {
	case err := <-startDone:
		if err != nil {
			shutdown()
			return nil, nil, fmt.Errorf("start browser: %w", err)
		}
	case <-time.After(cfg.StartTimeout):
		shutdown()
		return nil, nil, fmt.Errorf("start browser: timed out after %v", cfg.StartTimeout)
	case <-ctx.Done():
		shutdown()
		return nil, nil, fmt.Errorf("start browser: %w", ctx.Err())
	}

	logger.Info("browser started")
	return &cdpDriver{tabCtx: tabCtx, timeout: cfg.CommandTimeout}, shutdown, nil
}
