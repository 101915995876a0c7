package chrome

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"md2pdf/internal/config"
)

// Browser is an Engine backed by one headless Chromium process.
type Browser struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	profileDir  string

	renderTimeout time.Duration
	networkIdle   time.Duration

	open      atomic.Int64
	closeOnce sync.Once
	closeErr  error
}

var _ Engine = (*Browser)(nil)

func allocatorOptions(cfg config.PDFConfig, profileDir string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(profileDir),
		// Software rendering keeps minimal containers away from Vulkan/ANGLE.
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-gpu-compositing", true),
		chromedp.Flag("disable-features", "Vulkan,UseSkiaRenderer"),
		chromedp.Flag("use-gl", "swiftshader"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WSURLReadTimeout(cfg.LaunchTimeout()),
	)
	if cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ChromePath))
	}
	if cfg.ChromeNoSandbox {
		opts = append(opts,
			chromedp.NoSandbox,
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}
	return opts
}

// Launch starts a headless browser configured by cfg.
func Launch(ctx context.Context, cfg config.PDFConfig) (*Browser, error) {
	profileDir, err := createProfileDir(cfg)
	if err != nil {
		return nil, err
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg, profileDir)...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)

	abort := func() {
		cancel()
		allocCancel()
		_ = os.RemoveAll(profileDir)
	}

	// The first Run on a fresh context starts the browser process.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(browserCtx) }()

	select {
	case err := <-started:
		if err != nil {
			abort()
			return nil, fmt.Errorf("start browser: %w", err)
		}
	case <-ctx.Done():
		abort()
		return nil, ctx.Err()
	}

	return &Browser{
		ctx:           browserCtx,
		cancel:        cancel,
		allocCancel:   allocCancel,
		profileDir:    profileDir,
		renderTimeout: cfg.Timeout(),
		networkIdle:   cfg.NetworkIdle(),
	}, nil
}

// NewSession opens a new tab. Tabs share the browser but nothing else.
func (b *Browser) NewSession(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := b.ctx.Err(); err != nil {
		return nil, fmt.Errorf("browser is gone: %w", err)
	}

	tabCtx, cancel := chromedp.NewContext(b.ctx)
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	b.open.Add(1)
	return &tab{ctx: tabCtx, cancel: cancel, browser: b}, nil
}

// Alive reports whether the browser process context is still usable.
func (b *Browser) Alive() bool {
	return b.ctx.Err() == nil
}

// OpenSessions returns the number of tabs not yet closed.
func (b *Browser) OpenSessions() int {
	return int(b.open.Load())
}

// Close shuts the browser down and removes its profile. Later calls return
// the first result.
func (b *Browser) Close() error {
	b.closeOnce.Do(func() {
		b.closeErr = chromedp.Cancel(b.ctx)
		b.cancel()
		b.allocCancel()
		if err := os.RemoveAll(b.profileDir); err != nil && b.closeErr == nil {
			b.closeErr = err
		}
	})
	return b.closeErr
}

// tab is a Session bound to one browser target.
type tab struct {
	ctx     context.Context
	cancel  context.CancelFunc
	browser *Browser

	closeOnce sync.Once
	closeErr  error
}

// Render loads html into the tab, waits until the page has settled and prints it.
func (t *tab) Render(html string, opts PrintOptions) ([]byte, error) {
	ctx, cancel := context.WithTimeout(t.ctx, t.browser.renderTimeout)
	defer cancel()

	tracker := newNetworkTracker()
	chromedp.ListenTarget(t.ctx, tracker.observe)

	var pdfBuf []byte
	err := chromedp.Run(ctx,
		network.Enable(),
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frame, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frame.Frame.ID, html).Do(ctx)
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return waitForRenderReady(ctx, documentComplete, tracker, t.browser.networkIdle)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdfBuf, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(opts.PaperWidth).
				WithPaperHeight(opts.PaperHeight).
				WithMarginTop(opts.Margins.Top).
				WithMarginRight(opts.Margins.Right).
				WithMarginBottom(opts.Margins.Bottom).
				WithMarginLeft(opts.Margins.Left).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, err
	}
	return pdfBuf, nil
}

// Close closes the target and waits for Chromium to confirm it.
func (t *tab) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = chromedp.Cancel(t.ctx)
		t.cancel()
		t.browser.open.Add(-1)
	})
	return t.closeErr
}

// documentComplete reports whether the DOM is parsed and the load event fired.
func documentComplete(ctx context.Context) (bool, error) {
	var state string
	if err := chromedp.Evaluate(`document.readyState`, &state).Do(ctx); err != nil {
		return false, err
	}
	return state == "complete", nil
}
