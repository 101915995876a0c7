// Package pdf prints composed HTML documents through the shared render engine.
package pdf

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"md2pdf/internal/config"
	"md2pdf/internal/domain"
	"md2pdf/internal/infra/chrome"
	"md2pdf/internal/infra/logging"
)

const mmPerInch = 25.4

// Options selects the page layout of one render.
type Options struct {
	Format   string
	MarginMM float64
}

// EngineSource hands out the shared engine and takes back broken ones.
type EngineSource interface {
	Ensure(ctx context.Context) (chrome.Engine, error)
	Discard(engine chrome.Engine)
}

// Renderer turns HTML into PDF bytes, one session per call.
type Renderer struct {
	engines      EngineSource
	paperSizes   map[string]config.PaperSize
	defaultPaper string
}

// NewRenderer returns a Renderer using the paper sizes of cfg.
func NewRenderer(cfg config.PDFConfig, engines EngineSource) *Renderer {
	sizes := cfg.PaperSizes
	if len(sizes) == 0 {
		sizes = config.DefaultPaperSizes()
	}
	def := strings.ToUpper(strings.TrimSpace(cfg.DefaultPaper))
	if def == "" {
		def = domain.DefaultFormat
	}
	return &Renderer{engines: engines, paperSizes: sizes, defaultPaper: def}
}

// PaperSize resolves a format name case-insensitively. An empty name selects
// the default paper.
func (r *Renderer) PaperSize(format string) (config.PaperSize, error) {
	name := strings.ToUpper(strings.TrimSpace(format))
	if name == "" {
		name = r.defaultPaper
	}
	size, ok := r.paperSizes[name]
	if !ok {
		return config.PaperSize{}, fmt.Errorf("%w: unknown page format %q", domain.ErrRenderFailure, format)
	}
	return size, nil
}

// RenderToPDF loads html into a fresh session of the shared engine and prints
// it. The session is closed on every path; a failing close is only logged.
func (r *Renderer) RenderToPDF(ctx context.Context, html string, opts Options) ([]byte, error) {
	paper, err := r.PaperSize(opts.Format)
	if err != nil {
		return nil, err
	}

	engine, err := r.engines.Ensure(ctx)
	if err != nil {
		return nil, err
	}

	session, err := engine.NewSession(ctx)
	if err != nil {
		if ctx.Err() == nil && engineBroken(engine, err) {
			r.engines.Discard(engine)
			return nil, fmt.Errorf("%w: open session: %v", domain.ErrEngineUnavailable, err)
		}
		return nil, fmt.Errorf("%w: open session: %v", domain.ErrRenderFailure, err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			logging.Warn("Closing render session failed", "error", cerr)
		}
	}()

	margin := opts.MarginMM / mmPerInch
	data, err := session.Render(html, chrome.PrintOptions{
		PaperWidth:  paper.Width,
		PaperHeight: paper.Height,
		Margins:     chrome.Margins{Top: margin, Right: margin, Bottom: margin, Left: margin},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logging.Error("PDF render timed out", "error", err)
		} else if chrome.IsSessionInterrupted(err) {
			logging.Error("Render session interrupted", "error", err)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrRenderFailure, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty pdf", domain.ErrRenderFailure)
	}
	return data, nil
}

// engineBroken reports whether a failed session open means the engine itself
// is gone. A caller whose own context ended never condemns the engine.
func engineBroken(engine chrome.Engine, err error) bool {
	if a, ok := engine.(interface{ Alive() bool }); ok && !a.Alive() {
		return true
	}
	return chrome.IsSessionInterrupted(err)
}
