// Package chrome owns the shared headless browser and its render sessions.
//
// A Manager lazily launches exactly one Engine and hands it to every request;
// each request opens its own Session (a browser tab), renders one document and
// closes it again.
package chrome

import "context"

// Margins in inches.
type Margins struct {
	Top, Right, Bottom, Left float64
}

// PrintOptions configures a single print-to-PDF call.
type PrintOptions struct {
	PaperWidth  float64
	PaperHeight float64
	Margins     Margins
}

// Engine is a running browser that can open independent render sessions.
type Engine interface {
	NewSession(ctx context.Context) (Session, error)
	Close() error
}

// Session renders exactly one HTML document. Close must be called on every path.
type Session interface {
	Render(html string, opts PrintOptions) ([]byte, error)
	Close() error
}

// sessionCounter is implemented by engines that track open sessions.
type sessionCounter interface {
	OpenSessions() int
}
