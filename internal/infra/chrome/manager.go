package chrome

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"md2pdf/internal/config"
	"md2pdf/internal/domain"
	"md2pdf/internal/infra/logging"
)

// Launcher starts a new Engine.
type Launcher func(ctx context.Context) (Engine, error)

// ChromeLauncher launches Chromium through chromedp.
func ChromeLauncher(cfg config.PDFConfig) Launcher {
	return func(ctx context.Context) (Engine, error) {
		return Launch(ctx, cfg)
	}
}

// Stats describes the manager for the stats endpoint.
type Stats struct {
	Running      bool      `json:"running"`
	Launching    bool      `json:"launching"`
	Launches     int       `json:"launches"`
	OpenSessions int       `json:"open_sessions"`
	LastLaunch   time.Time `json:"last_launch,omitempty"`
	Closed       bool      `json:"closed"`
}

// launchCall is one in-flight launch. done is closed once err is final.
type launchCall struct {
	done chan struct{}
	err  error
}

// Manager owns the single shared Engine. Concurrent first callers share one
// in-flight launch; the mutex is never held while a launch runs.
type Manager struct {
	launch Launcher

	mu         sync.Mutex
	engine     Engine
	pending    *launchCall
	closed     bool
	launches   int
	lastLaunch time.Time
}

// NewManager returns a Manager that starts engines with launch.
func NewManager(launch Launcher) *Manager {
	return &Manager{launch: launch}
}

// Ensure returns the running engine, launching it on first use. A failed
// launch is not cached; the next call tries again.
func (m *Manager) Ensure(ctx context.Context) (Engine, error) {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, fmt.Errorf("%w: %v", domain.ErrEngineUnavailable, ErrManagerClosed)
		}
		if m.engine != nil {
			engine := m.engine
			m.mu.Unlock()
			return engine, nil
		}
		if call := m.pending; call != nil {
			m.mu.Unlock()
			select {
			case <-call.done:
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", domain.ErrEngineUnavailable, ctx.Err())
			}
			// A launch abandoned by its own caller says nothing about ours.
			if call.err != nil && !errors.Is(call.err, context.Canceled) {
				return nil, fmt.Errorf("%w: %v", domain.ErrEngineUnavailable, call.err)
			}
			continue
		}
		call := &launchCall{done: make(chan struct{})}
		m.pending = call
		m.mu.Unlock()

		return m.runLaunch(ctx, call)
	}
}

func (m *Manager) runLaunch(ctx context.Context, call *launchCall) (Engine, error) {
	start := time.Now()
	engine, err := m.launch(ctx)

	m.mu.Lock()
	m.pending = nil
	closed := m.closed
	if err == nil && !closed {
		m.engine = engine
		m.launches++
		m.lastLaunch = time.Now()
	}
	launches := m.launches
	if err == nil && closed {
		err = ErrManagerClosed
	}
	call.err = err
	close(call.done)
	m.mu.Unlock()

	if err != nil {
		if closed && engine != nil {
			if cerr := engine.Close(); cerr != nil {
				logging.Warn("Closing engine launched during shutdown failed", "error", cerr)
			}
		} else {
			logging.Error("Render engine launch failed", "error", err)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrEngineUnavailable, err)
	}
	logging.Info("Render engine started", "launch_ms", time.Since(start).Milliseconds(), "launches", launches)
	return engine, nil
}

// Discard closes engine and forgets it if it is still the current one, so
// the next Ensure launches a replacement.
func (m *Manager) Discard(engine Engine) {
	m.mu.Lock()
	if m.engine == nil || m.engine != engine {
		m.mu.Unlock()
		return
	}
	m.engine = nil
	m.mu.Unlock()

	logging.Warn("Discarding unusable render engine")
	if err := engine.Close(); err != nil {
		logging.Warn("Closing discarded render engine failed", "error", err)
	}
}

// Shutdown closes the engine if one is running. It is safe to call more
// than once and never returns an error.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	engine := m.engine
	m.engine = nil
	m.closed = true
	m.mu.Unlock()

	if engine == nil {
		return
	}
	if err := engine.Close(); err != nil {
		logging.Error("Render engine shutdown failed", "error", err)
		return
	}
	logging.Info("Render engine stopped")
}

// Ready reports whether an engine is running.
func (m *Manager) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engine != nil
}

// Stats returns a snapshot of the manager state.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{
		Running:    m.engine != nil,
		Launching:  m.pending != nil,
		Launches:   m.launches,
		LastLaunch: m.lastLaunch,
		Closed:     m.closed,
	}
	if c, ok := m.engine.(sessionCounter); ok {
		s.OpenSessions = c.OpenSessions()
	}
	return s
}
