// Package lifecycle starts and stops the library's long-running components
// in dependency order. Components start in the order they were added and
// stop in reverse, so a consumer never outlives what it consumes.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maktaba-dev/maktaba/internal/errors"
)

// DefaultStopTimeout bounds each component's shutdown.
const DefaultStopTimeout = 10 * time.Second

// Component adapts one long-running piece to the manager. Stop receives a
// deadline context; implementations that cannot honor it are cut loose when
// the deadline passes.
type Component struct {
	Name  string
	Start func(ctx context.Context) error
	Stop  func(ctx context.Context) error
}

// Manager runs an ordered component set. Not safe for concurrent Add and
// Start; wire everything up first.
type Manager struct {
	components  []Component
	stopTimeout time.Duration

	mu      sync.Mutex
	started []Component
}

// NewManager builds an empty manager. A non-positive timeout takes the
// default.
func NewManager(stopTimeout time.Duration) *Manager {
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}
	return &Manager{stopTimeout: stopTimeout}
}

// Add appends a component to the start order. Nil Start or Stop funcs are
// treated as no-ops so partial components can register.
func (m *Manager) Add(c Component) {
	m.components = append(m.components, c)
}

// Start brings every component up in order. The first failure stops the
// components already running, newest first, and is returned with the
// failing component's name attached.
func (m *Manager) Start(ctx context.Context) error {
	for _, c := range m.components {
		if err := ctx.Err(); err != nil {
			m.Stop()
			return errors.Wrap(errors.KindCancelled, err)
		}
		if c.Start != nil {
			if err := c.Start(ctx); err != nil {
				m.Stop()
				return fmt.Errorf("start %s: %w", c.Name, err)
			}
		}
		m.mu.Lock()
		m.started = append(m.started, c)
		m.mu.Unlock()
		slog.Debug("component started", slog.String("component", c.Name))
	}
	return nil
}

// Stop shuts down the started components in reverse order. Each gets its
// own deadline; a component that overruns it is abandoned and reported, and
// shutdown moves on to the next. Calling Stop again is a no-op.
func (m *Manager) Stop() error {
	m.mu.Lock()
	started := m.started
	m.started = nil
	m.mu.Unlock()

	var firstErr error
	for i := len(started) - 1; i >= 0; i-- {
		c := started[i]
		if err := m.stopOne(c); err != nil {
			slog.Warn("component stop failed",
				slog.String("component", c.Name),
				slog.String("error", err.Error()))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		slog.Debug("component stopped", slog.String("component", c.Name))
	}
	return firstErr
}

// stopOne enforces the per-component deadline even for stops that ignore
// their context. The goroutine behind an abandoned stop leaks, which is
// acceptable this close to process exit.
func (m *Manager) stopOne(c Component) error {
	if c.Stop == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.stopTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Stop(ctx) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return errors.DeadlineExceeded("component did not stop in time", ctx.Err()).
			WithDetail("component", c.Name)
	}
}
