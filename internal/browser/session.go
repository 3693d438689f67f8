package browser

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"browsermcp/internal/domain"
	"browsermcp/internal/infra/config"
)

// State is the session lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateStarting
	StateReady
	StateStopping
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// driverFactory builds a Driver and its shutdown function. Swapped out in
// tests to avoid a real browser.
type driverFactory func(ctx context.Context, cfg config.BrowserConfig, logger *slog.Logger) (Driver, func(), error)

// consecutiveFaultLimit is how many consecutive fatal driver faults mark the
// session failed.
const consecutiveFaultLimit = 5

// Manager owns the single shared browser session. All tool operations run
// against the one session; Acquire hands out exclusive leases so concurrent
// callers queue instead of interleaving commands on the shared tab.
type Manager struct {
	cfg       config.BrowserConfig
	logger    *slog.Logger
	newDriver driverFactory

	// opMu serializes session-using operations. Held for the whole
	// navigate→read sequence of one tool call.
	opMu sync.Mutex

	// mu guards the fields below.
	mu        sync.Mutex
	state     State
	driver    Driver
	shutdown  func()
	createdAt time.Time
	breaker   *gobreaker.CircuitBreaker[struct{}]
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithDriverFactory replaces the browser launcher. Test hook.
func WithDriverFactory(f func(ctx context.Context, cfg config.BrowserConfig, logger *slog.Logger) (Driver, func(), error)) ManagerOption {
	return func(m *Manager) { m.newDriver = f }
}

// NewManager creates a session manager. The session is not started; call
// Start before Acquire.
func NewManager(cfg config.BrowserConfig, logger *slog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:       cfg,
		logger:    logger,
		newDriver: newChromeDriver,
		state:     StateUninitialized,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the browser and moves the session to Ready. Calling Start
// on an already Ready session is a no-op. A failed launch leaves the session
// in Failed; Start may be called again to retry.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateReady:
		return nil
	case StateStarting, StateStopping:
		return domain.NewDomainError("SessionManager.Start", domain.ErrStartup,
			"session is "+m.state.String())
	}

	m.state = StateStarting
	m.logger.Info("starting browser session")

	drv, shutdown, err := m.newDriver(ctx, m.cfg, m.logger)
	if err != nil {
		m.state = StateFailed
		m.logger.Error("browser session start failed", "error", err)
		return domain.NewDomainError("SessionManager.Start", domain.ErrStartup, err.Error())
	}

	m.driver = drv
	m.shutdown = shutdown
	m.createdAt = time.Now()
	m.breaker = m.newBreaker()
	m.state = StateReady
	m.logger.Info("browser session ready")
	return nil
}

// newBreaker builds the driver fault breaker. Transient command failures do
// not count against the session; only fatal-class faults do, and a run of
// them marks the session failed.
func (m *Manager) newBreaker() *gobreaker.CircuitBreaker[struct{}] {
	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name: "browser-driver",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= consecutiveFaultLimit
		},
		IsSuccessful: func(err error) bool {
			return err == nil || Classify(err) != ClassFatal
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			m.logger.Warn("driver breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
			if to == gobreaker.StateOpen {
				m.markFailed()
			}
		},
	})
}

// markFailed transitions Ready to Failed. Other states are left alone.
func (m *Manager) markFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateReady {
		m.state = StateFailed
		m.logger.Error("browser session marked failed after repeated driver faults")
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CreatedAt returns when the current session became ready.
func (m *Manager) CreatedAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createdAt
}

// Lease is exclusive access to the session driver. Release must be called
// exactly once; it is safe to call multiple times.
type Lease struct {
	drv  Driver
	m    *Manager
	once sync.Once
}

// Driver returns the leased driver.
func (l *Lease) Driver() Driver { return l.drv }

// Release returns the session to the pool of one.
func (l *Lease) Release() {
	l.once.Do(func() { l.m.opMu.Unlock() })
}

// Acquire blocks until the session is free, then returns an exclusive lease.
// Waiters queue; a caller never observes another operation mid-flight.
// Acquire fails without blocking browser work if the session is not Ready.
func (m *Manager) Acquire(ctx context.Context) (*Lease, error) {
	m.opMu.Lock()

	m.mu.Lock()
	state := m.state
	drv := m.driver
	m.mu.Unlock()

	if state != StateReady {
		m.opMu.Unlock()
		sentinel := domain.ErrSessionNotReady
		if state == StateFailed {
			sentinel = domain.ErrSessionFailed
		}
		return nil, domain.NewDomainError("SessionManager.Acquire", sentinel,
			"session is "+state.String())
	}

	return &Lease{drv: &guardedDriver{inner: drv, m: m}, m: m}, nil
}

// Stop tears the session down. It does not wait for the operation lock, so a
// wedged operation cannot block shutdown; cancelling the browser contexts
// makes any in-flight command fail promptly.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateStopped || m.state == StateUninitialized {
		m.state = StateStopped
		m.mu.Unlock()
		return nil
	}
	m.state = StateStopping
	shutdown := m.shutdown
	m.driver = nil
	m.shutdown = nil
	m.mu.Unlock()

	m.logger.Info("stopping browser session")
	if shutdown != nil {
		shutdown()
	}

	m.mu.Lock()
	m.state = StateStopped
	m.mu.Unlock()
	m.logger.Info("browser session stopped")
	return nil
}

// Restart stops and restarts the session. Used to recover a Failed session.
func (m *Manager) Restart(ctx context.Context) error {
	if err := m.Stop(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	m.state = StateUninitialized
	m.mu.Unlock()
	return m.Start(ctx)
}

// exec routes a driver command through the fault breaker. The command's
// error is returned verbatim; an open breaker surfaces as a session failure.
func (m *Manager) exec(fn func() error) error {
	m.mu.Lock()
	cb := m.breaker
	m.mu.Unlock()
	if cb == nil {
		return domain.NewDomainError("SessionManager.exec", domain.ErrSessionNotReady, "no active session")
	}

	_, err := cb.Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return domain.NewDomainError("SessionManager.exec", domain.ErrSessionFailed,
			"driver fault breaker open")
	}
	return err
}

// guardedDriver forwards commands to the session driver through the fault
// breaker so repeated fatal faults fail the session.
type guardedDriver struct {
	inner Driver
	m     *Manager
}

func (g *guardedDriver) Navigate(ctx context.Context, url string) error {
	return g.m.exec(func() error { return g.inner.Navigate(ctx, url) })
}

func (g *guardedDriver) CurrentURL(ctx context.Context) (string, error) {
	var v string
	err := g.m.exec(func() error {
		var err error
		v, err = g.inner.CurrentURL(ctx)
		return err
	})
	return v, err
}

func (g *guardedDriver) Title(ctx context.Context) (string, error) {
	var v string
	err := g.m.exec(func() error {
		var err error
		v, err = g.inner.Title(ctx)
		return err
	})
	return v, err
}

func (g *guardedDriver) PageSource(ctx context.Context) (string, error) {
	var v string
	err := g.m.exec(func() error {
		var err error
		v, err = g.inner.PageSource(ctx)
		return err
	})
	return v, err
}

func (g *guardedDriver) Evaluate(ctx context.Context, expression string, out any) error {
	return g.m.exec(func() error { return g.inner.Evaluate(ctx, expression, out) })
}

func (g *guardedDriver) CountElements(ctx context.Context, selector string) (int, error) {
	var n int
	err := g.m.exec(func() error {
		var err error
		n, err = g.inner.CountElements(ctx, selector)
		return err
	})
	return n, err
}

func (g *guardedDriver) Click(ctx context.Context, selector string) error {
	return g.m.exec(func() error { return g.inner.Click(ctx, selector) })
}

func (g *guardedDriver) Fill(ctx context.Context, selector, text string) error {
	return g.m.exec(func() error { return g.inner.Fill(ctx, selector, text) })
}

func (g *guardedDriver) WaitVisible(ctx context.Context, selector string) error {
	return g.m.exec(func() error { return g.inner.WaitVisible(ctx, selector) })
}

func (g *guardedDriver) PrintPDF(ctx context.Context) ([]byte, error) {
	var b []byte
	err := g.m.exec(func() error {
		var err error
		b, err = g.inner.PrintPDF(ctx)
		return err
	})
	return b, err
}
