package browser

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"browsermcp/internal/domain"
	"browsermcp/internal/infra/config"
)

func fakeManager(t *testing.T, drv Driver) *Manager {
	t.Helper()
	return NewManager(config.BrowserConfig{
		CommandTimeout: time.Second,
		StartTimeout:   time.Second,
	}, testLogger(t), WithDriverFactory(
		func(ctx context.Context, cfg config.BrowserConfig, logger *slog.Logger) (Driver, func(), error) {
			return drv, func() {}, nil
		}))
}

func TestAcquireBeforeStartFails(t *testing.T) {
	m := fakeManager(t, &fakeDriver{})
	_, err := m.Acquire(context.Background())
	if !errors.Is(err, domain.ErrSessionNotReady) {
		t.Fatalf("err = %v, want ErrSessionNotReady", err)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	m := fakeManager(t, &fakeDriver{})
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := m.State(); got != StateReady {
		t.Fatalf("state = %v, want ready", got)
	}
}

func TestStartFailureMarksFailed(t *testing.T) {
	m := NewManager(config.BrowserConfig{}, testLogger(t), WithDriverFactory(
		func(ctx context.Context, cfg config.BrowserConfig, logger *slog.Logger) (Driver, func(), error) {
			return nil, nil, errors.New("chrome executable not found")
		}))

	err := m.Start(context.Background())
	if !errors.Is(err, domain.ErrStartup) {
		t.Fatalf("err = %v, want ErrStartup", err)
	}
	if got := m.State(); got != StateFailed {
		t.Fatalf("state = %v, want failed", got)
	}

	_, err = m.Acquire(context.Background())
	if !errors.Is(err, domain.ErrSessionFailed) {
		t.Fatalf("acquire err = %v, want ErrSessionFailed", err)
	}
}

func TestStopThenAcquireFails(t *testing.T) {
	m := fakeManager(t, &fakeDriver{})
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := m.State(); got != StateStopped {
		t.Fatalf("state = %v, want stopped", got)
	}
	_, err := m.Acquire(context.Background())
	if !errors.Is(err, domain.ErrSessionNotReady) {
		t.Fatalf("err = %v, want ErrSessionNotReady", err)
	}
}

func TestAcquireIsExclusive(t *testing.T) {
	drv := &fakeDriver{}
	m := fakeManager(t, drv)
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	const workers = 8
	var mu sync.Mutex
	var inFlight, maxInFlight int

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := m.Acquire(context.Background())
			if err != nil {
				t.Error(err)
				return
			}
			defer lease.Release()

			mu.Lock()
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			mu.Unlock()

			_ = lease.Driver().Navigate(context.Background(), "http://example.com")
			time.Sleep(time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if maxInFlight != 1 {
		t.Fatalf("max concurrent leases = %d, want 1", maxInFlight)
	}
	if drv.callCount() != workers {
		t.Fatalf("driver calls = %d, want %d", drv.callCount(), workers)
	}
}

func TestLeaseReleaseIsIdempotent(t *testing.T) {
	m := fakeManager(t, &fakeDriver{})
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	lease, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	lease.Release()
	lease.Release()

	// Second acquire must not deadlock.
	lease2, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	lease2.Release()
}

func TestRepeatedFatalFaultsFailSession(t *testing.T) {
	drv := &fakeDriver{
		navigateFn: func(url string) error {
			return errors.New("tab crashed")
		},
	}
	m := fakeManager(t, drv)
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < consecutiveFaultLimit; i++ {
		lease, err := m.Acquire(context.Background())
		if err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		if err := lease.Driver().Navigate(context.Background(), "http://example.com"); err == nil {
			t.Fatal("expected navigate error")
		}
		lease.Release()
	}

	if got := m.State(); got != StateFailed {
		t.Fatalf("state = %v, want failed after %d faults", got, consecutiveFaultLimit)
	}
	_, err := m.Acquire(context.Background())
	if !errors.Is(err, domain.ErrSessionFailed) {
		t.Fatalf("err = %v, want ErrSessionFailed", err)
	}
}

func TestTransientFaultsDoNotFailSession(t *testing.T) {
	drv := &fakeDriver{
		navigateFn: func(url string) error {
			return errors.New("net::ERR_CONNECTION_RESET")
		},
	}
	m := fakeManager(t, drv)
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < consecutiveFaultLimit*2; i++ {
		lease, err := m.Acquire(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		_ = lease.Driver().Navigate(context.Background(), "http://example.com")
		lease.Release()
	}

	if got := m.State(); got != StateReady {
		t.Fatalf("state = %v, want ready", got)
	}
}

func TestRestartRecoversFailedSession(t *testing.T) {
	failures := 0
	m := NewManager(config.BrowserConfig{}, testLogger(t), WithDriverFactory(
		func(ctx context.Context, cfg config.BrowserConfig, logger *slog.Logger) (Driver, func(), error) {
			failures++
			if failures == 1 {
				return nil, nil, errors.New("bind: address already in use")
			}
			return &fakeDriver{}, func() {}, nil
		}))

	if err := m.Start(context.Background()); err == nil {
		t.Fatal("expected first start to fail")
	}
	if err := m.Restart(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if got := m.State(); got != StateReady {
		t.Fatalf("state = %v, want ready", got)
	}
}
