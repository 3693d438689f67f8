package browser

import (
	"context"
	"log/slog"
	"time"
)

const (
	defaultPollInterval = 100 * time.Millisecond
	defaultSettleDelay  = 500 * time.Millisecond
)

// Readiness reports the outcome of one readiness wait. A timeout is a normal
// outcome, not an error: the page content read afterwards is still usable.
type Readiness struct {
	Complete bool
	Elapsed  time.Duration
	Polls    int
}

// ReadinessDetector polls the document ready state until the page reports
// complete or the budget expires. After the page reports complete, a fixed
// settle delay absorbs late-arriving dynamic content.
type ReadinessDetector struct {
	PollInterval time.Duration
	SettleDelay  time.Duration
	Logger       *slog.Logger
}

func NewReadinessDetector(logger *slog.Logger) *ReadinessDetector {
	return &ReadinessDetector{
		PollInterval: defaultPollInterval,
		SettleDelay:  defaultSettleDelay,
		Logger:       logger,
	}
}

// Wait blocks until the page is ready, the budget elapses, or ctx is done.
// Evaluation failures count as "not yet ready" and never abort the wait.
func (d *ReadinessDetector) Wait(ctx context.Context, drv Driver, budget time.Duration) Readiness {
	start := time.Now()
	deadline := start.Add(budget)
	polls := 0

	for time.Now().Before(deadline) {
		polls++
		var state string
		if err := drv.Evaluate(ctx, "document.readyState", &state); err != nil {
			d.Logger.Debug("ready state unreadable", "error", err)
		} else if state == "complete" {
			d.settle(ctx)
			return Readiness{Complete: true, Elapsed: time.Since(start), Polls: polls}
		}

		select {
		case <-ctx.Done():
			return Readiness{Complete: false, Elapsed: time.Since(start), Polls: polls}
		case <-time.After(d.PollInterval):
		}
	}

	d.Logger.Warn("page load wait exhausted budget", "budget", budget, "polls", polls)
	return Readiness{Complete: false, Elapsed: time.Since(start), Polls: polls}
}

func (d *ReadinessDetector) settle(ctx context.Context) {
	if d.SettleDelay <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d.SettleDelay):
	}
}
