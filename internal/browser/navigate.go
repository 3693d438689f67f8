package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"browsermcp/internal/domain"
	"browsermcp/internal/security"
)

const maxURLLength = 2048

// Pipeline is the end-to-end navigation flow: validate, normalize, acquire
// the session, navigate with retry, wait for readiness, read the page back.
type Pipeline struct {
	sessions  *Manager
	validator *security.Validator
	detector  *ReadinessDetector
	policy    Policy
	budget    time.Duration
	logger    *slog.Logger
}

// NewPipeline wires a navigation pipeline with the default retry policy.
func NewPipeline(sessions *Manager, validator *security.Validator, budget time.Duration, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		sessions:  sessions,
		validator: validator,
		detector:  NewReadinessDetector(logger),
		policy:    DefaultPolicy(),
		budget:    budget,
		logger:    logger,
	}
}

// FetchOption adjusts one Fetch call.
type FetchOption func(*fetchOptions)

type fetchOptions struct {
	budget time.Duration
}

// WithReadinessBudget overrides the readiness wait budget for one fetch.
// Search engines with slow result rendering use a longer budget.
func WithReadinessBudget(d time.Duration) FetchOption {
	return func(o *fetchOptions) { o.budget = d }
}

// Fetch navigates to a URL and returns the page content. The result always
// carries a status; errors along the way produce an error-status result
// rather than a Go error so tool callers get a uniform payload.
func (p *Pipeline) Fetch(ctx context.Context, rawURL string, opts ...FetchOption) *domain.NavigationResult {
	start := time.Now()
	opID := ulid.Make().String()
	rawURL = strings.TrimSpace(rawURL)

	o := fetchOptions{budget: p.budget}
	for _, opt := range opts {
		opt(&o)
	}

	log := p.logger.With("op_id", opID, "url", rawURL)

	if rawURL == "" || len(rawURL) > maxURLLength {
		return p.errorResult(rawURL, opID, start,
			fmt.Sprintf("URL must be between 1 and %d characters", maxURLLength))
	}
	if err := p.validator.Validate(rawURL); err != nil {
		log.Warn("navigation blocked", "error", err)
		return p.errorResult(rawURL, opID, start, err.Error())
	}
	target, err := security.Normalize(rawURL)
	if err != nil {
		return p.errorResult(rawURL, opID, start, err.Error())
	}

	attempts := 0
	result, err := Retry(ctx, p.policy, func(ctx context.Context) (*domain.NavigationResult, error) {
		attempts++
		return p.fetchOnce(ctx, log, target, o.budget)
	})
	if err != nil {
		log.Error("navigation failed", "error", err, "attempts", attempts)
		res := p.errorResult(rawURL, opID, start, err.Error())
		res.Metadata["attempts"] = attempts
		res.Metadata["error_code"] = string(domain.ErrorCodeOf(err))
		return res
	}

	result.Metadata["op_id"] = opID
	result.Metadata["attempts"] = attempts
	p.stamp(result.Metadata, start)
	log.Info("navigation finished",
		"status", result.Status,
		"final_url", result.FinalURL,
		"attempts", attempts,
		"duration", time.Since(start))
	return result
}

// fetchOnce performs one navigation attempt against the live session. The
// returned error is classified by the retry policy; a readiness timeout is
// not an error but an error-status result with best-effort content.
func (p *Pipeline) fetchOnce(ctx context.Context, log *slog.Logger, target string, budget time.Duration) (*domain.NavigationResult, error) {
	lease, err := p.sessions.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer lease.Release()
	drv := lease.Driver()

	if err := drv.Navigate(ctx, target); err != nil {
		return nil, domain.NewDomainError("Pipeline.fetchOnce", domain.ErrNavigation, err.Error())
	}

	ready := p.detector.Wait(ctx, drv, budget)

	// Read-back degrades per field: a failed read empties that field
	// instead of discarding the whole page.
	finalURL, err := drv.CurrentURL(ctx)
	if err != nil {
		log.Warn("current URL unreadable", "error", err)
		finalURL = ""
	}
	title, err := drv.Title(ctx)
	if err != nil {
		log.Warn("title unreadable", "error", err)
		title = ""
	}
	title = collapseSpace(title)
	html, err := drv.PageSource(ctx)
	if err != nil {
		log.Warn("page source unreadable", "error", err)
		html = ""
	}

	result := &domain.NavigationResult{
		FinalURL: finalURL,
		Title:    title,
		HTML:     html,
		Status:   domain.StatusOK,
		Metadata: map[string]any{
			"redirected":    finalURL != "" && finalURL != target,
			"title_length":  len(title),
			"html_length":   len(html),
			"ready":         ready.Complete,
			"ready_wait_ms": ready.Elapsed.Milliseconds(),
		},
	}
	if !ready.Complete {
		result.Status = domain.StatusError
		result.Error = fmt.Sprintf("page load timeout after %s", budget)
		result.Metadata["error_code"] = string(domain.CodeReadinessTimeout)
	}
	return result, nil
}

// errorResult builds an error-status result that echoes the requested URL.
func (p *Pipeline) errorResult(rawURL, opID string, start time.Time, msg string) *domain.NavigationResult {
	md := map[string]any{"op_id": opID}
	p.stamp(md, start)
	return &domain.NavigationResult{
		FinalURL: rawURL,
		Status:   domain.StatusError,
		Error:    msg,
		Metadata: md,
	}
}

func (p *Pipeline) stamp(md map[string]any, start time.Time) {
	md["duration_seconds"] = time.Since(start).Round(10 * time.Millisecond).Seconds()
	md["timestamp"] = time.Now().UTC().Format(time.RFC3339)
}

// collapseSpace trims and collapses runs of whitespace to single spaces.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
