package search

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"browsermcp/internal/browser"
	"browsermcp/internal/domain"
)

const (
	// MaxQueryLength bounds the accepted query string.
	MaxQueryLength = 512
	// DefaultNumResults applies when the caller does not ask for a count.
	DefaultNumResults = 10
	// MaxNumResults is the hard cap on returned results.
	MaxNumResults = 20
)

// Orchestrator runs one search end to end: build the engine URL, fetch the
// result page through the navigation pipeline, extract structured results.
type Orchestrator struct {
	pipeline *browser.Pipeline
	logger   *slog.Logger
}

func NewOrchestrator(pipeline *browser.Pipeline, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{pipeline: pipeline, logger: logger}
}

// Search performs a search. Validation failures short-circuit before any
// browser work. The output always carries a status; extraction yielding zero
// results is a success with an empty slice, not an error.
func (o *Orchestrator) Search(ctx context.Context, query, engine string, numResults int) *domain.SearchOutput {
	start := time.Now()
	query = strings.TrimSpace(query)
	engine = strings.ToLower(strings.TrimSpace(engine))

	out := &domain.SearchOutput{
		Results:  []domain.SearchResult{},
		Query:    query,
		Engine:   engine,
		Status:   domain.StatusOK,
		Metadata: map[string]any{},
	}
	fail := func(msg string) *domain.SearchOutput {
		out.Status = domain.StatusError
		out.Error = msg
		o.stamp(out.Metadata, start)
		return out
	}

	if query == "" {
		return fail("search query cannot be empty")
	}
	if len(query) > MaxQueryLength {
		return fail("search query too long")
	}

	desc, err := Lookup(engine)
	if err != nil {
		return fail(err.Error())
	}

	if numResults <= 0 {
		numResults = DefaultNumResults
	}
	if numResults > MaxNumResults {
		numResults = MaxNumResults
	}

	target := desc.URL(query, numResults)
	o.logger.Info("searching", "engine", engine, "query", query, "num_results", numResults)

	page := o.pipeline.Fetch(ctx, target, browser.WithReadinessBudget(desc.WaitBudget))
	if page.HTML == "" {
		msg := page.Error
		if msg == "" {
			msg = "result page produced no content"
		}
		return fail(msg)
	}
	// A readiness timeout with partial content still goes through
	// extraction; whatever rendered in time is returned.

	results, diag, err := Extract(page.HTML, desc, numResults)
	if err != nil {
		return fail(err.Error())
	}

	out.Results = results
	out.Metadata["results_requested"] = numResults
	out.Metadata["results_found"] = len(results)
	out.Metadata["page_ready"] = page.Metadata["ready"]
	if diag.Container.Index >= 0 {
		out.Metadata["container_selector"] = diag.Container.Selector
		out.Metadata["container_fallback_depth"] = diag.Container.Index
	}
	// Field chains past their primary selector mean the engine's markup is
	// drifting; surface the depth so it shows up before results go empty.
	if diag.Title.Index > 0 {
		out.Metadata["title_fallback_depth"] = diag.Title.Index
	}
	if diag.Link.Index > 0 {
		out.Metadata["link_fallback_depth"] = diag.Link.Index
	}
	if diag.Snippet.Index > 0 {
		out.Metadata["snippet_fallback_depth"] = diag.Snippet.Index
	}
	if diag.Skipped > 0 {
		out.Metadata["results_skipped"] = diag.Skipped
	}
	o.stamp(out.Metadata, start)

	o.logger.Info("search finished",
		"engine", engine,
		"found", len(results),
		"skipped", diag.Skipped,
		"duration", time.Since(start))
	return out
}

func (o *Orchestrator) stamp(md map[string]any, start time.Time) {
	md["duration_seconds"] = time.Since(start).Round(10 * time.Millisecond).Seconds()
	md["timestamp"] = time.Now().UTC().Format(time.RFC3339)
}
