package tool

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"browsermcp/internal/browser"
	"browsermcp/internal/domain"
	"browsermcp/internal/infra/tracer"
)

// FetchTool navigates the shared browser session to a URL and returns the
// rendered page. Failures are reported inside the result payload so callers
// always receive the same shape.
type FetchTool struct {
	pipeline *browser.Pipeline
	logger   *slog.Logger
}

func NewFetchTool(pipeline *browser.Pipeline, logger *slog.Logger) *FetchTool {
	return &FetchTool{pipeline: pipeline, logger: logger}
}

func (t *FetchTool) Name() string { return "fetch_url" }

func (t *FetchTool) Description() string {
	return "Navigate the browser to a URL and return the final URL, page title, and full HTML. " +
		"Waits for the page to finish loading and retries transient network failures."
}

func (t *FetchTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"url": {
					"type": "string",
					"description": "Absolute http(s) URL to load (max 2048 characters)"
				}
			},
			"required": ["url"]
		}`),
	}
}

type fetchParams struct {
	URL string `json:"url"`
}

func (t *FetchTool) Execute(ctx context.Context, rawParams json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, t.Name(), t.logger, rawParams,
		func(ctx context.Context, span trace.Span, p fetchParams) (any, error) {
			if err := RequireField("url", p.URL); err != nil {
				return ErrResult("%v", err)
			}
			span.SetAttributes(tracer.StringAttr("fetch.url", p.URL))

			res := t.pipeline.Fetch(ctx, p.URL)
			span.SetAttributes(
				tracer.StringAttr("fetch.status", res.Status),
				tracer.IntAttr("fetch.html_length", len(res.HTML)),
			)
			return res, nil
		})
}
