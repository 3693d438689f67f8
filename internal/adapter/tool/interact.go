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

// InteractTool performs element-level actions on the current page of the
// shared session: click, fill, or wait for visibility.
type InteractTool struct {
	sessions *browser.Manager
	logger   *slog.Logger
}

func NewInteractTool(sessions *browser.Manager, logger *slog.Logger) *InteractTool {
	return &InteractTool{sessions: sessions, logger: logger}
}

func (t *InteractTool) Name() string { return "interact" }

func (t *InteractTool) Description() string {
	return "Interact with the current page: click an element, fill an input with text, " +
		"or wait for an element to become visible. Elements are addressed by CSS selector."
}

func (t *InteractTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"action": {
					"type": "string",
					"enum": ["click", "fill", "wait_visible"],
					"description": "Action to perform"
				},
				"selector": {
					"type": "string",
					"description": "CSS selector addressing the target element"
				},
				"text": {
					"type": "string",
					"description": "Text to type (fill only)"
				}
			},
			"required": ["action", "selector"]
		}`),
	}
}

type interactParams struct {
	Action   string `json:"action"`
	Selector string `json:"selector"`
	Text     string `json:"text"`
}

func (t *InteractTool) Execute(ctx context.Context, rawParams json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, t.Name(), t.logger, rawParams,
		func(ctx context.Context, span trace.Span, p interactParams) (any, error) {
			if err := RequireField("selector", p.Selector); err != nil {
				return ErrResult("%v", err)
			}
			span.SetAttributes(
				tracer.StringAttr("interact.action", p.Action),
				tracer.StringAttr("interact.selector", p.Selector),
			)

			lease, err := t.sessions.Acquire(ctx)
			if err != nil {
				return nil, err
			}
			defer lease.Release()
			drv := lease.Driver()

			switch p.Action {
			case "click":
				err = drv.Click(ctx, p.Selector)
			case "fill":
				if rerr := RequireField("text", p.Text); rerr != nil {
					return ErrResult("%v", rerr)
				}
				err = drv.Fill(ctx, p.Selector, p.Text)
			case "wait_visible":
				err = drv.WaitVisible(ctx, p.Selector)
			default:
				return nil, BadAction(p.Action, "click", "fill", "wait_visible")
			}
			if err != nil {
				return nil, err
			}

			return map[string]any{
				"status":   domain.StatusOK,
				"action":   p.Action,
				"selector": p.Selector,
			}, nil
		})
}
