package tool

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"browsermcp/internal/convert"
	"browsermcp/internal/domain"
	"browsermcp/internal/infra/tracer"
)

// ConvertTool turns HTML or PDF documents into markdown.
type ConvertTool struct {
	service *convert.Service
	logger  *slog.Logger
}

func NewConvertTool(service *convert.Service, logger *slog.Logger) *ConvertTool {
	return &ConvertTool{service: service, logger: logger}
}

func (t *ConvertTool) Name() string { return "convert_to_markdown" }

func (t *ConvertTool) Description() string {
	return "Convert a document to markdown. Accepts raw HTML (content_type=html with content), " +
		"a web page URL (content_type=url), or a PDF URL (content_type=pdf_url)."
}

func (t *ConvertTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"content_type": {
					"type": "string",
					"enum": ["url", "html", "pdf_url"],
					"description": "What the input is: a page URL, raw HTML, or a PDF URL"
				},
				"content": {
					"type": "string",
					"description": "The document: a URL for content_type=url/pdf_url, or the raw HTML for content_type=html"
				},
				"url": {
					"type": "string",
					"description": "Alias for content when passing a URL"
				}
			},
			"required": ["content_type"]
		}`),
	}
}

type convertParams struct {
	ContentType string `json:"content_type"`
	// Content carries the URL for url/pdf_url conversions and the raw
	// markup for html conversions. URL is accepted as an alias when the
	// input is a URL.
	Content string `json:"content"`
	URL     string `json:"url"`
}

func (p convertParams) source() string {
	if s := strings.TrimSpace(p.Content); s != "" {
		return s
	}
	return strings.TrimSpace(p.URL)
}

func (t *ConvertTool) Execute(ctx context.Context, rawParams json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, t.Name(), t.logger, rawParams,
		func(ctx context.Context, span trace.Span, p convertParams) (any, error) {
			if err := ValidateEnum("content_type", p.ContentType, "url", "html", "pdf_url"); err != nil {
				return ErrResult("%v", err)
			}
			span.SetAttributes(tracer.StringAttr("convert.content_type", p.ContentType))

			var out *domain.ConversionOutput
			switch p.ContentType {
			case "html":
				if err := RequireField("content", p.Content); err != nil {
					return ErrResult("%v", err)
				}
				out = t.service.FromHTML(ctx, p.Content)
			default:
				src := p.source()
				if err := RequireField("content", src); err != nil {
					return ErrResult("%v", err)
				}
				out = t.service.FromURL(ctx, src, p.ContentType)
			}
			out.Metadata["content_type"] = p.ContentType
			return out, nil
		})
}
