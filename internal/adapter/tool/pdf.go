package tool

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"browsermcp/internal/browser"
	"browsermcp/internal/domain"
	"browsermcp/internal/infra/tracer"
)

// PDFTool renders the current page of the shared session to a PDF file in
// the configured download directory.
type PDFTool struct {
	sessions    *browser.Manager
	downloadDir string
	logger      *slog.Logger
}

func NewPDFTool(sessions *browser.Manager, downloadDir string, logger *slog.Logger) *PDFTool {
	return &PDFTool{sessions: sessions, downloadDir: downloadDir, logger: logger}
}

func (t *PDFTool) Name() string { return "save_pdf" }

func (t *PDFTool) Description() string {
	return "Render the currently loaded page to a PDF file and return its path and size."
}

func (t *PDFTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"filename": {
					"type": "string",
					"description": "Optional file name without directory components; generated when omitted"
				}
			}
		}`),
	}
}

type pdfParams struct {
	Filename string `json:"filename"`
}

func (t *PDFTool) Execute(ctx context.Context, rawParams json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, t.Name(), t.logger, rawParams,
		func(ctx context.Context, span trace.Span, p pdfParams) (any, error) {
			name := strings.TrimSpace(p.Filename)
			if name == "" {
				name = "page-" + ulid.Make().String() + ".pdf"
			}
			if name != filepath.Base(name) {
				return ErrResult("filename must not contain directory components")
			}
			if !strings.HasSuffix(name, ".pdf") {
				name += ".pdf"
			}

			lease, err := t.sessions.Acquire(ctx)
			if err != nil {
				return nil, err
			}
			data, err := lease.Driver().PrintPDF(ctx)
			lease.Release()
			if err != nil {
				return nil, err
			}

			if err := os.MkdirAll(t.downloadDir, 0o755); err != nil {
				return nil, domain.WrapOp("create download dir", err)
			}
			path := filepath.Join(t.downloadDir, name)
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return nil, domain.WrapOp("write pdf", err)
			}

			span.SetAttributes(tracer.IntAttr("pdf.bytes", len(data)))
			t.logger.Info("saved page as PDF", "path", path, "bytes", len(data))
			return map[string]any{
				"status": domain.StatusOK,
				"path":   path,
				"bytes":  len(data),
			}, nil
		})
}
