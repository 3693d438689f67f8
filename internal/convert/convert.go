package convert

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"browsermcp/internal/domain"
	"browsermcp/internal/infra/config"
	"browsermcp/internal/security"
)

// Service converts web documents to markdown. HTML is converted in-process;
// PDF is delegated to an external converter command when one is configured.
type Service struct {
	client        *http.Client
	validator     *security.Validator
	pdfCommand    string
	maxFetchBytes int64
	logger        *slog.Logger
}

func NewService(cfg config.ConverterConfig, validator *security.Validator, logger *slog.Logger) *Service {
	return &Service{
		client: &http.Client{
			Transport: security.NewSafeTransport(),
			Timeout:   60 * time.Second,
		},
		validator:     validator,
		pdfCommand:    cfg.PDFCommand,
		maxFetchBytes: cfg.MaxFetchBytes,
		logger:        logger,
	}
}

// FromHTML converts raw HTML content to markdown.
func (s *Service) FromHTML(ctx context.Context, htmlContent string) *domain.ConversionOutput {
	start := time.Now()
	out := &domain.ConversionOutput{
		OriginalFormat: "html",
		Status:         domain.StatusOK,
		Metadata:       map[string]any{},
	}

	if strings.TrimSpace(htmlContent) == "" {
		return s.fail(out, start, "HTML content cannot be empty")
	}

	md, err := HTMLToMarkdown(htmlContent)
	if err != nil {
		return s.fail(out, start, err.Error())
	}

	out.Markdown = md
	out.ConversionSuccess = true
	out.Metadata["markdown_length"] = len(md)
	s.stamp(out.Metadata, start)
	return out
}

// FromURL downloads a document and converts it to markdown. contentType is
// "url" for HTML pages or "pdf_url" for PDF documents.
func (s *Service) FromURL(ctx context.Context, rawURL, contentType string) *domain.ConversionOutput {
	start := time.Now()
	format := "html"
	if contentType == "pdf_url" {
		format = "pdf"
	}
	out := &domain.ConversionOutput{
		OriginalFormat: format,
		Status:         domain.StatusOK,
		Metadata:       map[string]any{},
	}

	if err := s.validator.Validate(rawURL); err != nil {
		return s.fail(out, start, err.Error())
	}
	target, err := security.Normalize(rawURL)
	if err != nil {
		return s.fail(out, start, err.Error())
	}
	out.Metadata["source_url"] = target

	body, err := s.download(ctx, target)
	if err != nil {
		return s.fail(out, start, err.Error())
	}

	var md string
	switch format {
	case "pdf":
		md, err = s.pdfToMarkdown(ctx, body)
	default:
		md, err = HTMLToMarkdown(string(body))
	}
	if err != nil {
		return s.fail(out, start, err.Error())
	}

	out.Markdown = md
	out.ConversionSuccess = true
	out.Metadata["fetched_bytes"] = len(body)
	out.Metadata["markdown_length"] = len(md)
	s.stamp(out.Metadata, start)
	s.logger.Info("converted document", "url", target, "format", format, "markdown_length", len(md))
	return out
}

// download fetches a document over the rebinding-safe transport, enforcing
// the configured size cap.
func (s *Service) download(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, domain.WrapOp("build request", err)
	}
	req.Header.Set("User-Agent", "browsermcp/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, domain.NewDomainError("Service.download", domain.ErrConversion, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewDomainError("Service.download", domain.ErrConversion,
			fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxFetchBytes+1))
	if err != nil {
		return nil, domain.WrapOp("read body", err)
	}
	if int64(len(body)) > s.maxFetchBytes {
		return nil, domain.NewDomainError("Service.download", domain.ErrConversion,
			fmt.Sprintf("document exceeds %d byte limit", s.maxFetchBytes))
	}
	return body, nil
}

// pdfToMarkdown writes the PDF to a temp file and runs the configured
// converter command, expecting markdown on stdout.
func (s *Service) pdfToMarkdown(ctx context.Context, pdf []byte) (string, error) {
	if s.pdfCommand == "" {
		return "", domain.NewDomainError("Service.pdfToMarkdown", domain.ErrConversion,
			"no PDF converter configured")
	}

	f, err := os.CreateTemp("", "browsermcp-"+ulid.Make().String()+"-*.pdf")
	if err != nil {
		return "", domain.WrapOp("create temp file", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(pdf); err != nil {
		f.Close()
		return "", domain.WrapOp("write temp file", err)
	}
	f.Close()

	cmd := exec.CommandContext(ctx, s.pdfCommand, f.Name())
	output, err := cmd.Output()
	if err != nil {
		return "", domain.NewDomainError("Service.pdfToMarkdown", domain.ErrConversion,
			fmt.Sprintf("converter command failed: %v", err))
	}
	return string(output), nil
}

func (s *Service) fail(out *domain.ConversionOutput, start time.Time, msg string) *domain.ConversionOutput {
	out.Status = domain.StatusError
	out.Error = msg
	out.ConversionSuccess = false
	s.stamp(out.Metadata, start)
	s.logger.Warn("conversion failed", "format", out.OriginalFormat, "error", msg)
	return out
}

func (s *Service) stamp(md map[string]any, start time.Time) {
	md["duration_seconds"] = time.Since(start).Round(10 * time.Millisecond).Seconds()
	md["timestamp"] = time.Now().UTC().Format(time.RFC3339)
}
