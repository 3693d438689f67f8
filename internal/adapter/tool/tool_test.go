package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"browsermcp/internal/browser"
	"browsermcp/internal/convert"
	"browsermcp/internal/domain"
	"browsermcp/internal/infra/config"
	"browsermcp/internal/search"
	"browsermcp/internal/security"
)

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

// stubDriver serves a fixed arXiv-style result page for any navigation.
type stubDriver struct {
	html      string
	navigates atomic.Int32
	pdfCalls  atomic.Int32
}

func (s *stubDriver) Navigate(ctx context.Context, url string) error {
	s.navigates.Add(1)
	return nil
}
func (s *stubDriver) CurrentURL(ctx context.Context) (string, error) { return "", nil }
func (s *stubDriver) Title(ctx context.Context) (string, error)      { return "stub", nil }
func (s *stubDriver) PageSource(ctx context.Context) (string, error) { return s.html, nil }
func (s *stubDriver) Evaluate(ctx context.Context, expr string, out any) error {
	if p, ok := out.(*string); ok {
		*p = "complete"
	}
	return nil
}
func (s *stubDriver) CountElements(ctx context.Context, selector string) (int, error) {
	return 0, nil
}
func (s *stubDriver) Click(ctx context.Context, selector string) error       { return nil }
func (s *stubDriver) Fill(ctx context.Context, selector, text string) error  { return nil }
func (s *stubDriver) WaitVisible(ctx context.Context, selector string) error { return nil }
func (s *stubDriver) PrintPDF(ctx context.Context) ([]byte, error) {
	s.pdfCalls.Add(1)
	return []byte("%PDF-1.4 stub"), nil
}

func startedManager(t *testing.T, drv browser.Driver) *browser.Manager {
	t.Helper()
	m := browser.NewManager(config.BrowserConfig{
		CommandTimeout: time.Second,
		StartTimeout:   time.Second,
	}, quietLogger(), browser.WithDriverFactory(
		func(ctx context.Context, cfg config.BrowserConfig, logger *slog.Logger) (browser.Driver, func(), error) {
			return drv, func() {}, nil
		}))
	require.NoError(t, m.Start(context.Background()))
	return m
}

func resultPage(n int) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, `<li class="arxiv-result">
			<p class="list-title"><a href="/abs/%d">Result %d</a></p>
			<span class="list-abstract">Abstract %d</span></li>`, i, i, i)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func newSearchToolForTest(t *testing.T, drv browser.Driver, limit int, ttl time.Duration) *SearchTool {
	t.Helper()
	m := startedManager(t, drv)
	pipeline := browser.NewPipeline(m, &security.Validator{AllowPrivate: true}, time.Second, quietLogger())
	orch := search.NewOrchestrator(pipeline, quietLogger())
	return NewSearchTool(orch, NewSearchThrottle(limit, time.Minute), ttl, quietLogger())
}

func TestRegistryRegisterGetList(t *testing.T) {
	r := NewRegistry()
	ft := NewFetchTool(nil, quietLogger())
	require.NoError(t, r.Register(ft))
	assert.Error(t, r.Register(ft), "duplicate registration must fail")

	got, err := r.Get("fetch_url")
	require.NoError(t, err)
	assert.Equal(t, "fetch_url", got.Name())

	_, err = r.Get("missing")
	assert.ErrorIs(t, err, domain.ErrToolNotFound)

	assert.Len(t, r.List(), 1)
	assert.Len(t, r.Schemas(), 1)
}

func TestSearchThrottleWindow(t *testing.T) {
	base := time.Now()
	current := base
	th := NewSearchThrottle(2, time.Minute)
	th.now = func() time.Time { return current }

	assert.True(t, th.Allow("arxiv"))
	assert.True(t, th.Allow("arxiv"))
	assert.False(t, th.Allow("arxiv"), "third call within window must be rejected")

	current = base.Add(61 * time.Second)
	assert.True(t, th.Allow("arxiv"), "window slid, call allowed again")
}

func TestSearchThrottleIsPerEngine(t *testing.T) {
	th := NewSearchThrottle(1, time.Minute)

	assert.True(t, th.Allow("pubmed"))
	assert.False(t, th.Allow("pubmed"), "pubmed window exhausted")
	assert.True(t, th.Allow("ieee"), "ieee has its own window")

	th.Reset()
	assert.True(t, th.Allow("pubmed"), "reset clears recorded searches")
}

func TestValidateHelpers(t *testing.T) {
	assert.Error(t, RequireField("url", "  "))
	assert.NoError(t, RequireField("url", "x"))
	assert.Error(t, ValidateMaxLength("q", strings.Repeat("a", 11), 10))
	assert.NoError(t, ValidateRange("n", 0, 1, 20), "zero passes as unset")
	assert.Error(t, ValidateRange("n", 21, 1, 20))
	assert.Error(t, ValidateEnum("t", "gopher", "a", "b"))
	assert.NoError(t, ValidateEnum("t", "b", "a", "b"))
}

func TestFetchToolRequiresURL(t *testing.T) {
	drv := &stubDriver{}
	m := startedManager(t, drv)
	pipeline := browser.NewPipeline(m, &security.Validator{AllowPrivate: true}, time.Second, quietLogger())
	ft := NewFetchTool(pipeline, quietLogger())

	res, err := ft.Execute(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content, "url is required")
	assert.Zero(t, drv.navigates.Load())
}

func TestFetchToolReturnsNavigationJSON(t *testing.T) {
	drv := &stubDriver{html: "<html><body>hello</body></html>"}
	m := startedManager(t, drv)
	pipeline := browser.NewPipeline(m, &security.Validator{AllowPrivate: true}, time.Second, quietLogger())
	ft := NewFetchTool(pipeline, quietLogger())

	res, err := ft.Execute(context.Background(),
		json.RawMessage(`{"url": "http://example.com/"}`))
	require.NoError(t, err)
	assert.False(t, res.IsError)

	var nav domain.NavigationResult
	require.NoError(t, json.Unmarshal([]byte(res.Content), &nav))
	assert.Equal(t, domain.StatusOK, nav.Status)
	assert.Equal(t, "stub", nav.Title)
}

func TestFetchToolBadParamsJSON(t *testing.T) {
	ft := NewFetchTool(nil, quietLogger())
	res, err := ft.Execute(context.Background(), json.RawMessage(`{"url": 42`))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content, "invalid params")
}

func TestSearchToolValidation(t *testing.T) {
	st := newSearchToolForTest(t, &stubDriver{html: resultPage(3)}, 100, 0)

	for name, params := range map[string]string{
		"missing query":   `{}`,
		"oversized count": `{"query": "x", "num_results": 50}`,
	} {
		res, err := st.Execute(context.Background(), json.RawMessage(params))
		require.NoError(t, err, name)
		assert.True(t, res.IsError, name)
	}
}

func TestSearchToolUnknownEngineIsPayloadError(t *testing.T) {
	st := newSearchToolForTest(t, &stubDriver{html: resultPage(3)}, 100, 0)

	res, err := st.Execute(context.Background(),
		json.RawMessage(`{"query": "q", "engine": "altavista"}`))
	require.NoError(t, err)
	assert.False(t, res.IsError, "engine errors travel inside the search payload")

	var out domain.SearchOutput
	require.NoError(t, json.Unmarshal([]byte(res.Content), &out))
	assert.Equal(t, domain.StatusError, out.Status)
	assert.Contains(t, out.Error, "unknown search engine")
}

func TestSearchToolRateLimited(t *testing.T) {
	st := newSearchToolForTest(t, &stubDriver{html: resultPage(2)}, 1, 0)

	res, err := st.Execute(context.Background(),
		json.RawMessage(`{"query": "first", "engine": "arxiv"}`))
	require.NoError(t, err)
	assert.False(t, res.IsError)

	res, err = st.Execute(context.Background(),
		json.RawMessage(`{"query": "second", "engine": "arxiv"}`))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content, "rate limit")
	assert.Contains(t, res.Content, "arxiv")

	res, err = st.Execute(context.Background(),
		json.RawMessage(`{"query": "third", "engine": "pubmed"}`))
	require.NoError(t, err)
	assert.False(t, res.IsError, "other engines are throttled independently")
}

func TestSearchToolCachesSuccesses(t *testing.T) {
	drv := &stubDriver{html: resultPage(2)}
	st := newSearchToolForTest(t, drv, 100, time.Minute)

	params := json.RawMessage(`{"query": "repeat me", "engine": "arxiv", "num_results": 2}`)
	_, err := st.Execute(context.Background(), params)
	require.NoError(t, err)
	first := drv.navigates.Load()

	_, err = st.Execute(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, first, drv.navigates.Load(), "second identical search must hit the cache")
}

func TestConvertToolValidation(t *testing.T) {
	svc := convert.NewService(config.ConverterConfig{MaxFetchBytes: 1 << 20},
		&security.Validator{}, quietLogger())
	ct := NewConvertTool(svc, quietLogger())

	res, err := ct.Execute(context.Background(), json.RawMessage(`{"content_type": "docx"}`))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = ct.Execute(context.Background(), json.RawMessage(`{"content_type": "html"}`))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content, "content is required")
}

func TestConvertToolHTMLHappyPath(t *testing.T) {
	svc := convert.NewService(config.ConverterConfig{MaxFetchBytes: 1 << 20},
		&security.Validator{}, quietLogger())
	ct := NewConvertTool(svc, quietLogger())

	res, err := ct.Execute(context.Background(), json.RawMessage(
		`{"content_type": "html", "content": "<html><body><h1>Hi</h1></body></html>"}`))
	require.NoError(t, err)
	assert.False(t, res.IsError)

	var out domain.ConversionOutput
	require.NoError(t, json.Unmarshal([]byte(res.Content), &out))
	assert.True(t, out.ConversionSuccess)
	assert.Contains(t, out.Markdown, "# Hi")
	assert.Equal(t, "html", out.Metadata["content_type"])
}

func TestConvertToolURLTravelsInContent(t *testing.T) {
	svc := convert.NewService(config.ConverterConfig{MaxFetchBytes: 1 << 20},
		&security.Validator{}, quietLogger())
	ct := NewConvertTool(svc, quietLogger())

	// The URL rides in the content field for url conversions. The validator
	// rejects the loopback address, so the failure lands inside the
	// conversion payload rather than as a missing-field error.
	res, err := ct.Execute(context.Background(), json.RawMessage(
		`{"content_type": "url", "content": "http://127.0.0.1/page"}`))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.NotContains(t, res.Content, "content is required")

	var out domain.ConversionOutput
	require.NoError(t, json.Unmarshal([]byte(res.Content), &out))
	assert.False(t, out.ConversionSuccess)
	assert.Equal(t, domain.StatusError, out.Status)
}

func TestConvertToolURLAlias(t *testing.T) {
	svc := convert.NewService(config.ConverterConfig{MaxFetchBytes: 1 << 20},
		&security.Validator{}, quietLogger())
	ct := NewConvertTool(svc, quietLogger())

	res, err := ct.Execute(context.Background(), json.RawMessage(
		`{"content_type": "pdf_url", "url": "http://127.0.0.1/doc.pdf"}`))
	require.NoError(t, err)
	assert.False(t, res.IsError)

	var out domain.ConversionOutput
	require.NoError(t, json.Unmarshal([]byte(res.Content), &out))
	assert.False(t, out.ConversionSuccess)
	assert.Equal(t, "pdf", out.OriginalFormat)

	// With neither content nor url the field check still fires.
	res, err = ct.Execute(context.Background(), json.RawMessage(`{"content_type": "url"}`))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content, "content is required")
}

func TestInteractToolBadAction(t *testing.T) {
	it := NewInteractTool(startedManager(t, &stubDriver{}), quietLogger())
	res, err := it.Execute(context.Background(),
		json.RawMessage(`{"action": "hover", "selector": "#x"}`))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content, "unknown action")
}

func TestInteractToolFillRequiresText(t *testing.T) {
	it := NewInteractTool(startedManager(t, &stubDriver{}), quietLogger())
	res, err := it.Execute(context.Background(),
		json.RawMessage(`{"action": "fill", "selector": "#q"}`))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content, "text is required")
}

func TestPDFToolWritesFile(t *testing.T) {
	drv := &stubDriver{}
	pt := NewPDFTool(startedManager(t, drv), t.TempDir(), quietLogger())

	res, err := pt.Execute(context.Background(), json.RawMessage(`{"filename": "report"}`))
	require.NoError(t, err)
	require.False(t, res.IsError, res.Content)

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.Content), &out))
	path, _ := out["path"].(string)
	assert.True(t, strings.HasSuffix(path, "report.pdf"), path)
	assert.EqualValues(t, 1, drv.pdfCalls.Load())
}

func TestPDFToolRejectsPathTraversal(t *testing.T) {
	pt := NewPDFTool(startedManager(t, &stubDriver{}), t.TempDir(), quietLogger())
	res, err := pt.Execute(context.Background(),
		json.RawMessage(`{"filename": "../../etc/owned.pdf"}`))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}
