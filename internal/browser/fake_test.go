package browser

import (
	"context"
	"log/slog"
	"sync"
	"testing"
)

// fakeDriver is a scriptable Driver for tests. Unset hooks succeed with
// zero values. calls records method names in invocation order.
type fakeDriver struct {
	mu    sync.Mutex
	calls []string

	navigateFn   func(url string) error
	currentURLFn func() (string, error)
	titleFn      func() (string, error)
	sourceFn     func() (string, error)
	evaluateFn   func(expr string, out any) error
	countFn      func(selector string) (int, error)
}

func (f *fakeDriver) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fakeDriver) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeDriver) Navigate(ctx context.Context, url string) error {
	f.record("navigate")
	if f.navigateFn != nil {
		return f.navigateFn(url)
	}
	return nil
}

func (f *fakeDriver) CurrentURL(ctx context.Context) (string, error) {
	f.record("current_url")
	if f.currentURLFn != nil {
		return f.currentURLFn()
	}
	return "", nil
}

func (f *fakeDriver) Title(ctx context.Context) (string, error) {
	f.record("title")
	if f.titleFn != nil {
		return f.titleFn()
	}
	return "", nil
}

func (f *fakeDriver) PageSource(ctx context.Context) (string, error) {
	f.record("page_source")
	if f.sourceFn != nil {
		return f.sourceFn()
	}
	return "", nil
}

func (f *fakeDriver) Evaluate(ctx context.Context, expr string, out any) error {
	f.record("evaluate")
	if f.evaluateFn != nil {
		return f.evaluateFn(expr, out)
	}
	if p, ok := out.(*string); ok {
		*p = "complete"
	}
	return nil
}

func (f *fakeDriver) CountElements(ctx context.Context, selector string) (int, error) {
	f.record("count_elements")
	if f.countFn != nil {
		return f.countFn(selector)
	}
	return 0, nil
}

func (f *fakeDriver) Click(ctx context.Context, selector string) error {
	f.record("click")
	return nil
}

func (f *fakeDriver) Fill(ctx context.Context, selector, text string) error {
	f.record("fill")
	return nil
}

func (f *fakeDriver) WaitVisible(ctx context.Context, selector string) error {
	f.record("wait_visible")
	return nil
}

func (f *fakeDriver) PrintPDF(ctx context.Context) ([]byte, error) {
	f.record("print_pdf")
	return []byte("%PDF-1.4"), nil
}

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}
