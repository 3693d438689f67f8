package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"browsermcp/internal/domain"
	"browsermcp/internal/infra/tracer"
	"browsermcp/internal/search"
)

// SearchTool runs searches against the registered engines through the shared
// browser session. Successful responses are cached briefly so repeated
// identical queries do not burn browser time, and a per-engine throttle
// protects the upstream engines.
type SearchTool struct {
	orchestrator *search.Orchestrator
	limiter      *SearchThrottle
	cache        *searchCache
	logger       *slog.Logger
}

func NewSearchTool(orchestrator *search.Orchestrator, limiter *SearchThrottle, cacheTTL time.Duration, logger *slog.Logger) *SearchTool {
	return &SearchTool{
		orchestrator: orchestrator,
		limiter:      limiter,
		cache:        newSearchCache(cacheTTL),
		logger:       logger,
	}
}

func (t *SearchTool) Name() string { return "web_search" }

func (t *SearchTool) Description() string {
	return "Search an academic engine (google_scholar, pubmed, ieee, arxiv, medrxiv, biorxiv) " +
		"and return structured results with title, URL, and snippet."
}

func (t *SearchTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {
					"type": "string",
					"description": "Search query (1-512 characters)"
				},
				"engine": {
					"type": "string",
					"enum": ["google_scholar", "pubmed", "ieee", "arxiv", "medrxiv", "biorxiv"],
					"description": "Search engine to use",
					"default": "google_scholar"
				},
				"num_results": {
					"type": "integer",
					"minimum": 1,
					"maximum": 20,
					"description": "Maximum number of results",
					"default": 10
				}
			},
			"required": ["query"]
		}`),
	}
}

type searchParams struct {
	Query      string `json:"query"`
	Engine     string `json:"engine"`
	NumResults int    `json:"num_results"`
}

func (t *SearchTool) Execute(ctx context.Context, rawParams json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, t.Name(), t.logger, rawParams,
		func(ctx context.Context, span trace.Span, p searchParams) (any, error) {
			if err := RequireField("query", p.Query); err != nil {
				return ErrResult("%v", err)
			}
			if err := ValidateMaxLength("query", p.Query, search.MaxQueryLength); err != nil {
				return ErrResult("%v", err)
			}
			if err := ValidateRange("num_results", p.NumResults, 1, search.MaxNumResults); err != nil {
				return ErrResult("%v", err)
			}
			if p.Engine == "" {
				p.Engine = "google_scholar"
			}
			span.SetAttributes(
				tracer.StringAttr("search.engine", p.Engine),
				tracer.IntAttr("search.num_results", p.NumResults),
			)

			key := fmt.Sprintf("%s|%s|%d", p.Engine, p.Query, p.NumResults)
			if out, ok := t.cache.get(key); ok {
				t.logger.Debug("search cache hit", "engine", p.Engine, "query", p.Query)
				span.SetAttributes(tracer.StringAttr("search.cache", "hit"))
				return out, nil
			}

			if !t.limiter.Allow(p.Engine) {
				return ErrResult("search rate limit exceeded for engine %s, try again later", p.Engine)
			}

			out := t.orchestrator.Search(ctx, p.Query, p.Engine, p.NumResults)
			if out.Status == domain.StatusOK {
				t.cache.put(key, out)
			}
			span.SetAttributes(tracer.IntAttr("search.results", len(out.Results)))
			return out, nil
		})
}

// searchCache is a TTL cache for successful search responses.
type searchCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

type cacheEntry struct {
	out     *domain.SearchOutput
	expires time.Time
}

func newSearchCache(ttl time.Duration) *searchCache {
	return &searchCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (c *searchCache) get(key string) (*domain.SearchOutput, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || c.now().After(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e.out, true
}

func (c *searchCache) put(key string, out *domain.SearchOutput) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	// Opportunistic sweep keeps the map from growing unbounded.
	now := c.now()
	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = cacheEntry{out: out, expires: now.Add(c.ttl)}
}
