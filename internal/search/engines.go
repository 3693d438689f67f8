package search

import (
	"fmt"
	"net/url"
	"sort"
	"time"

	"browsermcp/internal/domain"
)

// Descriptor is one search engine: where to go and how to recognize results
// in the rendered page. Selector chains are ordered most-specific first;
// extraction uses the first selector in a chain that matches, so markup
// drift on an engine degrades to the next selector instead of breaking.
type Descriptor struct {
	ID      string
	BaseURL string
	// WaitBudget bounds the readiness wait for this engine's result pages.
	WaitBudget time.Duration

	// Containers locate result blocks within the page.
	Containers []string
	// Title, Link, Snippet locate fields within one result block. Link
	// selectors must address elements carrying an href.
	Title   []string
	Link    []string
	Snippet []string

	buildURL func(query string, num int) string
}

// URL builds the result page URL for a query. num is the requested result
// count; engines with a server-side size parameter clamp it themselves.
func (d *Descriptor) URL(query string, num int) string {
	return d.buildURL(url.QueryEscape(query), num)
}

const defaultWaitBudget = 15 * time.Second

var registry = map[string]*Descriptor{
	"google_scholar": {
		ID:         "google_scholar",
		BaseURL:    "https://scholar.google.com",
		WaitBudget: defaultWaitBudget,
		Containers: []string{".gs_r.gs_or.gs_scl", ".gs_ri", "[data-lid]"},
		Title:      []string{"h3.gs_rt a", ".gs_rt a", "h3 a", ".gs_rt"},
		Link:       []string{"h3.gs_rt a", ".gs_rt a"},
		Snippet:    []string{".gs_rs", ".gs_a + div", ".gs_fl + div"},
		buildURL: func(q string, num int) string {
			return fmt.Sprintf("https://scholar.google.com/scholar?q=%s&hl=en&as_sdt=0,5", q)
		},
	},
	"pubmed": {
		ID:         "pubmed",
		BaseURL:    "https://pubmed.ncbi.nlm.nih.gov",
		WaitBudget: defaultWaitBudget,
		Containers: []string{"article.full-docsum", ".docsum-wrap", ".docsum-content"},
		Title:      []string{".docsum-title a", "h1 a", ".title a"},
		Link:       []string{".docsum-title a", "h1 a", ".title a"},
		Snippet:    []string{".full-view-snippet", ".docsum-snippet", ".abstract"},
		buildURL: func(q string, num int) string {
			return fmt.Sprintf("https://pubmed.ncbi.nlm.nih.gov/?term=%s&size=%d", q, min(num, 20))
		},
	},
	"ieee": {
		ID:      "ieee",
		BaseURL: "https://ieeexplore.ieee.org",
		// IEEE renders results client-side and needs extra headroom.
		WaitBudget: 20 * time.Second,
		Containers: []string{".List-results-items", ".result-item", ".document"},
		Title:      []string{".result-item-title a", "h2 a", ".title a"},
		Link:       []string{".result-item-title a", "h2 a", ".title a"},
		Snippet:    []string{".description", ".abstract", ".snippet"},
		buildURL: func(q string, num int) string {
			return fmt.Sprintf("https://ieeexplore.ieee.org/search/searchresult.jsp?queryText=%s", q)
		},
	},
	"arxiv": {
		ID:         "arxiv",
		BaseURL:    "https://arxiv.org",
		WaitBudget: defaultWaitBudget,
		Containers: []string{"li.arxiv-result", ".list-item", "ol li"},
		Title:      []string{".list-title a", "p.title a", ".title a"},
		Link:       []string{".list-title a", "p.title a", ".title a"},
		Snippet:    []string{".list-abstract", "p.abstract", ".abstract"},
		buildURL: func(q string, num int) string {
			return fmt.Sprintf("https://arxiv.org/search/?query=%s&searchtype=all&abstracts=show&order=-announced_date_first&size=%d", q, min(num, 25))
		},
	},
	"medrxiv": {
		ID:         "medrxiv",
		BaseURL:    "https://www.medrxiv.org",
		WaitBudget: defaultWaitBudget,
		Containers: []string{".highwire-cite", ".search-result", ".result-item"},
		Title:      []string{".highwire-cite-title a", ".citation-title a", ".title a"},
		Link:       []string{".highwire-cite-title a", ".citation-title a", ".title a"},
		Snippet:    []string{".highwire-cite-snippet", ".citation-snippet", ".abstract"},
		buildURL: func(q string, num int) string {
			return "https://www.medrxiv.org/search/" + q
		},
	},
	"biorxiv": {
		ID:         "biorxiv",
		BaseURL:    "https://www.biorxiv.org",
		WaitBudget: defaultWaitBudget,
		Containers: []string{".highwire-cite", ".search-result", ".result-item"},
		Title:      []string{".highwire-cite-title a", ".citation-title a", ".title a"},
		Link:       []string{".highwire-cite-title a", ".citation-title a", ".title a"},
		Snippet:    []string{".highwire-cite-snippet", ".citation-snippet", ".abstract"},
		buildURL: func(q string, num int) string {
			return "https://www.biorxiv.org/search/" + q
		},
	},
}

// Lookup returns the descriptor for an engine ID. The engine set is closed;
// unknown IDs fail with ErrUnknownEngine.
func Lookup(id string) (*Descriptor, error) {
	d, ok := registry[id]
	if !ok {
		return nil, domain.NewDomainError("search.Lookup", domain.ErrUnknownEngine, id)
	}
	return d, nil
}

// Engines returns all registered engine IDs, sorted.
func Engines() []string {
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
