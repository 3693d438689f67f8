package domain

// Status values carried by every tool response. Status is the single
// authoritative success/failure signal at the tool boundary.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// NavigationResult is the outcome of one navigation operation. It is
// constructed once per call and never mutated after return.
type NavigationResult struct {
	FinalURL string         `json:"final_url"`
	Title    string         `json:"title"`
	HTML     string         `json:"html"`
	Status   string         `json:"status"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata"`
}

// SearchResult is one extracted search hit. URL is always absolute.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// SearchOutput is the full web_search tool response.
type SearchOutput struct {
	Results  []SearchResult `json:"results"`
	Query    string         `json:"query"`
	Engine   string         `json:"engine"`
	Status   string         `json:"status"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata"`
}

// ConversionOutput is the convert_to_markdown tool response.
type ConversionOutput struct {
	Markdown          string         `json:"markdown"`
	OriginalFormat    string         `json:"original_format"`
	ConversionSuccess bool           `json:"conversion_success"`
	Status            string         `json:"status"`
	Error             string         `json:"error,omitempty"`
	Metadata          map[string]any `json:"metadata"`
}
