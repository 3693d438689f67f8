package search

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"browsermcp/internal/domain"
)

const snippetMaxLength = 300

// ChainMatch records which selector in a fallback chain matched. For field
// chains, Selector and Index come from the first result extracted on the
// page and Count is how many results matched through that same selector.
type ChainMatch struct {
	Selector string
	Index    int
	Count    int
}

// Diagnostics describes how extraction went, per chain. Logged alongside
// results so selector drift on an engine is visible per field before it
// becomes an empty-result incident.
type Diagnostics struct {
	Container ChainMatch
	Title     ChainMatch
	Link      ChainMatch
	Snippet   ChainMatch
	Skipped   int
}

// note records a field-chain match: the first selector seen wins the slot,
// and repeat matches through it bump the count.
func (m *ChainMatch) note(selector string, index int) {
	if m.Selector == "" {
		m.Selector = selector
		m.Index = index
	}
	if m.Selector == selector {
		m.Count++
	}
}

// Extract parses search results out of a rendered page. A page where no
// container selector matches yields zero results and no error; per-result
// field failures skip that result and count it in Diagnostics.Skipped.
func Extract(html string, d *Descriptor, max int) ([]domain.SearchResult, Diagnostics, error) {
	var diag Diagnostics
	diag.Container.Index = -1
	diag.Title.Index = -1
	diag.Link.Index = -1
	diag.Snippet.Index = -1

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, diag, domain.NewDomainError("search.Extract", domain.ErrExtraction, err.Error())
	}

	var containers *goquery.Selection
	for i, sel := range d.Containers {
		found := doc.Find(sel)
		if found.Length() > 0 {
			containers = found
			diag.Container = ChainMatch{Selector: sel, Index: i, Count: found.Length()}
			break
		}
	}
	if containers == nil {
		return nil, diag, nil
	}

	results := make([]domain.SearchResult, 0, min(max, containers.Length()))
	containers.EachWithBreak(func(_ int, el *goquery.Selection) bool {
		if len(results) >= max {
			return false
		}
		res, ok := extractOne(el, d, &diag)
		if !ok {
			diag.Skipped++
			return true
		}
		results = append(results, res)
		return true
	})
	return results, diag, nil
}

// extractOne pulls one result out of a container element, noting which
// chain entry served each field. Title and URL are mandatory; a result
// missing either is discarded.
func extractOne(el *goquery.Selection, d *Descriptor, diag *Diagnostics) (domain.SearchResult, bool) {
	var res domain.SearchResult

	for i, sel := range d.Title {
		if t := el.Find(sel).First(); t.Length() > 0 {
			if text := collapseSpace(t.Text()); text != "" {
				res.Title = text
				diag.Title.note(sel, i)
				break
			}
		}
	}
	if res.Title == "" {
		return res, false
	}

	for i, sel := range d.Link {
		if a := el.Find(sel).First(); a.Length() > 0 {
			if href, ok := a.Attr("href"); ok && href != "" {
				res.URL = resolveURL(d.BaseURL, href)
				diag.Link.note(sel, i)
				break
			}
		}
	}
	if res.URL == "" {
		return res, false
	}

	for i, sel := range d.Snippet {
		if s := el.Find(sel).First(); s.Length() > 0 {
			res.Snippet = truncate(collapseSpace(s.Text()), snippetMaxLength)
			diag.Snippet.note(sel, i)
			break
		}
	}

	return res, true
}

// resolveURL makes href absolute against the engine base. Already-absolute
// hrefs pass through unchanged.
func resolveURL(base, href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if u.IsAbs() {
		return href
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	return b.ResolveReference(u).String()
}

// collapseSpace trims and collapses runs of whitespace to single spaces.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate caps s at n runes, appending an ellipsis when cut.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
