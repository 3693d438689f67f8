package search

import (
	"errors"
	"strings"
	"testing"

	"browsermcp/internal/domain"
)

func TestEnginesClosedSet(t *testing.T) {
	want := []string{"arxiv", "biorxiv", "google_scholar", "ieee", "medrxiv", "pubmed"}
	got := Engines()
	if len(got) != len(want) {
		t.Fatalf("engines = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("engines = %v, want %v", got, want)
		}
	}
}

func TestLookupUnknownEngine(t *testing.T) {
	_, err := Lookup("duckduckgo")
	if !errors.Is(err, domain.ErrUnknownEngine) {
		t.Fatalf("err = %v, want ErrUnknownEngine", err)
	}
}

func TestDescriptorURLEncoding(t *testing.T) {
	d, err := Lookup("google_scholar")
	if err != nil {
		t.Fatal(err)
	}
	u := d.URL("transformer attention & memory", 10)
	if !strings.HasPrefix(u, "https://scholar.google.com/scholar?q=") {
		t.Fatalf("url = %q", u)
	}
	if !strings.Contains(u, "transformer+attention+%26+memory") {
		t.Fatalf("query not encoded: %q", u)
	}
	if !strings.Contains(u, "hl=en") {
		t.Fatalf("missing language param: %q", u)
	}
}

func TestPubmedSizeClamped(t *testing.T) {
	d, _ := Lookup("pubmed")
	u := d.URL("p53", 50)
	if !strings.Contains(u, "size=20") {
		t.Fatalf("url = %q, want size clamped to 20", u)
	}
}

func TestArxivURLCarriesSize(t *testing.T) {
	d, _ := Lookup("arxiv")
	u := d.URL("diffusion models", 10)
	if !strings.Contains(u, "size=10") {
		t.Fatalf("url = %q", u)
	}
	if !strings.Contains(u, "searchtype=all") {
		t.Fatalf("url = %q", u)
	}
}

func TestPreprintServersUsePathQuery(t *testing.T) {
	for _, id := range []string{"medrxiv", "biorxiv"} {
		d, _ := Lookup(id)
		u := d.URL("long covid", 10)
		if !strings.HasSuffix(u, "/search/long+covid") {
			t.Fatalf("%s url = %q", id, u)
		}
	}
}

func TestIEEEWaitBudgetExtended(t *testing.T) {
	ieee, _ := Lookup("ieee")
	scholar, _ := Lookup("google_scholar")
	if ieee.WaitBudget <= scholar.WaitBudget {
		t.Fatalf("ieee budget %v should exceed default %v", ieee.WaitBudget, scholar.WaitBudget)
	}
}

func TestDescriptorChainsNonEmpty(t *testing.T) {
	for _, id := range Engines() {
		d, _ := Lookup(id)
		if len(d.Containers) == 0 || len(d.Title) == 0 || len(d.Link) == 0 || len(d.Snippet) == 0 {
			t.Errorf("%s has an empty selector chain", id)
		}
		if d.BaseURL == "" {
			t.Errorf("%s has no base URL", id)
		}
	}
}
