package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadgen/internal/common"
	"github.com/ternarybob/leadgen/internal/models"
)

const listingsHTML = `<!DOCTYPE html>
<html><body>
<div class="listing">
  <span class="agent-name">Jane Smith</span>
  <span class="agent-email">jane@acme.example.com</span>
  <span class="agent-phone">+61 412 345 678</span>
  <span class="price">$1,250,000</span>
  <span class="suburb">Bondi Beach</span>
  <span class="type">Apartment</span>
  <a class="detail" href="/listing/123">View</a>
</div>
<div class="listing">
  <span class="agent-name">John Doe</span>
  <span class="price">$890,000</span>
  <span class="suburb">Coogee</span>
</div>
<div class="listing">
  <span class="price">$500,000</span>
</div>
</body></html>`

func testSourceConfig(serverURL string) common.SourceConfig {
	return common.SourceConfig{
		Name:      "acme-listings",
		URL:       serverURL + "/search?q={query}&loc={location}",
		RateLimit: 100,
		Selectors: common.SourceSelectors{
			Item:         ".listing",
			Name:         ".agent-name",
			Email:        ".agent-email",
			Phone:        ".agent-phone",
			Price:        ".price",
			Location:     ".suburb",
			PropertyType: ".type",
			Link:         "a.detail",
		},
	}
}

func TestWebProviderSearch(t *testing.T) {
	var gotQuery, gotLoc string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotLoc = r.URL.Query().Get("loc")
		fmt.Fprint(w, listingsHTML)
	}))
	defer server.Close()

	provider := NewWebProvider(testSourceConfig(server.URL), arbor.NewLogger())

	listings, err := provider.Search(context.Background(), "beachfront apartments", models.LeadFilters{Location: "Sydney"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if gotQuery != "beachfront apartments" {
		t.Errorf("query param = %q", gotQuery)
	}
	if gotLoc != "Sydney" {
		t.Errorf("location param = %q", gotLoc)
	}

	// Third listing has no name and is dropped
	if len(listings) != 2 {
		t.Fatalf("len(listings) = %d, want 2", len(listings))
	}

	first := listings[0]
	if first.Name != "Jane Smith" {
		t.Errorf("Name = %q", first.Name)
	}
	if first.Email != "jane@acme.example.com" {
		t.Errorf("Email = %q", first.Email)
	}
	if first.PriceText != "$1,250,000" {
		t.Errorf("PriceText = %q", first.PriceText)
	}
	if first.URL != "/listing/123" {
		t.Errorf("URL = %q", first.URL)
	}
	if first.SourceName != "acme-listings" {
		t.Errorf("SourceName = %q", first.SourceName)
	}

	if listings[1].Email != "" {
		t.Errorf("second listing Email = %q, want empty", listings[1].Email)
	}
}

func TestWebProviderMaxResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listingsHTML)
	}))
	defer server.Close()

	cfg := testSourceConfig(server.URL)
	cfg.MaxResults = 1
	provider := NewWebProvider(cfg, arbor.NewLogger())

	listings, err := provider.Search(context.Background(), "anything", models.LeadFilters{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(listings) != 1 {
		t.Errorf("len(listings) = %d, want 1", len(listings))
	}
}

func TestWebProviderRetriesServerErrors(t *testing.T) {
	var calls int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, listingsHTML)
	}))
	defer server.Close()

	provider := NewWebProvider(testSourceConfig(server.URL), arbor.NewLogger())

	listings, err := provider.Search(context.Background(), "retry", models.LeadFilters{})
	if err != nil {
		t.Fatalf("Search should succeed after retries: %v", err)
	}
	if len(listings) == 0 {
		t.Error("expected listings after retry")
	}
	if got := atomic.LoadInt64(&calls); got != 3 {
		t.Errorf("server calls = %d, want 3", got)
	}
}

func TestWebProviderPermanentFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	provider := NewWebProvider(testSourceConfig(server.URL), arbor.NewLogger())

	_, err := provider.Search(context.Background(), "missing", models.LeadFilters{})
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
}

func TestRegistry(t *testing.T) {
	configs := []common.SourceConfig{
		{Name: "alpha", URL: "https://alpha.example.com/search?q={query}"},
		{Name: "beta", URL: "https://beta.example.com/search?q={query}"},
		{Name: "", URL: "https://skipped.example.com"}, // skipped: no name
	}

	registry := NewRegistry(configs, arbor.NewLogger())

	names := registry.Names()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "beta" {
		t.Errorf("Names() = %v", names)
	}

	if _, ok := registry.Get("alpha"); !ok {
		t.Error("Get(alpha) should succeed")
	}
	if _, ok := registry.Get("missing"); ok {
		t.Error("Get(missing) should fail")
	}
	if got := len(registry.All()); got != 2 {
		t.Errorf("len(All()) = %d, want 2", got)
	}
}
