package extract

import (
	"errors"
	"strings"
	"testing"
)

const page = `<!DOCTYPE html>
<html><head><title>news</title>
<style>.portlet { color: red }</style>
</head><body>
<div id="header">Embassy of Examplestan</div>
<main>
  <div class="portlet wide">
    <h2>Consular   notices</h2>
    <script>trackPageView()</script>
    <ul class="news-list">
      <li>Visa section closed May 1</li>
      <li>New appointment rules</li>
    </ul>
  </div>
  <div class="portlet">Second portlet</div>
  <span role="status" data-live>operational</span>
</main>
</body></html>`

func TestExtractByClass(t *testing.T) {
	got, err := New().Extract([]byte(page), ".portlet")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Consular notices", "Visa section closed May 1", "Second portlet"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in %q", want, got)
		}
	}
	if strings.Contains(got, "trackPageView") {
		t.Errorf("script text leaked into extraction: %q", got)
	}
	if strings.Contains(got, "color: red") {
		t.Errorf("style text leaked into extraction: %q", got)
	}
}

func TestExtractSelectors(t *testing.T) {
	tests := []struct {
		name     string
		selector string
		want     string
	}{
		{"by id", "#header", "Embassy of Examplestan"},
		{"tag with class", "div.portlet", "Consular notices"},
		{"descendant", "main ul.news-list", "Visa section closed May 1"},
		{"attr present", "span[data-live]", "operational"},
		{"attr value", "span[role=status]", "operational"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := New().Extract([]byte(page), tt.selector)
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(got, tt.want) {
				t.Errorf("Extract(%q) = %q, want substring %q", tt.selector, got, tt.want)
			}
		})
	}
}

func TestExtractNoMatch(t *testing.T) {
	_, err := New().Extract([]byte(page), ".does-not-exist")
	if !errors.Is(err, ErrNoMatch) {
		t.Fatalf("expected ErrNoMatch, got %v", err)
	}
}

func TestExtractMalformedSelector(t *testing.T) {
	// A broken selector is a configuration error, not a missing fragment.
	for _, sel := range []string{"div[foo", "main div[foo", "[", "."} {
		_, err := New().Extract([]byte(page), sel)
		if err == nil {
			t.Errorf("Extract(%q): expected error", sel)
			continue
		}
		if errors.Is(err, ErrNoMatch) {
			t.Errorf("Extract(%q) reported ErrNoMatch for a malformed selector: %v", sel, err)
		}
	}
}

func TestExtractEmptySelector(t *testing.T) {
	if _, err := New().Extract([]byte(page), "   "); err == nil {
		t.Fatal("expected error for empty selector")
	}
}

func TestExtractDocumentOrder(t *testing.T) {
	got, err := New().Extract([]byte(page), ".portlet")
	if err != nil {
		t.Fatal(err)
	}
	first := strings.Index(got, "Consular notices")
	second := strings.Index(got, "Second portlet")
	if first < 0 || second < 0 || first > second {
		t.Fatalf("matches out of document order: %q", got)
	}
}
