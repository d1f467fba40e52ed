package loopdetect

import "testing"

func TestNormalizeActionNavigateIgnoresNewTab(t *testing.T) {
	a := normalizeAction("navigate", map[string]any{"url": "https://example.com", "newTab": true})
	b := normalizeAction("navigate", map[string]any{"url": "https://example.com", "newTab": false})
	if a != b {
		t.Fatalf("expected newTab to be insignificant, got %q vs %q", a, b)
	}
}

func TestNormalizeActionClickPrefersIndex(t *testing.T) {
	a := normalizeAction("click-element", map[string]any{"index": float64(4), "selector": "#ignored"})
	b := normalizeAction("click-element", map[string]any{"index": float64(4)})
	if a != b {
		t.Fatalf("click-element hash key should depend only on index when present: %q vs %q", a, b)
	}
}

func TestNormalizeActionDefaultKeyOrderInsensitive(t *testing.T) {
	a := normalizeAction("fill-form", map[string]any{"b": "2", "a": "1"})
	b := normalizeAction("fill-form", map[string]any{"a": "1", "b": "2"})
	if a != b {
		t.Fatalf("default normalization should be key-order insensitive: %q vs %q", a, b)
	}
}

func TestNormalizeActionDefaultDropsNulls(t *testing.T) {
	a := normalizeAction("fill-form", map[string]any{"a": "1", "b": nil})
	b := normalizeAction("fill-form", map[string]any{"a": "1"})
	if a != b {
		t.Fatalf("default normalization should ignore null params: %q vs %q", a, b)
	}
}

func TestNormalizeActionSearchPageTokenOrderInsensitive(t *testing.T) {
	a := normalizeAction("search-page", map[string]any{"query": "open source software"})
	b := normalizeAction("search-page", map[string]any{"query": "software open SOURCE"})
	if a != b {
		t.Fatalf("search-page tokens should normalize order/case insensitively: %q vs %q", a, b)
	}
}
