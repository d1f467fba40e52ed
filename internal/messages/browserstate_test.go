package messages

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vektra-dev/browseragent/internal/agentcore"
)

func TestRenderBrowserStateStartAndEndMarkers(t *testing.T) {
	b := agentcore.BrowserStateSummary{
		URL:          "https://example.com",
		Title:        "Example",
		PageStats:    agentcore.PageStats{TotalElements: 12},
		Scroll:       agentcore.ScrollInfo{PagesAbove: 0, PagesBelow: 0},
		ElementsText: "[1]<a>link</a>",
	}
	out := renderBrowserState(b)
	assert.True(t, strings.Contains(out, "[Start of page]"))
	assert.True(t, strings.Contains(out, "[End of page]"))
}

func TestRenderBrowserStateEmptyListing(t *testing.T) {
	b := agentcore.BrowserStateSummary{PageStats: agentcore.PageStats{TotalElements: 2}}
	out := renderBrowserState(b)
	assert.Contains(t, out, "empty page")
	assert.Contains(t, out, "Page appears empty (SPA not loaded?) -")
}

func TestRenderBrowserStateNoMarkersWhenScrolled(t *testing.T) {
	b := agentcore.BrowserStateSummary{
		PageStats:    agentcore.PageStats{TotalElements: 50},
		Scroll:       agentcore.ScrollInfo{PagesAbove: 1.2, PagesBelow: 0.8},
		ElementsText: "[1]<a>link</a>",
	}
	out := renderBrowserState(b)
	assert.False(t, strings.Contains(out, "[Start of page]"))
	assert.False(t, strings.Contains(out, "[End of page]"))
}
