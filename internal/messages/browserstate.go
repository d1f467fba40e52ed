package messages

import (
	"fmt"
	"strings"

	"github.com/vektra-dev/browseragent/internal/agentcore"
)

// renderBrowserState renders the <browser_state> block: page statistics,
// URL/title, scroll position, and the indexed element listing.
func renderBrowserState(b agentcore.BrowserStateSummary) string {
	var out strings.Builder
	out.WriteString("<browser_state>\n")

	stats := b.PageStats
	preamble := ""
	if stats.TotalElements < 10 {
		preamble = "Page appears empty (SPA not loaded?) - "
	}
	fmt.Fprintf(&out, "<page_stats>%slinks=%d interactive=%d iframes=%d images=%d total=%d</page_stats>\n",
		preamble, stats.Links, stats.Interactive, stats.Iframes, stats.Images, stats.TotalElements)

	fmt.Fprintf(&out, "URL: %s\nTitle: %s\n", b.URL, b.Title)

	scroll := b.Scroll
	fmt.Fprintf(&out, "<page_info>%.1f pages above, %.1f pages below (%d px above, %d px below)</page_info>\n",
		scroll.PagesAbove, scroll.PagesBelow, scroll.PixelsAbove, scroll.PixelsBelow)

	listing := b.ElementsText
	if strings.TrimSpace(listing) == "" {
		listing = "empty page"
	} else {
		if scroll.PagesAbove <= 0 {
			listing = "[Start of page]\n" + listing
		}
		if scroll.PagesBelow <= 0 {
			listing = listing + "\n[End of page]"
		}
	}
	out.WriteString(listing)
	out.WriteString("\n</browser_state>\n")
	return out.String()
}
