package browserhost

import (
	"context"
	"errors"
	"fmt"

	"github.com/vektra-dev/browseragent/internal/agentcore"
)

// ErrNoActiveTab is returned when the Host has no page to script.
var ErrNoActiveTab = errors.New("no active tab")

// ErrExtractionEmpty is returned when the injected script produced no
// result at all (as opposed to an empty-but-valid page).
var ErrExtractionEmpty = errors.New("extraction returned no result")

// Extract runs the page-scripted extraction algorithm against the Host's
// active tab and, if useVision is set, captures a viewport screenshot.
// Screenshot capture failures are swallowed: they are common on
// privileged URLs the extension cannot script.
func Extract(ctx context.Context, h Host, maxElementsLength int, useVision bool) (agentcore.BrowserStateSummary, error) {
	if h == nil || h.Page() == nil {
		return agentcore.BrowserStateSummary{}, ErrNoActiveTab
	}

	raw, err := h.Evaluate(ctx, extractionScript, maxElementsLength)
	if err != nil {
		return agentcore.BrowserStateSummary{}, fmt.Errorf("run extraction script: %w", err)
	}
	if raw == nil {
		return agentcore.BrowserStateSummary{}, ErrExtractionEmpty
	}

	result, ok := raw.(map[string]any)
	if !ok {
		return agentcore.BrowserStateSummary{}, ErrExtractionEmpty
	}

	summary := agentcore.BrowserStateSummary{
		URL:          stringField(result, "url"),
		Title:        stringField(result, "title"),
		ElementsText: stringField(result, "elementsText"),
		ElementCount: intField(result, "elementCount"),
		PageStats:    decodePageStats(result["pageStats"]),
		Scroll:       decodeScrollInfo(result["scroll"]),
	}

	if useVision {
		if shot, err := h.Screenshot(ctx); err == nil {
			summary.Screenshot = shot
		}
	}

	return summary, nil
}

func decodePageStats(raw any) agentcore.PageStats {
	m, ok := raw.(map[string]any)
	if !ok {
		return agentcore.PageStats{}
	}
	return agentcore.PageStats{
		Links:         intField(m, "links"),
		Interactive:   intField(m, "interactive"),
		Iframes:       intField(m, "iframes"),
		Images:        intField(m, "images"),
		TotalElements: intField(m, "totalElements"),
	}
}

func decodeScrollInfo(raw any) agentcore.ScrollInfo {
	m, ok := raw.(map[string]any)
	if !ok {
		return agentcore.ScrollInfo{}
	}
	return agentcore.ScrollInfo{
		PagesAbove:  floatField(m, "pagesAbove"),
		PagesBelow:  floatField(m, "pagesBelow"),
		PixelsAbove: intField(m, "pixelsAbove"),
		PixelsBelow: intField(m, "pixelsBelow"),
	}
}

func intField(m map[string]any, key string) int {
	v, ok := m[key]
	if !ok {
		return 0
	}
	f, ok := v.(float64)
	if !ok {
		return 0
	}
	return int(f)
}

func floatField(m map[string]any, key string) float64 {
	v, ok := m[key]
	if !ok {
		return 0
	}
	f, ok := v.(float64)
	if !ok {
		return 0
	}
	return f
}
