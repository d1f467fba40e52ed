package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/vektra-dev/browseragent/internal/browserhost"
)

const defaultWaitTimeout = 10 * time.Second

// PlaywrightExecutor is the reference Executor implementation, dispatching
// each catalogue tool onto a browserhost.Host.
type PlaywrightExecutor struct {
	host browserhost.Host
}

// NewPlaywrightExecutor wraps a browserhost.Host as an Executor.
func NewPlaywrightExecutor(host browserhost.Host) *PlaywrightExecutor {
	return &PlaywrightExecutor{host: host}
}

func (e *PlaywrightExecutor) Execute(ctx context.Context, tool string, params map[string]any) (Result, error) {
	switch tool {
	case "navigate":
		url, _ := params["url"].(string)
		newTab, _ := params["newTab"].(bool)
		if err := e.host.Navigate(ctx, url, newTab); err != nil {
			return fail(err)
		}
		return ok(&ResultData{Description: "navigated to " + url}), nil

	case "go-back":
		if err := e.host.GoBack(ctx); err != nil {
			return fail(err)
		}
		return ok(&ResultData{Description: "navigated back"}), nil

	case "click-element":
		if idx, has := intParam(params, "index"); has {
			if err := e.host.ClickByIndex(ctx, idx); err != nil {
				return fail(err)
			}
			return ok(&ResultData{Description: fmt.Sprintf("clicked element %d", idx)}), nil
		}
		x, xOK := floatParam(params, "x")
		y, yOK := floatParam(params, "y")
		if xOK && yOK {
			if err := e.host.ClickByCoordinates(ctx, x, y); err != nil {
				return fail(err)
			}
			return ok(&ResultData{Description: "clicked coordinates"}), nil
		}
		return fail(fmt.Errorf("click-element requires index or x/y"))

	case "type-text":
		idx, _ := intParam(params, "index")
		text, _ := params["text"].(string)
		if err := e.host.TypeText(ctx, idx, text); err != nil {
			return fail(err)
		}
		return ok(&ResultData{Description: "typed text"}), nil

	case "scroll":
		direction, _ := params["direction"].(string)
		idx, _ := intParam(params, "index")
		amount, _ := floatParam(params, "amount")
		if err := e.host.Scroll(ctx, direction, idx, amount); err != nil {
			return fail(err)
		}
		return ok(&ResultData{Description: "scrolled " + direction}), nil

	case "send-keys":
		keys, _ := params["keys"].(string)
		if err := e.host.SendKeys(ctx, keys); err != nil {
			return fail(err)
		}
		return ok(&ResultData{Description: "sent keys " + keys}), nil

	case "wait-for-element":
		idx, _ := intParam(params, "index")
		timeout := durationParam(params, "timeoutMs", defaultWaitTimeout)
		if err := e.host.WaitForElement(ctx, idx, timeout); err != nil {
			return fail(err)
		}
		return ok(&ResultData{Description: "element appeared"}), nil

	case "wait-for-navigation":
		timeout := durationParam(params, "timeoutMs", defaultWaitTimeout)
		if err := e.host.WaitForNavigation(ctx, timeout); err != nil {
			return fail(err)
		}
		return ok(&ResultData{Description: "navigation settled"}), nil

	case "search-page":
		query, _ := params["query"].(string)
		raw, err := e.host.Evaluate(ctx, searchPageScript, query)
		if err != nil {
			return fail(err)
		}
		return ok(&ResultData{Text: fmt.Sprintf("%v", raw)}), nil

	case "find-elements":
		query, _ := params["query"].(string)
		raw, err := e.host.Evaluate(ctx, findElementsScript, query)
		if err != nil {
			return fail(err)
		}
		return ok(&ResultData{Text: fmt.Sprintf("%v", raw)}), nil

	case "get-page-text":
		raw, err := e.host.Evaluate(ctx, `() => document.body ? document.body.innerText : ''`, nil)
		if err != nil {
			return fail(err)
		}
		text, _ := raw.(string)
		return ok(&ResultData{Text: text}), nil

	case "get-elements":
		summary, err := browserhost.Extract(ctx, e.host, 40000, false)
		if err != nil {
			return fail(err)
		}
		return ok(&ResultData{Text: summary.ElementsText}), nil

	case "get-dropdown-options":
		idx, _ := intParam(params, "index")
		opts, err := e.host.DropdownOptions(ctx, idx)
		if err != nil {
			return fail(err)
		}
		return ok(&ResultData{Text: fmt.Sprintf("%v", opts)}), nil

	case "select-dropdown-option":
		idx, _ := intParam(params, "index")
		text, _ := params["text"].(string)
		if err := e.host.SelectDropdownOption(ctx, idx, text); err != nil {
			return fail(err)
		}
		return ok(&ResultData{Description: "selected option " + text}), nil

	case "evaluate-js":
		script, _ := params["script"].(string)
		raw, err := e.host.Evaluate(ctx, fmt.Sprintf("() => { return (%s); }", script), nil)
		if err != nil {
			return fail(err)
		}
		return ok(&ResultData{Text: fmt.Sprintf("%v", raw)}), nil

	case "capture-visible-tab":
		shot, err := e.host.Screenshot(ctx)
		if err != nil {
			return fail(err)
		}
		return ok(&ResultData{ImageURL: shot, Description: "screenshot captured"}), nil

	case "extract-links":
		links, err := e.host.ExtractLinks(ctx)
		if err != nil {
			return fail(err)
		}
		return ok(&ResultData{Text: fmt.Sprintf("%v", links)}), nil

	case "get-page-metadata":
		meta, err := e.host.PageMetadata(ctx)
		if err != nil {
			return fail(err)
		}
		return ok(&ResultData{Text: fmt.Sprintf("%+v", meta)}), nil

	case "highlight-element":
		idx, _ := intParam(params, "index")
		if err := e.host.HighlightElement(ctx, idx); err != nil {
			return fail(err)
		}
		return ok(&ResultData{Description: fmt.Sprintf("highlighted element %d", idx)}), nil

	case "fill-form":
		fields, _ := params["fields"].([]any)
		for _, f := range fields {
			fm, ok := f.(map[string]any)
			if !ok {
				continue
			}
			idx, _ := intParam(fm, "index")
			text, _ := fm["text"].(string)
			if err := e.host.TypeText(ctx, idx, text); err != nil {
				return fail(err)
			}
		}
		return ok(&ResultData{Description: fmt.Sprintf("filled %d fields", len(fields))}), nil

	case "done":
		text, _ := params["text"].(string)
		success, _ := params["success"].(bool)
		return Result{Success: success, Data: &ResultData{Text: text}}, nil

	default:
		return fail(fmt.Errorf("unknown tool %q", tool))
	}
}

func ok(data *ResultData) Result     { return Result{Success: true, Data: data} }
func fail(err error) (Result, error) { return Result{Success: false, Error: err.Error()}, nil }

func intParam(params map[string]any, key string) (int, bool) {
	v, has := params[key]
	if !has || v == nil {
		return 0, false
	}
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	return int(f), true
}

func floatParam(params map[string]any, key string) (float64, bool) {
	v, has := params[key]
	if !has || v == nil {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

func durationParam(params map[string]any, key string, def time.Duration) time.Duration {
	ms, ok := intParam(params, key)
	if !ok || ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

const searchPageScript = `(query) => {
	const q = (query || '').toLowerCase();
	if (!q) return [];
	const matches = [];
	const walker = document.createTreeWalker(document.body, NodeFilter.SHOW_TEXT);
	let node;
	while ((node = walker.nextNode())) {
		const text = node.textContent || '';
		if (text.toLowerCase().includes(q)) {
			matches.push(text.trim().slice(0, 150));
			if (matches.length >= 20) break;
		}
	}
	return matches;
}`

const findElementsScript = `(query) => {
	const q = (query || '').toLowerCase();
	const els = document.querySelectorAll('[data-ba-idx]');
	const matches = [];
	for (const el of els) {
		const text = (el.innerText || el.textContent || '').toLowerCase();
		const label = (el.getAttribute('aria-label') || '').toLowerCase();
		if (text.includes(q) || label.includes(q)) {
			matches.push(el.getAttribute('data-ba-idx'));
		}
	}
	return matches;
}`
