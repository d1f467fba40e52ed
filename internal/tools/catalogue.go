// Package tools defines the closed tool catalogue the core advertises to
// the LLM, the Executor contract the Agent Runner dispatches through, and a
// Playwright-backed reference implementation.
package tools

// Spec describes one tool entry for the system prompt: name, one-line
// purpose, and its parameter shape rendered as a short argument list.
type Spec struct {
	Name        string
	Description string
	Params      string // e.g. "index:int" or "url:string, newTab?:bool"
}

// Catalogue is the closed set of tools the core advertises to the LLM. Order
// matches the system-prompt block so the rendered prompt is stable across
// runs.
func Catalogue() []Spec {
	return []Spec{
		{"navigate", "Go to a URL, optionally in a new tab.", "url:string, newTab?:bool"},
		{"go-back", "Navigate back in browser history.", "(none)"},
		{"click-element", "Click an indexed element, or a point if no index is available.", "index?:int, x?:number, y?:number"},
		{"type-text", "Type text into an indexed element or the currently focused one.", "index?:int, text:string"},
		{"scroll", "Scroll the page or an indexed container up or down.", "direction:'up'|'down', index?:int, amount?:number"},
		{"send-keys", "Send a keyboard shortcut (e.g. Enter, Escape, Tab) to the page.", "keys:string"},
		{"wait-for-element", "Wait until an indexed element appears; selectors are not supported.", "index:int, timeoutMs?:int"},
		{"wait-for-navigation", "Wait for the current navigation to settle.", "timeoutMs?:int"},
		{"search-page", "Find on-page text matches and return the matching text snippets (at most 20).", "query:string"},
		{"find-elements", "Find indexed elements whose text or aria-label matches a query.", "query:string"},
		{"get-page-text", "Return the page's visible text content.", "(none)"},
		{"get-elements", "Return the current indexed element listing.", "(none)"},
		{"get-dropdown-options", "List the options of an indexed select element.", "index:int"},
		{"select-dropdown-option", "Select an option of an indexed select element by visible text.", "index:int, text:string"},
		{"evaluate-js", "Run a short JavaScript expression in the page and return its result.", "script:string"},
		{"capture-visible-tab", "Capture a screenshot of the visible viewport.", "(none)"},
		{"extract-links", "Return the page's links as (text, href) pairs.", "(none)"},
		{"get-page-metadata", "Return the page title, URL, and meta description.", "(none)"},
		{"highlight-element", "Draw a temporary highlight box around an indexed element.", "index:int"},
		{"fill-form", "Fill multiple indexed form fields in one call.", "fields: [{index:int, text:string}]"},
		{"done", "Signal task completion. Must be the only action in its step.", "text:string, success:bool"},
	}
}

// Names returns the catalogue's tool names in declaration order.
func Names() []string {
	cat := Catalogue()
	names := make([]string, len(cat))
	for i, s := range cat {
		names[i] = s.Name
	}
	return names
}

// PageChanging reports whether the named tool is known to replace the URL
// or document, meaning the executor must abort the remainder of the step's
// action list after running it.
func PageChanging(tool string) bool {
	switch tool {
	case "navigate", "go-back", "click-element":
		return true
	default:
		return false
	}
}
