package tools

import "context"

// Result is the uniform shape the core consumes regardless of tool. Only
// one of Data's fields is normally populated per call.
type Result struct {
	Success bool
	Data    *ResultData
	Error   string
}

// ResultData carries the per-tool payload the Agent Runner knows how to map
// onto an AgentActionResult.
type ResultData struct {
	ImageURL    string // data URL, mapped to extractedImage
	Text        string // mapped to extractedContent (truncated to 2000 chars by the runner)
	Description string // mapped to description
	Raw         string // opaque string payload, mapped to extractedContent verbatim
}

// Executor performs one named tool call against the active tab. The core
// never inspects Data's internals beyond the fields above.
type Executor interface {
	Execute(ctx context.Context, tool string, params map[string]any) (Result, error)
}
