package runner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vektra-dev/browseragent/internal/agentcore"
	"github.com/vektra-dev/browseragent/internal/browserhost"
	"github.com/vektra-dev/browseragent/internal/llm"
	"github.com/vektra-dev/browseragent/internal/tools"
)

// fakeHost satisfies browserhost.Host with a stable page observation; it
// never needs a real Playwright page because Extract only checks that
// Page() is non-nil and then scripts through Evaluate.
type fakeHost struct {
	url          string
	elementCount int
}

// fakePage is a non-nil playwright.Page whose methods are never called.
type fakePage struct{ playwright.Page }

func (f *fakeHost) Page() playwright.Page                                      { return fakePage{} }
func (f *fakeHost) Close(ctx context.Context) error                            { return nil }
func (f *fakeHost) Navigate(ctx context.Context, url string, newTab bool) error { return nil }
func (f *fakeHost) GoBack(ctx context.Context) error                           { return nil }
func (f *fakeHost) ClickByIndex(ctx context.Context, index int) error          { return nil }
func (f *fakeHost) ClickByCoordinates(ctx context.Context, x, y float64) error { return nil }
func (f *fakeHost) TypeText(ctx context.Context, index int, text string) error { return nil }
func (f *fakeHost) Scroll(ctx context.Context, direction string, index int, amount float64) error {
	return nil
}
func (f *fakeHost) SendKeys(ctx context.Context, keys string) error { return nil }
func (f *fakeHost) WaitForElement(ctx context.Context, index int, timeout time.Duration) error {
	return nil
}
func (f *fakeHost) WaitForNavigation(ctx context.Context, timeout time.Duration) error { return nil }

func (f *fakeHost) Evaluate(ctx context.Context, script string, arg any) (any, error) {
	return map[string]any{
		"pageStats":    map[string]any{"links": float64(1), "interactive": float64(2), "iframes": float64(0), "images": float64(0), "totalElements": float64(20)},
		"scroll":       map[string]any{"pagesAbove": float64(0), "pagesBelow": float64(1), "pixelsAbove": float64(0), "pixelsBelow": float64(500)},
		"elementsText": "[1]<button>Go</button>",
		"elementCount": float64(f.elementCount),
		"url":          f.url,
		"title":        "Fake Page",
	}, nil
}
func (f *fakeHost) Screenshot(ctx context.Context) (string, error) { return "", nil }
func (f *fakeHost) ExtractLinks(ctx context.Context) ([]browserhost.LinkInfo, error) {
	return nil, nil
}
func (f *fakeHost) PageMetadata(ctx context.Context) (browserhost.Metadata, error) {
	return browserhost.Metadata{}, nil
}
func (f *fakeHost) HighlightElement(ctx context.Context, index int) error { return nil }
func (f *fakeHost) DropdownOptions(ctx context.Context, index int) ([]string, error) {
	return nil, nil
}
func (f *fakeHost) SelectDropdownOption(ctx context.Context, index int, text string) error {
	return nil
}

// fakeExecutor records every call it receives and returns scripted results
// keyed by tool name, defaulting to a bare success.
type fakeExecutor struct {
	mu      sync.Mutex
	calls   []string
	results map[string]tools.Result
	errs    map[string]error
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{results: map[string]tools.Result{}, errs: map[string]error{}}
}

func (e *fakeExecutor) Execute(ctx context.Context, tool string, params map[string]any) (tools.Result, error) {
	e.mu.Lock()
	e.calls = append(e.calls, tool)
	e.mu.Unlock()
	if err, ok := e.errs[tool]; ok {
		return tools.Result{}, err
	}
	if res, ok := e.results[tool]; ok {
		return res, nil
	}
	return tools.Result{Success: true, Data: &tools.ResultData{Description: "ok"}}, nil
}

func (e *fakeExecutor) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

// fakeLLM replays a fixed queue of responses, one per Generate call, and
// records the requests it was given.
type fakeLLM struct {
	mu       sync.Mutex
	queue    []llm.Response
	requests []llm.Request
}

func (f *fakeLLM) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if len(f.queue) == 0 {
		return llm.Response{Text: `{"thinking":"","evaluation_previous_goal":"","memory":"","next_goal":"","action":[{"done":{"text":"no more scripted responses","success":false}}]}`}, nil
	}
	resp := f.queue[0]
	f.queue = f.queue[1:]
	return resp, nil
}

func (f *fakeLLM) Name() string { return "fake" }

func doneJSON(text string, success bool) string {
	return `{"thinking":"done","evaluation_previous_goal":"ok","memory":"","next_goal":"finish","action":[{"done":{"text":"` + text + `","success":` + boolStr(success) + `}}]}`
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func newTestRunner(cfg agentcore.AgentConfig, host *fakeHost, exec *fakeExecutor, client *fakeLLM) *Runner {
	return New(cfg, host, exec, client, zerolog.Nop())
}

func TestImmediateDone(t *testing.T) {
	cfg := agentcore.DefaultConfig("buy milk")
	cfg.MaxSteps = 10

	client := &fakeLLM{queue: []llm.Response{{Text: doneJSON("42", true)}}}
	host := &fakeHost{url: "https://example.com", elementCount: 3}
	exec := newFakeExecutor()

	r := newTestRunner(cfg, host, exec, client)

	var events []Event
	r.AddListener(func(e Event) { events = append(events, e) })
	r.Run(context.Background())

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, EventDone, last.Type)
	assert.Equal(t, true, last.Data["success"])
	assert.Equal(t, "42", last.Data["text"])
	assert.Equal(t, 1, r.Step())
}

func TestPageChangingMidListAbortsRemainder(t *testing.T) {
	cfg := agentcore.DefaultConfig("click around")
	cfg.MaxSteps = 1

	step1 := `{"thinking":"","evaluation_previous_goal":"","memory":"","next_goal":"","action":[{"click-element":{"index":3}},{"type-text":{"index":5,"text":"x"}}]}`
	client := &fakeLLM{queue: []llm.Response{{Text: step1}}}
	host := &fakeHost{url: "https://example.com", elementCount: 3}
	exec := newFakeExecutor()

	r := newTestRunner(cfg, host, exec, client)

	var actionEvents int
	r.AddListener(func(e Event) {
		if e.Type == EventActionExecuted {
			actionEvents++
		}
	})
	r.Run(context.Background())

	assert.Equal(t, 1, actionEvents, "only the page-changing click should be dispatched as an executed action event")
	assert.Equal(t, 1, exec.callCount())
	assert.Equal(t, []string{"click-element"}, exec.calls)
}

func TestFailureStopAfterMaxFailures(t *testing.T) {
	cfg := agentcore.DefaultConfig("do a thing")
	cfg.MaxSteps = 20
	cfg.MaxFailures = 5

	oneAction := `{"thinking":"","evaluation_previous_goal":"","memory":"","next_goal":"","action":[{"get-page-text":{}}]}`
	client := &fakeLLM{}
	for i := 0; i < 5; i++ {
		client.queue = append(client.queue, llm.Response{Text: oneAction})
	}

	host := &fakeHost{url: "https://example.com", elementCount: 3}
	exec := newFakeExecutor()
	exec.errs["get-page-text"] = assertErr{}

	r := newTestRunner(cfg, host, exec, client)

	var events []Event
	r.AddListener(func(e Event) { events = append(events, e) })
	r.Run(context.Background())

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, EventError, last.Type)
	assert.Equal(t, 5, r.Step())
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

func TestStopProducesExactlyOneStoppedEvent(t *testing.T) {
	cfg := agentcore.DefaultConfig("long task")
	cfg.MaxSteps = 100

	client := &fakeLLM{}
	host := &fakeHost{url: "https://example.com", elementCount: 3}
	exec := newFakeExecutor()

	r := newTestRunner(cfg, host, exec, client)
	r.Stop()

	var events []Event
	r.AddListener(func(e Event) { events = append(events, e) })
	r.Run(context.Background())

	require.Len(t, events, 1)
	assert.Equal(t, EventStopped, events[0].Type)
}
