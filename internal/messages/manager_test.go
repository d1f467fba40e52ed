package messages

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vektra-dev/browseragent/internal/agentcore"
	"github.com/vektra-dev/browseragent/internal/llm"
)

type fakeLLM struct {
	resp llm.Response
	err  error
}

func (f *fakeLLM) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	return f.resp, f.err
}
func (f *fakeLLM) Name() string { return "fake" }

func TestSystemPromptMentionsActionCap(t *testing.T) {
	p := SystemPrompt(7)
	assert.Contains(t, p, "up to 7 actions")
}

func TestBudgetWarningThreshold(t *testing.T) {
	m := New(5, zerolog.Nop())
	assert.Nil(t, m.budgetWarning(37, 50)) // 0.74
	assert.NotNil(t, m.budgetWarning(38, 50)) // 0.76
}

func TestAddStepResultNilOutputAppendsSentinel(t *testing.T) {
	m := New(5, zerolog.Nop())
	m.AddStepResult(1, nil, nil, time.Second)
	require.Equal(t, 2, m.HistoryLen())
	assert.Equal(t, "Agent failed to output valid JSON.", m.historyItems[1].Error)
}

func TestFormatActionResultError(t *testing.T) {
	long := strings.Repeat("x", 300)
	r := agentcore.AgentActionResult{ToolName: "click-element", Error: long, IncludeInMemory: true}
	line, img := formatActionResult(r)
	assert.Empty(t, img)
	assert.Contains(t, line, "[click-element] Error:")
	assert.Contains(t, line, "...")
	assert.Less(t, len(line), len(long))
}

func TestFormatActionResultDone(t *testing.T) {
	r := agentcore.AgentActionResult{ToolName: "done", IsDone: true, Success: true, ExtractedContent: "42", IncludeInMemory: true}
	line, _ := formatActionResult(r)
	assert.Equal(t, "[done] Task completed. Success: true\nResult: 42", line)
}

func TestFormatActionResultImage(t *testing.T) {
	r := agentcore.AgentActionResult{ToolName: "capture-visible-tab", Description: "screenshot captured", ExtractedImage: "data:image/png;base64,AAA", IncludeInMemory: true}
	line, img := formatActionResult(r)
	assert.Equal(t, "[capture-visible-tab] screenshot captured", line)
	assert.Equal(t, "data:image/png;base64,AAA", img)
}

func TestFormatActionResultNoMemory(t *testing.T) {
	r := agentcore.AgentActionResult{ToolName: "navigate", Error: "connection reset", IncludeInMemory: false}
	line, img := formatActionResult(r)
	assert.Empty(t, img)
	assert.Equal(t, "[navigate] (no memory)", line)
}

func TestAddStepResultBuildsActionResultsBlock(t *testing.T) {
	m := New(5, zerolog.Nop())
	output := &agentcore.AgentBrain{EvaluationPreviousGoal: "ok", Memory: "mem", NextGoal: "next"}
	results := []agentcore.AgentActionResult{
		{ToolName: "navigate", Description: "navigated", IncludeInMemory: true},
	}
	m.AddStepResult(1, output, results, 200*time.Millisecond)
	item := m.historyItems[1]
	assert.Contains(t, item.ActionResults, "Result:\n[navigate] navigated")
	assert.Equal(t, int64(200), item.StepDurationMs)
}

func TestMaybeCompactGating(t *testing.T) {
	m := New(5, zerolog.Nop())
	client := &fakeLLM{resp: llm.Response{Text: "summary"}}
	fired := m.MaybeCompact(context.Background(), client, 1, 15, 40000)
	assert.False(t, fired)
}

func TestMaybeCompactFiresAndRetainsTail(t *testing.T) {
	m := New(5, zerolog.Nop())
	for i := 1; i <= 20; i++ {
		m.AddStepResult(i, &agentcore.AgentBrain{Memory: strings.Repeat("m", 20)}, nil, time.Millisecond)
	}
	client := &fakeLLM{resp: llm.Response{Text: "compacted summary"}}
	fired := m.MaybeCompact(context.Background(), client, 20, 2, 10)
	require.True(t, fired)
	assert.Equal(t, "compacted summary", m.CompactedMemory())
	assert.LessOrEqual(t, m.HistoryLen(), 7)
	assert.Equal(t, 0, m.historyItems[0].Step)
}

func TestMaybeCompactFailureLeavesStateUntouched(t *testing.T) {
	m := New(5, zerolog.Nop())
	for i := 1; i <= 20; i++ {
		m.AddStepResult(i, &agentcore.AgentBrain{Memory: strings.Repeat("m", 20)}, nil, time.Millisecond)
	}
	before := m.HistoryLen()
	client := &fakeLLM{err: assertErr{}}
	fired := m.MaybeCompact(context.Background(), client, 20, 2, 10)
	assert.False(t, fired)
	assert.Equal(t, before, m.HistoryLen())
	assert.Empty(t, m.CompactedMemory())
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
