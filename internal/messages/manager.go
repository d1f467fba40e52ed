package messages

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vektra-dev/browseragent/internal/agentcore"
	"github.com/vektra-dev/browseragent/internal/llm"
)

const (
	compactionMaxTokens  = 1024
	compactionTemp       = 0.3
	compactedMemoryLimit = 6000
	retainedTailEntries  = 6
	budgetWarnFraction   = 0.75
)

// Manager owns the full conversation context presented to the LLM for one
// run: the history log, prompt assembly, and compaction. The Agent Runner
// never constructs a prompt itself.
type Manager struct {
	maxActionsPerStep int
	historyItems      []agentcore.HistoryItem
	compactedMemory   string
	compactionCount   int
	lastCompactionStep int
	logger            zerolog.Logger
}

// New creates a Manager seeded with the "Agent initialized" history entry.
func New(maxActionsPerStep int, logger zerolog.Logger) *Manager {
	return &Manager{
		maxActionsPerStep: maxActionsPerStep,
		historyItems:      []agentcore.HistoryItem{agentcore.SeedHistoryItem()},
		logger:            logger,
	}
}

// SystemPrompt returns the fixed system prompt for this manager's configured
// action cap.
func (m *Manager) SystemPrompt() string {
	return SystemPrompt(m.maxActionsPerStep)
}

// HistoryLen reports the current history length (test/inspection hook).
func (m *Manager) HistoryLen() int { return len(m.historyItems) }

// CompactedMemory reports the current compacted-memory blob, if any.
func (m *Manager) CompactedMemory() string { return m.compactedMemory }

// BuildStateMessage assembles the per-step user message: agent_history,
// agent_state, browser_state, optional system_nudge, optional screenshot.
func (m *Manager) BuildStateMessage(
	task string,
	nSteps, maxSteps int,
	useVision bool,
	browser agentcore.BrowserStateSummary,
	detectorNudge *string,
) llm.Message {
	var text strings.Builder
	text.WriteString(m.renderHistory())
	text.WriteString(m.renderAgentState(task, nSteps, maxSteps))
	text.WriteString(renderBrowserState(browser))

	if nudge := joinNudges(detectorNudge, m.budgetWarning(nSteps, maxSteps)); nudge != "" {
		text.WriteString("<system_nudge>\n")
		text.WriteString(nudge)
		text.WriteString("\n</system_nudge>\n")
	}

	if useVision && browser.Screenshot != "" {
		return llm.Message{
			Role: "user",
			Parts: []llm.ContentPart{
				{Type: "text", Text: text.String()},
				{Type: "text", Text: "Current screenshot:"},
				{Type: "image_url", ImageURL: browser.Screenshot},
			},
		}
	}
	return llm.Message{Role: "user", Text: text.String()}
}

func (m *Manager) renderHistory() string {
	var b strings.Builder
	b.WriteString("<agent_history>\n")
	if m.compactedMemory != "" {
		b.WriteString("<compacted_memory>\n")
		b.WriteString(m.compactedMemory)
		b.WriteString("\n</compacted_memory>\n")
	}
	for _, item := range m.historyItems {
		b.WriteString(renderHistoryItem(item))
	}
	b.WriteString("</agent_history>\n")
	return b.String()
}

func renderHistoryItem(item agentcore.HistoryItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<step_%d>\n", item.Step)

	if item.SystemMessage != "" {
		b.WriteString(item.SystemMessage)
		b.WriteString("\n")
	} else {
		var lines []string
		if item.Evaluation != "" {
			lines = append(lines, item.Evaluation)
		}
		if item.Memory != "" {
			lines = append(lines, item.Memory)
		}
		if item.NextGoal != "" {
			lines = append(lines, item.NextGoal)
		}
		if item.ActionResults != "" {
			lines = append(lines, item.ActionResults)
		}
		if item.Error != "" {
			lines = append(lines, item.Error)
		}
		b.WriteString(strings.Join(lines, "\n"))
		if len(lines) > 0 {
			b.WriteString("\n")
		}
	}
	for range item.Images {
		b.WriteString("[screenshot attached separately]\n")
	}
	fmt.Fprintf(&b, "</step_%d>\n", item.Step)
	return b.String()
}

func (m *Manager) renderAgentState(task string, nSteps, maxSteps int) string {
	today := time.Now().Format("2006-01-02")
	return fmt.Sprintf("<agent_state>\nTask: %s\n<step_info>Step %d of %d. Today: %s</step_info>\n</agent_state>\n",
		task, nSteps, maxSteps, today)
}

func (m *Manager) budgetWarning(nSteps, maxSteps int) *string {
	if maxSteps <= 0 {
		return nil
	}
	fraction := float64(nSteps) / float64(maxSteps)
	if fraction < budgetWarnFraction {
		return nil
	}
	msg := fmt.Sprintf("You have used %d of %d steps (%.0f%%). Wrap up the task soon.", nSteps, maxSteps, fraction*100)
	return &msg
}

func joinNudges(parts ...*string) string {
	var nonEmpty []string
	for _, p := range parts {
		if p != nil && *p != "" {
			nonEmpty = append(nonEmpty, *p)
		}
	}
	return strings.Join(nonEmpty, "\n\n")
}

// AddStepResult appends one step's outcome to history. When output is nil
// and there are no results (invalid LLM output), it records the sentinel
// error item instead; a nil output with results records just the results.
func (m *Manager) AddStepResult(step int, output *agentcore.AgentBrain, results []agentcore.AgentActionResult, stepDuration time.Duration) {
	if output == nil && len(results) == 0 {
		m.historyItems = append(m.historyItems, agentcore.HistoryItem{
			Step:           step,
			Error:          "Agent failed to output valid JSON.",
			StepDurationMs: stepDuration.Milliseconds(),
		})
		return
	}

	var resultLines []string
	var images []string
	for _, r := range results {
		line, imageURL := formatActionResult(r)
		resultLines = append(resultLines, line)
		if imageURL != "" {
			images = append(images, imageURL)
		}
	}
	actionResults := ""
	if len(resultLines) > 0 {
		actionResults = strings.TrimSpace("Result:\n" + strings.Join(resultLines, "\n"))
	}

	item := agentcore.HistoryItem{
		Step:           step,
		ActionResults:  actionResults,
		Images:         images,
		StepDurationMs: stepDuration.Milliseconds(),
	}
	if output != nil {
		item.Evaluation = output.EvaluationPreviousGoal
		item.Memory = output.Memory
		item.NextGoal = output.NextGoal
	}
	m.historyItems = append(m.historyItems, item)
}

// formatActionResult renders one AgentActionResult line per the action-type
// rules, returning the rendered line and, for image results, the image URL
// to carry separately in the history item's Images.
func formatActionResult(r agentcore.AgentActionResult) (line string, imageURL string) {
	switch {
	case !r.IncludeInMemory:
		return fmt.Sprintf("[%s] (no memory)", r.ToolName), ""
	case r.HasError():
		return fmt.Sprintf("[%s] Error: %s", r.ToolName, truncateMiddle(r.Error, 200)), ""
	case r.IsDone:
		return fmt.Sprintf("[done] Task completed. Success: %v\nResult: %s", r.Success, truncateTail(r.ExtractedContent, 500)), ""
	case r.ExtractedImage != "":
		return fmt.Sprintf("[%s] %s", r.ToolName, r.Description), r.ExtractedImage
	case r.Description != "" && r.ExtractedContent == "":
		return fmt.Sprintf("[%s] %s", r.ToolName, r.Description), ""
	case r.ExtractedContent != "":
		return fmt.Sprintf("[%s] %s", r.ToolName, truncateTail(r.ExtractedContent, 300)), ""
	default:
		return fmt.Sprintf("[%s] OK", r.ToolName), ""
	}
}

func truncateTail(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

func truncateMiddle(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:100] + "..." + s[len(s)-100:]
}

// MaybeCompact fires compaction when both gating conditions hold: the step
// gap since the last compaction reached compactEveryNSteps, and the
// concatenated history text reached compactTriggerChars. Never raises; on
// any failure it leaves state untouched and returns false.
func (m *Manager) MaybeCompact(ctx context.Context, client llm.Client, nSteps, compactEveryNSteps, compactTriggerChars int) bool {
	if nSteps-m.lastCompactionStep < compactEveryNSteps {
		return false
	}
	historyText := m.historyText()
	if len(historyText) < compactTriggerChars {
		return false
	}

	var input strings.Builder
	if m.compactedMemory != "" {
		input.WriteString("<previous_compacted_memory>\n")
		input.WriteString(m.compactedMemory)
		input.WriteString("\n</previous_compacted_memory>\n")
	}
	input.WriteString("<agent_history>\n")
	input.WriteString(historyText)
	input.WriteString("\n</agent_history>")

	resp, err := client.Generate(ctx, llm.Request{
		System:      compactionSystemPrompt,
		Messages:    []llm.Message{{Role: "user", Text: input.String()}},
		Temperature: compactionTemp,
		MaxTokens:   compactionMaxTokens,
	})
	if err != nil || strings.TrimSpace(resp.Text) == "" {
		m.logger.Warn().Err(err).Msg("compaction call failed, leaving history untouched")
		return false
	}

	summary := strings.TrimSpace(resp.Text)
	if len(summary) > compactedMemoryLimit {
		summary = summary[:compactedMemoryLimit] + "..."
	}

	m.compactedMemory = summary
	m.compactionCount++
	m.lastCompactionStep = nSteps
	m.retainTail()
	return true
}

func (m *Manager) historyText() string {
	var b strings.Builder
	for _, item := range m.historyItems {
		b.WriteString(renderHistoryItem(item))
	}
	return b.String()
}

// retainTail keeps historyItems[0] (the seed entry) and the last
// retainedTailEntries items, dropping everything in between.
func (m *Manager) retainTail() {
	if len(m.historyItems) <= retainedTailEntries+1 {
		return
	}
	seed := m.historyItems[0]
	tail := m.historyItems[len(m.historyItems)-retainedTailEntries:]
	m.historyItems = append([]agentcore.HistoryItem{seed}, tail...)
}
