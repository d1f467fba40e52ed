// Package messages owns the conversation presented to the LLM: history
// bookkeeping, structured prompt assembly, and LLM-driven compaction. It
// insulates the Agent Runner from prompt construction entirely.
package messages

import (
	"fmt"
	"strings"

	"github.com/vektra-dev/browseragent/internal/tools"
)

// SystemPrompt returns the fixed system prompt, parameterised only by
// maxActionsPerStep. It documents the loop, the <input> block structure,
// the tool catalogue, and the exact output shape.
func SystemPrompt(maxActionsPerStep int) string {
	var b strings.Builder

	b.WriteString("You are a browser automation agent. You are given a task and a live view of a web page. ")
	b.WriteString("You work in a loop: observe the page, reason about the next step, then act by calling tools. ")
	b.WriteString("Each turn you receive an <input> block and must reply with exactly one JSON object.\n\n")

	b.WriteString("<input> structure:\n")
	b.WriteString("- <agent_history>: a summary of prior compacted memory (if any) followed by what happened on each previous step.\n")
	b.WriteString("- <agent_state>: your task and which step you are on.\n")
	b.WriteString("- <browser_state>: page statistics, the current URL and title, scroll position, and an indexed listing of interactive elements, each line shaped like \"[i]<tag attr='v'>text</tag>\".\n")
	b.WriteString("- optionally <system_nudge>: advisories about repetition, stagnation, or your remaining step budget.\n")
	b.WriteString("- optionally a screenshot of the current viewport.\n\n")

	b.WriteString("Tool catalogue (call elements by their listing index, not by guessing selectors):\n")
	for _, spec := range tools.Catalogue() {
		b.WriteString(fmt.Sprintf("- %s(%s): %s\n", spec.Name, spec.Params, spec.Description))
	}
	b.WriteString("\n")

	b.WriteString("Action rules:\n")
	b.WriteString(fmt.Sprintf("- Emit up to %d actions per step, executed sequentially in the order given.\n", maxActionsPerStep))
	b.WriteString("- Any page-changing action (navigate, go-back, click-element) must be the last action in your list: the executor aborts the remaining actions in the step once the page changes.\n")
	b.WriteString("- Do not repeat a failing action more than 2-3 times; if it keeps failing, try a different approach.\n\n")

	b.WriteString("Done rules:\n")
	b.WriteString("- done must be the sole action in its step, never combined with other tools.\n")
	b.WriteString("- success is true only when the task is fully and correctly complete.\n")
	b.WriteString("- put everything the caller needs to know in text.\n\n")

	b.WriteString("Output rules:\n")
	b.WriteString("Reply with a single JSON object with exactly these fields: \"thinking\" (free-form reasoning), ")
	b.WriteString("\"evaluation_previous_goal\" (one sentence), \"memory\" (1-3 sentences of carry-forward facts), ")
	b.WriteString("\"next_goal\" (one sentence), \"action\" (a non-empty array of single-key tool-call objects). No other text, no markdown fences.\n")

	return b.String()
}

// compactionSystemPrompt is the dedicated system prompt used for the
// history-compaction call. It is plain-text output, not JSON.
const compactionSystemPrompt = "Summarize for prompt compaction. Capture task requirements, key facts, decisions, " +
	"partial progress, errors, and next steps. Preserve entities, values, URLs, and file paths exactly. " +
	"Respond in plain text, no markdown, no preamble. Keep the summary under 6000 characters."
