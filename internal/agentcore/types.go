// Package agentcore holds the data shapes shared by the runner, message
// manager, loop detector, and state extractor: the planner/executor contract
// the rest of the module is built around.
package agentcore

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

// AgentConfig is immutable after construction.
type AgentConfig struct {
	Task                string `validate:"required"`
	Model               string
	MaxSteps            int `validate:"gt=0"`
	MaxActionsPerStep   int `validate:"gt=0"`
	MaxFailures         int `validate:"gt=0"`
	UseVision           bool
	MaxElementsLength   int `validate:"gt=0"`
	LoopDetectionWindow int `validate:"gt=0"`
	EnableCompaction    bool
	CompactEveryNSteps  int `validate:"gt=0"`
	CompactTriggerChars int `validate:"gt=0"`
}

// DefaultConfig returns an AgentConfig pre-filled with spec defaults for the
// given task; callers typically override a handful of fields.
func DefaultConfig(task string) AgentConfig {
	return AgentConfig{
		Task:                task,
		MaxSteps:            50,
		MaxActionsPerStep:   5,
		MaxFailures:         5,
		UseVision:           true,
		MaxElementsLength:   40000,
		LoopDetectionWindow: 20,
		EnableCompaction:    true,
		CompactEveryNSteps:  15,
		CompactTriggerChars: 40000,
	}
}

// Validate runs struct-tag validation; called once by the Registry before
// a Runner is constructed, never in the step loop.
func (c AgentConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid agent config: %w", err)
	}
	return nil
}

// AgentState is mutated only by the Runner that owns it.
type AgentState struct {
	TaskID              string
	NSteps              int
	ConsecutiveFailures int
	LastResult          []AgentActionResult
	LastModelOutput     *AgentBrain
	Stopped             bool
	StartedAt           time.Time
	LastStepDuration    time.Duration
}

// NewAgentState creates a fresh state with a unique task id shaped
// "agent_<epoch-ms>_<random>".
func NewAgentState(now time.Time) *AgentState {
	return &AgentState{
		TaskID:    newTaskID(now),
		StartedAt: now,
	}
}

func newTaskID(now time.Time) string {
	rnd := uuid.New().String()[:8]
	return fmt.Sprintf("agent_%d_%s", now.UnixMilli(), rnd)
}

// AgentAction is a single-key mapping from tool name to parameters, exactly
// as the LLM emits it in the "action" array.
type AgentAction map[string]map[string]any

// Name returns the tool name of a single-key action, or "" if malformed.
func (a AgentAction) Name() string {
	for k := range a {
		return k
	}
	return ""
}

// Params returns the parameter map for the action's tool, or an empty map.
func (a AgentAction) Params() map[string]any {
	for _, v := range a {
		if v == nil {
			return map[string]any{}
		}
		return v
	}
	return map[string]any{}
}

// AgentBrain is the structured JSON object the LLM emits once per step.
type AgentBrain struct {
	Thinking               string        `json:"thinking"`
	EvaluationPreviousGoal string        `json:"evaluation_previous_goal"`
	Memory                 string        `json:"memory"`
	NextGoal               string        `json:"next_goal"`
	Action                 []AgentAction `json:"action"`
}

// AgentActionResult is produced by the Runner once per executed action.
type AgentActionResult struct {
	ToolName         string
	Description      string
	ExtractedContent string
	ExtractedImage   string
	Error            string
	IsDone           bool
	Success          bool
	IncludeInMemory  bool
}

// HasError reports whether this result carries an error.
func (r AgentActionResult) HasError() bool {
	return r.Error != ""
}

// HistoryItem is appended at the end of each step; a prefix may later be
// replaced by a single compacted-memory string.
type HistoryItem struct {
	Step           int
	Evaluation     string
	Memory         string
	NextGoal       string
	ActionResults  string
	Images         []string
	Error          string
	SystemMessage  string
	StepDurationMs int64
}

// SeedHistoryItem returns the "Agent initialized" entry that always occupies
// historyItems[0] and survives compaction.
func SeedHistoryItem() HistoryItem {
	return HistoryItem{
		Step:          0,
		SystemMessage: "Agent initialized",
	}
}

// PageStats mirrors the element-category counts of one page snapshot.
type PageStats struct {
	Links         int
	Interactive   int
	Iframes       int
	Images        int
	TotalElements int
}

// ScrollInfo carries scroll-position metrics rounded to one decimal place.
type ScrollInfo struct {
	PagesAbove  float64
	PagesBelow  float64
	PixelsAbove int
	PixelsBelow int
}

// BrowserStateSummary is the compact, LLM-readable view of the current page.
type BrowserStateSummary struct {
	URL          string
	Title        string
	PageStats    PageStats
	Scroll       ScrollInfo
	ElementsText string
	ElementCount int
	Screenshot   string
}
