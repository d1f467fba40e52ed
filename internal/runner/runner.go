package runner

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/vektra-dev/browseragent/internal/agentcore"
	"github.com/vektra-dev/browseragent/internal/browserhost"
	"github.com/vektra-dev/browseragent/internal/llm"
	"github.com/vektra-dev/browseragent/internal/loopdetect"
	"github.com/vektra-dev/browseragent/internal/messages"
	"github.com/vektra-dev/browseragent/internal/tools"
)

const (
	stepTemperature  = 0.3
	stepMaxTokens    = 4096
	pageSettleDelay  = 500 * time.Millisecond
	fingerprintChars = 5000
	maxExtractedText = 2000
)

// Runner drives one task's observe-reason-act loop. It is not safe for
// concurrent use by more than one goroutine; the Registry serialises access
// through the run's own goroutine plus the cooperative Stop() flag.
type Runner struct {
	cfg      agentcore.AgentConfig
	state    *agentcore.AgentState
	host     browserhost.Host
	executor tools.Executor
	client   llm.Client
	messages *messages.Manager
	detector *loopdetect.Detector
	logger   zerolog.Logger

	listeners []Listener
	stopped   atomic.Bool
}

// New constructs a Runner. AgentConfig must already be validated by the
// caller (the Registry validates once at task start).
func New(cfg agentcore.AgentConfig, host browserhost.Host, executor tools.Executor, client llm.Client, logger zerolog.Logger) *Runner {
	now := time.Now()
	return &Runner{
		cfg:      cfg,
		state:    agentcore.NewAgentState(now),
		host:     host,
		executor: executor,
		client:   client,
		messages: messages.New(cfg.MaxActionsPerStep, logger),
		detector: loopdetect.New(cfg.LoopDetectionWindow, logger),
		logger:   logger.With().Str("component", "runner").Logger(),
	}
}

// AddListener registers a UI event listener.
func (r *Runner) AddListener(l Listener) {
	r.listeners = append(r.listeners, l)
}

// Stop requests cooperative cancellation; it takes effect at the next loop
// iteration boundary.
func (r *Runner) Stop() {
	r.stopped.Store(true)
}

// TaskID returns this run's unique task id.
func (r *Runner) TaskID() string { return r.state.TaskID }

// Step returns the current step count (test/inspection hook).
func (r *Runner) Step() int { return r.state.NSteps }

// Run executes the control loop until the task completes, a failure budget
// is exhausted, a step budget is reached, or the run is stopped. Exactly
// one terminal event (agent:done, agent:error, or agent:stopped) is
// emitted before Run returns.
func (r *Runner) Run(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Interface("panic", rec).Msg("fatal panic outside step boundary")
			r.emit(Event{Type: EventError, StepNumber: r.state.NSteps, Data: map[string]any{
				"fatal": true,
				"error": fmt.Sprintf("%v", rec),
			}})
		}
	}()

	for r.state.NSteps < r.cfg.MaxSteps {
		if r.stopped.Load() {
			r.emit(Event{Type: EventStopped, StepNumber: r.state.NSteps})
			return
		}
		if r.runStep(ctx) {
			return
		}
	}

	if r.stopped.Load() {
		r.emit(Event{Type: EventStopped, StepNumber: r.state.NSteps})
		return
	}
	r.emit(Event{Type: EventDone, StepNumber: r.state.NSteps, Data: map[string]any{
		"success": false,
		"text":    "Agent reached maximum steps without completing the task.",
	}})
}

// runStep executes one observe-reason-cap-act-record-check cycle and
// reports whether a terminal event was emitted.
func (r *Runner) runStep(ctx context.Context) bool {
	step := r.state.NSteps
	r.emit(Event{Type: EventStepStart, StepNumber: step})
	stepStart := time.Now()
	defer func() { r.state.NSteps++ }()

	// 1. Observe
	summary, err := browserhost.Extract(ctx, r.host, r.cfg.MaxElementsLength, r.cfg.UseVision)
	if err != nil {
		return r.recordStepException(step, stepStart, fmt.Errorf("extractor failure: %w", err))
	}

	sample := summary.ElementsText
	if len(sample) > fingerprintChars {
		sample = sample[:fingerprintChars]
	}
	r.detector.RecordPageState(summary.URL, sample, summary.ElementCount)

	// 2. Reason
	nudge := r.detector.GetNudgeMessage()
	userMsg := r.messages.BuildStateMessage(r.cfg.Task, step, r.cfg.MaxSteps, r.cfg.UseVision, summary, nudge)

	resp, genErr := r.client.Generate(ctx, llm.Request{
		System:      r.messages.SystemPrompt(),
		Messages:    []llm.Message{userMsg},
		Temperature: stepTemperature,
		MaxTokens:   stepMaxTokens,
		JSONMode:    true,
	})

	var brain *agentcore.AgentBrain
	if genErr == nil {
		brain, genErr = parseBrain(resp.Text)
	}
	if genErr != nil || brain == nil || len(brain.Action) == 0 {
		r.logger.Warn().Err(genErr).Msg("invalid or failed LLM output")
		r.state.ConsecutiveFailures++
		r.messages.AddStepResult(step, nil, nil, time.Since(stepStart))
		if r.state.ConsecutiveFailures >= r.cfg.MaxFailures {
			r.emit(Event{Type: EventError, StepNumber: step, Data: map[string]any{"reason": "max failures reached"}})
			return true
		}
		return false
	}
	r.state.LastModelOutput = brain
	r.emit(Event{Type: EventThinking, StepNumber: step, Data: map[string]any{"thinking": brain.Thinking}})

	// 3. Cap
	actions := brain.Action
	if len(actions) > r.cfg.MaxActionsPerStep {
		actions = actions[:r.cfg.MaxActionsPerStep]
	}

	// Record the full issued action set (pre-execution) into the loop
	// detector, regardless of how many the executor ends up running.
	for _, a := range actions {
		r.detector.RecordAction(a)
	}

	// 4. Act
	results, doneResult := r.actOnActions(ctx, step, actions)
	r.state.LastResult = results

	// 5. Record
	r.messages.AddStepResult(step, brain, results, time.Since(stepStart))

	// 6. Check terminal conditions
	if doneResult != nil {
		r.emit(Event{Type: EventDone, StepNumber: step, Data: map[string]any{
			"success": doneResult.Success,
			"text":    doneResult.ExtractedContent,
		}})
		return true
	}

	r.updateFailureCount(results)
	if r.state.ConsecutiveFailures >= r.cfg.MaxFailures {
		r.emit(Event{Type: EventError, StepNumber: step, Data: map[string]any{"reason": "max failures reached"}})
		return true
	}

	// NSteps is only incremented when runStep returns, so NSteps+1 is the
	// step count as of this step's completion.
	r.messages.MaybeCompact(ctx, r.client, r.state.NSteps+1, r.cfg.CompactEveryNSteps, r.cfg.CompactTriggerChars)

	r.emit(Event{Type: EventStepComplete, StepNumber: step})
	return false
}

// actOnActions executes actions sequentially, stopping early on a done
// action or a page-changing action (whose remaining actions in the step
// are aborted, not merely skipped).
func (r *Runner) actOnActions(ctx context.Context, step int, actions []agentcore.AgentAction) ([]agentcore.AgentActionResult, *agentcore.AgentActionResult) {
	results := make([]agentcore.AgentActionResult, 0, len(actions))

	for i, action := range actions {
		name := action.Name()
		params := action.Params()
		r.emit(Event{Type: EventActionExecuted, StepNumber: step, Data: map[string]any{"tool": name, "params": params}})

		if name == "done" {
			text, _ := params["text"].(string)
			success, _ := params["success"].(bool)
			result := agentcore.AgentActionResult{ToolName: "done", IsDone: true, Success: success, ExtractedContent: text, IncludeInMemory: true}
			results = append(results, result)
			return results, &results[len(results)-1]
		}

		result := r.executeOne(ctx, name, params)
		results = append(results, result)

		if tools.PageChanging(name) {
			if i < len(actions)-1 {
				time.Sleep(pageSettleDelay)
			}
			break
		}
	}

	return results, nil
}

func (r *Runner) executeOne(ctx context.Context, name string, params map[string]any) agentcore.AgentActionResult {
	result := agentcore.AgentActionResult{ToolName: name, IncludeInMemory: true}

	res, err := r.executor.Execute(ctx, name, params)
	if err != nil {
		// A hard executor-level fault (transport/execution error, not an
		// ordinary tool failure) isn't worth replaying in full; the step is
		// already accounted for in the failure budget.
		result.Error = err.Error()
		result.IncludeInMemory = false
		return result
	}
	if !res.Success {
		result.Error = res.Error
		return result
	}
	if res.Data == nil {
		return result
	}
	if res.Data.ImageURL != "" {
		result.ExtractedImage = res.Data.ImageURL
	}
	if res.Data.Raw != "" {
		result.ExtractedContent = res.Data.Raw
	} else if res.Data.Text != "" {
		text := res.Data.Text
		if len(text) > maxExtractedText {
			text = text[:maxExtractedText]
		}
		result.ExtractedContent = text
	}
	if res.Data.Description != "" {
		result.Description = res.Data.Description
	}
	return result
}

// updateFailureCount applies the reset/increment rule: reset to 0 whenever
// no result carries an error; increment only when exactly one action was
// attempted and it errored. A multi-action step with exactly one error
// among several is left unchanged, per the open contract decision.
func (r *Runner) updateFailureCount(results []agentcore.AgentActionResult) {
	hasError := false
	for _, res := range results {
		if res.HasError() {
			hasError = true
			break
		}
	}
	switch {
	case !hasError:
		r.state.ConsecutiveFailures = 0
	case len(results) == 1:
		r.state.ConsecutiveFailures++
	}
}

// recordStepException appends a step-error history item and applies the
// same failure-threshold check as a regular failed step.
func (r *Runner) recordStepException(step int, stepStart time.Time, err error) bool {
	r.logger.Error().Err(err).Int("step", step).Msg("step-level exception")
	r.state.ConsecutiveFailures++
	r.messages.AddStepResult(step, nil, []agentcore.AgentActionResult{
		{ToolName: "step-error", Error: err.Error(), IncludeInMemory: true},
	}, time.Since(stepStart))

	if r.state.ConsecutiveFailures >= r.cfg.MaxFailures {
		r.emit(Event{Type: EventError, StepNumber: step, Data: map[string]any{"reason": "max failures reached"}})
		return true
	}
	return false
}
