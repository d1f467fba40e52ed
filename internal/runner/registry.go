package runner

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vektra-dev/browseragent/internal/agentcore"
	"github.com/vektra-dev/browseragent/internal/browserhost"
	"github.com/vektra-dev/browseragent/internal/llm"
	"github.com/vektra-dev/browseragent/internal/tools"
)

// Registry is the process-wide taskId -> Runner map backing the Control
// API. Entries are removed when a run returns or throws.
type Registry struct {
	mu      sync.Mutex
	runners map[string]*Runner
	logger  zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{runners: make(map[string]*Runner), logger: logger}
}

// Status is the getAgentStatus result shape.
type Status struct {
	Running bool
	Step    int
}

// StartAgentTask constructs a Runner, registers it, and starts it running
// in the background. Returns the new run's taskId immediately.
func (reg *Registry) StartAgentTask(cfg agentcore.AgentConfig, host browserhost.Host, executor tools.Executor, client llm.Client, listeners ...Listener) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	r := New(cfg, host, executor, client, reg.logger)
	for _, l := range listeners {
		r.AddListener(l)
	}

	reg.mu.Lock()
	reg.runners[r.state.TaskID] = r
	reg.mu.Unlock()

	go func() {
		defer func() {
			reg.mu.Lock()
			delete(reg.runners, r.state.TaskID)
			reg.mu.Unlock()
		}()
		r.Run(context.Background())
	}()

	return r.state.TaskID, nil
}

// StopAgentTask sets the cooperative stop flag on a running task. Returns
// false if the taskId is not currently registered.
func (reg *Registry) StopAgentTask(taskID string) bool {
	reg.mu.Lock()
	r, ok := reg.runners[taskID]
	reg.mu.Unlock()
	if !ok {
		return false
	}
	r.Stop()
	return true
}

// GetAgentStatus reports whether a run is active and its current step, or
// nil if the taskId is unknown.
func (reg *Registry) GetAgentStatus(taskID string) *Status {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.runners[taskID]
	if !ok {
		return nil
	}
	return &Status{Running: true, Step: r.state.NSteps}
}

// GetActiveAgents lists the taskIds of all currently registered runs.
func (reg *Registry) GetActiveAgents() []string {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	ids := make([]string, 0, len(reg.runners))
	for id := range reg.runners {
		ids = append(ids, id)
	}
	return ids
}

// lookupByTask fetches a registered runner without exposing the map.
func (reg *Registry) lookupByTask(taskID string) (*Runner, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.runners[taskID]
	return r, ok
}
