// Package llm wraps the chat-completions backends the Agent Runner and
// Message Manager call: one JSON-mode, vision-capable call per step, and a
// plain-text call for compaction.
package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const (
	envProvider = "LLM_PROVIDER" // "anthropic" or "openai"
)

// ContentPart is one piece of a multimodal user message.
type ContentPart struct {
	Type     string // "text" or "image_url"
	Text     string
	ImageURL string // data URL, only set when Type == "image_url"
}

// Message is one turn of the conversation sent to the backend. Parts, when
// non-empty, take precedence over Text and carry multimodal content.
type Message struct {
	Role  string
	Text  string
	Parts []ContentPart
}

// Request is a single chat-completion call.
type Request struct {
	System      string
	Messages    []Message
	Temperature float32
	MaxTokens   int
	// JSONMode asks the backend to constrain output to a single JSON object.
	JSONMode bool
}

// Response is the backend's reply.
type Response struct {
	Text string
}

// Client is the core's only view of the LLM Backend, consumed by both the
// Agent Runner (per-step calls) and the Message Manager (compaction calls).
type Client interface {
	Generate(ctx context.Context, req Request) (Response, error)
	Name() string
}

// NewClientFromEnv creates a client based on LLM_PROVIDER env var.
// Defaults to Anthropic if not specified.
func NewClientFromEnv() (Client, error) {
	return NewClientWithLogger(zerolog.Nop())
}

// NewClientWithLogger creates a client with logger based on LLM_PROVIDER env var.
func NewClientWithLogger(logger zerolog.Logger) (Client, error) {
	provider := strings.ToLower(strings.TrimSpace(os.Getenv(envProvider)))
	if provider == "" {
		provider = "anthropic"
	}

	switch provider {
	case "openai":
		return NewOpenAIWithLogger(logger)
	case "anthropic":
		return NewAnthropicWithLogger(logger)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (use 'anthropic' or 'openai')", provider)
	}
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
