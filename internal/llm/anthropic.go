package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	envAPIKey    = "ANTHROPIC_API_KEY"
	envModel     = "ANTHROPIC_MODEL"
	defaultModel = "claude-sonnet-4-5-20250929"

	apiURL      = "https://api.anthropic.com/v1/messages"
	apiVersion  = "2023-06-01"
	minTokens   = 900
	timeoutSecs = 60

	maxRetries     = 3
	retryBaseDelay = 500 * time.Millisecond
	maxRequestSize = 200000 // ~200KB limit for safety
)

type anthropicClient struct {
	apiKey string
	model  string
	http   *http.Client
	logger zerolog.Logger
}

func NewAnthropicFromEnv() (Client, error) {
	key := strings.TrimSpace(os.Getenv(envAPIKey))
	if key == "" {
		return nil, fmt.Errorf("missing %s", envAPIKey)
	}
	model := strings.TrimSpace(os.Getenv(envModel))
	if model == "" {
		model = defaultModel
	}
	model = strings.Trim(model, "\"'")
	return &anthropicClient{
		apiKey: key,
		model:  model,
		http: &http.Client{
			Timeout: timeoutSecs * time.Second,
		},
		logger: zerolog.Nop(),
	}, nil
}

// NewAnthropicWithLogger creates client with logger for detailed tracing
func NewAnthropicWithLogger(logger zerolog.Logger) (Client, error) {
	client, err := NewAnthropicFromEnv()
	if err != nil {
		return nil, err
	}
	if ac, ok := client.(*anthropicClient); ok {
		ac.logger = logger
	}
	return client, nil
}

func (c *anthropicClient) Name() string { return c.model }

func (c *anthropicClient) Generate(ctx context.Context, req Request) (Response, error) {
	if len(req.Messages) == 0 {
		return Response{}, errors.New("no messages")
	}

	for i, m := range req.Messages {
		if len(m.Text) > maxRequestSize {
			c.logger.Warn().Int("message_idx", i).Int("size", len(m.Text)).Msg("message too large, truncating")
			req.Messages[i].Text = m.Text[:maxRequestSize] + "... [truncated]"
		}
	}

	if len(req.System) > maxRequestSize {
		c.logger.Warn().Int("size", len(req.System)).Msg("system prompt too large, truncating")
		req.System = req.System[:maxRequestSize] + "... [truncated]"
	}

	system := req.System
	if req.JSONMode {
		system = strings.TrimSpace(system + "\n\nRespond with a single JSON object and nothing else.")
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay * time.Duration(1<<uint(attempt-1))
			c.logger.Info().
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("retrying Anthropic API call")
			select {
			case <-ctx.Done():
				return Response{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		payload := anthropicPayload{
			Model:       c.model,
			MaxTokens:   max(req.MaxTokens, minTokens),
			Temperature: float64(req.Temperature),
			System:      system,
		}
		for _, m := range req.Messages {
			payload.Messages = append(payload.Messages, anthropicMessage{
				Role:    m.Role,
				Content: toAnthropicContent(m),
			})
		}

		body, err := json.Marshal(payload)
		if err != nil {
			return Response{}, fmt.Errorf("marshal payload: %w", err)
		}

		c.logger.Debug().
			Str("model", c.model).
			Int("messages", len(payload.Messages)).
			Int("payload_size", len(body)).
			Int("max_tokens", payload.MaxTokens).
			Msg("Anthropic API request")

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(body))
		if err != nil {
			return Response{}, fmt.Errorf("create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-api-key", c.apiKey)
		httpReq.Header.Set("anthropic-version", apiVersion)

		resp, err := c.http.Do(httpReq)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			if attempt < maxRetries {
				continue
			}
			return Response{}, lastErr
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			if attempt < maxRetries {
				continue
			}
			return Response{}, lastErr
		}

		c.logger.Debug().
			Int("status", resp.StatusCode).
			Int("response_size", len(data)).
			Msg("Anthropic API response")

		if resp.StatusCode >= 400 {
			var apiErr anthropicError
			rawError := string(data)
			if err := json.Unmarshal(data, &apiErr); err != nil {
				errorMsg := truncateString(rawError, 500)
				lastErr = fmt.Errorf("anthropic %d: %s (raw, parse err: %v)", resp.StatusCode, errorMsg, err)
			} else {
				errorMsg := apiErr.Error()
				if errorMsg == "" {
					errorMsg = truncateString(rawError, 500)
				}
				lastErr = fmt.Errorf("anthropic %d: %s (type: %s)", resp.StatusCode, errorMsg, apiErr.Type)
			}

			c.logger.Error().
				Int("status", resp.StatusCode).
				Str("error_type", apiErr.Type).
				Str("error_msg", apiErr.Message).
				Int("attempt", attempt).
				Msg("Anthropic API error")

			if resp.StatusCode == 400 && apiErr.Type == "invalid_request_error" &&
				strings.Contains(apiErr.Message, "API usage limits") {
				return Response{}, fmt.Errorf("API usage limit reached: %s", apiErr.Message)
			}

			if (resp.StatusCode == 429 || resp.StatusCode >= 500) && attempt < maxRetries {
				continue
			}
			return Response{}, lastErr
		}

		var ar anthropicResponse
		if err := json.Unmarshal(data, &ar); err != nil {
			lastErr = fmt.Errorf("parse response: %w", err)
			if attempt < maxRetries {
				continue
			}
			return Response{}, lastErr
		}

		var buf bytes.Buffer
		for _, content := range ar.Content {
			if content.Type == "text" {
				buf.WriteString(content.Text)
			}
		}

		c.logger.Debug().
			Int("response_length", buf.Len()).
			Msg("Anthropic API success")

		return Response{Text: buf.String()}, nil
	}

	return Response{}, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// toAnthropicContent renders a Message as Anthropic content blocks, decoding
// any image_url data URLs into base64 image blocks.
func toAnthropicContent(m Message) []anthropicContent {
	if len(m.Parts) == 0 {
		return []anthropicContent{{Type: "text", Text: m.Text}}
	}
	blocks := make([]anthropicContent, 0, len(m.Parts))
	for _, p := range m.Parts {
		switch p.Type {
		case "image_url":
			mediaType, data, ok := decodeDataURL(p.ImageURL)
			if !ok {
				continue
			}
			blocks = append(blocks, anthropicContent{
				Type: "image",
				Source: &anthropicImageSource{
					Type:      "base64",
					MediaType: mediaType,
					Data:      data,
				},
			})
		default:
			blocks = append(blocks, anthropicContent{Type: "text", Text: p.Text})
		}
	}
	return blocks
}

// decodeDataURL splits "data:<media-type>;base64,<data>" into its parts.
func decodeDataURL(url string) (mediaType, data string, ok bool) {
	const prefix = "data:"
	if !strings.HasPrefix(url, prefix) {
		return "", "", false
	}
	rest := url[len(prefix):]
	comma := strings.IndexByte(rest, ',')
	if comma < 0 {
		return "", "", false
	}
	meta := rest[:comma]
	data = rest[comma+1:]
	meta = strings.TrimSuffix(meta, ";base64")
	if meta == "" {
		meta = "image/png"
	}
	return meta, data, true
}

type anthropicPayload struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type   string                `json:"type"`
	Text   string                `json:"text,omitempty"`
	Source *anthropicImageSource `json:"source,omitempty"`
}

type anthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (e anthropicError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Type
}
