package runner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vektra-dev/browseragent/internal/agentcore"
)

// parseBrain extracts the first balanced JSON object from the LLM's reply
// and decodes it as an AgentBrain. Returns an error if no valid object with
// a non-empty action array is present.
func parseBrain(text string) (*agentcore.AgentBrain, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return nil, err
	}

	var brain agentcore.AgentBrain
	if err := json.Unmarshal([]byte(raw), &brain); err != nil {
		return nil, fmt.Errorf("parse agent brain: %w", err)
	}
	if len(brain.Action) == 0 {
		return nil, fmt.Errorf("agent brain has empty action array")
	}
	return &brain, nil
}

// extractJSON finds the first balanced top-level {...} object in text,
// tolerating // and /* */ comments inside it (some models emit them despite
// JSON-mode instructions).
func extractJSON(text string) (string, error) {
	depth := 0
	start := -1
	inStr := false
	esc := false
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if esc {
			esc = false
			continue
		}
		switch ch {
		case '\\':
			if inStr {
				esc = true
			}
		case '"':
			inStr = !inStr
		case '{':
			if !inStr {
				if depth == 0 {
					start = i
				}
				depth++
			}
		case '}':
			if !inStr && depth > 0 {
				depth--
				if depth == 0 && start != -1 {
					return removeJSONComments(text[start : i+1]), nil
				}
			}
		}
	}
	return "", fmt.Errorf("no balanced JSON object found")
}

func removeJSONComments(jsonStr string) string {
	var result strings.Builder
	inStr := false
	esc := false
	i := 0
	for i < len(jsonStr) {
		ch := jsonStr[i]
		if esc {
			result.WriteByte(ch)
			esc = false
			i++
			continue
		}
		if ch == '\\' && inStr {
			result.WriteByte(ch)
			esc = true
			i++
			continue
		}
		if ch == '"' {
			inStr = !inStr
			result.WriteByte(ch)
			i++
			continue
		}
		if !inStr {
			if i < len(jsonStr)-1 && jsonStr[i] == '/' && jsonStr[i+1] == '/' {
				for i < len(jsonStr) && jsonStr[i] != '\n' {
					i++
				}
				continue
			}
			if i < len(jsonStr)-1 && jsonStr[i] == '/' && jsonStr[i+1] == '*' {
				i += 2
				for i < len(jsonStr)-1 {
					if jsonStr[i] == '*' && jsonStr[i+1] == '/' {
						i += 2
						break
					}
					i++
				}
				continue
			}
		}
		result.WriteByte(ch)
		i++
	}
	return result.String()
}
