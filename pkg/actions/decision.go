package actions

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/dotsetgreg/relay/pkg/logger"
)

// ErrDecisionParse marks model output that is not a valid structured
// decision. Absorbed by the retry loop, never surfaced to the message task.
var ErrDecisionParse = errors.New("model output is not a valid decision")

// MaxDecisionAttempts caps total model invocations per message.
const MaxDecisionAttempts = 3

// Decision is the structured outcome of one model call: what the agent is
// thinking, which actions to take, and the drafted outbound text.
type Decision struct {
	Thought string   `json:"thought"`
	Actions []string `json:"actions"`
	Message string   `json:"message"`

	// InReplyTo is stamped by the router with the derived id of the
	// inbound message once the decision is accepted.
	InReplyTo string `json:"-"`
}

// DecisionModel is the single capability this package needs from the model
// backend.
type DecisionModel interface {
	GenerateDecision(ctx context.Context, prompt string) (string, error)
}

// NoneDecision is the degraded outcome after retry exhaustion: proceed with
// no action rather than failing the message.
func NoneDecision() *Decision {
	return &Decision{Actions: []string{string(ActionNone)}}
}

// RequestDecision asks the model for a decision, retrying invalid output up
// to MaxDecisionAttempts total invocations. Exhaustion degrades to
// NoneDecision; the error return is reserved for context cancellation.
func RequestDecision(ctx context.Context, model DecisionModel, prompt string) (*Decision, error) {
	for attempt := 1; attempt <= MaxDecisionAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := model.GenerateDecision(ctx, prompt)
		if err != nil {
			logger.WarnCF("actions", "Decision model call failed", map[string]interface{}{
				"attempt": attempt,
				"error":   err.Error(),
			})
			continue
		}
		decision, err := ParseDecision(raw)
		if err != nil {
			logger.WarnCF("actions", "Decision parse failed", map[string]interface{}{
				"attempt": attempt,
				"error":   err.Error(),
			})
			continue
		}
		return decision, nil
	}

	logger.WarnC("actions", "Decision retries exhausted, proceeding with no action")
	return NoneDecision(), nil
}

// ParseDecision extracts a Decision from raw model output. Tolerates prose
// or markdown fences around the JSON object; requires at least one action
// name.
func ParseDecision(raw string) (*Decision, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrDecisionParse
	}

	var d Decision
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		// Best effort extraction from mixed output.
		start := strings.Index(raw, "{")
		end := strings.LastIndex(raw, "}")
		if start < 0 || end <= start {
			return nil, ErrDecisionParse
		}
		if err := json.Unmarshal([]byte(raw[start:end+1]), &d); err != nil {
			return nil, ErrDecisionParse
		}
	}

	normalized := make([]string, 0, len(d.Actions))
	for _, name := range d.Actions {
		name = strings.ToUpper(strings.TrimSpace(name))
		if name != "" {
			normalized = append(normalized, name)
		}
	}
	if len(normalized) == 0 {
		return nil, ErrDecisionParse
	}
	d.Actions = normalized
	d.Thought = strings.TrimSpace(d.Thought)
	d.Message = strings.TrimSpace(d.Message)
	return &d, nil
}
