package adapters

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bargom/hivemind/internal/llm"
)

const validatorName = "answer_validator"

const validatorPrompt = `You are a helpful assistant that checks whether the answer is relevant
to the question. Reply with a JSON object {"relative": true|false}.`

// AnswerValidator judges whether an answer addresses the question asked.
type AnswerValidator interface {
	Validate(ctx context.Context, question, answer string) (Decision, error)
}

// LMAnswerValidator asks a language model whether an answer is relevant.
type LMAnswerValidator struct {
	model ChatModel
}

// NewLMAnswerValidator creates the validator.
func NewLMAnswerValidator(model ChatModel) *LMAnswerValidator {
	return &LMAnswerValidator{model: model}
}

// Validate parses {"relative": bool}.
func (v *LMAnswerValidator) Validate(ctx context.Context, question, answer string) (Decision, error) {
	out, err := v.model.ChatJSON(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: validatorPrompt},
		{Role: llm.RoleUser, Content: fmt.Sprintf("**Question:** %s\n\n**Answer:** %s", question, answer)},
	})
	if err != nil {
		return Decision{}, unavailable(validatorName, err)
	}

	var parsed struct {
		Relative *bool `json:"relative"`
	}
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		return Decision{}, invalid(validatorName, "decoding %q: %v", truncate(out, 200), err)
	}
	if parsed.Relative == nil {
		return Decision{}, invalid(validatorName, "relative missing in %q", truncate(out, 200))
	}
	d := Decision{Result: *parsed.Relative, Model: v.model.Model()}
	if !d.Result {
		d.Reasoning = "answer does not address the question"
	}
	return d, nil
}
