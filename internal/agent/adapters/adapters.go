// Package adapters wraps the external models the agent consults: a local
// question/statement classifier, language-model classifiers and the answer
// generator.
package adapters

import (
	"context"
	"errors"
	"fmt"

	"github.com/bargom/hivemind/internal/llm"
)

var (
	// ErrClassificationUnavailable means the upstream model could not be reached.
	ErrClassificationUnavailable = errors.New("classification unavailable")
	// ErrClassificationInvalid means the model answered with something unparseable.
	ErrClassificationInvalid = errors.New("classification invalid")
)

// Decision is a classifier's verdict.
type Decision struct {
	Result    bool     `json:"result"`
	Reasoning string   `json:"reasoning,omitempty"`
	Score     *float64 `json:"score,omitempty"`
	Model     string   `json:"model"`
}

// Data renders the decision as step data.
func (d Decision) Data() map[string]any {
	data := map[string]any{
		"result": d.Result,
		"model":  d.Model,
	}
	if d.Reasoning != "" {
		data["reasoning"] = d.Reasoning
	}
	if d.Score != nil {
		data["score"] = *d.Score
	}
	return data
}

// Input carries what a classifier may look at besides the query.
type Input struct {
	CommunityID string
	ChatHistory string
}

// Classifier decides a yes/no question about a user query.
type Classifier interface {
	Classify(ctx context.Context, query string, in Input) (Decision, error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, query string, in Input) (Decision, error)

// Classify calls f.
func (f ClassifierFunc) Classify(ctx context.Context, query string, in Input) (Decision, error) {
	return f(ctx, query, in)
}

// ChatModel is the subset of llm.Client the adapters use.
type ChatModel interface {
	Chat(ctx context.Context, messages []llm.Message) (string, error)
	ChatJSON(ctx context.Context, messages []llm.Message) (string, error)
	Model() string
}

var _ ChatModel = (*llm.Client)(nil)

func unavailable(name string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", name, err)
	}
	return fmt.Errorf("%s: %w: %w", name, ErrClassificationUnavailable, err)
}

func invalid(name, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %s", name, ErrClassificationInvalid, fmt.Sprintf(format, args...))
}

func ptr[T any](v T) *T {
	return &v
}
