package adapters

import (
	"context"
	"encoding/json"

	"github.com/bargom/hivemind/internal/llm"
)

const historyName = "history_query_classifier"

const historyPrompt = `You are an expert at analyzing user queries to determine if they
are about chat history or they require internal/external knowledge. Reply with a
JSON object {"is_history_query": true|false}.`

// HistoryQueryClassifier decides whether a query is about the ongoing
// conversation rather than the knowledge base.
type HistoryQueryClassifier struct {
	model ChatModel
}

// NewHistoryQueryClassifier creates the classifier.
func NewHistoryQueryClassifier(model ChatModel) *HistoryQueryClassifier {
	return &HistoryQueryClassifier{model: model}
}

// Classify parses {"is_history_query": bool}.
func (c *HistoryQueryClassifier) Classify(ctx context.Context, query string, _ Input) (Decision, error) {
	out, err := c.model.ChatJSON(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: historyPrompt},
		{Role: llm.RoleUser, Content: query},
	})
	if err != nil {
		return Decision{}, unavailable(historyName, err)
	}

	var parsed struct {
		IsHistoryQuery *bool `json:"is_history_query"`
	}
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		return Decision{}, invalid(historyName, "decoding %q: %v", truncate(out, 200), err)
	}
	if parsed.IsHistoryQuery == nil {
		return Decision{}, invalid(historyName, "is_history_query missing in %q", truncate(out, 200))
	}
	d := Decision{Result: *parsed.IsHistoryQuery, Model: c.model.Model()}
	if d.Result {
		d.Reasoning = "query refers to the conversation"
	}
	return d, nil
}
