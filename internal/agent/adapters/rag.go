package adapters

import (
	"context"
	"encoding/json"

	"github.com/bargom/hivemind/internal/llm"
)

const ragName = "rag_classifier"

// DefaultRAGThreshold is the relevance score at or above which retrieval runs.
const DefaultRAGThreshold = 0.5

const ragPrompt = `You score how much answering a user's message depends on the
knowledge base of a specific community (its discussions, documents and
activity) rather than general knowledge. Reply with a JSON object
{"score": <number between 0 and 1>, "reasoning": "<one sentence>"}.`

// RAGClassifier scores a query's relevance to the community knowledge base.
type RAGClassifier struct {
	model     ChatModel
	threshold float64
}

// NewRAGClassifier creates the classifier. A threshold outside (0, 1]
// falls back to DefaultRAGThreshold.
func NewRAGClassifier(model ChatModel, threshold float64) *RAGClassifier {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultRAGThreshold
	}
	return &RAGClassifier{model: model, threshold: threshold}
}

// Classify returns Result = score >= threshold.
func (c *RAGClassifier) Classify(ctx context.Context, query string, _ Input) (Decision, error) {
	out, err := c.model.ChatJSON(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: ragPrompt},
		{Role: llm.RoleUser, Content: query},
	})
	if err != nil {
		return Decision{}, unavailable(ragName, err)
	}

	var parsed struct {
		Score     *float64 `json:"score"`
		Reasoning string   `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		return Decision{}, invalid(ragName, "decoding %q: %v", truncate(out, 200), err)
	}
	if parsed.Score == nil || *parsed.Score < 0 || *parsed.Score > 1 {
		return Decision{}, invalid(ragName, "score missing or out of range in %q", truncate(out, 200))
	}
	return Decision{
		Result:    *parsed.Score >= c.threshold,
		Reasoning: parsed.Reasoning,
		Score:     parsed.Score,
		Model:     c.model.Model(),
	}, nil
}
