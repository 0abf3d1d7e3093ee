package adapters

import (
	"context"
	"strings"

	"github.com/bargom/hivemind/internal/llm"
)

const questionName = "question_classifier"

const questionPrompt = `Determine if the user's message requires external knowledge from a RAG pipeline.
If yes, return **True**; otherwise, return **False**. However, if the user's request
is specifically directed to a person (even if no name is mentioned, e.g., "Could you
do this for me?"), always return **False**. Provide only "True" or "False", with no
further explanation.

Message: `

// QuestionClassifier asks a language model whether a message needs
// community knowledge to answer.
type QuestionClassifier struct {
	model ChatModel
}

// NewQuestionClassifier creates the classifier.
func NewQuestionClassifier(model ChatModel) *QuestionClassifier {
	return &QuestionClassifier{model: model}
}

// Classify parses a True/False reply.
func (c *QuestionClassifier) Classify(ctx context.Context, query string, _ Input) (Decision, error) {
	out, err := c.model.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: "You are a helpful assistant."},
		{Role: llm.RoleUser, Content: questionPrompt + query},
	})
	if err != nil {
		return Decision{}, unavailable(questionName, err)
	}

	text := strings.ToLower(strings.TrimSpace(out))
	d := Decision{Model: c.model.Model(), Reasoning: strings.TrimSpace(out)}
	switch {
	case strings.Contains(text, "true"):
		d.Result = true
	case strings.Contains(text, "false"):
	default:
		return Decision{}, invalid(questionName, "wrong response: %s", truncate(text, 200))
	}
	return d, nil
}
