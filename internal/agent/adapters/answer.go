package adapters

import (
	"context"
	"fmt"
	"strings"

	"github.com/bargom/hivemind/internal/llm"
)

// AnswerInput is what the answerer may use to reply.
type AnswerInput struct {
	Query       string
	ChatHistory string
}

// Answerer produces the reply text for a query.
type Answerer interface {
	Answer(ctx context.Context, in AnswerInput) (string, error)
}

const generalPrompt = `You are an intelligent agent capable of giving concise answers to
questions. Answer using your own knowledge. Your final response must not exceed
250 words.`

const historyAnswerPrompt = `You are an intelligent agent capable of giving concise answers
to questions about chat history. Use the chat history below to answer.

Chat History: `

// LMAnswerer answers with a language model.
type LMAnswerer struct {
	model ChatModel
}

// NewLMAnswerer creates the answerer.
func NewLMAnswerer(model ChatModel) *LMAnswerer {
	return &LMAnswerer{model: model}
}

// Answer replies from general knowledge, or from the chat history when set.
func (a *LMAnswerer) Answer(ctx context.Context, in AnswerInput) (string, error) {
	system := generalPrompt
	if in.ChatHistory != "" {
		system = historyAnswerPrompt + in.ChatHistory
	}
	out, err := a.model.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: in.Query},
	})
	if err != nil {
		return "", fmt.Errorf("generating answer: %w", err)
	}
	return strings.TrimSpace(out), nil
}
