package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/bargom/hivemind/pkg/integration/rest"
)

// DefaultLocalModel is the question-vs-statement text classifier.
const DefaultLocalModel = "shahrukhx01/question-vs-statement-classifier"

const localName = "local_model"

// Labels emitted by the local text-classification model.
const (
	LabelStatement = "LABEL_0"
	LabelQuestion  = "LABEL_1"
)

type labelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// LocalModel classifies a message as question or statement with a
// self-hosted text-classification endpoint.
type LocalModel struct {
	client *rest.Client
	path   string
	model  string
}

// NewLocalModel posts {"inputs": query} to path on client.
func NewLocalModel(client *rest.Client, path, model string) *LocalModel {
	if model == "" {
		model = DefaultLocalModel
	}
	return &LocalModel{client: client, path: path, model: model}
}

// Classify reports whether query is a question.
func (m *LocalModel) Classify(ctx context.Context, query string, _ Input) (Decision, error) {
	var raw json.RawMessage
	if err := m.client.PostJSON(ctx, m.path, map[string]string{"inputs": query}, &raw); err != nil {
		return Decision{}, unavailable(localName, err)
	}
	top, err := topLabel(raw)
	if err != nil {
		return Decision{}, invalid(localName, "%v", err)
	}

	d := Decision{Score: ptr(top.Score), Model: m.model}
	switch top.Label {
	case LabelQuestion:
		d.Result = true
		d.Reasoning = "question detected"
	case LabelStatement:
		d.Reasoning = "statement detected"
	default:
		return Decision{}, invalid(localName, "unknown label %q", top.Label)
	}
	return d, nil
}

// topLabel accepts both [{...}] and [[{...}]] response shapes.
func topLabel(raw json.RawMessage) (labelScore, error) {
	var flat []labelScore
	if err := json.Unmarshal(raw, &flat); err == nil && len(flat) > 0 {
		return flat[0], nil
	}
	var nested [][]labelScore
	if err := json.Unmarshal(raw, &nested); err == nil && len(nested) > 0 && len(nested[0]) > 0 {
		best := nested[0][0]
		for _, ls := range nested[0][1:] {
			if ls.Score > best.Score {
				best = ls
			}
		}
		return best, nil
	}
	return labelScore{}, fmt.Errorf("unexpected response %s", truncate(string(raw), 200))
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
