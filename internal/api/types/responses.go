// Package types defines the audit API's response bodies.
package types

import (
	"time"

	"github.com/bargom/hivemind/internal/workflow/repository"
)

const (
	// DefaultLimit is the default number of items per page.
	DefaultLimit = 20
	// DefaultMaxLimit is the maximum allowed limit.
	DefaultMaxLimit = 100
)

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ListResponse represents a paginated list response.
type ListResponse[T any] struct {
	Data   []T `json:"data"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// NewListResponse creates a new list response.
func NewListResponse[T any](data []T, limit, offset int) *ListResponse[T] {
	if data == nil {
		data = []T{}
	}
	return &ListResponse[T]{Data: data, Limit: limit, Offset: offset}
}

// WorkflowSummary is an instance without its journal.
type WorkflowSummary struct {
	ID          string            `json:"id"`
	CommunityID string            `json:"communityId"`
	Status      repository.Status `json:"status"`
	CurrentStep string            `json:"currentStep"`
	StepCount   int64             `json:"stepCount"`
	Route       repository.Route  `json:"route"`
	ChatID      string            `json:"chatId,omitempty"`
	Answered    bool              `json:"answered"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// SummaryFromInstance drops the journal and the question text.
func SummaryFromInstance(inst *repository.WorkflowInstance) WorkflowSummary {
	return WorkflowSummary{
		ID:          inst.ID,
		CommunityID: inst.CommunityID,
		Status:      inst.Status,
		CurrentStep: inst.CurrentStep,
		StepCount:   inst.StepCount,
		Route:       inst.Route,
		ChatID:      inst.ChatID,
		Answered:    inst.Response != nil,
		CreatedAt:   inst.CreatedAt,
		UpdatedAt:   inst.UpdatedAt,
	}
}

// StepsResponse is the journal of one instance.
type StepsResponse struct {
	WorkflowID string                 `json:"workflowId"`
	Steps      []repository.StepEvent `json:"steps"`
}
