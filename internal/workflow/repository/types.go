// Package repository records the lifecycle of agent query workflows.
//
// Every instance carries an append-only step journal plus the current
// status, current step, optional response and free-form metadata. All
// writes go through a Store whose Apply operation is atomic per instance.
package repository

import (
	"time"
)

// Status is the lifecycle status of a workflow instance.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether no further steps may be recorded.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Well-known step names. The vocabulary is open; stores accept any name.
const (
	StepInitialization             = "initialization"
	StepChatHistoryRetrieval       = "chat_history_retrieval"
	StepNoChatHistory              = "no_chat_history"
	StepFlowInitialization         = "flow_initialization"
	StepFlowExecutionStart         = "flow_execution_start"
	StepLocalModelClassification   = "local_model_classification"
	StepQuestionClassification     = "question_classification"
	StepRAGClassification          = "rag_classification"
	StepHistoryQueryClassification = "history_query_classification"
	StepRetrieval                  = "retrieval"
	StepFlowExecutionComplete      = "flow_execution_complete"
	StepAnswerValidation           = "answer_validation"
	StepAnswerProcessing           = "answer_processing"
	StepMemoryUpdate               = "memory_update"
	StepErrorHandling              = "error_handling"
	StepErrorOccurred              = "error_occurred"
)

// Destination names the queue and event used to deliver a response.
type Destination struct {
	Queue string `bson:"queue" json:"queue" validate:"required"`
	Event string `bson:"event" json:"event" validate:"required"`
}

// Route describes where a query came from and where its answer goes.
type Route struct {
	Source      string       `bson:"source" json:"source" validate:"required"`
	Destination *Destination `bson:"destination,omitempty" json:"destination,omitempty"`
}

// Question is the user query as received.
type Question struct {
	Message string         `bson:"message" json:"message" validate:"required"`
	Filters map[string]any `bson:"filters,omitempty" json:"filters,omitempty"`
}

// Response is the final answer of a workflow.
type Response struct {
	Message string `bson:"message" json:"message"`
}

// StepEvent is one entry of the step journal.
type StepEvent struct {
	StepName  string         `bson:"stepName" json:"stepName"`
	Timestamp time.Time      `bson:"timestamp" json:"timestamp"`
	Data      map[string]any `bson:"data" json:"data"`
}

// Seq is the zero-based position of an event in an instance's journal.
type Seq int64

// NoSeq is returned by Apply when the mutation appended no event.
const NoSeq Seq = -1

// WorkflowInstance is the persisted record of one agent query.
type WorkflowInstance struct {
	ID                   string         `bson:"_id" json:"id"`
	IdempotencyKey       string         `bson:"idempotencyKey,omitempty" json:"idempotencyKey,omitempty"`
	CommunityID          string         `bson:"communityId" json:"communityId"`
	Route                Route          `bson:"route" json:"route"`
	Question             Question       `bson:"question" json:"question"`
	Response             *Response      `bson:"response" json:"response"`
	Metadata             map[string]any `bson:"metadata" json:"metadata"`
	Steps                []StepEvent    `bson:"steps" json:"steps"`
	CurrentStep          string         `bson:"currentStep" json:"currentStep"`
	Status               Status         `bson:"status" json:"status"`
	StepCount            int64          `bson:"stepCount" json:"stepCount"`
	ChatID               string         `bson:"chatId,omitempty" json:"chatId,omitempty"`
	EnableAnswerSkipping bool           `bson:"enableAnswerSkipping" json:"enableAnswerSkipping"`
	CreatedAt            time.Time      `bson:"createdAt" json:"createdAt"`
	UpdatedAt            time.Time      `bson:"updatedAt" json:"updatedAt"`
}

// LastStep returns the most recent journal entry, if any.
func (w *WorkflowInstance) LastStep() (StepEvent, bool) {
	if len(w.Steps) == 0 {
		return StepEvent{}, false
	}
	return w.Steps[len(w.Steps)-1], true
}

// CreateParams are the inputs of CreateInstance.
type CreateParams struct {
	IdempotencyKey       string
	CommunityID          string `validate:"required"`
	Route                Route
	Question             Question
	ChatID               string
	EnableAnswerSkipping bool
	Metadata             map[string]any
}

// Filter narrows ListInstances results.
type Filter struct {
	CommunityID string
	Status      Status
	Limit       int
	Offset      int
}

// ErrorInfo describes a failure recorded by MarkFailed.
type ErrorInfo struct {
	Stage       string
	Message     string
	Type        string
	Cancelled   bool
	// Context holds the messages of the wrapped error chain, outermost first.
	Context     []string
	WorkflowID  string
	CommunityID string
	ChatID      string
}

func (e ErrorInfo) data() map[string]any {
	d := map[string]any{
		"error":     e.Message,
		"errorType": e.Type,
		"stage":     e.Stage,
		"cancelled": e.Cancelled,
	}
	if len(e.Context) > 0 {
		d["context"] = e.Context
	}
	if e.WorkflowID != "" {
		d["workflowId"] = e.WorkflowID
	}
	if e.CommunityID != "" {
		d["communityId"] = e.CommunityID
	}
	if e.ChatID != "" {
		d["chatId"] = e.ChatID
	}
	return d
}
