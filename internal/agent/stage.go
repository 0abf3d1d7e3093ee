package agent

import (
	"github.com/bargom/hivemind/internal/workflow/repository"
)

// Stage is the orchestrator's position in the query flow. It is derived
// from the journal rather than stored.
type Stage string

const (
	StageInit          Stage = "init"
	StageHistoryLookup Stage = "history_lookup"
	StageClassifying   Stage = "classifying"
	StageDirectAnswer  Stage = "direct_answer"
	StageRetrieval     Stage = "retrieval"
	StageAnswering     Stage = "answering"
	StageMemoryUpdate  Stage = "memory_update"
	StageDone          Stage = "done"
	StageErrored       Stage = "errored"
)

var stepStages = map[string]Stage{
	repository.StepInitialization:             StageInit,
	repository.StepChatHistoryRetrieval:       StageHistoryLookup,
	repository.StepNoChatHistory:              StageHistoryLookup,
	repository.StepFlowInitialization:         StageClassifying,
	repository.StepFlowExecutionStart:         StageClassifying,
	repository.StepLocalModelClassification:   StageClassifying,
	repository.StepQuestionClassification:     StageClassifying,
	repository.StepRAGClassification:          StageClassifying,
	repository.StepHistoryQueryClassification: StageClassifying,
	repository.StepRetrieval:                  StageRetrieval,
	repository.StepFlowExecutionComplete:      StageAnswering,
	repository.StepAnswerValidation:           StageAnswering,
	repository.StepAnswerProcessing:           StageAnswering,
	repository.StepMemoryUpdate:               StageMemoryUpdate,
	repository.StepErrorOccurred:              StageErrored,
}

// StageOf reports the stage an instance has reached. error_handling steps and
// step names it does not know are skipped over.
func StageOf(inst *repository.WorkflowInstance) Stage {
	switch inst.Status {
	case repository.StatusCompleted:
		return StageDone
	case repository.StatusFailed:
		return StageErrored
	}
	for i := len(inst.Steps) - 1; i >= 0; i-- {
		if st, ok := stepStages[inst.Steps[i].StepName]; ok {
			return st
		}
	}
	return StageInit
}
