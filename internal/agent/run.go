package agent

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/bargom/hivemind/internal/agent/adapters"
	"github.com/bargom/hivemind/internal/workflow/repository"
	"github.com/bargom/hivemind/pkg/metrics"
)

// Answer paths recorded in flow_execution_complete.
const (
	PathSkipped   = "skipped"
	PathDirect    = "direct"
	PathRetrieval = "retrieval"
	PathHistory   = "history"
)

// run is the state of one execution of an instance.
type run struct {
	o       *Orchestrator
	inst    *repository.WorkflowInstance
	query   string
	history string
	// journal maps step names recorded by earlier attempts to their data.
	journal map[string]map[string]any
}

func newRun(o *Orchestrator, inst *repository.WorkflowInstance, query string) *run {
	journal := make(map[string]map[string]any, len(inst.Steps))
	for _, s := range inst.Steps {
		data := s.Data
		if data == nil {
			data = map[string]any{}
		}
		journal[s.StepName] = data
	}
	return &run{o: o, inst: inst, query: query, journal: journal}
}

type verdict struct {
	question     bool
	rag          bool
	historyQuery bool
}

func (r *run) execute(ctx context.Context) (*Result, error) {
	if st := StageOf(r.inst); st != StageInit {
		r.o.logger.InfoContext(ctx, "resuming workflow",
			"stage", st,
			"steps", len(r.inst.Steps))
	}

	if err := r.stage(ctx, StageHistoryLookup, r.lookupHistory); err != nil {
		return nil, err
	}

	path, answer, err := r.flow(ctx)
	if err != nil {
		return nil, err
	}

	res := &Result{WorkflowID: r.inst.ID, Path: path}
	err = r.stage(ctx, StageAnswering, func(ctx context.Context) error {
		resp, err := r.processAnswer(ctx, path, answer)
		res.Response = resp
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := r.stage(ctx, StageMemoryUpdate, func(ctx context.Context) error {
		return r.updateMemory(ctx, res.Response)
	}); err != nil {
		return nil, err
	}

	if err := r.o.repo.MarkCompleted(ctx, r.inst.ID); err != nil {
		return nil, stageErr(StageDone, err)
	}
	r.o.logger.InfoContext(ctx, "workflow completed",
		"path", path,
		"answered", res.Response != nil)
	return res, nil
}

// stage runs fn inside a span and attributes its error to st.
func (r *run) stage(ctx context.Context, st Stage, fn func(context.Context) error) error {
	ctx, span := r.o.tracer.Start(ctx, "agent."+string(st))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	metrics.Global().Workflow().RecordStage(string(st), time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return stageErr(st, err)
	}
	return nil
}

func (r *run) step(ctx context.Context, name string, data map[string]any) error {
	if err := r.o.repo.AppendStep(ctx, r.inst.ID, name, data); err != nil {
		return err
	}
	metrics.Global().Workflow().RecordStep(name)
	return nil
}

// recorded returns the data of a step an earlier attempt already appended.
func (r *run) recorded(name string) (map[string]any, bool) {
	data, ok := r.journal[name]
	return data, ok
}

// once appends a step unless an earlier attempt recorded it.
func (r *run) once(ctx context.Context, name string, data map[string]any) error {
	if _, ok := r.recorded(name); ok {
		return nil
	}
	return r.step(ctx, name, data)
}

// decide returns the decision recorded under name by an earlier attempt, or
// obtains one from fn and records it with extra merged into the step data.
func (r *run) decide(ctx context.Context, name string, fn func(context.Context) (adapters.Decision, error), extra map[string]any) (adapters.Decision, error) {
	if data, ok := r.recorded(name); ok {
		return decisionFrom(data), nil
	}
	d, err := fn(ctx)
	if err != nil {
		return d, err
	}
	data := d.Data()
	maps.Copy(data, extra)
	return d, r.step(ctx, name, data)
}

func decisionFrom(data map[string]any) adapters.Decision {
	d := adapters.Decision{}
	d.Result, _ = data["result"].(bool)
	d.Reasoning, _ = data["reasoning"].(string)
	d.Model, _ = data["model"].(string)
	if score, ok := data["score"].(float64); ok {
		d.Score = &score
	}
	return d
}

// degrade records a non-fatal collaborator failure. Cancellation is never
// degraded.
func (r *run) degrade(ctx context.Context, st Stage, source string, cause error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", source, err)
	}
	r.o.logger.WarnContext(ctx, "continuing after collaborator failure",
		"stage", st,
		"source", source,
		"error", cause)
	return r.step(ctx, repository.StepErrorHandling, map[string]any{
		"stage":     string(st),
		"source":    source,
		"error":     cause.Error(),
		"errorType": errorType(cause),
		"fallback":  false,
	})
}

func (r *run) lookupHistory(ctx context.Context) error {
	if _, ok := r.recorded(repository.StepNoChatHistory); ok {
		return nil
	}
	_, seen := r.recorded(repository.StepChatHistoryRetrieval)
	if _, done := r.recorded(repository.StepFlowExecutionComplete); seen && done {
		// The history was only needed by the flow.
		return nil
	}

	chatID := r.inst.ChatID
	if chatID == "" || r.o.memory == nil {
		return r.step(ctx, repository.StepNoChatHistory, map[string]any{"chatId": chatID})
	}

	history, err := r.o.memory.History(ctx, chatID)
	if err != nil {
		if derr := r.degrade(ctx, StageHistoryLookup, "chat_memory", err); derr != nil {
			return derr
		}
		history = ""
	}
	r.history = history
	if seen {
		return nil
	}
	if history == "" {
		return r.step(ctx, repository.StepNoChatHistory, map[string]any{"chatId": chatID})
	}
	return r.step(ctx, repository.StepChatHistoryRetrieval, map[string]any{
		"chatId": chatID,
		"length": len(history),
	})
}

// flow classifies the query and produces an answer, or returns what an
// earlier attempt produced.
func (r *run) flow(ctx context.Context) (string, string, error) {
	if data, ok := r.recorded(repository.StepFlowExecutionComplete); ok {
		path, _ := data["path"].(string)
		answer, _ := data["answer"].(string)
		return path, answer, nil
	}

	var v verdict
	err := r.stage(ctx, StageClassifying, func(ctx context.Context) error {
		var err error
		v, err = r.classify(ctx)
		return err
	})
	if err != nil {
		return "", "", err
	}
	return r.produceAnswer(ctx, v)
}

func (r *run) classify(ctx context.Context) (verdict, error) {
	var v verdict
	if err := r.once(ctx, repository.StepFlowInitialization, map[string]any{
		"enableAnswerSkipping": r.inst.EnableAnswerSkipping,
		"hasChatHistory":       r.history != "",
	}); err != nil {
		return v, err
	}
	if err := r.once(ctx, repository.StepFlowExecutionStart, map[string]any{"query": r.query}); err != nil {
		return v, err
	}

	in := adapters.Input{CommunityID: r.inst.CommunityID, ChatHistory: r.history}

	local, err := r.decide(ctx, repository.StepLocalModelClassification, func(ctx context.Context) (adapters.Decision, error) {
		d, err := r.o.classifiers.Local.Classify(ctx, r.query, in)
		recordClassification("local_model", d, err)
		if err != nil {
			return d, fmt.Errorf("local model classification: %w", err)
		}
		return d, nil
	}, nil)
	if err != nil {
		return v, err
	}

	askQuestion := func(ctx context.Context) (adapters.Decision, error) {
		return r.consult(ctx, "question", r.o.classifiers.Question, in)
	}
	var extra map[string]any
	if !local.Result {
		askQuestion = func(context.Context) (adapters.Decision, error) {
			return adapters.Decision{Model: local.Model, Reasoning: local.Reasoning}, nil
		}
		extra = map[string]any{"skipped": true}
	}
	question, err := r.decide(ctx, repository.StepQuestionClassification, askQuestion, extra)
	if err != nil {
		return v, err
	}
	v.question = question.Result
	if !v.question {
		return v, nil
	}

	rag, err := r.decide(ctx, repository.StepRAGClassification, func(ctx context.Context) (adapters.Decision, error) {
		return r.consult(ctx, "rag", r.o.classifiers.RAG, in)
	}, nil)
	if err != nil {
		return v, err
	}
	v.rag = rag.Result

	if r.history != "" && r.o.classifiers.History != nil {
		hq, err := r.decide(ctx, repository.StepHistoryQueryClassification, func(ctx context.Context) (adapters.Decision, error) {
			return r.consult(ctx, "history_query", r.o.classifiers.History, in)
		}, nil)
		if err != nil {
			return v, err
		}
		v.historyQuery = hq.Result
	}
	return v, nil
}

// consult runs a non-fatal classifier, falling back to a negative decision.
func (r *run) consult(ctx context.Context, name string, c adapters.Classifier, in adapters.Input) (adapters.Decision, error) {
	if c == nil {
		return adapters.Decision{Reasoning: "classifier not configured"}, nil
	}
	d, err := c.Classify(ctx, r.query, in)
	recordClassification(name, d, err)
	if err == nil {
		return d, nil
	}
	if derr := r.degrade(ctx, StageClassifying, name+"_classifier", err); derr != nil {
		return adapters.Decision{}, derr
	}
	return adapters.Decision{Reasoning: "fallback after classifier error"}, nil
}

func recordClassification(name string, d adapters.Decision, err error) {
	outcome := "false"
	switch {
	case err != nil:
		outcome = "error"
	case d.Result:
		outcome = "true"
	}
	metrics.Global().Workflow().RecordClassification(name, outcome)
}

func (r *run) produceAnswer(ctx context.Context, v verdict) (string, string, error) {
	var answer string
	switch {
	case r.inst.EnableAnswerSkipping && !v.question:
		return PathSkipped, "", r.complete(ctx, PathSkipped, "")

	case v.historyQuery:
		err := r.stage(ctx, StageRetrieval, func(ctx context.Context) error {
			return r.once(ctx, repository.StepRetrieval, map[string]any{
				"source": "chat_history",
				"length": len(r.history),
			})
		})
		if err != nil {
			return "", "", err
		}
		err = r.stage(ctx, StageAnswering, func(ctx context.Context) error {
			var err error
			answer, err = r.o.answerer.Answer(ctx, adapters.AnswerInput{Query: r.query, ChatHistory: r.history})
			return err
		})
		if err != nil {
			return "", "", err
		}
		return PathHistory, answer, r.complete(ctx, PathHistory, answer)

	case v.rag:
		err := r.stage(ctx, StageRetrieval, func(ctx context.Context) error {
			var err error
			answer, err = r.o.retriever.Query(ctx, RetrievalRequest{
				CommunityID:          r.inst.CommunityID,
				Query:                r.query,
				EnableAnswerSkipping: r.inst.EnableAnswerSkipping,
				WorkflowID:           r.inst.ID,
			})
			if err != nil {
				return fmt.Errorf("retrieval: %w", err)
			}
			return r.once(ctx, repository.StepRetrieval, map[string]any{
				"source":   "rag",
				"answered": answer != "",
			})
		})
		if err != nil {
			return "", "", err
		}
		return PathRetrieval, answer, r.complete(ctx, PathRetrieval, answer)
	}

	err := r.stage(ctx, StageDirectAnswer, func(ctx context.Context) error {
		var err error
		answer, err = r.o.answerer.Answer(ctx, adapters.AnswerInput{Query: r.query})
		return err
	})
	if err != nil {
		return "", "", err
	}
	return PathDirect, answer, r.complete(ctx, PathDirect, answer)
}

// complete records the flow outcome, including the answer so a later
// attempt can pick it up without asking again.
func (r *run) complete(ctx context.Context, path, answer string) error {
	return r.step(ctx, repository.StepFlowExecutionComplete, map[string]any{
		"path":     path,
		"answered": answer != "",
		"answer":   answer,
	})
}

// validateAnswer records whether the answer addresses the question. With
// answer skipping enabled an irrelevant answer is dropped. Validator
// failures keep the answer.
func (r *run) validateAnswer(ctx context.Context, answer string) (string, error) {
	if answer == "" || r.o.validator == nil {
		return answer, nil
	}
	d, err := r.decide(ctx, repository.StepAnswerValidation, func(ctx context.Context) (adapters.Decision, error) {
		d, err := r.o.validator.Validate(ctx, r.query, answer)
		recordClassification("answer_validator", d, err)
		if err == nil {
			return d, nil
		}
		if derr := r.degrade(ctx, StageAnswering, "answer_validator", err); derr != nil {
			return adapters.Decision{}, derr
		}
		return adapters.Decision{Result: true, Reasoning: "fallback after validator error"}, nil
	}, nil)
	if err != nil {
		return "", err
	}
	if !d.Result && r.inst.EnableAnswerSkipping {
		return "", nil
	}
	return answer, nil
}

// processAnswer stores the response, or records that it was skipped. An
// answer stored by an earlier attempt is returned as is.
func (r *run) processAnswer(ctx context.Context, path, answer string) (*string, error) {
	if data, ok := r.recorded(repository.StepAnswerProcessing); ok {
		if skipped, _ := data["skipped"].(bool); skipped || r.inst.Response == nil {
			return nil, nil
		}
		msg := r.inst.Response.Message
		return &msg, nil
	}

	answer, err := r.validateAnswer(ctx, answer)
	if err != nil {
		return nil, err
	}
	if answer == "" {
		if r.inst.EnableAnswerSkipping {
			return nil, r.step(ctx, repository.StepAnswerProcessing, map[string]any{
				"skipped": true,
				"path":    path,
			})
		}
		answer = NoAnswerMessage
	}

	err = r.o.repo.SetResponse(ctx, r.inst.ID, repository.Response{Message: answer})
	if errors.Is(err, repository.ErrAlreadyAnswered) {
		// A concurrent attempt got this far; keep its answer.
		inst, getErr := r.o.repo.GetWorkflowState(ctx, r.inst.ID)
		if getErr != nil {
			return nil, getErr
		}
		if inst.Response != nil {
			answer = inst.Response.Message
		}
		err = nil
	}
	if err != nil {
		return nil, err
	}
	metrics.Global().Workflow().RecordStep(repository.StepAnswerProcessing)
	return &answer, nil
}

func (r *run) updateMemory(ctx context.Context, response *string) error {
	if _, ok := r.recorded(repository.StepMemoryUpdate); ok {
		return nil
	}
	chatID := r.inst.ChatID
	if chatID == "" || r.o.memory == nil || response == nil {
		return r.step(ctx, repository.StepMemoryUpdate, map[string]any{"updated": false})
	}
	if err := r.o.memory.AppendTurn(ctx, chatID, r.query, *response); err != nil {
		if derr := r.degrade(ctx, StageMemoryUpdate, "chat_memory", err); derr != nil {
			return derr
		}
		return r.step(ctx, repository.StepMemoryUpdate, map[string]any{"chatId": chatID, "updated": false})
	}
	return r.step(ctx, repository.StepMemoryUpdate, map[string]any{"chatId": chatID, "updated": true})
}
