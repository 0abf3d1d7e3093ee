package dispatch

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// Task represents a task to be enqueued.
type Task struct {
	// ID deduplicates enqueues of the same task.
	ID      string
	Type    string
	Payload json.RawMessage
	Queue   string

	MaxRetry  int
	Timeout   time.Duration
	Retention time.Duration
}

// NewTask creates a new task with the given type and payload.
func NewTask(taskType string, payload any) (*Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Task{
		Type:     taskType,
		Payload:  data,
		Queue:    "default",
		MaxRetry: 3,
	}, nil
}

// WithID sets the task id.
func (t *Task) WithID(id string) *Task {
	t.ID = id
	return t
}

// WithQueue sets the queue for the task.
func (t *Task) WithQueue(queue string) *Task {
	t.Queue = queue
	return t
}

// WithMaxRetry sets the max retry count for the task.
func (t *Task) WithMaxRetry(maxRetry int) *Task {
	t.MaxRetry = maxRetry
	return t
}

// WithTimeout sets the timeout for the task.
func (t *Task) WithTimeout(timeout time.Duration) *Task {
	t.Timeout = timeout
	return t
}

// WithRetention sets the retention period for the task.
func (t *Task) WithRetention(retention time.Duration) *Task {
	t.Retention = retention
	return t
}

func (t *Task) toAsynq() (*asynq.Task, []asynq.Option) {
	opts := []asynq.Option{
		asynq.Queue(t.Queue),
		asynq.MaxRetry(t.MaxRetry),
	}
	if t.ID != "" {
		opts = append(opts, asynq.TaskID(t.ID))
	}
	if t.Timeout > 0 {
		opts = append(opts, asynq.Timeout(t.Timeout))
	}
	if t.Retention > 0 {
		opts = append(opts, asynq.Retention(t.Retention))
	}
	return asynq.NewTask(t.Type, t.Payload), opts
}
