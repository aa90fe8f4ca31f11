package taskqueue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Enqueuer is the narrow write-side surface services use to schedule work.
// It exists so services do not depend on the worker wiring.
type Enqueuer interface {
	Enqueue(taskType string, payload any, opts ...Option) error
}

// Option mirrors the queue options services actually need.
type Option = asynq.Option

func ProcessIn(d time.Duration) Option { return asynq.ProcessIn(d) }
func MaxRetry(n int) Option            { return asynq.MaxRetry(n) }

type asynqEnqueuer struct {
	client *asynq.Client
}

func NewEnqueuer(client *asynq.Client) Enqueuer {
	return &asynqEnqueuer{client: client}
}

func (e *asynqEnqueuer) Enqueue(taskType string, payload any, opts ...Option) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal task payload: %w", err)
	}
	if _, err := e.client.Enqueue(asynq.NewTask(taskType, body), opts...); err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", taskType, err)
	}
	return nil
}
