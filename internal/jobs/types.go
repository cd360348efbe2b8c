package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TaskWarmCache = "cache:warm"

	QueueWarm    = "warm"
	QueueDefault = "default"
)

// WarmPayload selects what a warm task refreshes. Empty Resources means all.
type WarmPayload struct {
	Resources []string `json:"resources,omitempty"`
	ClientID  string   `json:"client_id,omitempty"`
}

// NewWarmTask builds a cache:warm task on the warm queue
func NewWarmTask(p WarmPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal warm payload: %w", err)
	}
	return asynq.NewTask(TaskWarmCache, payload,
		asynq.Queue(QueueWarm),
		asynq.MaxRetry(3),
		asynq.Timeout(2*time.Minute),
	), nil
}
