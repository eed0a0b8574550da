package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// State is the lifecycle position of a task.
type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Valid reports whether s names a known state.
func (s State) Valid() bool {
	switch s {
	case StateWaiting, StateActive, StateCompleted, StateFailed:
		return true
	}
	return false
}

// Task is a persisted unit of work.
type Task struct {
	ID         string     `gorm:"column:id;primaryKey;size:36" json:"id"`
	Name       string     `gorm:"column:name;size:120;not null;index:idx_queue_tasks_claim,priority:1" json:"name"`
	Payload    string     `gorm:"column:payload;type:text;not null" json:"payload"`
	State      State      `gorm:"column:state;size:16;not null;index:idx_queue_tasks_claim,priority:2" json:"state"`
	Attempts   int        `gorm:"column:attempts;not null;default:0" json:"attempts"`
	LastError  string     `gorm:"column:last_error;type:text;not null;default:''" json:"last_error,omitempty"`
	CreatedAt  time.Time  `gorm:"column:created_at;not null;index" json:"created_at"`
	StartedAt  *time.Time `gorm:"column:started_at" json:"started_at,omitempty"`
	FinishedAt *time.Time `gorm:"column:finished_at" json:"finished_at,omitempty"`
}

// TableName provides the explicit table binding for GORM.
func (Task) TableName() string {
	return "queue_tasks"
}

// Decode unmarshals the payload into out.
func (t Task) Decode(out any) error {
	if err := json.Unmarshal([]byte(t.Payload), out); err != nil {
		return fmt.Errorf("queue: decode %s payload: %w", t.Name, err)
	}
	return nil
}

// Handler processes one task. Returning an error or panicking marks the task failed.
type Handler func(ctx context.Context, task Task) error

// Models lists every table owned by this package.
func Models() []any {
	return []any{&Task{}}
}

func encodePayload(payload any) (string, error) {
	switch value := payload.(type) {
	case nil:
		return "{}", nil
	case json.RawMessage:
		if len(value) == 0 {
			return "{}", nil
		}
		if !json.Valid(value) {
			return "", fmt.Errorf("queue: payload is not valid json")
		}
		return string(value), nil
	default:
		encoded, err := json.Marshal(value)
		if err != nil {
			return "", fmt.Errorf("queue: encode payload: %w", err)
		}
		return string(encoded), nil
	}
}
