package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Enqueuer submits work for asynchronous processing.
type Enqueuer interface {
	Enqueue(ctx context.Context, msgType string, payload interface{}) (string, error)
}

// Config controls the consumer side of a queue.
type Config struct {
	Workers     int
	RetryLimit  int
	RetryDelay  time.Duration // base delay, doubled per attempt with jitter
	PollTimeout time.Duration // BRPOP block time
}

// Message is the envelope stored in Redis.
type Message struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	LastError  string          `json:"last_error,omitempty"`
}

// Decode unmarshals a job payload. An empty payload yields the zero value.
func Decode[T any](payload json.RawMessage) (T, error) {
	var out T
	if len(payload) == 0 || string(payload) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return out, fmt.Errorf("decode payload: %w", err)
	}
	return out, nil
}
