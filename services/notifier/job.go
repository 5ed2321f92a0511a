package notifier

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// State is the persisted lifecycle state of a notification job.
type State string

const (
	// StateWaiting marks a job eligible for immediate pickup.
	StateWaiting State = "waiting"
	// StateActive marks a job leased by exactly one worker.
	StateActive State = "active"
	// StateDelayed marks a job scheduled for a future retry.
	StateDelayed State = "delayed"
	// StateCompleted is reported for delivered jobs; their rows are purged,
	// so the state never rests in storage.
	StateCompleted State = "completed"
	// StateFailed marks a job that exhausted its attempts or hit a fatal
	// error. Failed rows are retained for operator inspection.
	StateFailed State = "failed"
)

// Catalogued job kinds. Each maps to a template and subject in the render
// catalog.
const (
	KindWelcome        = "send-welcome"
	KindReset          = "send-reset"
	KindAccountCreated = "send-account-created"
)

const (
	// DefaultMaxAttempts bounds delivery attempts per job.
	DefaultMaxAttempts = 5
	// backoffBase is the delay before the first retry.
	backoffBase = 3 * time.Second
	// backoffCap bounds the exponential schedule for jobs configured with
	// more attempts than the default.
	backoffCap = 15 * time.Minute
)

// Job is one unit of asynchronous notification work.
type Job struct {
	ID             uuid.UUID      `db:"id"`
	Kind           string         `db:"kind"`
	Recipient      string         `db:"recipient"`
	Subject        string         `db:"subject"`
	TemplateName   string         `db:"template_name"`
	Params         map[string]any `db:"params"`
	State          State          `db:"state"`
	AttemptCount   int            `db:"attempt_count"`
	MaxAttempts    int            `db:"max_attempts"`
	RunAt          time.Time      `db:"run_at"`
	LockedBy       string         `db:"locked_by"`
	LeaseExpiresAt *time.Time     `db:"lease_expires_at"`
	LastError      string         `db:"last_error"`
	EnqueuedAt     time.Time      `db:"enqueued_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

// Backoff returns the delay applied before retrying after the given number
// of completed attempts: base·2^(attempts-1), capped.
func Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}

	delay := backoffBase
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= backoffCap {
			return backoffCap
		}
	}
	return delay
}

// ParamStrings flattens the stored jsonb parameter map into the string map
// the renderer consumes.
func (j *Job) ParamStrings() map[string]string {
	out := make(map[string]string, len(j.Params))
	for k, v := range j.Params {
		if s, ok := v.(string); ok {
			out[k] = s
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out
}
