package notifier

import (
	"context"
	"time"

	"github.com/google/uuid"

	"courierd/pkg/bus"
)

// JetStream subjects for job lifecycle events.
const (
	SubjectJobEnqueued  = "courier.jobs.enqueued"
	SubjectJobCompleted = "courier.jobs.completed"
	SubjectJobFailed    = "courier.jobs.failed"
)

// JobEvent is the payload published on job lifecycle subjects.
type JobEvent struct {
	JobID     uuid.UUID `json:"job_id"`
	Kind      string    `json:"kind"`
	State     State     `json:"state"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	At        time.Time `json:"at"`
}

// publishEvent emits a lifecycle event. Event delivery is best effort and
// never affects job state.
func publishEvent(ctx context.Context, b *bus.Bus, subject string, job *Job) {
	_ = b.Publish(ctx, subject, JobEvent{
		JobID:     job.ID,
		Kind:      job.Kind,
		State:     job.State,
		Attempts:  job.AttemptCount,
		LastError: job.LastError,
		At:        time.Now().UTC(),
	})
}
