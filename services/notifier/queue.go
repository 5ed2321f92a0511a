package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"courierd/pkg/db"
)

var (
	// ErrNoJob is returned by Lease when no job is currently eligible.
	ErrNoJob = errors.New("no job available")

	// ErrLeaseLost is returned by Complete and RetryOrFail when the caller
	// no longer holds the job's lease, typically because it expired and the
	// job was reclaimed for another worker.
	ErrLeaseLost = errors.New("job lease lost")
)

const jobColumns = `id, kind, recipient, subject, template_name, params, state,
	attempt_count, max_attempts, run_at, locked_by, lease_expires_at,
	last_error, enqueued_at, updated_at`

// Queue is the durable notification job store. Jobs are leased to exactly
// one worker at a time; completed jobs are purged, failed jobs retained.
type Queue struct {
	pool      *pgxpool.Pool
	completed atomic.Int64
}

// NewQueue creates a queue backed by the provided pool.
func NewQueue(pool *pgxpool.Pool) (*Queue, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &Queue{pool: pool}, nil
}

// Enqueue durably appends a job. Defaults are applied in place; the call
// returns once the insert commits, before any delivery is attempted.
func (q *Queue) Enqueue(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("nil job")
	}
	if job.Recipient == "" {
		return errors.New("job recipient is required")
	}

	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = DefaultMaxAttempts
	}
	now := time.Now().UTC()
	if job.RunAt.IsZero() {
		job.RunAt = now
	}
	job.State = StateWaiting
	job.EnqueuedAt = now

	if job.Params == nil {
		job.Params = map[string]any{}
	}
	params, err := json.Marshal(job.Params)
	if err != nil {
		return err
	}

	_, err = db.Exec(ctx, q.pool, `
		INSERT INTO notification_jobs
			(id, kind, recipient, subject, template_name, params, state,
			 attempt_count, max_attempts, run_at, enqueued_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, 0, $8, $9, $10, $10)
	`, job.ID, job.Kind, job.Recipient, job.Subject, job.TemplateName,
		string(params), job.State, job.MaxAttempts, job.RunAt, now)
	return err
}

// Lease atomically claims the oldest eligible job for workerID. Waiting
// jobs and delayed jobs whose retry time has arrived are both eligible.
// SKIP LOCKED keeps concurrent workers from contending on the same row.
func (q *Queue) Lease(ctx context.Context, workerID string, leaseFor time.Duration) (*Job, error) {
	var job Job

	err := db.InTx(ctx, q.pool, func(ctx context.Context, tx pgx.Tx) error {
		err := pgxscan.Get(ctx, tx, &job, `
			SELECT `+jobColumns+`
			FROM notification_jobs
			WHERE state IN ($1, $2) AND run_at <= now()
			ORDER BY run_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		`, StateWaiting, StateDelayed)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNoJob
			}
			return err
		}

		expires := time.Now().UTC().Add(leaseFor)
		_, err = tx.Exec(ctx, `
			UPDATE notification_jobs
			SET state = $2, locked_by = $3, lease_expires_at = $4, updated_at = now()
			WHERE id = $1
		`, job.ID, StateActive, workerID, expires)
		if err != nil {
			return err
		}

		job.State = StateActive
		job.LockedBy = workerID
		job.LeaseExpiresAt = &expires
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// Complete purges a delivered job. The delete is guarded by the worker's
// lease: a stale worker whose job was reclaimed gets ErrLeaseLost instead of
// purging a row another worker now owns. Completed jobs are not retained;
// the cumulative count is tracked in process for the status surface.
func (q *Queue) Complete(ctx context.Context, id uuid.UUID, workerID string) error {
	tag, err := db.Exec(ctx, q.pool, `
		DELETE FROM notification_jobs
		WHERE id = $1 AND locked_by = $2 AND state = $3
	`, id, workerID, StateActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLeaseLost
	}
	q.completed.Add(1)
	return nil
}

// RetryOrFail records a failed attempt. While attempts remain and the
// failure is retryable the job is rescheduled with exponential backoff;
// otherwise it is marked failed and retained with its last error. The
// update is guarded by the worker's lease: once the job has been reclaimed,
// the stale worker gets ErrLeaseLost and the new owner's state stands.
func (q *Queue) RetryOrFail(ctx context.Context, job *Job, cause string, retryable bool) (State, error) {
	attempts := job.AttemptCount + 1

	state := StateFailed
	runAt := job.RunAt
	if retryable && attempts < job.MaxAttempts {
		state = StateDelayed
		runAt = time.Now().UTC().Add(Backoff(attempts))
	}

	tag, err := db.Exec(ctx, q.pool, `
		UPDATE notification_jobs
		SET state = $2, attempt_count = $3, run_at = $4, last_error = $5,
		    locked_by = '', lease_expires_at = NULL, updated_at = now()
		WHERE id = $1 AND locked_by = $6 AND state = $7
	`, job.ID, state, attempts, runAt, cause, job.LockedBy, StateActive)
	if err != nil {
		return "", err
	}
	if tag.RowsAffected() == 0 {
		return "", ErrLeaseLost
	}

	job.State = state
	job.AttemptCount = attempts
	job.RunAt = runAt
	job.LastError = cause
	return state, nil
}

// ReclaimExpired returns jobs whose worker lease lapsed (crashed or hung
// worker) to the waiting state, preserving at-least-once delivery.
func (q *Queue) ReclaimExpired(ctx context.Context) (int64, error) {
	tag, err := db.Exec(ctx, q.pool, `
		UPDATE notification_jobs
		SET state = $1, locked_by = '', lease_expires_at = NULL, updated_at = now()
		WHERE state = $2 AND lease_expires_at < now()
	`, StateWaiting, StateActive)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Failed lists retained failed jobs, newest first, for operator inspection.
func (q *Queue) Failed(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}
	var jobs []Job
	err := db.Select(ctx, q.pool, &jobs, `
		SELECT `+jobColumns+`
		FROM notification_jobs
		WHERE state = $1
		ORDER BY updated_at DESC
		LIMIT $2
	`, StateFailed, limit)
	return jobs, err
}

// Counts reports the number of jobs per state. Completed jobs are purged
// from storage, so their count is the process-local cumulative total.
func (q *Queue) Counts(ctx context.Context) (map[State]int64, error) {
	var rows []struct {
		State State `db:"state"`
		Count int64 `db:"count"`
	}
	err := db.Select(ctx, q.pool, &rows, `
		SELECT state, COUNT(*) AS count
		FROM notification_jobs
		GROUP BY state
	`)
	if err != nil {
		return nil, err
	}

	counts := map[State]int64{
		StateWaiting:   0,
		StateActive:    0,
		StateDelayed:   0,
		StateFailed:    0,
		StateCompleted: q.completed.Load(),
	}
	for _, row := range rows {
		counts[row.State] = row.Count
	}
	return counts, nil
}
