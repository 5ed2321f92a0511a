package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"courierd/pkg/bus"
	"courierd/pkg/render"
)

// jobQueue is the queue surface the worker pool needs. *Queue satisfies it;
// tests substitute fakes.
type jobQueue interface {
	Lease(ctx context.Context, workerID string, leaseFor time.Duration) (*Job, error)
	Complete(ctx context.Context, id uuid.UUID, workerID string) error
	RetryOrFail(ctx context.Context, job *Job, cause string, retryable bool) (State, error)
	ReclaimExpired(ctx context.Context) (int64, error)
}

// renderer resolves a template body. *render.Engine satisfies it.
type renderer interface {
	Render(templateName string, params map[string]string) (string, error)
}

// PoolConfig controls worker pool behaviour.
type PoolConfig struct {
	// Workers is the number of concurrent consumers.
	Workers int
	// PollInterval is the idle sleep between lease attempts.
	PollInterval time.Duration
	// LeaseFor is how long a worker may hold a job before it is reclaimed.
	LeaseFor time.Duration
	// FromAddress is the envelope sender for outgoing messages.
	FromAddress string
}

// Pool pulls jobs from the queue with bounded concurrency, renders them and
// hands them to the delivery backend, applying the retry policy on failure.
type Pool struct {
	queue    jobQueue
	renderer renderer
	sender   Sender
	bus      *bus.Bus
	logger   zerolog.Logger
	cfg      PoolConfig
}

// NewPool validates dependencies and applies defaults.
func NewPool(queue jobQueue, r renderer, s Sender, b *bus.Bus, logger zerolog.Logger, cfg PoolConfig) (*Pool, error) {
	if queue == nil {
		return nil, errors.New("queue is required")
	}
	if r == nil {
		return nil, errors.New("renderer is required")
	}
	if s == nil {
		return nil, errors.New("sender is required")
	}

	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.LeaseFor <= 0 {
		cfg.LeaseFor = 30 * time.Second
	}
	if cfg.FromAddress == "" {
		return nil, errors.New("from address is required")
	}

	return &Pool{
		queue:    queue,
		renderer: r,
		sender:   s,
		bus:      b,
		logger:   logger,
		cfg:      cfg,
	}, nil
}

// Run starts the workers and the lease reclaimer and blocks until ctx is
// cancelled.
func (p *Pool) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	for i := 0; i < p.cfg.Workers; i++ {
		workerID := fmt.Sprintf("worker-%d-%s", i, uuid.NewString()[:8])
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.runWorker(ctx, workerID)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.runReclaimer(ctx)
	}()

	wg.Wait()
	return ctx.Err()
}

func (p *Pool) runWorker(ctx context.Context, workerID string) {
	log := p.logger.With().Str("worker", workerID).Logger()

	for {
		if ctx.Err() != nil {
			return
		}

		job, err := p.queue.Lease(ctx, workerID, p.cfg.LeaseFor)
		switch {
		case errors.Is(err, ErrNoJob):
			sleep(ctx, p.cfg.PollInterval)
			continue
		case err != nil:
			if ctx.Err() == nil {
				log.Error().Err(err).Msg("lease job")
			}
			sleep(ctx, p.cfg.PollInterval)
			continue
		}

		p.process(ctx, log, job)
	}
}

// process runs one delivery attempt and applies the transition table:
// missing template is fatal on the first attempt, delivery success purges
// the job, retryable failures reschedule with backoff until attempts run
// out, and everything else fails the job permanently.
func (p *Pool) process(ctx context.Context, log zerolog.Logger, job *Job) {
	html, err := p.renderer.Render(job.TemplateName, job.ParamStrings())
	if err != nil {
		// Missing or unloadable templates are configuration errors;
		// retrying cannot fix them.
		retryable := !errors.Is(err, render.ErrTemplateMissing)
		p.settleFailure(ctx, log, job, err.Error(), retryable)
		return
	}

	providerID, err := p.sender.Send(ctx, Envelope{
		Sender:     p.cfg.FromAddress,
		Recipients: []string{job.Recipient},
		Subject:    job.Subject,
		HTMLBody:   html,
	})
	if err != nil {
		metricDeliveryAttempts.WithLabelValues("error").Inc()
		p.settleFailure(ctx, log, job, err.Error(), IsRetryable(err))
		return
	}
	metricDeliveryAttempts.WithLabelValues("success").Inc()

	if err := p.queue.Complete(ctx, job.ID, job.LockedBy); err != nil {
		if errors.Is(err, ErrLeaseLost) {
			// The lease lapsed mid-delivery and the job was reclaimed; the
			// new owner will deliver it again (at-least-once).
			log.Warn().Stringer("job", job.ID).Msg("lease lost before completion")
			return
		}
		// The message went out but the purge failed; the reclaimer will
		// re-run the job after the lease lapses (at-least-once).
		log.Error().Err(err).Stringer("job", job.ID).Msg("complete job")
		return
	}

	job.State = StateCompleted
	metricJobsCompleted.Inc()
	publishEvent(ctx, p.bus, SubjectJobCompleted, job)
	log.Debug().
		Stringer("job", job.ID).
		Str("kind", job.Kind).
		Str("provider_id", providerID).
		Msg("job delivered")
}

func (p *Pool) settleFailure(ctx context.Context, log zerolog.Logger, job *Job, cause string, retryable bool) {
	state, err := p.queue.RetryOrFail(ctx, job, cause, retryable)
	if err != nil {
		if errors.Is(err, ErrLeaseLost) {
			log.Warn().Stringer("job", job.ID).Msg("lease lost before failure was recorded")
			return
		}
		log.Error().Err(err).Stringer("job", job.ID).Msg("record job failure")
		return
	}

	switch state {
	case StateDelayed:
		metricJobsRetried.Inc()
		log.Warn().
			Stringer("job", job.ID).
			Int("attempt", job.AttemptCount).
			Time("next_run", job.RunAt).
			Str("cause", cause).
			Msg("job rescheduled")
	case StateFailed:
		metricJobsFailed.Inc()
		publishEvent(ctx, p.bus, SubjectJobFailed, job)
		log.Error().
			Stringer("job", job.ID).
			Int("attempts", job.AttemptCount).
			Str("cause", cause).
			Msg("job failed permanently")
	}
}

// runReclaimer periodically returns expired-lease jobs to the queue.
func (p *Pool) runReclaimer(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.LeaseFor / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.queue.ReclaimExpired(ctx)
			if err != nil {
				if ctx.Err() == nil {
					p.logger.Error().Err(err).Msg("reclaim expired leases")
				}
				continue
			}
			if n > 0 {
				p.logger.Warn().Int64("jobs", n).Msg("reclaimed expired leases")
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
