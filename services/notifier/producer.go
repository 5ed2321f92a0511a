package notifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"courierd/pkg/bus"
	"courierd/pkg/render"
)

// Producer appends notification jobs to the queue. Enqueue returns as soon
// as the job is durably stored; rendering and delivery happen later on a
// worker.
type Producer struct {
	queue  *Queue
	engine *render.Engine
	bus    *bus.Bus
}

// NewProducer wires a producer to the queue and the template catalog. The
// bus may be nil.
func NewProducer(queue *Queue, engine *render.Engine, b *bus.Bus) (*Producer, error) {
	if queue == nil {
		return nil, errors.New("queue is required")
	}
	if engine == nil {
		return nil, errors.New("render engine is required")
	}
	return &Producer{queue: queue, engine: engine, bus: b}, nil
}

// Enqueue stores a job for the given catalogued kind. The subject and
// template are resolved from the catalog at enqueue time so the stored
// payload is self-contained.
func (p *Producer) Enqueue(ctx context.Context, kind, recipient string, params map[string]string) (uuid.UUID, error) {
	entry, ok := p.engine.Kind(kind)
	if !ok {
		return uuid.Nil, fmt.Errorf("unknown job kind %q", kind)
	}

	payload := make(map[string]any, len(params))
	for k, v := range params {
		payload[k] = v
	}

	job := &Job{
		Kind:         kind,
		Recipient:    recipient,
		Subject:      entry.Subject,
		TemplateName: entry.Template,
		Params:       payload,
	}
	if err := p.queue.Enqueue(ctx, job); err != nil {
		return uuid.Nil, err
	}

	publishEvent(ctx, p.bus, SubjectJobEnqueued, job)
	return job.ID, nil
}

// EnqueueReset queues a password-reset email. The parameter shape is fixed
// by the reset template.
func (p *Producer) EnqueueReset(ctx context.Context, recipient, firstName, resetLink, expirationTime string) (uuid.UUID, error) {
	return p.Enqueue(ctx, KindReset, recipient, map[string]string{
		"firstName":      firstName,
		"resetLink":      resetLink,
		"expirationTime": expirationTime,
	})
}

// EnqueueWelcome queues a welcome email.
func (p *Producer) EnqueueWelcome(ctx context.Context, recipient, firstName, loginLink string) (uuid.UUID, error) {
	return p.Enqueue(ctx, KindWelcome, recipient, map[string]string{
		"firstName": firstName,
		"loginLink": loginLink,
	})
}

// EnqueueAccountCreated queues an account-created email.
func (p *Producer) EnqueueAccountCreated(ctx context.Context, recipient, firstName string) (uuid.UUID, error) {
	return p.Enqueue(ctx, KindAccountCreated, recipient, map[string]string{
		"firstName": firstName,
		"email":     recipient,
	})
}
