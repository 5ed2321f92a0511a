// Package api exposes the HTTP surface: the credential-reset endpoints,
// owner registration, and the queue status used for monitoring.
package api

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"courierd/services/notifier"
	"courierd/services/tokens"
)

// resetFlow is the credential-reset surface. *reset.Flow satisfies it.
type resetFlow interface {
	Request(ctx context.Context, email string) error
	Confirm(ctx context.Context, secret, newCredential string) error
	Validate(ctx context.Context, secret string) (bool, error)
}

// queueStatus is the monitoring surface. *notifier.Queue satisfies it.
type queueStatus interface {
	Counts(ctx context.Context) (map[notifier.State]int64, error)
	Failed(ctx context.Context, limit int) ([]notifier.Job, error)
}

// ownerDirectory registers owners. *tokens.Directory satisfies it.
type ownerDirectory interface {
	Create(ctx context.Context, email, firstName, credential string) (*tokens.Owner, error)
}

// producer queues the onboarding notifications. *notifier.Producer
// satisfies it.
type producer interface {
	EnqueueWelcome(ctx context.Context, recipient, firstName, loginLink string) (uuid.UUID, error)
	EnqueueAccountCreated(ctx context.Context, recipient, firstName string) (uuid.UUID, error)
}

// Config controls runtime behaviour for the API handlers.
type Config struct {
	// LoginLink is included in welcome messages.
	LoginLink string
	// AllowedOrigins configures CORS; empty allows any origin.
	AllowedOrigins []string
}

// API wires handler dependencies.
type API struct {
	flow      resetFlow
	queue     queueStatus
	directory ownerDirectory
	producer  producer
	config    Config
	logger    zerolog.Logger
}

// New validates dependencies.
func New(flow resetFlow, queue queueStatus, directory ownerDirectory, p producer, cfg Config, logger zerolog.Logger) (*API, error) {
	if flow == nil {
		return nil, errors.New("reset flow is required")
	}
	if queue == nil {
		return nil, errors.New("queue is required")
	}
	if directory == nil {
		return nil, errors.New("directory is required")
	}
	if p == nil {
		return nil, errors.New("producer is required")
	}

	return &API{
		flow:      flow,
		queue:     queue,
		directory: directory,
		producer:  p,
		config:    cfg,
		logger:    logger,
	}, nil
}
