// Package reset orchestrates the credential-reset flow: issuing a token
// plus queueing the notification on request, and consuming the token plus
// writing the new credential on confirmation.
package reset

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"courierd/services/tokens"
)

// TokenStore is the token lifecycle surface. *tokens.Store satisfies it.
type TokenStore interface {
	Issue(ctx context.Context, ownerID uuid.UUID) (string, error)
	Consume(ctx context.Context, secret, newCredential string) error
	Validate(ctx context.Context, secret string) (bool, error)
}

// Directory resolves owners by email. *tokens.Directory satisfies it.
type Directory interface {
	LookupByEmail(ctx context.Context, email string) (*tokens.Owner, error)
}

// Producer queues the reset notification. *notifier.Producer satisfies it.
type Producer interface {
	EnqueueReset(ctx context.Context, recipient, firstName, resetLink, expirationTime string) (uuid.UUID, error)
}

// Flow wires the token store, owner directory and notification producer.
type Flow struct {
	tokens    TokenStore
	directory Directory
	producer  Producer
	resetURL  string
	logger    zerolog.Logger
}

// New validates dependencies. resetURL is the page the emailed link points
// at; the secret is appended as a query parameter.
func New(store TokenStore, directory Directory, producer Producer, resetURL string, logger zerolog.Logger) (*Flow, error) {
	if store == nil {
		return nil, errors.New("token store is required")
	}
	if directory == nil {
		return nil, errors.New("directory is required")
	}
	if producer == nil {
		return nil, errors.New("producer is required")
	}
	if resetURL == "" {
		return nil, errors.New("reset URL is required")
	}

	return &Flow{
		tokens:    store,
		directory: directory,
		producer:  producer,
		resetURL:  resetURL,
		logger:    logger,
	}, nil
}

// Request issues a token for the owner behind the email and queues the
// reset message. An unknown address reports success without issuing
// anything, so the endpoint cannot be used to enumerate accounts. The call
// returns once the job is durably queued; delivery happens asynchronously.
func (f *Flow) Request(ctx context.Context, email string) error {
	owner, err := f.directory.LookupByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, tokens.ErrOwnerNotFound) {
			f.logger.Debug().Msg("reset requested for unknown address")
			return nil
		}
		return err
	}

	secret, err := f.tokens.Issue(ctx, owner.ID)
	if err != nil {
		return err
	}

	resetLink := fmt.Sprintf("%s?token=%s", f.resetURL, secret)
	_, err = f.producer.EnqueueReset(ctx, owner.Email, owner.FirstName, resetLink, tokens.TTL.String())
	return err
}

// Confirm redeems the secret and sets the new credential.
func (f *Flow) Confirm(ctx context.Context, secret, newCredential string) error {
	return f.tokens.Consume(ctx, secret, newCredential)
}

// Validate is the non-consuming pre-flight check used before rendering a
// reset form.
func (f *Flow) Validate(ctx context.Context, secret string) (bool, error) {
	return f.tokens.Validate(ctx, secret)
}
