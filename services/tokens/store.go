package tokens

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/matthewhartstonge/argon2"

	"courierd/pkg/db"
)

// Store manages the reset-token lifecycle against Postgres. Issue and
// consume both run in a single transaction with the owner row locked, so
// the one-valid-token-per-owner invariant holds across concurrent callers
// and process instances.
type Store struct {
	pool  *pgxpool.Pool
	argon argon2.Config
}

// NewStore creates a token store on the provided pool.
func NewStore(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &Store{pool: pool, argon: argon2.DefaultConfig()}, nil
}

// Issue invalidates every unconsumed token for the owner and creates a
// fresh one, atomically. It returns the plaintext secret for out-of-band
// delivery; only its digest is stored. Fails with ErrOwnerNotFound when the
// owner does not exist.
func (s *Store) Issue(ctx context.Context, ownerID uuid.UUID) (string, error) {
	secret, err := NewSecret()
	if err != nil {
		return "", err
	}

	err = db.InTx(ctx, s.pool, func(ctx context.Context, tx pgx.Tx) error {
		// Locking the owner row serialises concurrent issue/consume calls
		// for the same owner.
		var id uuid.UUID
		err := tx.QueryRow(ctx, `SELECT id FROM owners WHERE id = $1 FOR UPDATE`, ownerID).Scan(&id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrOwnerNotFound
			}
			return err
		}

		if _, err := tx.Exec(ctx, `
			UPDATE reset_tokens SET used_at = now()
			WHERE owner_id = $1 AND used_at IS NULL
		`, ownerID); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO reset_tokens (id, owner_id, token_hash, expires_at, created_at)
			VALUES ($1, $2, $3, $4, now())
		`, uuid.New(), ownerID, HashSecret(secret), time.Now().UTC().Add(TTL))
		return err
	})
	if err != nil {
		return "", err
	}

	return secret, nil
}

// Consume redeems a secret: it updates the owner's credential, marks the
// matching token used and invalidates every sibling token, in one
// transaction. Unknown, expired and already-used secrets all fail with
// ErrInvalidOrExpiredToken. Exactly one of two concurrent consume calls for
// the same owner can succeed; the loser observes the uniform error.
func (s *Store) Consume(ctx context.Context, secret, newCredential string) error {
	credentialHash, err := s.argon.HashEncoded([]byte(newCredential))
	if err != nil {
		return err
	}

	return db.InTx(ctx, s.pool, func(ctx context.Context, tx pgx.Tx) error {
		// Resolve the owner without locking the token row, so the locks are
		// taken in the same order as Issue: owner row first, then token
		// rows. Locking the token first would deadlock against a concurrent
		// Issue holding the owner lock.
		var ownerID uuid.UUID
		err := tx.QueryRow(ctx, `
			SELECT owner_id FROM reset_tokens WHERE token_hash = $1
		`, HashSecret(secret)).Scan(&ownerID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrInvalidOrExpiredToken
			}
			return err
		}

		err = tx.QueryRow(ctx, `SELECT id FROM owners WHERE id = $1 FOR UPDATE`, ownerID).Scan(&ownerID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrInvalidOrExpiredToken
			}
			return err
		}

		// Re-check validity under the owner lock; a concurrent consume or
		// issue may have invalidated the token while we waited for it.
		var tokenID uuid.UUID
		err = tx.QueryRow(ctx, `
			SELECT id FROM reset_tokens
			WHERE token_hash = $1 AND used_at IS NULL AND expires_at > now()
			FOR UPDATE
		`, HashSecret(secret)).Scan(&tokenID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrInvalidOrExpiredToken
			}
			return err
		}

		if _, err := tx.Exec(ctx, `
			UPDATE owners SET credential_hash = $2, updated_at = now()
			WHERE id = $1
		`, ownerID, string(credentialHash)); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			UPDATE reset_tokens SET used_at = now() WHERE id = $1
		`, tokenID); err != nil {
			return err
		}

		// Close the replay window: older still-unused tokens for the same
		// owner must not be redeemable after this commit.
		_, err = tx.Exec(ctx, `
			UPDATE reset_tokens SET used_at = now()
			WHERE owner_id = $1 AND used_at IS NULL
		`, ownerID)
		return err
	})
}

// Validate reports whether the secret currently resolves to a consumable
// token, without side effects.
func (s *Store) Validate(ctx context.Context, secret string) (bool, error) {
	var valid bool
	err := db.Get(ctx, s.pool, &valid, `
		SELECT EXISTS(
			SELECT 1 FROM reset_tokens
			WHERE token_hash = $1 AND used_at IS NULL AND expires_at > now()
		)
	`, HashSecret(secret))
	if err != nil {
		return false, err
	}
	return valid, nil
}

// VerifyCredential checks a plaintext credential against an owner's stored
// hash.
func (s *Store) VerifyCredential(plaintext, encodedHash string) (bool, error) {
	return argon2.VerifyEncoded([]byte(plaintext), []byte(encodedHash))
}
