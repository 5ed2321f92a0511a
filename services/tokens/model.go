package tokens

import (
	"time"

	"github.com/google/uuid"
)

// TTL is the fixed lifetime of a reset token from issuance.
const TTL = 15 * time.Minute

// Owner is an account the directory knows about. Only the fields the reset
// flow needs are carried here.
type Owner struct {
	ID             uuid.UUID `db:"id"`
	Email          string    `db:"email"`
	FirstName      string    `db:"first_name"`
	CredentialHash string    `db:"credential_hash"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// ResetToken is the persisted record of an issued reset secret. Only the
// digest of the secret is stored; rows are never deleted, only marked used.
type ResetToken struct {
	ID        uuid.UUID  `db:"id"`
	OwnerID   uuid.UUID  `db:"owner_id"`
	TokenHash string     `db:"token_hash"`
	ExpiresAt time.Time  `db:"expires_at"`
	UsedAt    *time.Time `db:"used_at"`
	CreatedAt time.Time  `db:"created_at"`
}

// Valid reports whether the token is still consumable at the given instant.
func (t *ResetToken) Valid(now time.Time) bool {
	return t.UsedAt == nil && now.Before(t.ExpiresAt)
}
