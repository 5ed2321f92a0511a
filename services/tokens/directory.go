package tokens

import (
	"context"
	"errors"
	"strings"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/matthewhartstonge/argon2"

	"courierd/pkg/db"
)

// Directory is the owner lookup surface backed by the owners table.
type Directory struct {
	pool  *pgxpool.Pool
	argon argon2.Config
}

// NewDirectory creates a directory on the provided pool.
func NewDirectory(pool *pgxpool.Pool) (*Directory, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &Directory{pool: pool, argon: argon2.DefaultConfig()}, nil
}

// Lookup fetches an owner by id.
func (d *Directory) Lookup(ctx context.Context, id uuid.UUID) (*Owner, error) {
	var owner Owner
	err := db.Get(ctx, d.pool, &owner, `
		SELECT id, email, first_name, credential_hash, created_at, updated_at
		FROM owners WHERE id = $1
	`, id)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, ErrOwnerNotFound
		}
		return nil, err
	}
	return &owner, nil
}

// LookupByEmail fetches an owner by email address, case-insensitively.
func (d *Directory) LookupByEmail(ctx context.Context, email string) (*Owner, error) {
	var owner Owner
	err := db.Get(ctx, d.pool, &owner, `
		SELECT id, email, first_name, credential_hash, created_at, updated_at
		FROM owners WHERE lower(email) = lower($1)
	`, strings.TrimSpace(email))
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, ErrOwnerNotFound
		}
		return nil, err
	}
	return &owner, nil
}

// Create registers an owner with a hashed credential and returns the row.
func (d *Directory) Create(ctx context.Context, email, firstName, credential string) (*Owner, error) {
	credentialHash, err := d.argon.HashEncoded([]byte(credential))
	if err != nil {
		return nil, err
	}

	owner := Owner{ID: uuid.New(), Email: strings.TrimSpace(email), FirstName: firstName}
	err = db.Get(ctx, d.pool, &owner, `
		INSERT INTO owners (id, email, first_name, credential_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		RETURNING id, email, first_name, credential_hash, created_at, updated_at
	`, owner.ID, owner.Email, owner.FirstName, string(credentialHash))
	if err != nil {
		return nil, err
	}
	return &owner, nil
}
