package tokens

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"courierd/pkg/db"
)

// testPool connects to the database named by COURIER_TEST_DB_DSN and applies
// migrations. Tests that need Postgres are skipped when the variable is not
// set.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("COURIER_TEST_DB_DSN")
	if dsn == "" {
		t.Skip("COURIER_TEST_DB_DSN not set")
	}

	ctx := context.Background()
	pool, err := db.Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, db.Migrate(ctx, pool))
	return pool
}

func createTestOwner(t *testing.T, pool *pgxpool.Pool) *Owner {
	t.Helper()

	directory, err := NewDirectory(pool)
	require.NoError(t, err)

	email := fmt.Sprintf("ana+%d@example.com", time.Now().UnixNano())
	owner, err := directory.Create(context.Background(), email, "Ana", "initial-credential")
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = db.Exec(context.Background(), pool, `DELETE FROM owners WHERE id = $1`, owner.ID)
	})
	return owner
}

func TestIssueInvalidatesPreviousToken(t *testing.T) {
	pool := testPool(t)
	owner := createTestOwner(t, pool)
	store, err := NewStore(pool)
	require.NoError(t, err)
	ctx := context.Background()

	first, err := store.Issue(ctx, owner.ID)
	require.NoError(t, err)

	second, err := store.Issue(ctx, owner.ID)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	valid, err := store.Validate(ctx, first)
	require.NoError(t, err)
	require.False(t, valid, "issuing a new token invalidates the previous one")

	valid, err = store.Validate(ctx, second)
	require.NoError(t, err)
	require.True(t, valid)
}

func TestIssueUnknownOwner(t *testing.T) {
	pool := testPool(t)
	store, err := NewStore(pool)
	require.NoError(t, err)

	_, err = store.Issue(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrOwnerNotFound)
}

func TestConsumeIsSingleUse(t *testing.T) {
	pool := testPool(t)
	owner := createTestOwner(t, pool)
	store, err := NewStore(pool)
	require.NoError(t, err)
	directory, err := NewDirectory(pool)
	require.NoError(t, err)
	ctx := context.Background()

	secret, err := store.Issue(ctx, owner.ID)
	require.NoError(t, err)

	require.NoError(t, store.Consume(ctx, secret, "new-credential"))

	// The credential write and the token consumption commit together.
	updated, err := directory.Lookup(ctx, owner.ID)
	require.NoError(t, err)
	ok, err := store.VerifyCredential("new-credential", updated.CredentialHash)
	require.NoError(t, err)
	require.True(t, ok)

	err = store.Consume(ctx, secret, "another-credential")
	require.ErrorIs(t, err, ErrInvalidOrExpiredToken)
}

func TestConsumeUnknownSecret(t *testing.T) {
	pool := testPool(t)
	store, err := NewStore(pool)
	require.NoError(t, err)

	err = store.Consume(context.Background(), "never-issued", "credential")
	require.ErrorIs(t, err, ErrInvalidOrExpiredToken)
}

func TestConsumeExpiredToken(t *testing.T) {
	pool := testPool(t)
	owner := createTestOwner(t, pool)
	store, err := NewStore(pool)
	require.NoError(t, err)
	ctx := context.Background()

	secret, err := store.Issue(ctx, owner.ID)
	require.NoError(t, err)

	_, err = db.Exec(ctx, pool, `
		UPDATE reset_tokens SET expires_at = now() - interval '1 second'
		WHERE token_hash = $1
	`, HashSecret(secret))
	require.NoError(t, err)

	err = store.Consume(ctx, secret, "credential")
	require.ErrorIs(t, err, ErrInvalidOrExpiredToken)

	valid, err := store.Validate(ctx, secret)
	require.NoError(t, err)
	require.False(t, valid)
}

func TestConcurrentConsumeOneWinner(t *testing.T) {
	pool := testPool(t)
	owner := createTestOwner(t, pool)
	store, err := NewStore(pool)
	require.NoError(t, err)
	ctx := context.Background()

	secret, err := store.Issue(ctx, owner.ID)
	require.NoError(t, err)

	const callers = 4
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.Consume(ctx, secret, fmt.Sprintf("credential-%d", i))
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		require.ErrorIs(t, err, ErrInvalidOrExpiredToken)
	}
	require.Equal(t, 1, winners, "exactly one concurrent consume succeeds")
}

func TestConcurrentIssueAndConsume(t *testing.T) {
	pool := testPool(t)
	owner := createTestOwner(t, pool)
	store, err := NewStore(pool)
	require.NoError(t, err)
	ctx := context.Background()

	// Issue and Consume racing on the same owner must serialize on the
	// owner row; neither call may surface anything but the uniform token
	// error.
	const rounds = 20
	for i := 0; i < rounds; i++ {
		secret, err := store.Issue(ctx, owner.ID)
		require.NoError(t, err)

		var issueErr, consumeErr error
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, issueErr = store.Issue(ctx, owner.ID)
		}()
		go func() {
			defer wg.Done()
			consumeErr = store.Consume(ctx, secret, fmt.Sprintf("credential-%d", i))
		}()
		wg.Wait()

		require.NoError(t, issueErr)
		if consumeErr != nil {
			require.ErrorIs(t, consumeErr, ErrInvalidOrExpiredToken)
		}
	}
}

func TestDirectoryLookupByEmail(t *testing.T) {
	pool := testPool(t)
	owner := createTestOwner(t, pool)
	directory, err := NewDirectory(pool)
	require.NoError(t, err)
	ctx := context.Background()

	found, err := directory.LookupByEmail(ctx, "  "+strings.ToUpper(owner.Email)+"  ")
	require.NoError(t, err)
	require.Equal(t, owner.ID, found.ID)

	_, err = directory.LookupByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, ErrOwnerNotFound)
}
