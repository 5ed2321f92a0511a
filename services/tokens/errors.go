package tokens

import "errors"

var (
	// ErrOwnerNotFound is returned when the referenced owner does not exist.
	ErrOwnerNotFound = errors.New("owner not found")

	// ErrInvalidOrExpiredToken is returned uniformly for unknown, expired
	// and already-used tokens so callers cannot distinguish the cases.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
)
