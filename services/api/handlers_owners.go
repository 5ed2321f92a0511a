package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

type createOwnerPayload struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	Password  string `json:"password"`
}

// handleCreateOwner registers an owner and queues the onboarding messages.
// The response does not wait for delivery.
func (a *API) handleCreateOwner(w http.ResponseWriter, r *http.Request) {
	var payload createOwnerPayload
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(payload.Email) == "" || payload.Password == "" {
		respondError(w, http.StatusBadRequest, errors.New("email and password are required"))
		return
	}

	owner, err := a.directory.Create(r.Context(), payload.Email, payload.FirstName, payload.Password)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			respondError(w, http.StatusConflict, errors.New("email already registered"))
			return
		}
		a.logger.Error().Err(err).Msg("create owner")
		respondError(w, http.StatusInternalServerError, errors.New("internal error"))
		return
	}

	if _, err := a.producer.EnqueueAccountCreated(r.Context(), owner.Email, owner.FirstName); err != nil {
		a.logger.Error().Err(err).Msg("enqueue account-created")
	}
	if _, err := a.producer.EnqueueWelcome(r.Context(), owner.Email, owner.FirstName, a.config.LoginLink); err != nil {
		a.logger.Error().Err(err).Msg("enqueue welcome")
	}

	respondJSON(w, http.StatusCreated, map[string]string{
		"id":    owner.ID.String(),
		"email": owner.Email,
	})
}
