package api

import (
	"errors"
	"net/http"
	"strings"

	"courierd/services/tokens"
)

type resetRequestPayload struct {
	Email string `json:"email"`
}

// handleResetRequest queues a reset email for the account behind the
// address. The response is 202 regardless of whether the address exists or
// whether delivery later succeeds; the caller only learns that the request
// was accepted.
func (a *API) handleResetRequest(w http.ResponseWriter, r *http.Request) {
	var payload resetRequestPayload
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(payload.Email) == "" {
		respondError(w, http.StatusBadRequest, errors.New("email is required"))
		return
	}

	if err := a.flow.Request(r.Context(), payload.Email); err != nil {
		a.logger.Error().Err(err).Msg("reset request")
		respondError(w, http.StatusInternalServerError, errors.New("internal error"))
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type resetConfirmPayload struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// handleResetConfirm redeems the token and sets the new credential. All
// token problems map to the same 400 so the endpoint leaks nothing about
// why a token was rejected.
func (a *API) handleResetConfirm(w http.ResponseWriter, r *http.Request) {
	var payload resetConfirmPayload
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if payload.Token == "" || payload.NewPassword == "" {
		respondError(w, http.StatusBadRequest, errors.New("token and newPassword are required"))
		return
	}

	if err := a.flow.Confirm(r.Context(), payload.Token, payload.NewPassword); err != nil {
		if errors.Is(err, tokens.ErrInvalidOrExpiredToken) {
			respondError(w, http.StatusBadRequest, tokens.ErrInvalidOrExpiredToken)
			return
		}
		a.logger.Error().Err(err).Msg("reset confirm")
		respondError(w, http.StatusInternalServerError, errors.New("internal error"))
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleResetValidate is the non-consuming pre-flight check.
func (a *API) handleResetValidate(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respondError(w, http.StatusBadRequest, errors.New("token query parameter is required"))
		return
	}

	valid, err := a.flow.Validate(r.Context(), token)
	if err != nil {
		a.logger.Error().Err(err).Msg("reset validate")
		respondError(w, http.StatusInternalServerError, errors.New("internal error"))
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}
