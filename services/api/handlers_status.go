package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"courierd/services/notifier"
)

// handleQueueStatus reports the number of jobs in each state, the
// operational surface used for monitoring.
func (a *API) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := a.queue.Counts(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("queue status")
		respondError(w, http.StatusInternalServerError, errors.New("internal error"))
		return
	}

	respondJSON(w, http.StatusOK, map[string]int64{
		"waiting":   counts[notifier.StateWaiting],
		"active":    counts[notifier.StateActive],
		"delayed":   counts[notifier.StateDelayed],
		"failed":    counts[notifier.StateFailed],
		"completed": counts[notifier.StateCompleted],
	})
}

type failedJob struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Recipient string `json:"recipient"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"lastError"`
	UpdatedAt string `json:"updatedAt"`
}

// handleFailedJobs lists retained failed jobs for operator inspection.
func (a *API) handleFailedJobs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, errors.New("invalid limit"))
			return
		}
		limit = parsed
	}

	jobs, err := a.queue.Failed(r.Context(), limit)
	if err != nil {
		a.logger.Error().Err(err).Msg("list failed jobs")
		respondError(w, http.StatusInternalServerError, errors.New("internal error"))
		return
	}

	out := make([]failedJob, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, failedJob{
			ID:        job.ID.String(),
			Kind:      job.Kind,
			Recipient: job.Recipient,
			Attempts:  job.AttemptCount,
			LastError: job.LastError,
			UpdatedAt: job.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}

	respondJSON(w, http.StatusOK, map[string]any{"jobs": out})
}
