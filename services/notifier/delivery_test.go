package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPSenderSend(t *testing.T) {
	var got Envelope
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/messages", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg-123"}`))
	}))
	defer srv.Close()

	sender := NewHTTPSender(srv.URL, "test-key")
	id, err := sender.Send(context.Background(), Envelope{
		Sender:     "no-reply@courier.local",
		Recipients: []string{"ana@example.com"},
		Subject:    "Welcome, Ana!",
		HTMLBody:   "<p>hi</p>",
	})
	require.NoError(t, err)
	require.Equal(t, "msg-123", id)
	require.Equal(t, []string{"ana@example.com"}, got.Recipients)
	require.Equal(t, "Welcome, Ana!", got.Subject)
}

func TestHTTPSenderErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantRetryable bool
		wantMessage   string
	}{
		{
			name:          "rate limited",
			status:        http.StatusTooManyRequests,
			body:          `{"error":"slow down"}`,
			wantRetryable: true,
			wantMessage:   "slow down",
		},
		{
			name:          "server error",
			status:        http.StatusInternalServerError,
			body:          "boom",
			wantRetryable: true,
			wantMessage:   "boom",
		},
		{
			name:          "bad request follows provider policy",
			status:        http.StatusBadRequest,
			body:          `{"error":"invalid recipient"}`,
			wantRetryable: true,
			wantMessage:   "invalid recipient",
		},
		{
			name:          "unauthorized follows provider policy",
			status:        http.StatusUnauthorized,
			body:          "",
			wantRetryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			sender := NewHTTPSender(srv.URL, "")
			_, err := sender.Send(context.Background(), Envelope{
				Recipients: []string{"ana@example.com"},
			})
			require.Error(t, err)

			var de *DeliveryError
			require.ErrorAs(t, err, &de)
			require.Equal(t, tt.status, de.StatusCode)
			require.Equal(t, tt.wantRetryable, de.Retryable)
			if tt.wantMessage != "" {
				require.Equal(t, tt.wantMessage, de.Message)
			}
		})
	}
}

func TestHTTPSenderNoRecipients(t *testing.T) {
	sender := NewHTTPSender("http://localhost:0", "")
	_, err := sender.Send(context.Background(), Envelope{})

	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	require.False(t, de.Retryable)
}

func TestHTTPSenderTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	srv.Close() // connection refused from here on

	sender := NewHTTPSender(srv.URL, "")
	_, err := sender.Send(context.Background(), Envelope{
		Recipients: []string{"ana@example.com"},
	})
	require.Error(t, err)
	require.True(t, IsRetryable(err))
}

func TestIsRetryable(t *testing.T) {
	require.True(t, IsRetryable(errors.New("plain error")))
	require.True(t, IsRetryable(&DeliveryError{Retryable: true}))
	require.False(t, IsRetryable(&DeliveryError{Retryable: false}))
}
