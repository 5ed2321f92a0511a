package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// deliveryTimeout bounds a single provider call; past it the attempt is
// treated as a network failure and retried.
const deliveryTimeout = 10 * time.Second

// Envelope is a rendered message handed to a delivery backend.
type Envelope struct {
	Sender     string   `json:"sender"`
	Recipients []string `json:"recipients"`
	Subject    string   `json:"subject"`
	HTMLBody   string   `json:"html_body"`
}

// Sender delivers an envelope and returns the provider's message id.
type Sender interface {
	Send(ctx context.Context, env Envelope) (string, error)
}

// DeliveryError describes a failed delivery attempt. Retryable tells the
// queue whether to reschedule the job or fail it permanently.
type DeliveryError struct {
	StatusCode int
	Message    string
	Retryable  bool
}

func (e *DeliveryError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("delivery failed: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("delivery failed: %s", e.Message)
}

// IsRetryable reports whether err should be retried by the queue. Errors
// that are not DeliveryErrors (cancelled contexts, marshalling bugs) are
// treated as retryable network-class failures.
func IsRetryable(err error) bool {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Retryable
	}
	return true
}

// classifyStatus maps a provider HTTP status to a retry decision.
// Rate limits and server-side errors are transient by definition. Client
// errors — including authentication (401) and malformed requests (400) —
// are currently retried as well, mirroring the provider integration this
// replaces; the field exists so the policy can be tightened in one place.
func classifyStatus(code int) bool {
	switch {
	case code == http.StatusTooManyRequests:
		return true
	case code >= 500:
		return true
	default:
		return true
	}
}

// HTTPSender delivers messages through a transactional-message provider's
// HTTP API.
type HTTPSender struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPSender creates a provider client with a traced transport and a
// bounded per-call timeout.
func NewHTTPSender(baseURL, apiKey string) *HTTPSender {
	return &HTTPSender{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client: &http.Client{
			Timeout:   deliveryTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type providerResponse struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// Send posts the envelope to the provider and returns its message id.
func (s *HTTPSender) Send(ctx context.Context, env Envelope) (string, error) {
	if len(env.Recipients) == 0 {
		return "", &DeliveryError{Message: "no recipients", Retryable: false}
	}

	body, err := json.Marshal(env)
	if err != nil {
		return "", &DeliveryError{Message: err.Error(), Retryable: false}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", &DeliveryError{Message: err.Error(), Retryable: false}
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		// Timeouts and transport failures are transient.
		return "", &DeliveryError{Message: err.Error(), Retryable: true}
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(payload))
		var decoded providerResponse
		if err := json.Unmarshal(payload, &decoded); err == nil && decoded.Error != "" {
			msg = decoded.Error
		}
		return "", &DeliveryError{
			StatusCode: resp.StatusCode,
			Message:    msg,
			Retryable:  classifyStatus(resp.StatusCode),
		}
	}

	var decoded providerResponse
	if err := json.Unmarshal(payload, &decoded); err != nil || decoded.ID == "" {
		// The send was acknowledged; a missing id only loses traceability.
		return "", nil
	}
	return decoded.ID, nil
}
