package notifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoff(t *testing.T) {
	tests := []struct {
		name     string
		attempts int
		want     time.Duration
	}{
		{name: "first retry", attempts: 1, want: 3 * time.Second},
		{name: "second retry doubles", attempts: 2, want: 6 * time.Second},
		{name: "third retry", attempts: 3, want: 12 * time.Second},
		{name: "fourth retry", attempts: 4, want: 24 * time.Second},
		{name: "zero clamps to first", attempts: 0, want: 3 * time.Second},
		{name: "large attempt count hits cap", attempts: 20, want: 15 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Backoff(tt.attempts))
		})
	}
}

func TestJobParamStrings(t *testing.T) {
	job := &Job{Params: map[string]any{
		"firstName": "Ana",
		"count":     float64(3),
		"enabled":   true,
	}}

	got := job.ParamStrings()
	require.Equal(t, map[string]string{
		"firstName": "Ana",
		"count":     "3",
		"enabled":   "true",
	}, got)
}
