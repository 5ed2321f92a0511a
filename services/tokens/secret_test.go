package tokens

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewSecret(t *testing.T) {
	first, err := NewSecret()
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(first)
	require.NoError(t, err)
	require.Len(t, raw, secretBytes)

	second, err := NewSecret()
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestHashSecret(t *testing.T) {
	h := HashSecret("some-secret")
	require.Len(t, h, 64, "sha256 hex digest")
	require.Equal(t, h, HashSecret("some-secret"))
	require.NotEqual(t, h, HashSecret("other-secret"))
	require.NotContains(t, h, "some-secret", "plaintext never appears in the stored form")
}

func TestResetTokenValid(t *testing.T) {
	now := time.Now().UTC()
	used := now.Add(-time.Minute)

	tests := []struct {
		name  string
		token ResetToken
		want  bool
	}{
		{
			name:  "fresh token",
			token: ResetToken{ExpiresAt: now.Add(TTL)},
			want:  true,
		},
		{
			name:  "expired token",
			token: ResetToken{ExpiresAt: now.Add(-time.Second)},
			want:  false,
		},
		{
			name:  "consumed token",
			token: ResetToken{ExpiresAt: now.Add(TTL), UsedAt: &used},
			want:  false,
		},
		{
			name:  "expiry instant is exclusive",
			token: ResetToken{ExpiresAt: now},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.token.Valid(now))
		})
	}
}
