package render

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubstitute(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		params map[string]string
		want   string
	}{
		{
			name:   "all placeholders resolved",
			body:   "Hi {{name}}, code {{code}}",
			params: map[string]string{"name": "Ana", "code": "1234"},
			want:   "Hi Ana, code 1234",
		},
		{
			name:   "missing parameter becomes empty",
			body:   "Hi {{name}}, code {{code}}",
			params: map[string]string{"name": "Ana"},
			want:   "Hi Ana, code ",
		},
		{
			name:   "whitespace inside braces",
			body:   "Hi {{ name }}",
			params: map[string]string{"name": "Ana"},
			want:   "Hi Ana",
		},
		{
			name:   "nil params strips everything",
			body:   "{{a}}{{b}}",
			params: nil,
			want:   "",
		},
		{
			name:   "no placeholders",
			body:   "plain text",
			params: map[string]string{"name": "Ana"},
			want:   "plain text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, substitute(tt.body, tt.params))
		})
	}
}

func TestEngineRender(t *testing.T) {
	engine, err := New()
	require.NoError(t, err)

	body, err := engine.Render("welcome.tmpl", map[string]string{
		"firstName": "Ana",
		"loginLink": "https://example.com/login",
	})
	require.NoError(t, err)
	require.Contains(t, body, "Hi Ana,")
	require.Contains(t, body, `href="https://example.com/login"`)

	_, err = engine.Render("nope.tmpl", nil)
	require.ErrorIs(t, err, ErrTemplateMissing)
}

func TestEngineRenderKind(t *testing.T) {
	engine, err := New()
	require.NoError(t, err)

	subject, body, err := engine.RenderKind("send-welcome", map[string]string{
		"firstName": "Ana",
		"loginLink": "https://example.com/login",
	})
	require.NoError(t, err)
	require.Equal(t, "Welcome, Ana!", subject)
	require.Contains(t, body, "Welcome aboard")

	_, _, err = engine.RenderKind("send-unknown", nil)
	require.ErrorIs(t, err, ErrTemplateMissing)
}

func TestEngineCatalog(t *testing.T) {
	engine, err := New()
	require.NoError(t, err)

	kind, ok := engine.Kind("send-reset")
	require.True(t, ok)
	require.Equal(t, "reset_password.tmpl", kind.Template)
	require.ElementsMatch(t, []string{"firstName", "resetLink", "expirationTime"}, kind.Params)

	require.ElementsMatch(t,
		[]string{"send-welcome", "send-reset", "send-account-created"},
		engine.Known())
}
