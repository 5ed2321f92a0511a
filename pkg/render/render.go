package render

import (
	"embed"
	"errors"
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*.tmpl catalog.yaml
var assetsFS embed.FS

// ErrTemplateMissing is returned when a template name does not resolve to
// an embedded asset. Callers treat it as a configuration error, never a
// transient one.
var ErrTemplateMissing = errors.New("template missing")

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// Kind describes one catalogued message kind: which template body it uses,
// the subject line it is sent with, and the parameter names the template
// expects.
type Kind struct {
	Template string   `yaml:"template"`
	Subject  string   `yaml:"subject"`
	Params   []string `yaml:"params"`
}

type catalog struct {
	Kinds map[string]Kind `yaml:"kinds"`
}

// Engine resolves message kinds and renders the templates embedded in the
// package.
type Engine struct {
	kinds  map[string]Kind
	bodies map[string]string
}

// New initialises an Engine by parsing the embedded catalog and loading
// every template body it references.
func New() (*Engine, error) {
	raw, err := assetsFS.ReadFile("catalog.yaml")
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var cat catalog
	if err := yaml.Unmarshal(raw, &cat); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(cat.Kinds) == 0 {
		return nil, errors.New("catalog defines no message kinds")
	}

	bodies := make(map[string]string, len(cat.Kinds))
	for name, kind := range cat.Kinds {
		body, err := assetsFS.ReadFile("templates/" + kind.Template)
		if err != nil {
			return nil, fmt.Errorf("kind %q: load template %q: %w", name, kind.Template, err)
		}
		bodies[kind.Template] = string(body)
	}

	return &Engine{kinds: cat.Kinds, bodies: bodies}, nil
}

// Kind looks up a catalogued message kind by name.
func (e *Engine) Kind(name string) (Kind, bool) {
	if e == nil {
		return Kind{}, false
	}
	kind, ok := e.kinds[name]
	return kind, ok
}

// Render substitutes {{key}} placeholders in the named template using the
// provided parameters. Placeholders with no matching parameter are removed
// rather than treated as an error, so a partial parameter set never blocks
// delivery. An unknown template name returns ErrTemplateMissing.
func (e *Engine) Render(templateName string, params map[string]string) (string, error) {
	if e == nil {
		return "", errors.New("nil engine")
	}

	body, ok := e.bodies[templateName]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrTemplateMissing, templateName)
	}

	return substitute(body, params), nil
}

// RenderKind resolves the kind and renders its template, returning the
// subject alongside the body.
func (e *Engine) RenderKind(kindName string, params map[string]string) (subject, body string, err error) {
	kind, ok := e.Kind(kindName)
	if !ok {
		return "", "", fmt.Errorf("%w: no template for kind %s", ErrTemplateMissing, kindName)
	}

	body, err = e.Render(kind.Template, params)
	if err != nil {
		return "", "", err
	}
	return substitute(kind.Subject, params), body, nil
}

func substitute(body string, params map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(body, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		return params[key]
	})
}

// Known returns the catalogued kind names, for validation and diagnostics.
func (e *Engine) Known() []string {
	names := make([]string, 0, len(e.kinds))
	for name := range e.kinds {
		names = append(names, name)
	}
	return names
}
