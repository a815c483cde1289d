// Package railscript composes the Ruby payloads executed by the remote Rails
// console. A script is a templated head (parameter interpolation only, no
// conditionals) followed by a literal body loaded from the embedded template
// library. The body does nothing beyond load-json / instantiate / assign /
// save / emit-result; every decision is made on the Go side.
package railscript

import (
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strings"
)

//go:embed templates/*.rb
var templateFS embed.FS

// paramNameRe restricts head parameter names to safe Ruby local identifiers.
var paramNameRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Params is the fixed set of named head parameters. Component is always
// present; Values carries the per-model extras (IDs, names, paths). Every
// value is emitted as an inspected string literal.
type Params struct {
	Component string
	Values    map[string]string
}

// Script is a composed payload. Render produces the final text once the
// evaluator has chosen the remote input and result paths; its signature
// matches the remote stack's ScriptSource.
type Script struct {
	Model  string
	params Params
	body   string
}

// Composer loads and serves the body template library.
type Composer struct {
	templates map[string]string
}

// NewComposer loads all embedded templates. Templates ship with the engine
// and are never assembled from user input.
func NewComposer() (*Composer, error) {
	templates := make(map[string]string)
	err := fs.WalkDir(templateFS, "templates", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := templateFS.ReadFile(p)
		if err != nil {
			return err
		}
		name := strings.TrimSuffix(d.Name(), ".rb")
		templates[name] = string(data)
		return nil
	})
	if err != nil {
		return nil, &ComposeError{Model: "*", Message: "failed to load template library", Err: err}
	}
	return &Composer{templates: templates}, nil
}

// Models returns the supported model template names.
func (c *Composer) Models() []string {
	names := make([]string, 0, len(c.templates))
	for name := range c.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Compose builds the script for one model.
func (c *Composer) Compose(model string, params Params) (*Script, error) {
	body, ok := c.templates[model]
	if !ok {
		return nil, &ComposeError{Model: model, Message: "no body template for model"}
	}
	for name := range params.Values {
		if !paramNameRe.MatchString(name) {
			return nil, &ComposeError{Model: model, Message: fmt.Sprintf("invalid head parameter name %q", name)}
		}
	}
	return &Script{Model: model, params: params, body: body}, nil
}

// Render implements the remote stack's ScriptSource contract.
func (s *Script) Render(inputPath, resultPath string) string {
	var b strings.Builder
	b.WriteString("require 'json'\n")
	b.WriteString(fmt.Sprintf("j2o_input_path = %s\n", StringLiteral(inputPath)))
	b.WriteString(fmt.Sprintf("j2o_result_path = %s\n", StringLiteral(resultPath)))
	b.WriteString(fmt.Sprintf("j2o_component = %s\n", StringLiteral(s.params.Component)))

	names := make([]string, 0, len(s.params.Values))
	for name := range s.params.Values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		b.WriteString(fmt.Sprintf("j2o_%s = %s\n", name, StringLiteral(s.params.Values[name])))
	}

	b.WriteString(s.body)
	if !strings.HasSuffix(s.body, "\n") {
		b.WriteString("\n")
	}
	return b.String()
}

// ComposeError reports a composition failure.
type ComposeError struct {
	Model   string
	Message string
	Err     error
}

func (e *ComposeError) Error() string {
	return fmt.Sprintf("railscript compose error for %s: %s", e.Model, e.Message)
}

func (e *ComposeError) Unwrap() error {
	return e.Err
}
