// Package dsn expands connection-string templates.
//
// A template may reference three kinds of placeholders:
//
//	${name}     a variable supplied by the caller (e.g. ${dbdirectory})
//	$env{NAME}  an environment variable
//	$prop{name} a configuration property
//
// Every other character, including a "$" that does not start a placeholder,
// is copied verbatim. Referencing an unknown name is an error.
package dsn

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// ErrUnknownName is returned when a placeholder cannot be resolved.
var ErrUnknownName = errors.New("unknown placeholder")

//nolint:govet // participle grammar tags are not standard struct tags
type template struct {
	Parts []*part `@@*`
}

//nolint:govet // participle grammar tags are not standard struct tags
type part struct {
	Env  *string `  @Env`
	Prop *string `| @Prop`
	Var  *string `| @Var`
	Text *string `| @( Text | Dollar )`
}

var templateLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Env", Pattern: `\$env\{[^}]*\}`},
	{Name: "Prop", Pattern: `\$prop\{[^}]*\}`},
	{Name: "Var", Pattern: `\$\{[^}]*\}`},
	{Name: "Dollar", Pattern: `\$`},
	{Name: "Text", Pattern: `[^$]+`},
})

var templateParser = participle.MustBuild[template](
	participle.Lexer(templateLexer),
)

// Expand resolves every placeholder in tmpl.
func Expand(tmpl string, vars, props map[string]string) (string, error) {
	if tmpl == "" {
		return "", nil
	}
	t, err := templateParser.ParseString("", tmpl)
	if err != nil {
		return "", fmt.Errorf("parse template %q: %w", tmpl, err)
	}

	var sb strings.Builder
	for _, p := range t.Parts {
		switch {
		case p.Env != nil:
			name := inner(*p.Env, "$env{")
			v, ok := os.LookupEnv(name)
			if !ok {
				return "", fmt.Errorf("%w: environment variable %q", ErrUnknownName, name)
			}
			sb.WriteString(v)
		case p.Prop != nil:
			name := inner(*p.Prop, "$prop{")
			v, ok := props[name]
			if !ok {
				return "", fmt.Errorf("%w: property %q", ErrUnknownName, name)
			}
			sb.WriteString(v)
		case p.Var != nil:
			name := inner(*p.Var, "${")
			v, ok := vars[name]
			if !ok {
				return "", fmt.Errorf("%w: variable %q", ErrUnknownName, name)
			}
			sb.WriteString(v)
		case p.Text != nil:
			sb.WriteString(*p.Text)
		}
	}
	return sb.String(), nil
}

func inner(token, prefix string) string {
	return strings.TrimSuffix(strings.TrimPrefix(token, prefix), "}")
}
