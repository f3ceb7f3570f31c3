package template

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// ${name} with a leading letter or underscore in the name.
	braceRe = regexp.MustCompile(`\$\{([a-zA-Z_]\w*)\}`)

	// $name, greedy through word characters so $city never matches
	// inside $cityCode.
	dollarRe = regexp.MustCompile(`\$([a-zA-Z_]\w*)`)
)

// UndefinedVariableError reports placeholders that had no binding when
// the expander runs with MissingError.
type UndefinedVariableError struct {
	Names []string
}

func (e *UndefinedVariableError) Error() string {
	if len(e.Names) == 1 {
		return fmt.Sprintf("undefined variable: %s", e.Names[0])
	}
	return fmt.Sprintf("undefined variables: %s", strings.Join(e.Names, ", "))
}

// Expander substitutes ${name} and $name placeholders in prompt text.
// Safe for concurrent use once built.
type Expander struct {
	onMissing MissingAction
	braces    bool
	dollars   bool
}

// NewExpander builds an Expander. Without options it recognizes both
// placeholder styles and leaves unbound placeholders untouched.
func NewExpander(opts ...Option) *Expander {
	e := &Expander{
		onMissing: MissingKeep,
		braces:    true,
		dollars:   true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expand substitutes placeholders in s from vars. The error is non-nil
// only under MissingError, and even then the partially expanded string
// comes back with it.
func (e *Expander) Expand(s string, vars map[string]any) (string, error) {
	if s == "" {
		return "", nil
	}

	var missing []string
	sub := func(placeholder, name string) string {
		if v, ok := vars[name]; ok {
			return fmt.Sprintf("%v", v)
		}
		switch e.onMissing {
		case MissingEmpty:
			return ""
		case MissingError:
			missing = append(missing, name)
		}
		return placeholder
	}

	out := s
	// Braced placeholders go first so ${x} never leaves a bare $x
	// behind for the second pass to misread.
	if e.braces {
		out = braceRe.ReplaceAllStringFunc(out, func(m string) string {
			return sub(m, m[2:len(m)-1])
		})
	}
	if e.dollars {
		out = dollarRe.ReplaceAllStringFunc(out, func(m string) string {
			return sub(m, m[1:])
		})
	}

	if len(missing) > 0 {
		return out, &UndefinedVariableError{Names: missing}
	}
	return out, nil
}

// MustExpand is Expand for callers that treat a missing variable as a
// programming error.
func (e *Expander) MustExpand(s string, vars map[string]any) string {
	out, err := e.Expand(s, vars)
	if err != nil {
		panic("template: " + err.Error())
	}
	return out
}

// ExpandAll expands every string in ss, returning a new slice. A nil
// slice passes through. The first expansion error stops the loop and
// returns nil.
func (e *Expander) ExpandAll(ss []string, vars map[string]any) ([]string, error) {
	if ss == nil {
		return nil, nil
	}

	out := make([]string, len(ss))
	for i, s := range ss {
		expanded, err := e.Expand(s, vars)
		if err != nil {
			return nil, err
		}
		out[i] = expanded
	}
	return out, nil
}

// ExpandMap expands every string value in m, descending into nested
// map[string]any values. Other value types are copied through. A nil
// map passes through; the first error returns nil.
func (e *Expander) ExpandMap(m map[string]any, vars map[string]any) (map[string]any, error) {
	if m == nil {
		return nil, nil
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		expanded, err := e.expandAny(v, vars)
		if err != nil {
			return nil, err
		}
		out[k] = expanded
	}
	return out, nil
}

func (e *Expander) expandAny(v any, vars map[string]any) (any, error) {
	switch val := v.(type) {
	case string:
		return e.Expand(val, vars)
	case map[string]any:
		return e.ExpandMap(val, vars)
	default:
		return v, nil
	}
}

var defaultExpander = NewExpander()

// Expand substitutes placeholders with the default expander. Unbound
// placeholders stay as written.
func Expand(s string, vars map[string]any) string {
	out, _ := defaultExpander.Expand(s, vars)
	return out
}

// ExpandAll expands every string in ss with the default expander.
func ExpandAll(ss []string, vars map[string]any) []string {
	out, _ := defaultExpander.ExpandAll(ss, vars)
	return out
}

// ExpandMap expands every string value in m with the default expander,
// nested maps included.
func ExpandMap(m map[string]any, vars map[string]any) map[string]any {
	out, _ := defaultExpander.ExpandMap(m, vars)
	return out
}
