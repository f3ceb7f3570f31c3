package template

// MissingAction decides what happens to a placeholder with no binding.
type MissingAction int

const (
	// MissingKeep leaves the placeholder as written. The default.
	MissingKeep MissingAction = iota

	// MissingEmpty substitutes an empty string.
	MissingEmpty

	// MissingError makes Expand report every unbound placeholder.
	MissingError
)

// Option adjusts how an Expander is built.
type Option func(*Expander)

// WithMissingAction sets the unbound-placeholder policy.
func WithMissingAction(action MissingAction) Option {
	return func(e *Expander) { e.onMissing = action }
}

// WithBraceStyle toggles ${name} recognition.
func WithBraceStyle(enabled bool) Option {
	return func(e *Expander) { e.braces = enabled }
}

// WithDollarStyle toggles $name recognition.
func WithDollarStyle(enabled bool) Option {
	return func(e *Expander) { e.dollars = enabled }
}
