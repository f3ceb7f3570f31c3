// Package template provides shell-style variable expansion for prompt
// and message templates.
//
// Two placeholder styles are supported: ${var} and $var. Values come
// from a map[string]any and are formatted with fmt's %v verb.
//
// # Basic Usage
//
//	prompt := template.Expand(
//	    "Plan a trip to ${destination} for ${travelers} travelers.",
//	    map[string]any{"destination": "Tokyo", "travelers": 2},
//	)
//	// "Plan a trip to Tokyo for 2 travelers."
//
// # Missing Variables
//
// By default missing variables are kept as-is, which is safe for
// prompts assembled in stages. Construct an Expander to change that:
//
//	exp := template.NewExpander(template.WithMissingAction(template.MissingError))
//	_, err := exp.Expand("Hello ${name}", nil)
//	// err: undefined variable: name
//
// # Maps
//
// ExpandMap expands every string value of a map recursively, which fits
// tool-call argument templates:
//
//	args := template.ExpandMap(map[string]any{
//	    "city":   "${destination}",
//	    "nights": 4,
//	}, vars)
package template
