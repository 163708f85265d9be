package correlation

import "strings"

// renderTitle substitutes "{key}" placeholders in tmpl from values. Unlike
// the response orchestrator's dotted-path templates (which render against
// externally-influenced data and so must be conservative about what they
// expose), these title templates are built entirely from fields the engine
// itself selects, so a direct key→value replacement is sufficient; it
// mirrors the keyword arguments the reference engine passes to str.format.
func renderTitle(tmpl string, values map[string]string) string {
	out := tmpl
	for k, v := range values {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}
