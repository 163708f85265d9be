package response

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"netedge-siem/internal/model"
)

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z0-9_.]+)\}`)

// renderDotted substitutes "{a.b.c}" placeholders by walking root as nested
// maps, unlike correlation.renderTitle's flat key lookup. Action templates
// render offence data that ultimately derives from event fields a device or
// network peer can influence, so lookups are confined to dotted paths into
// a fixed context object rather than arbitrary format-string evaluation
// (the reference implementation instead does a raw Python str.format(offence=...),
// which would expose every attribute and method of the ORM object).
func renderDotted(tmpl string, root map[string]interface{}) string {
	return placeholderPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		path := match[1 : len(match)-1]
		v, ok := lookupPath(root, path)
		if !ok {
			return match
		}
		return fmt.Sprint(v)
	})
}

func lookupPath(root map[string]interface{}, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var cur interface{} = root
	for _, part := range parts {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		v, ok := m[part]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// offenceTemplateContext converts offence into a {"offence": {...}} tree
// usable by renderDotted, round-tripping through JSON the same way
// correlation's iocAsMap does.
func offenceTemplateContext(offence model.Offence) map[string]interface{} {
	b, err := json.Marshal(offence)
	if err != nil {
		return map[string]interface{}{"offence": map[string]interface{}{}}
	}
	var asMap map[string]interface{}
	if err := json.Unmarshal(b, &asMap); err != nil {
		return map[string]interface{}{"offence": map[string]interface{}{}}
	}
	return map[string]interface{}{"offence": asMap}
}
