package openapi

import (
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// FormatSchema renders a schema as a compact type signature for the docs
// reference, e.g. "{\n  id: string,\n  lastUsedAt: Date | null\n}".
// Component references render as the component name.
func FormatSchema(s *openapi3.SchemaRef) string {
	return formatSchema(s, 0)
}

// FormatComponents renders every model component of doc keyed by name.
func FormatComponents(doc *openapi3.T) map[string]string {
	out := make(map[string]string, len(modelOrder))
	for _, name := range SchemaNames(doc) {
		out[name] = FormatSchema(doc.Components.Schemas[name])
	}
	return out
}

func formatSchema(s *openapi3.SchemaRef, depth int) string {
	if s == nil {
		return "unknown"
	}
	if s.Ref != "" {
		return s.Ref[strings.LastIndex(s.Ref, "/")+1:]
	}
	v := s.Value
	if v == nil {
		return "unknown"
	}

	var out string
	switch {
	case len(v.Enum) > 0:
		parts := make([]string, len(v.Enum))
		for i, e := range v.Enum {
			parts[i] = fmt.Sprintf("%q", e)
		}
		out = strings.Join(parts, " | ")
	case v.Type.Is("object"):
		out = formatObject(v, depth)
	case v.Type.Is("array"):
		out = formatSchema(v.Items, depth) + "[]"
	case v.Type.Is("string"):
		out = "string"
		if v.Format == "date-time" {
			out = "Date"
		}
	case v.Type.Is("integer"), v.Type.Is("number"):
		out = "number"
	case v.Type.Is("boolean"):
		out = "boolean"
	default:
		out = "unknown"
	}
	if v.Nullable {
		out += " | null"
	}
	return out
}

func formatObject(v *openapi3.Schema, depth int) string {
	if len(v.Properties) == 0 {
		return "object"
	}
	keys := make([]string, 0, len(v.Properties))
	for k := range v.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	required := make(map[string]bool, len(v.Required))
	for _, r := range v.Required {
		required[r] = true
	}

	indent := strings.Repeat("  ", depth+1)
	lines := make([]string, len(keys))
	for i, k := range keys {
		val := formatSchema(v.Properties[k], depth+1)
		if !required[k] && len(v.Required) > 0 {
			val += "?"
		}
		lines[i] = fmt.Sprintf("%s%s: %s", indent, k, val)
	}
	return "{\n" + strings.Join(lines, ",\n") + "\n" + strings.Repeat("  ", depth) + "}"
}
