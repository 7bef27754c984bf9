package docs

import "strings"

// Features are the console feature flags.
type Features struct {
	EnableThemeToggle bool `json:"enableThemeToggle"`
}

// ParseBool reads a flag value. true, 1, yes and on (any case) are true; any
// other non-empty value is false; empty yields def.
func ParseBool(value string, def bool) bool {
	if value == "" {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}
