package model

import "fmt"

// ValidationError reports an input or record that failed a structural check.
// It is returned by every Validate method in this package.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Message)
}

func fieldError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// indexedFieldError prefixes the field of a nested validation error, so a bad
// event inside a day reads as "dailyUsage[2].events[0].count".
func indexedFieldError(prefix string, i int, err error) error {
	if ve, ok := err.(*ValidationError); ok {
		return &ValidationError{
			Field:   fmt.Sprintf("%s[%d].%s", prefix, i, ve.Field),
			Message: ve.Message,
		}
	}
	return err
}
