package entities

import "strings"

// ValidationResult is the outcome of checking a state document.
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

// ValidationError names one offending field.
type ValidationError struct {
	Field   string
	Message string
}

// Add records a failure and marks the result invalid.
func (r *ValidationResult) Add(field, message string) {
	r.Valid = false
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// Summary joins every failure into one line per field.
func (r *ValidationResult) Summary() string {
	var b strings.Builder
	for i, e := range r.Errors {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- ")
		b.WriteString(e.Field)
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}
