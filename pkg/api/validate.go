package api

import (
	"html"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// FieldError describes one invalid request field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// fieldErrors accumulates validation failures in field order
type fieldErrors []FieldError

func (e *fieldErrors) add(field, message string) {
	*e = append(*e, FieldError{Field: field, Message: message})
}

func (e *fieldErrors) email(field, value string) {
	if value == "" {
		e.add(field, "Email is required")
		return
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value {
		e.add(field, "Invalid email address")
	}
}

func (e *fieldErrors) length(field, value, label string, min, max int) {
	n := utf8.RuneCountInString(value)
	switch {
	case n == 0 && min > 0:
		e.add(field, label+" is required")
	case n < min:
		e.add(field, label+" is too short")
	case max > 0 && n > max:
		e.add(field, label+" is too long")
	}
}

// plainText strips markup from user supplied display text
var plainText = bluemonday.StrictPolicy()

func sanitizeText(s string) string {
	return strings.TrimSpace(html.UnescapeString(plainText.Sanitize(s)))
}
