// Package normalize provides helper functions for consistent input
// normalization across the application. Use these helpers instead of
// scattered strings.ToLower and strings.TrimSpace calls.
package normalize

import (
	"regexp"
	"strings"
	"time"

	"github.com/dalemusser/stratatrack/internal/domain/models"
)

// Email trims whitespace and lowercases.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Name trims whitespace.
func Name(s string) string {
	return strings.TrimSpace(s)
}

// MetricKey trims whitespace. Keys are otherwise case-sensitive.
func MetricKey(s string) string {
	return strings.TrimSpace(s)
}

var hexColor = regexp.MustCompile(`^#([0-9a-f]{3}|[0-9a-f]{6}|[0-9a-f]{8})$`)

// Color lowercases a CSS hex color. ok is false when s is not #rgb,
// #rrggbb or #rrggbbaa. An empty input is valid and stays empty.
func Color(s string) (string, bool) {
	c := strings.ToLower(strings.TrimSpace(s))
	if c == "" {
		return "", true
	}
	return c, hexColor.MatchString(c)
}

// Date trims s and reports whether it is a YYYY-MM-DD calendar date.
func Date(s string) (string, bool) {
	d := strings.TrimSpace(s)
	if _, err := time.Parse(models.DateLayout, d); err != nil {
		return d, false
	}
	return d, true
}

// QueryParam trims whitespace.
func QueryParam(s string) string {
	return strings.TrimSpace(s)
}
