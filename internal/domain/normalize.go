package domain

import "strings"

// NormalizeHumanName trims leading/trailing whitespace and collapses internal whitespace runs.
// It is used for user display names and session titles.
func NormalizeHumanName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeOptionalText trims s and returns nil when nothing is left.
func NormalizeOptionalText(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
