package orchestrator

import (
	"strings"

	"course-advisor-be/pkg/advisor"
)

const (
	MaxFieldLength     = 200
	MaxInterestsLength = 1000
)

// sanitize trims, collapses whitespace and caps s at limit runes.
func sanitize(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > limit {
		s = strings.TrimSpace(string(r[:limit]))
	}
	return s
}

func required(field, value string, limit int) (string, error) {
	v := sanitize(value, limit)
	if v == "" {
		return "", advisor.NewValidationError(field, "must not be empty")
	}
	return v, nil
}
