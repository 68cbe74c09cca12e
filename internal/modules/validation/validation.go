// Package validation holds the pure input checks that gate every
// state-changing operation. Validators never panic on bad input; they
// report rejection through a comma-ok result so callers can branch without
// error plumbing.
package validation

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// Extension minutes policy bound. Enforced here, centrally, so no caller
// can sneak a different limit past the lifecycle engine.
const (
	MinExtensionMinutes = 1
	MaxExtensionMinutes = 480
)

const (
	MinDisplayNameLen = 2
	MaxDisplayNameLen = 30
)

var tableNumberPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,20}$`)

// NormalizeID accepts only canonical RFC-4122 identifiers rendered as
// lowercase hyphenated hex groups. Anything else is rejected.
func NormalizeID(raw string) (string, bool) {
	if len(raw) != 36 {
		return "", false
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return "", false
	}

	// uuid.Parse is lenient about case; the canonical shape is lowercase
	// hyphenated groups only.
	normalized := id.String()
	if normalized != raw {
		return "", false
	}

	return normalized, true
}

// NormalizeMinutes coerces a numeric-like value into an extension minute
// count within the policy bound.
func NormalizeMinutes(raw interface{}) (int, bool) {
	var minutes int

	switch v := raw.(type) {
	case int:
		minutes = v
	case int64:
		minutes = int(v)
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}
		minutes = int(v)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		minutes = parsed
	default:
		return 0, false
	}

	if minutes < MinExtensionMinutes || minutes > MaxExtensionMinutes {
		return 0, false
	}

	return minutes, true
}

// NormalizeTableNumber accepts 1-20 characters of letters, digits, hyphen
// and underscore.
func NormalizeTableNumber(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if !tableNumberPattern.MatchString(trimmed) {
		return "", false
	}

	return trimmed, true
}

// NormalizeDisplayName trims surrounding whitespace and requires 2-30
// printable characters.
func NormalizeDisplayName(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)

	length := 0
	for _, r := range trimmed {
		if !unicode.IsPrint(r) {
			return "", false
		}
		length++
	}

	if length < MinDisplayNameLen || length > MaxDisplayNameLen {
		return "", false
	}

	return trimmed, true
}
