package agent

import (
	"regexp"
	"strings"
)

// DefaultTaskName is used when an instruction normalizes to nothing.
const DefaultTaskName = "task"

var (
	validTaskNameRe  = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)
	invalidNameChars = regexp.MustCompile(`[^a-z0-9_-]+`)
	edgeDashes       = regexp.MustCompile(`^-+|-+$`)
)

// NormalizeTaskName derives a short identifier from a task instruction,
// usable in file paths, log fields and trajectory keys:
//   - Lowercase, max 64 chars
//   - Only [a-z0-9_-] allowed; other characters collapse to "-"
//   - Leading/trailing dashes stripped
//   - Empty result defaults to "task"
func NormalizeTaskName(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return DefaultTaskName
	}

	lower := strings.ToLower(trimmed)
	if validTaskNameRe.MatchString(lower) {
		return lower
	}

	result := invalidNameChars.ReplaceAllString(lower, "-")
	result = edgeDashes.ReplaceAllString(result, "")
	if len(result) > 64 {
		result = strings.TrimRight(result[:64], "-")
	}

	if result == "" {
		return DefaultTaskName
	}
	return result
}
