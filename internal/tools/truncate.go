package tools

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// maxOutputChars bounds what one tool call may feed back into the
// conversation. Oversized output inflates every following LLM request.
const maxOutputChars = 50000

// TruncateOutput caps tool output at maxOutputChars on a rune boundary,
// appending a marker so the model knows content was cut.
func TruncateOutput(s string) string {
	if len(s) <= maxOutputChars {
		return s
	}
	cut := maxOutputChars
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + fmt.Sprintf("\n[output truncated at %d chars, %d dropped]", cut, len(s)-cut)
}

// firstLine returns the first line of s, for compact log fields.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
