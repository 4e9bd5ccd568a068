package helpers

import (
	"strconv"
	"strings"
)

// ParsePositiveInt parses user-entered text as a strictly positive integer.
// It tolerates surrounding whitespace and returns false for anything else.
func ParsePositiveInt(input string) (int, bool) {
	s := strings.TrimSpace(input)
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
