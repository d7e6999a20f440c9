package locator

import (
	"strconv"
	"strings"
)

// ParseCursor decodes the wire form of a cursor. An empty value is the start.
func ParseCursor(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, validationError("cursor must be a non-negative integer")
	}
	return n, nil
}

// NextCursor returns the offset of the following page, or nil once the
// caller has consumed totalCount rows.
func NextCursor(offset, returned int, total int64) *int {
	next := offset + returned
	if int64(next) >= total {
		return nil
	}
	return &next
}
