// Package utils holds small helpers shared by the bot layers: integer
// parsing with a fallback and list pagination math.
package utils

import "strconv"

// AtoiDefault parses s as a decimal int, returning def when s is empty,
// malformed or out of range. Callback payloads use it for page numbers.
func AtoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// Page normalizes a 1-based page number and page size and returns the
// matching row offset. Non-positive pages become 1 and non-positive sizes
// become def.
func Page(page, size, def int) (p, s, offset int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = def
	}
	return page, size, (page - 1) * size
}

// TotalPages returns how many pages of size hold total rows; at least 1.
func TotalPages(total int64, size int) int {
	if size <= 0 || total <= 0 {
		return 1
	}
	return int((total + int64(size) - 1) / int64(size))
}
