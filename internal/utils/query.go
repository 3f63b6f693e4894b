// Package utils provides small parsing helpers shared by the HTTP handlers.
package utils

import "strconv"

// AtoiDefault converts s with strconv.Atoi, returning def when s is empty
// or not an integer.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// BoundedInt parses s like AtoiDefault and clamps the result to [lo, hi].
//
//	utils.BoundedInt("", 50, 1, 1000)     // 50
//	utils.BoundedInt("5000", 50, 1, 1000) // 1000
//	utils.BoundedInt("-3", 5, 1, 50)      // 1
func BoundedInt(s string, def, lo, hi int) int {
	n := AtoiDefault(s, def)
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
