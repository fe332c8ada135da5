// Package utils provides small, generic helper functions used across
// different layers of the application. These utilities are independent
// of domain or business logic.
package utils

import "strconv"

// ParseID parses a positive decimal resource id such as an article id.
// It reports false for empty, signed, zero, non-numeric or overflowing
// input.
//
// Example:
//
//	id, ok := utils.ParseID("42") // 42, true
//	_, ok = utils.ParseID("0")    // 0, false
//	_, ok = utils.ParseID("-1")   // 0, false
func ParseID(s string) (uint64, bool) {
	if s == "" || s[0] == '+' {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return n, true
}

// ParseUserID parses a positive user id. Leading '+' and whitespace are
// rejected so that ids round-trip exactly.
func ParseUserID(s string) (int64, bool) {
	if s == "" || s[0] == '+' {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
