// Package core provides the expense and label domain model.
//
// This file contains price parsing from user-entered strings.
package core

import (
	"math"
	"strconv"
	"strings"
)

// ParsePrice converts a decimal string to a non-negative price.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators.
// Returns a *ValidationError for empty input, unparseable values, negative
// values, and non-finite values. Zero is a valid price.
func ParsePrice(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, &ValidationError{Field: "price", Reason: "must not be empty"}
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &ValidationError{Field: "price", Reason: "not a number"}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &ValidationError{Field: "price", Reason: "not a finite number"}
	}
	if v < 0 {
		return 0, &ValidationError{Field: "price", Reason: "must not be negative"}
	}
	return v, nil
}
