// Package convert provides type conversion utilities for ndexgraph.
//
// Property values come back from storage as JSON-decoded values: strings,
// bools, json.Number for every number, and []any for lists. These helpers
// read them back into Go types without each caller writing its own type
// switch.
//
// All conversion functions return a success boolean to allow callers to handle
// conversion failures gracefully.
//
// Example:
//
//	if id, ok := convert.ToInt64(node.Properties["citationId"]); ok {
//		// Use id
//	}
//
// ELI12:
//
// This package is like a universal translator for numbers. You give it any kind
// of number (whole number, decimal, even text that looks like a number), and it
// converts it to the type you need. If it can't convert something (like "hello"),
// it tells you by returning false.
package convert

import (
	"encoding/json"
	"strconv"
)

// ToInt64 converts various numeric types to int64.
// Returns (value, true) on success, (0, false) on failure.
//
// Supported types:
//   - int64 (returned as-is)
//   - int, int32 (converted)
//   - uint, uint32, uint64 (converted, may overflow for large uint64)
//   - float64, float32 (truncated toward zero)
//   - json.Number (parsed exactly, so 64-bit identifiers keep every digit)
//   - string (parsed as integer)
//
// Example:
//
//	i, ok := ToInt64(42)                   // Returns (42, true)
//	i, ok := ToInt64(3.7)                  // Returns (3, true) - truncated
//	i, ok := ToInt64(json.Number("123"))   // Returns (123, true)
//	i, ok := ToInt64("invalid")            // Returns (0, false)
//
// ELI12:
//
// This converts numbers to whole numbers (integers). If you give it
// a decimal like 3.7, it chops off the .7 part and gives you 3.
func ToInt64(v interface{}) (int64, bool) {
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	case int32:
		return int64(val), true
	case uint:
		return int64(val), true
	case uint32:
		return int64(val), true
	case uint64:
		return int64(val), true
	case float64:
		return int64(val), true
	case float32:
		return int64(val), true
	case json.Number:
		return parseInt(string(val))
	case string:
		return parseInt(val)
	}
	return 0, false
}

func parseInt(s string) (int64, bool) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	// Try parsing as float then converting
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f), true
	}
	return 0, false
}

// ToInt64Or returns ToInt64(v), or fallback when v is missing or not numeric.
func ToInt64Or(v interface{}, fallback int64) int64 {
	if i, ok := ToInt64(v); ok {
		return i
	}
	return fallback
}
