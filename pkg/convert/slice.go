package convert

import "fmt"

// ToStringSlice converts various slice types to []string.
// Returns slice on success, nil on failure.
//
// Supported types:
//   - []string (returned as-is)
//   - []interface{} (every element must be a string)
//
// Example:
//
//	s := ToStringSlice([]interface{}{"a", "b"}) // Returns ["a", "b"]
//	s := ToStringSlice([]interface{}{"a", 1})   // Returns nil
func ToStringSlice(v interface{}) []string {
	switch val := v.(type) {
	case []string:
		return val
	case []interface{}:
		result := make([]string, len(val))
		for i, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil
			}
			result[i] = s
		}
		return result
	}
	return nil
}

// ToString returns v as a string.
//
// Strings are returned as-is, nil and missing values give "", and anything
// else is formatted with fmt. The second result reports whether v was a
// string.
func ToString(v interface{}) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case nil:
		return "", false
	default:
		return fmt.Sprint(val), false
	}
}

// ToBool reads a boolean property. Strings "true"/"false" are accepted.
func ToBool(v interface{}) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		switch val {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return false, false
}
