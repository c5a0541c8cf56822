package venue

import "strconv"

// F parses venue numeric strings, returning 0 for empty or malformed input.
// Exchanges ship numbers as strings in most payloads.
func F(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
