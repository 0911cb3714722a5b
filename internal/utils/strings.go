// Package utils holds small parsing helpers shared by the HTTP layer.
package utils

import "strings"

// ParseCSV splits a comma-separated list into trimmed non-empty values.
// Returns nil when nothing remains.
func ParseCSV(s string) []string {
	var result []string
	for _, v := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// ParseSymbols parses a comma-separated symbol list, dropping repeats while
// keeping first-seen order.
func ParseSymbols(s string) []string {
	var symbols []string
	seen := make(map[string]bool)
	for _, sym := range ParseCSV(s) {
		if !seen[sym] {
			seen[sym] = true
			symbols = append(symbols, sym)
		}
	}
	return symbols
}
