package utils

import (
	"strings"

	"github.com/ifuryst/lol"
)

// SplitByMultipleDelimiters splits s on any of the single-character delimiters
func SplitByMultipleDelimiters(s string, delimiters ...string) []string {
	if len(delimiters) == 0 {
		return []string{s}
	}
	set := strings.Join(delimiters, "")
	return strings.FieldsFunc(s, func(r rune) bool {
		return strings.ContainsRune(set, r)
	})
}

// SplitAddrs splits a redis address list on ; and , dropping blanks and duplicates
func SplitAddrs(s string) []string {
	parts := SplitByMultipleDelimiters(s, ";", ",")
	addrs := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			addrs = append(addrs, p)
		}
	}
	return lol.UniqSlice(addrs)
}
