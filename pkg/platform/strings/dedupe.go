// Package strings holds small list helpers for configuration values.
package strings

import (
	"strings"
)

// SplitList splits a comma separated value, trims each element and drops
// empties and repeats. Order of first appearance is kept; an empty input
// yields nil.
//
//	SplitList(" k1:9092, k2:9092,,k1:9092") // []string{"k1:9092", "k2:9092"}
func SplitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return Dedupe(strings.Split(raw, ","))
}

// Dedupe trims values and removes empty and repeated elements, keeping order.
func Dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
