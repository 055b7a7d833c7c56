// Package attrs reads values back out of slog-style key/value attribute lists.
package attrs

// ExtractString returns the string stored under key in a [k1, v1, k2, v2, ...]
// list, or "" when the key is absent or holds another type.
func ExtractString(list []any, key string) string {
	if v, ok := lookup(list, key).(string); ok {
		return v
	}
	return ""
}

// FirstString returns the first non-empty string among keys.
func FirstString(list []any, keys ...string) string {
	for _, key := range keys {
		if v := ExtractString(list, key); v != "" {
			return v
		}
	}
	return ""
}

func lookup(list []any, key string) any {
	for i := 0; i+1 < len(list); i += 2 {
		if k, ok := list[i].(string); ok && k == key {
			return list[i+1]
		}
	}
	return nil
}
