// Package email derives presentation defaults from an email address.
package email

import (
	"strings"
	"unicode"
)

// DisplayName builds a readable name from the local part of address, used when
// an account was created without one: "ada.lovelace+x@example.com" becomes
// "Ada Lovelace X". An empty local part yields "Member".
func DisplayName(address string) string {
	local := address
	if at := strings.IndexByte(address, '@'); at >= 0 {
		local = address[:at]
	}

	parts := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	if len(parts) == 0 {
		return "Member"
	}
	for i, p := range parts {
		parts[i] = capitalize(p)
	}
	return strings.Join(parts, " ")
}

func capitalize(s string) string {
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
