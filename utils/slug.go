// utils/slug.go
package utils

import "strings"

// NormalizeSlug lowercases and trims a page identifier such as a president
// slug and joins internal whitespace with dashes ("Barack Obama" -> "barack-obama").
func NormalizeSlug(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "-")
}
