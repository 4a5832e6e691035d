package utils

import "strings"

// NormalizeLineNumber drops country prefix from the local line number
func NormalizeLineNumber(number string) string {
	res := strings.TrimSpace(number)
	return strings.TrimPrefix(res, "+86")
}
