package chain

import (
	"regexp"
	"strings"
)

var (
	addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	hashPattern    = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
)

// ValidateAddress reports whether s is 0x followed by exactly 40 hex digits.
func ValidateAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// ValidateTxHash reports whether s is 0x followed by exactly 64 hex digits.
// Document ids share the same 32-byte format.
func ValidateTxHash(s string) bool {
	return hashPattern.MatchString(s)
}

// Normalize lower-cases a validated address or hash. Stored values are always
// normalized so equality in SQL is case-insensitive by construction.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func SameAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}
