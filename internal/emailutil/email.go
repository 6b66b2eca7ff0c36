package emailutil

import (
	"regexp"
	"strings"
)

// emailShape is the loose local@domain.tld check used to pick an email out
// of provider claims. It is not an RFC 5322 validator.
var emailShape = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// IsValid reports whether s looks like an email address
func IsValid(s string) bool {
	return emailShape.MatchString(s)
}

// Normalize lowercases and trims an email address for comparison and storage keys
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ExtractDomain returns the part after '@', or "" if email is not a single-@ address
func ExtractDomain(email string) string {
	local, domain, found := strings.Cut(email, "@")
	if !found || local == "" || strings.Contains(domain, "@") {
		return ""
	}
	return domain
}
