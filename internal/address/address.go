// Package address provides small helpers for email address handling.
package address

import (
	"net/mail"
	"strings"
)

// Domain extracts the domain part of an email address, lowercased. Returns
// an empty string when no domain can be determined.
func Domain(email string) string {
	if addr, err := mail.ParseAddress(email); err == nil {
		email = addr.Address
	}
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}

// DomainOrDefault extracts the domain part of an email address, falling back
// to def when the address carries none.
func DomainOrDefault(email, def string) string {
	if domain := Domain(email); domain != "" {
		return domain
	}
	return def
}
