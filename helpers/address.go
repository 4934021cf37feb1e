// Package helpers holds small shared utilities.
package helpers

import "strings"

// SplitEmailAddress splits a lower-cased address into local part and
// domain. An address without '@' comes back with an empty domain.
func SplitEmailAddress(email string) (string, string) {
	email = strings.ToLower(strings.TrimSpace(email))
	local, domain, found := strings.Cut(email, "@")
	if !found {
		return local, ""
	}
	return local, domain
}
