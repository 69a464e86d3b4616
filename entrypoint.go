package lattice

import (
	"regexp"
	"strings"
)

// EntrypointKind classifies the user-supplied login identifier.
type EntrypointKind string

const (
	EntrypointEmail    EntrypointKind = "email"
	EntrypointMobile   EntrypointKind = "mobile"
	EntrypointUsername EntrypointKind = "username"
)

var mobilePattern = regexp.MustCompile(`^\+?[1-9]\d{1,3}?[-.\s]?\d{1,4}[-.\s]?\d{4,10}$`)

// ParseEntrypoint disambiguates an entry-point string by structural
// inspection: an @ with a dot reads as an email, an international phone shape
// as a mobile number, anything else as a username.
func ParseEntrypoint(value string) EntrypointKind {
	if strings.Contains(value, "@") && strings.Contains(value, ".") {
		return EntrypointEmail
	}
	if mobilePattern.MatchString(value) {
		return EntrypointMobile
	}
	return EntrypointUsername
}

func (k EntrypointKind) notFoundError() *AuthError {
	switch k {
	case EntrypointEmail:
		return ErrNoUserWithEmail
	case EntrypointMobile:
		return ErrNoUserWithMobile
	default:
		return ErrNoUserWithUsername
	}
}
