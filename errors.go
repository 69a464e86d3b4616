package lattice

import (
	"errors"
	"fmt"
	"net/http"
)

// AuthError is a domain error with a stable code that survives wrapping. The
// HTTP boundary renders it as a structured JSON body; everything else matches
// it with errors.Is against the exported values below.
type AuthError struct {
	Code         string
	Message      string
	Status       int
	TokenExpired bool
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s (code %s)", e.Message, e.Code)
}

// Is matches on the stable code so wrapped errors still compare equal to the
// exported sentinel values.
func (e *AuthError) Is(target error) bool {
	var other *AuthError
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

var (
	ErrUserNotFound         = &AuthError{Code: "1006", Message: "user not found with the given data", Status: http.StatusUnauthorized}
	ErrIncorrectPassword    = &AuthError{Code: "1007", Message: "incorrect password entered, verify your credentials and try again", Status: http.StatusUnauthorized}
	ErrUserNotEnabled       = &AuthError{Code: "1008", Message: "user is not enabled", Status: http.StatusUnauthorized}
	ErrUserAccountLocked    = &AuthError{Code: "1009", Message: "user account is locked", Status: http.StatusUnauthorized}
	ErrNoUserWithEmail      = &AuthError{Code: "1010", Message: "user not found with the given email", Status: http.StatusUnauthorized}
	ErrNoUserWithUsername   = &AuthError{Code: "1011", Message: "user not found with the given username", Status: http.StatusUnauthorized}
	ErrNoUserWithMobile     = &AuthError{Code: "1012", Message: "user not found with the given mobile number", Status: http.StatusUnauthorized}
	ErrClientNotFound       = &AuthError{Code: "1013", Message: "client not found with the given client id", Status: http.StatusUnauthorized}
	ErrClientExpired        = &AuthError{Code: "1015", Message: "client credentials are expired", Status: http.StatusUnauthorized}
	ErrClientSecretInvalid  = &AuthError{Code: "1016", Message: "client secret is invalid", Status: http.StatusUnauthorized}
	ErrClientInactive       = &AuthError{Code: "1017", Message: "client status is not active", Status: http.StatusUnauthorized}
	ErrClientIDMandatory    = &AuthError{Code: "1018", Message: "client id is not present in the request", Status: http.StatusBadRequest}
	ErrClientSecretMissing  = &AuthError{Code: "1019", Message: "client secret is not present in the request", Status: http.StatusBadRequest}
	ErrPasswordMandatory    = &AuthError{Code: "1020", Message: "password is not present in the request", Status: http.StatusBadRequest}
	ErrEntrypointMandatory  = &AuthError{Code: "1021", Message: "enter a valid email, username or mobile number to continue", Status: http.StatusBadRequest}
	ErrAuthoritiesMissing   = &AuthError{Code: "1025", Message: "not authorized to access the application", Status: http.StatusForbidden}
	ErrTokenExpired         = &AuthError{Code: "1026", Message: "token is expired", Status: http.StatusForbidden, TokenExpired: true}
	ErrTokenMalformed       = &AuthError{Code: "1027", Message: "token is malformed", Status: http.StatusUnauthorized}
	ErrRefreshNotAllowed    = &AuthError{Code: "1028", Message: "refresh token is not allowed for accessing resources", Status: http.StatusUnauthorized}
	ErrFullAuthRequired     = &AuthError{Code: "1030", Message: "user authentication is required to access this resource", Status: http.StatusUnauthorized}
	ErrRemoteAddressAuth    = &AuthError{Code: "1031", Message: "remote address authentication failed", Status: http.StatusUnauthorized}
	ErrNotLoggedIn          = &AuthError{Code: "1040", Message: "user not logged in", Status: http.StatusUnauthorized}
	ErrRefreshTokenInvalid  = &AuthError{Code: "1043", Message: "refresh token is invalid", Status: http.StatusUnauthorized}
	ErrRefreshTokenExpired  = &AuthError{Code: "1045", Message: "refresh token is expired", Status: http.StatusUnauthorized, TokenExpired: true}
)
