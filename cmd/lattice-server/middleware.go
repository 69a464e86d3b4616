package main

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/lattice-auth/lattice"
)

const (
	breadcrumbHeader = "breadcrumbId"

	breadcrumbKey = "breadcrumb"
	remoteAddrKey = "remoteAddr"
	identityKey   = "identity"
)

type errorBody struct {
	Code           string `json:"code"`
	Message        string `json:"message"`
	BreadcrumbID   string `json:"breadcrumbId,omitempty"`
	IsTokenExpired bool   `json:"isTokenExpired"`
}

// breadcrumbMiddleware stashes the correlation id and the resolved client IP
// in the request context. Echo's RealIP takes the first forwarded-for hop.
func breadcrumbMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(e echo.Context) error {
			crumb := e.Request().Header.Get(breadcrumbHeader)
			if crumb == "" {
				crumb = uuid.NewString()
			}
			e.Set(breadcrumbKey, crumb)
			e.Set(remoteAddrKey, e.RealIP())
			e.Response().Header().Set(breadcrumbHeader, crumb)
			return next(e)
		}
	}
}

// bearerMiddleware authenticates a presented bearer token. No token means the
// request continues anonymously; a rejected token gets the structured error
// response right here and the handler never runs.
func bearerMiddleware(auth *lattice.Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(e echo.Context) error {
			token := lattice.BearerToken(e.Request().Header.Get("Authorization"))
			if token == "" {
				return next(e)
			}
			identity, err := auth.Authenticate(token, e.Request().URL.Path, remoteAddr(e))
			if err != nil {
				return writeAuthError(e, err)
			}
			e.Set(identityKey, identity)
			return next(e)
		}
	}
}

func remoteAddr(e echo.Context) string {
	if v, ok := e.Get(remoteAddrKey).(string); ok {
		return v
	}
	return e.RealIP()
}

func breadcrumb(e echo.Context) string {
	if v, ok := e.Get(breadcrumbKey).(string); ok {
		return v
	}
	return ""
}

func requestIdentity(e echo.Context) (*lattice.Identity, bool) {
	identity, ok := e.Get(identityKey).(*lattice.Identity)
	return identity, ok
}

// writeAuthError renders the domain taxonomy as the structured JSON error
// body. Anything outside the taxonomy is an infrastructure fault: generic 500
// for the caller, real cause in the logs.
func writeAuthError(e echo.Context, err error) error {
	var authErr *lattice.AuthError
	if errors.As(err, &authErr) {
		return e.JSON(authErr.Status, errorBody{
			Code:           authErr.Code,
			Message:        authErr.Message,
			BreadcrumbID:   breadcrumb(e),
			IsTokenExpired: authErr.TokenExpired,
		})
	}
	slog.Error("internal error", "err", err, "breadcrumbId", breadcrumb(e))
	return e.JSON(http.StatusInternalServerError, errorBody{
		Code:         "1038",
		Message:      "internal error occurred at backend",
		BreadcrumbID: breadcrumb(e),
	})
}
