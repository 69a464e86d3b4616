package main

import "time"

// Config is read from the environment (and .env in development).
type Config struct {
	Addr         string `env:"LATTICE_ADDR" envDefault:":8080"`
	Environment  string `env:"LATTICE_ENVIRONMENT" envDefault:"development"`
	DatabasePath string `env:"LATTICE_DB_PATH" envDefault:"lattice.db"`
	JwksPath     string `env:"LATTICE_JWKS_PATH" envDefault:"jwks.json"`
	ContextPath  string `env:"LATTICE_CONTEXT_PATH"`

	AccessTokenTTL     time.Duration `env:"LATTICE_ACCESS_TOKEN_TTL" envDefault:"10m"`
	LongAccessTokenTTL time.Duration `env:"LATTICE_LONG_ACCESS_TOKEN_TTL" envDefault:"4h"`
	RefreshTokenTTL    time.Duration `env:"LATTICE_REFRESH_TOKEN_TTL" envDefault:"168h"`

	RefreshCookieName string `env:"LATTICE_REFRESH_COOKIE_NAME" envDefault:"lattice-refresh"`
	CookieHTTPOnly    bool   `env:"LATTICE_COOKIE_HTTP_ONLY" envDefault:"true"`
	CookieSecure      bool   `env:"LATTICE_COOKIE_SECURE" envDefault:"true"`
	CookieSameSite    string `env:"LATTICE_COOKIE_SAME_SITE" envDefault:"None"`

	RemoteAddressBinding bool     `env:"LATTICE_REMOTE_ADDRESS_BINDING" envDefault:"false"`
	ClientAuthPaths      []string `env:"LATTICE_CLIENT_AUTH_PATHS" envSeparator:"," envDefault:"/auth/**"`
	ExcludePaths         []string `env:"LATTICE_EXCLUDE_PATHS" envSeparator:"," envDefault:"/.well-known/**"`

	DevAuthorities       []string `env:"LATTICE_DEV_AUTHORITIES" envSeparator:"," envDefault:"user"`
	ClientDevAuthorities []string `env:"LATTICE_CLIENT_DEV_AUTHORITIES" envSeparator:","`

	FacebookAppID     string `env:"LATTICE_FACEBOOK_APP_ID"`
	FacebookAppSecret string `env:"LATTICE_FACEBOOK_APP_SECRET"`
}
