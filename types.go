package lattice

import (
	"context"
	"time"
)

type ClientStatus string

const (
	ClientStatusActive   ClientStatus = "ACTIVE"
	ClientStatusInactive ClientStatus = "INACTIVE"
)

type RefreshStatus string

const RefreshStatusActive RefreshStatus = "ACTIVE"

// User is the durable account record read by the credential verifier.
// PasswordHash is empty for SSO-only accounts.
type User struct {
	UserID             string
	Email              string
	Username           string
	Mobile             string
	PasswordHash       string
	Enabled            bool
	Locked             bool
	Roles              []string
	Providers          []string
	LastPasswordChange time.Time
}

// Client is a registered API client with a pre-shared secret.
type Client struct {
	ClientID   string
	ClientName string
	ClientType string
	Secret     string
	Status     ClientStatus
	ExpiresAt  time.Time
	Origins    []string
	Scopes     []string
}

// RefreshRecord is the durable metadata kept for one issued refresh token,
// keyed by the token's jti claim. At most one live record exists per jti; a
// successful consume deletes it.
type RefreshRecord struct {
	RecordID     string
	JTI          string
	ClientID     string
	UserID       string
	AuthType     AuthType
	IssuedAt     time.Time
	ExpiresAt    time.Time
	Status       RefreshStatus
	Provider     string
	ProviderData []byte
}

type UserStore interface {
	// FindUserByEntrypoint resolves by email, username or mobile, whichever
	// matches. Returns (nil, nil) when no user exists.
	FindUserByEntrypoint(ctx context.Context, value string) (*User, error)
	FindUserByID(ctx context.Context, id string) (*User, error)
}

type ClientStore interface {
	// FindClientByID returns (nil, nil) when no client exists.
	FindClientByID(ctx context.Context, id string) (*Client, error)
}

type RefreshStore interface {
	CreateRefresh(ctx context.Context, rec *RefreshRecord) error
	// ConsumeRefresh deletes the record for jti and returns it. The delete is
	// the validity check: a second call with the same jti finds nothing.
	// Returns (nil, nil) when no record matched.
	ConsumeRefresh(ctx context.Context, jti string) (*RefreshRecord, error)
}
