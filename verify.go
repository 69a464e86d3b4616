package lattice

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Credentials is the raw login input. ClientID and ClientSecret are always
// required; Entrypoint and Password are present only for user logins.
type Credentials struct {
	Entrypoint   string
	Password     string
	ClientID     string
	ClientSecret string
}

// Verifier validates user passwords and client secrets against the stores and
// assembles the resulting identity.
type Verifier struct {
	users   UserStore
	clients ClientStore
	log     *slog.Logger
	now     func() time.Time
}

func NewVerifier(users UserStore, clients ClientStore, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{users: users, clients: clients, log: logger, now: time.Now}
}

// AuthTypeFor decides which verification path runs. Client login requires the
// user fields to be entirely absent; a lone entrypoint or lone password is
// rejected instead of defaulting to a user login.
func AuthTypeFor(creds Credentials) (AuthType, error) {
	if creds.ClientID == "" {
		return "", ErrClientIDMandatory
	}
	if creds.ClientSecret == "" {
		return "", ErrClientSecretMissing
	}
	switch {
	case creds.Entrypoint == "" && creds.Password == "":
		return ClientLogin, nil
	case creds.Entrypoint != "" && creds.Password == "":
		return "", ErrPasswordMandatory
	case creds.Entrypoint == "" && creds.Password != "":
		return "", ErrEntrypointMandatory
	default:
		return UserLogin, nil
	}
}

// Verify runs the full credential check and returns the assembled identity.
func (v *Verifier) Verify(ctx context.Context, creds Credentials) (*Identity, error) {
	authType, err := AuthTypeFor(creds)
	if err != nil {
		return nil, err
	}
	client, err := v.VerifyClient(ctx, creds.ClientID, creds.ClientSecret)
	if err != nil {
		return nil, err
	}
	if authType == ClientLogin {
		v.log.Info("client login verified", "clientId", client.ClientID)
		return ClientIdentity(client), nil
	}
	user, err := v.VerifyUser(ctx, creds.Entrypoint, creds.Password)
	if err != nil {
		return nil, err
	}
	v.log.Info("user login verified", "userId", user.UserID, "clientId", client.ClientID)
	return UserIdentity(user, client), nil
}

// VerifyUser resolves the user by entrypoint kind and checks the password and
// account state.
func (v *Verifier) VerifyUser(ctx context.Context, entrypoint, password string) (*User, error) {
	kind := ParseEntrypoint(entrypoint)
	user, err := v.users.FindUserByEntrypoint(ctx, entrypoint)
	if err != nil {
		return nil, fmt.Errorf("look up user by %s: %w", kind, err)
	}
	if user == nil {
		return nil, kind.notFoundError()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrIncorrectPassword
	}
	if err := checkUserActive(user); err != nil {
		return nil, err
	}
	return user, nil
}

// VerifyUserByID re-validates a user during refresh rotation, where no
// password is presented.
func (v *Verifier) VerifyUserByID(ctx context.Context, userID string) (*User, error) {
	user, err := v.users.FindUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("look up user %s: %w", userID, err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if err := checkUserActive(user); err != nil {
		return nil, err
	}
	return user, nil
}

// VerifyClient checks the pre-shared secret, expiry and status of a client.
func (v *Verifier) VerifyClient(ctx context.Context, clientID, clientSecret string) (*Client, error) {
	client, err := v.lookupClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(clientSecret), []byte(client.Secret)) != 1 {
		return nil, ErrClientSecretInvalid
	}
	return client, v.checkClientActive(client)
}

// VerifyClientByID re-validates a client during refresh rotation, where the
// secret is vouched for by the consumed refresh record.
func (v *Verifier) VerifyClientByID(ctx context.Context, clientID string) (*Client, error) {
	client, err := v.lookupClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return client, v.checkClientActive(client)
}

func (v *Verifier) lookupClient(ctx context.Context, clientID string) (*Client, error) {
	client, err := v.clients.FindClientByID(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("look up client %s: %w", clientID, err)
	}
	if client == nil {
		return nil, ErrClientNotFound
	}
	return client, nil
}

func (v *Verifier) checkClientActive(client *Client) error {
	if v.now().After(client.ExpiresAt) {
		return ErrClientExpired
	}
	if client.Status != ClientStatusActive {
		return ErrClientInactive
	}
	return nil
}

func checkUserActive(user *User) error {
	if !user.Enabled {
		return ErrUserNotEnabled
	}
	if user.Locked {
		return ErrUserAccountLocked
	}
	return nil
}
