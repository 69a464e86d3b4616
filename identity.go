package lattice

import "time"

type AuthType string

const (
	UserLogin   AuthType = "USER_LOGIN"
	ClientLogin AuthType = "CLIENT_LOGIN"
)

// Identity is the request-scoped principal produced by credential or token
// authentication. User fields are populated only for UserLogin identities.
type Identity struct {
	AuthType AuthType

	UserID             string
	Username           string
	Email              string
	Mobile             string
	Roles              []string
	Providers          []string
	HasPassword        bool
	LastPasswordChange time.Time

	ClientID   string
	ClientName string
	ClientType string
	Scopes     []string
	Origins    []string

	// Authorities is the merged flat set: user roles first, then client
	// scopes, each as an opaque authority string.
	Authorities []string

	// RemoteAddress is the client IP bound at issuance and re-checked when
	// the token is presented.
	RemoteAddress string
}

// UserIdentity assembles the principal for a verified user logging in through
// a verified client.
func UserIdentity(user *User, client *Client) *Identity {
	return &Identity{
		AuthType:           UserLogin,
		UserID:             user.UserID,
		Username:           user.Username,
		Email:              user.Email,
		Mobile:             user.Mobile,
		Roles:              user.Roles,
		Providers:          user.Providers,
		HasPassword:        user.PasswordHash != "",
		LastPasswordChange: user.LastPasswordChange,
		ClientID:           client.ClientID,
		ClientName:         client.ClientName,
		ClientType:         client.ClientType,
		Scopes:             client.Scopes,
		Origins:            client.Origins,
		Authorities:        mergeAuthorities(user.Roles, client.Scopes),
	}
}

// ClientIdentity assembles the principal for a client-only login.
func ClientIdentity(client *Client) *Identity {
	return &Identity{
		AuthType:    ClientLogin,
		ClientID:    client.ClientID,
		ClientName:  client.ClientName,
		ClientType:  client.ClientType,
		Scopes:      client.Scopes,
		Origins:     client.Origins,
		Authorities: mergeAuthorities(nil, client.Scopes),
	}
}

func mergeAuthorities(roles, scopes []string) []string {
	merged := make([]string, 0, len(roles)+len(scopes))
	merged = append(merged, roles...)
	merged = append(merged, scopes...)
	return merged
}
