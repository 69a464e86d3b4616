package lattice

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestGuard() *Guard {
	return NewGuard(GuardConfig{
		MinimumAuthorities: map[string][]string{
			DevelopmentKey:       {"user"},
			ClientDevelopmentKey: {"read", "read"},
		},
	}, nil)
}

func TestGuardOriginAllowList(t *testing.T) {
	assert := assert.New(t)

	guard := newTestGuard()
	identity := &Identity{
		AuthType: UserLogin,
		ClientID: "client-1",
		Origins:  []string{"https://a.example.com", "https://b.example.com"},
	}

	assert.NoError(guard.Check(identity, "https://a.example.com"))
	assert.NoError(guard.Check(identity, "https://b.example.com"))
	assert.ErrorIs(guard.Check(identity, "https://evil.example.com"), ErrAuthoritiesMissing)
}

func TestGuardEmptyOriginListIsUnrestricted(t *testing.T) {
	assert := assert.New(t)

	guard := newTestGuard()
	identity := &Identity{AuthType: UserLogin, ClientID: "client-1"}

	assert.NoError(guard.Check(identity, "https://anywhere.example.com"))
}

func TestGuardMinimumAuthoritiesForUser(t *testing.T) {
	assert := assert.New(t)

	guard := newTestGuard()

	held := &Identity{AuthType: UserLogin, Authorities: []string{"user", "read"}}
	assert.NoError(guard.Check(held, ""))

	missing := &Identity{AuthType: UserLogin, Authorities: []string{"read"}}
	assert.ErrorIs(guard.Check(missing, ""), ErrAuthoritiesMissing)
}

func TestGuardMinimumAuthoritiesCountDuplicates(t *testing.T) {
	assert := assert.New(t)

	guard := newTestGuard()

	// clientDevelopment requires "read" twice; holding it once is not enough
	once := &Identity{AuthType: ClientLogin, Authorities: []string{"read"}}
	assert.ErrorIs(guard.Check(once, ""), ErrAuthoritiesMissing)

	twice := &Identity{AuthType: ClientLogin, Authorities: []string{"read", "read"}}
	assert.NoError(guard.Check(twice, ""))
}

func TestGuardNoMinimumConfigured(t *testing.T) {
	assert := assert.New(t)

	guard := NewGuard(GuardConfig{}, nil)
	identity := &Identity{AuthType: UserLogin}

	assert.NoError(guard.Check(identity, ""))
}
