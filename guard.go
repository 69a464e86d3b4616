package lattice

import "log/slog"

// Minimum-authority map keys for originless requests.
const (
	DevelopmentKey       = "development"
	ClientDevelopmentKey = "clientDevelopment"
)

// GuardConfig maps DevelopmentKey/ClientDevelopmentKey to the authority
// multiset an originless caller must hold.
type GuardConfig struct {
	MinimumAuthorities map[string][]string
}

// Guard runs after authentication: requests with an Origin header must match
// the client's registered allow-list; originless requests fall back to the
// minimum-authority check.
type Guard struct {
	cfg GuardConfig
	log *slog.Logger
}

func NewGuard(cfg GuardConfig, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{cfg: cfg, log: logger}
}

func (g *Guard) Check(identity *Identity, origin string) error {
	if origin == "" {
		return g.checkMinimumAuthorities(identity)
	}
	return g.checkOrigin(identity, origin)
}

func (g *Guard) checkOrigin(identity *Identity, origin string) error {
	// An empty registered list means no restriction is enforceable.
	if len(identity.Origins) == 0 {
		return nil
	}
	for _, allowed := range identity.Origins {
		if allowed == origin {
			return nil
		}
	}
	g.log.Warn("origin not allowed for client", "origin", origin, "clientId", identity.ClientID)
	return ErrAuthoritiesMissing
}

// checkMinimumAuthorities verifies the identity's authorities are a multiset
// superset of the configured minimum: each required authority consumes one
// held authority, so duplicates must each be separately present.
func (g *Guard) checkMinimumAuthorities(identity *Identity) error {
	key := DevelopmentKey
	if identity.AuthType == ClientLogin {
		key = ClientDevelopmentKey
	}
	required := g.cfg.MinimumAuthorities[key]
	held := make(map[string]int, len(identity.Authorities))
	for _, authority := range identity.Authorities {
		held[authority]++
	}
	for _, authority := range required {
		if held[authority] == 0 {
			g.log.Warn("minimum authorities not held", "clientId", identity.ClientID, "missing", authority)
			return ErrAuthoritiesMissing
		}
		held[authority]--
	}
	return nil
}
