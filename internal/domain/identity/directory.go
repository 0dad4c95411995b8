package identity

import (
	"context"
	"errors"
)

var (
	ErrAgentNotFound  = errors.New("agent not found in directory")
	ErrAgentFrozen    = errors.New("agent is frozen")
	ErrDomainMismatch = errors.New("key is not bound to the claimed domain")
)

// AgentKey is one verification key held by the directory for an agent.
// Domain scopes the key to one protocol domain; an empty Domain leaves the
// key unscoped.
type AgentKey struct {
	AgentID   string
	KeyID     string
	Algorithm Algorithm
	PublicKey []byte
	Domain    string
	Frozen    bool
}

// Directory resolves agent identities to verification keys and freeze status.
// Lookups are read-only; the directory is maintained out of band.
type Directory interface {
	// ResolveKey returns the key material for (agentID, keyID).
	// Returns ErrAgentNotFound if the agent or key is unknown.
	ResolveKey(ctx context.Context, agentID, keyID string) (*AgentKey, error)
}
