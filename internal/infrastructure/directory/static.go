package directory

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"strings"

	"github.com/settlement-hub/settlement-hub/internal/domain/identity"
)

// StaticDirectory is a simple in-memory agent directory.
type StaticDirectory struct {
	keys   map[string]identity.AgentKey // "agentID/keyID" -> key
	frozen map[string]bool
}

// NewStaticDirectory builds a directory from explicit key material.
func NewStaticDirectory(keys []identity.AgentKey) *StaticDirectory {
	d := &StaticDirectory{
		keys:   make(map[string]identity.AgentKey, len(keys)),
		frozen: make(map[string]bool),
	}
	for _, key := range keys {
		d.keys[key.AgentID+"/"+key.KeyID] = key
		if key.Frozen {
			d.frozen[key.AgentID] = true
		}
	}
	return d
}

// NewFromEnv builds a directory from environment variables.
// AGENT_KEYS format: "agentId:keyId:alg:base64pub[:domain],..." where alg is
// ed25519 or es256; the optional domain scopes the key to one protocol
// domain. AGENT_FROZEN is a comma-separated agent id list.
func NewFromEnv() (*StaticDirectory, error) {
	var keys []identity.AgentKey
	raw := os.Getenv("AGENT_KEYS")
	if raw != "" {
		for _, p := range strings.Split(raw, ",") {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			parts := strings.SplitN(p, ":", 5)
			if len(parts) < 4 {
				return nil, errors.New("invalid AGENT_KEYS format")
			}
			alg, err := identity.ParseAlgorithm(parts[2])
			if err != nil {
				return nil, err
			}
			pub, err := base64.StdEncoding.DecodeString(parts[3])
			if err != nil {
				return nil, err
			}
			key := identity.AgentKey{
				AgentID:   parts[0],
				KeyID:     parts[1],
				Algorithm: alg,
				PublicKey: pub,
			}
			if len(parts) == 5 {
				key.Domain = strings.TrimSpace(parts[4])
			}
			keys = append(keys, key)
		}
	}

	d := NewStaticDirectory(keys)
	for _, agentID := range strings.Split(os.Getenv("AGENT_FROZEN"), ",") {
		agentID = strings.TrimSpace(agentID)
		if agentID != "" {
			d.frozen[agentID] = true
		}
	}
	return d, nil
}

func (d *StaticDirectory) ResolveKey(ctx context.Context, agentID, keyID string) (*identity.AgentKey, error) {
	_ = ctx
	key, ok := d.keys[agentID+"/"+keyID]
	if !ok {
		return nil, identity.ErrAgentNotFound
	}
	key.Frozen = d.frozen[agentID]
	return &key, nil
}

// Freeze marks an agent frozen; lookups still resolve but carry the flag.
func (d *StaticDirectory) Freeze(agentID string) {
	d.frozen[agentID] = true
}
