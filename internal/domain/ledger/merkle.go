package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ProofStep is one sibling hash in an inclusion proof. Left reports whether
// the sibling sits to the left of the running hash.
type ProofStep struct {
	Hash string `json:"hash"`
	Left bool   `json:"left"`
}

// MerkleProof proves a leaf's inclusion under a committed root.
type MerkleProof struct {
	LeafHash  string      `json:"leaf_hash"`
	LeafIndex int         `json:"leaf_index"`
	Root      string      `json:"root"`
	Steps     []ProofStep `json:"steps"`
}

// MerkleTree is built over a batch of entry payload hashes. Leaves pair into
// sha256(left || right); an odd trailing leaf is promoted unchanged.
type MerkleTree struct {
	levels [][]string // levels[0] = leaves, last level = [root]
}

var ErrEmptyTree = errors.New("merkle tree requires at least one leaf")

// NewMerkleTree builds a tree over the given leaf hashes (hex strings).
func NewMerkleTree(leaves []string) (*MerkleTree, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyTree
	}
	levels := [][]string{append([]string(nil), leaves...)}
	for current := levels[0]; len(current) > 1; {
		next := make([]string, 0, (len(current)+1)/2)
		for i := 0; i < len(current); i += 2 {
			if i+1 < len(current) {
				next = append(next, hashPair(current[i], current[i+1]))
			} else {
				// odd trailing leaf promoted unchanged
				next = append(next, current[i])
			}
		}
		levels = append(levels, next)
		current = next
	}
	return &MerkleTree{levels: levels}, nil
}

// Root returns the committed root hash.
func (t *MerkleTree) Root() string {
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// Proof builds the inclusion proof for the leaf at index.
func (t *MerkleTree) Proof(index int) (*MerkleProof, error) {
	leaves := t.levels[0]
	if index < 0 || index >= len(leaves) {
		return nil, errors.New("leaf index out of range")
	}
	proof := &MerkleProof{
		LeafHash:  leaves[index],
		LeafIndex: index,
		Root:      t.Root(),
	}
	pos := index
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := pos ^ 1
		if sibling < len(level) {
			proof.Steps = append(proof.Steps, ProofStep{
				Hash: level[sibling],
				Left: sibling < pos,
			})
		}
		pos /= 2
	}
	return proof, nil
}

// VerifyProof recomputes the root from a leaf hash and proof steps.
func VerifyProof(leafHash string, proof *MerkleProof, root string) bool {
	if proof == nil || leafHash != proof.LeafHash {
		return false
	}
	running := leafHash
	for _, step := range proof.Steps {
		if step.Left {
			running = hashPair(step.Hash, running)
		} else {
			running = hashPair(running, step.Hash)
		}
	}
	return running == root && proof.Root == root
}

func hashPair(left, right string) string {
	sum := sha256.Sum256([]byte(left + right))
	return hex.EncodeToString(sum[:])
}
