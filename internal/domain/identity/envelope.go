package identity

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"math/big"
	"strings"
	"time"
)

// Algorithm identifies a supported signature scheme.
type Algorithm string

const (
	AlgorithmEd25519 Algorithm = "ed25519"
	AlgorithmES256   Algorithm = "es256"
)

// ParseAlgorithm normalizes and validates an algorithm name.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(strings.TrimSpace(s))) {
	case AlgorithmEd25519:
		return AlgorithmEd25519, nil
	case AlgorithmES256:
		return AlgorithmES256, nil
	default:
		return "", ErrUnsupportedAlgorithm
	}
}

var (
	ErrUnsupportedAlgorithm = errors.New("unsupported signature algorithm")
	ErrMalformedEnvelope    = errors.New("malformed signature envelope")
	ErrSignatureInvalid     = errors.New("signature verification failed")
)

// Envelope is the detached signature attached to a mandate or request.
// KeyID references the verification key held by the agent directory for the
// signing identity; the envelope never carries the raw public key itself.
type Envelope struct {
	Algorithm Algorithm `json:"algorithm"`
	KeyID     string    `json:"key_id"`
	Signature string    `json:"signature"` // base64 raw signature bytes
	Created   time.Time `json:"created"`
	Expires   time.Time `json:"expires"`
}

// ValidateShape checks structural well-formedness only; no clock or
// cryptographic checks happen here.
func (e Envelope) ValidateShape() error {
	if strings.TrimSpace(e.KeyID) == "" {
		return ErrMalformedEnvelope
	}
	if strings.TrimSpace(e.Signature) == "" {
		return ErrMalformedEnvelope
	}
	if e.Created.IsZero() || e.Expires.IsZero() {
		return ErrMalformedEnvelope
	}
	if _, err := base64.StdEncoding.DecodeString(e.Signature); err != nil {
		return ErrMalformedEnvelope
	}
	return nil
}

// Verify checks the envelope's signature over message against the given raw
// public key. For ed25519 the key is the 32-byte raw key; for es256 it is the
// uncompressed P-256 point (65 bytes) and the signature is r||s (64 bytes)
// over sha256(message).
func (e Envelope) Verify(message []byte, publicKey []byte) error {
	sig, err := base64.StdEncoding.DecodeString(e.Signature)
	if err != nil {
		return ErrMalformedEnvelope
	}
	switch e.Algorithm {
	case AlgorithmEd25519:
		if len(publicKey) != ed25519.PublicKeySize {
			return ErrSignatureInvalid
		}
		if !ed25519.Verify(ed25519.PublicKey(publicKey), message, sig) {
			return ErrSignatureInvalid
		}
		return nil
	case AlgorithmES256:
		x, y := elliptic.Unmarshal(elliptic.P256(), publicKey)
		if x == nil {
			return ErrSignatureInvalid
		}
		if len(sig) != 64 {
			return ErrSignatureInvalid
		}
		pub := &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}
		digest := sha256.Sum256(message)
		r := new(big.Int).SetBytes(sig[:32])
		s := new(big.Int).SetBytes(sig[32:])
		if !ecdsa.Verify(pub, digest[:], r, s) {
			return ErrSignatureInvalid
		}
		return nil
	default:
		return ErrUnsupportedAlgorithm
	}
}

// SignEd25519 builds an envelope over message with the given key. Used by the
// test fixtures and the checkpoint generator; the service itself only verifies.
func SignEd25519(message []byte, keyID string, priv ed25519.PrivateKey, created time.Time, ttl time.Duration) (Envelope, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return Envelope{}, errors.New("invalid ed25519 private key")
	}
	sig := ed25519.Sign(priv, message)
	return Envelope{
		Algorithm: AlgorithmEd25519,
		KeyID:     keyID,
		Signature: base64.StdEncoding.EncodeToString(sig),
		Created:   created.UTC(),
		Expires:   created.UTC().Add(ttl),
	}, nil
}

// SignES256 builds an es256 envelope over sha256(message).
func SignES256(message []byte, keyID string, priv *ecdsa.PrivateKey, created time.Time, ttl time.Duration) (Envelope, error) {
	if priv == nil || priv.Curve == nil || priv.Curve.Params().Name != elliptic.P256().Params().Name {
		return Envelope{}, errors.New("p256 private key is required")
	}
	digest := sha256.Sum256(message)
	r, s, err := ecdsa.Sign(rand.Reader, priv, digest[:])
	if err != nil {
		return Envelope{}, err
	}
	sig := make([]byte, 64)
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:])
	return Envelope{
		Algorithm: AlgorithmES256,
		KeyID:     keyID,
		Signature: base64.StdEncoding.EncodeToString(sig),
		Created:   created.UTC(),
		Expires:   created.UTC().Add(ttl),
	}, nil
}

// MarshalES256PublicKey encodes a P-256 public key as the uncompressed point
// form expected by Envelope.Verify.
func MarshalES256PublicKey(pub *ecdsa.PublicKey) []byte {
	return elliptic.Marshal(elliptic.P256(), pub.X, pub.Y)
}
