package identity

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"
)

func TestEnvelopeSignVerifyEd25519(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	message := []byte(`{"mandate_id":"m-1"}`)
	env, err := SignEd25519(message, "key-1", priv, time.Now(), time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := env.ValidateShape(); err != nil {
		t.Fatalf("shape: %v", err)
	}
	if err := env.Verify(message, pub); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := env.Verify([]byte(`{"mandate_id":"m-2"}`), pub); err != ErrSignatureInvalid {
		t.Fatalf("expected ErrSignatureInvalid after tamper, got %v", err)
	}
}

func TestEnvelopeSignVerifyES256(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	message := []byte(`{"mandate_id":"m-1"}`)
	env, err := SignES256(message, "key-2", priv, time.Now(), time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	pubBytes := MarshalES256PublicKey(&priv.PublicKey)
	if err := env.Verify(message, pubBytes); err != nil {
		t.Fatalf("verify: %v", err)
	}

	other, _ := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err := env.Verify(message, MarshalES256PublicKey(&other.PublicKey)); err != ErrSignatureInvalid {
		t.Fatalf("expected ErrSignatureInvalid with wrong key, got %v", err)
	}
}

func TestEnvelopeUnsupportedAlgorithm(t *testing.T) {
	if _, err := ParseAlgorithm("rs256"); err != ErrUnsupportedAlgorithm {
		t.Fatalf("expected ErrUnsupportedAlgorithm, got %v", err)
	}
	if alg, err := ParseAlgorithm(" Ed25519 "); err != nil || alg != AlgorithmEd25519 {
		t.Fatalf("expected normalized ed25519, got %q %v", alg, err)
	}
}

func TestEnvelopeValidateShape(t *testing.T) {
	env := Envelope{
		Algorithm: AlgorithmEd25519,
		KeyID:     "key-1",
		Signature: "not base64!!!",
		Created:   time.Now(),
		Expires:   time.Now().Add(time.Minute),
	}
	if err := env.ValidateShape(); err != ErrMalformedEnvelope {
		t.Fatalf("expected ErrMalformedEnvelope for bad base64, got %v", err)
	}
	env.Signature = ""
	if err := env.ValidateShape(); err != ErrMalformedEnvelope {
		t.Fatalf("expected ErrMalformedEnvelope for empty signature, got %v", err)
	}
}
