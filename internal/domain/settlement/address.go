package settlement

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/sha3"
)

var ErrInvalidAddress = errors.New("invalid settlement address")

// DeriveAddress computes the 20-byte settlement address for a secp256k1-style
// public key point: the low 20 bytes of keccak256 over the uncompressed point
// without its 0x04 prefix.
func DeriveAddress(pub *ecdsa.PublicKey) (string, error) {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return "", errors.New("nil public key")
	}
	raw := make([]byte, 64)
	pub.X.FillBytes(raw[:32])
	pub.Y.FillBytes(raw[32:])
	h := sha3.NewLegacyKeccak256()
	h.Write(raw)
	sum := h.Sum(nil)
	return "0x" + hex.EncodeToString(sum[12:]), nil
}

// ValidateAddress checks the 0x-prefixed 20-byte hex form. A mixed-case
// address carries an EIP-55 checksum and must verify; uniform-case addresses
// carry no checksum and are accepted as-is.
func ValidateAddress(addr string) error {
	addr = strings.TrimSpace(addr)
	if !strings.HasPrefix(addr, "0x") || len(addr) != 42 {
		return ErrInvalidAddress
	}
	body := addr[2:]
	if _, err := hex.DecodeString(body); err != nil {
		return ErrInvalidAddress
	}
	lower := strings.ToLower(body)
	if body == lower || body == strings.ToUpper(body) {
		return nil
	}
	if checksumHex(lower) != body {
		return ErrInvalidAddress
	}
	return nil
}

// checksumHex applies the EIP-55 casing to lowercase address hex: a hex
// letter is uppercased when the matching nibble of keccak256(lower) is >= 8.
func checksumHex(lower string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(lower))
	sum := h.Sum(nil)
	out := []byte(lower)
	for i, c := range out {
		if c < 'a' || c > 'f' {
			continue
		}
		nibble := sum[i/2]
		if i%2 == 0 {
			nibble >>= 4
		} else {
			nibble &= 0x0f
		}
		if nibble >= 8 {
			out[i] = c - ('a' - 'A')
		}
	}
	return string(out)
}

// NormalizeAddress lowercases a validated address for use as a store key.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
