package solana

import (
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Decoded byte lengths.
const (
	PublicKeyLength = 32
	SignatureLength = 64
)

// DecodeAddress decodes a base58 address and checks its length.
func DecodeAddress(addr string) ([]byte, error) {
	if addr == "" {
		return nil, fmt.Errorf("empty address")
	}
	b, err := base58.Decode(addr)
	if err != nil {
		return nil, fmt.Errorf("decode address %q: %w", addr, err)
	}
	if len(b) != PublicKeyLength {
		return nil, fmt.Errorf("address %q: expected %d bytes, got %d", addr, PublicKeyLength, len(b))
	}
	return b, nil
}

// ValidateAddress returns an error if addr is not a well-formed Solana address.
func ValidateAddress(addr string) error {
	_, err := DecodeAddress(addr)
	return err
}

// IsOnCurve reports whether addr is a valid ed25519 point.
// Signer keys (fee payers) are always on the curve; program derived addresses never are.
func IsOnCurve(addr string) bool {
	b, err := DecodeAddress(addr)
	if err != nil {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// ValidateSignature returns an error if sig is not a base58 ed25519 signature.
func ValidateSignature(sig string) error {
	b, err := base58.Decode(sig)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	if len(b) != SignatureLength {
		return fmt.Errorf("signature: expected %d bytes, got %d", SignatureLength, len(b))
	}
	return nil
}
