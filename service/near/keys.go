package near

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

const ed25519Prefix = "ed25519:"

// ErrInvalidKey is returned when a key string cannot be decoded.
var ErrInvalidKey = errors.New("invalid key")

// KeyPair is an ed25519 access key used to sign transactions.
type KeyPair struct {
	public  ed25519.PublicKey
	private ed25519.PrivateKey
}

// ParseKeyPair decodes a secret key in the "ed25519:<base58>" form used by
// NEAR tooling. Both 64-byte expanded keys and 32-byte seeds are accepted.
func ParseKeyPair(secret string) (*KeyPair, error) {
	encoded, ok := strings.CutPrefix(strings.TrimSpace(secret), ed25519Prefix)
	if !ok {
		return nil, fmt.Errorf("%w: expected %q prefix", ErrInvalidKey, ed25519Prefix)
	}

	raw, err := base58.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	switch len(raw) {
	case ed25519.PrivateKeySize:
		priv := ed25519.PrivateKey(raw)
		return &KeyPair{public: priv.Public().(ed25519.PublicKey), private: priv}, nil
	case ed25519.SeedSize:
		return NewKeyPairFromSeed(raw), nil
	default:
		return nil, fmt.Errorf("%w: unexpected key length %d", ErrInvalidKey, len(raw))
	}
}

// NewKeyPairFromSeed derives a key pair from a 32-byte seed.
func NewKeyPairFromSeed(seed []byte) *KeyPair {
	priv := ed25519.NewKeyFromSeed(seed)
	return &KeyPair{public: priv.Public().(ed25519.PublicKey), private: priv}
}

// PublicKey returns the public key in "ed25519:<base58>" form.
func (k *KeyPair) PublicKey() string {
	return ed25519Prefix + base58.Encode(k.public)
}

// SecretKey returns the expanded secret key in "ed25519:<base58>" form.
func (k *KeyPair) SecretKey() string {
	return ed25519Prefix + base58.Encode(k.private)
}

// Sign signs msg with the private key.
func (k *KeyPair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.private, msg)
}

// Verify reports whether sig is a valid signature of msg by this key.
func (k *KeyPair) Verify(msg, sig []byte) bool {
	return ed25519.Verify(k.public, msg, sig)
}
