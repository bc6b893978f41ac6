package keys

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// PublicKeyPrefix is prepended to the base58 form of every public key.
const PublicKeyPrefix = "ed25519."

// ErrInvalidPublicKey is returned when a string does not hold a valid key.
var ErrInvalidPublicKey = errors.New("invalid public key")

// PublicKey is an Ed25519 public key.
type PublicKey ed25519.PublicKey

// ParsePublicKey parses the string form produced by PublicKey.String.
func ParsePublicKey(s string) (PublicKey, error) {
	if !strings.HasPrefix(s, PublicKeyPrefix) {
		return nil, fmt.Errorf("%w: missing %q prefix", ErrInvalidPublicKey, PublicKeyPrefix)
	}

	raw, err := base58.Decode(strings.TrimPrefix(s, PublicKeyPrefix))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}

	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidPublicKey, len(raw))
	}

	return PublicKey(raw), nil
}

// String returns "ed25519." followed by the base58 encoded key.
func (k PublicKey) String() string {
	if len(k) == 0 {
		return ""
	}
	return PublicKeyPrefix + base58.Encode(k)
}

// IsEmpty reports whether the key holds no material.
func (k PublicKey) IsEmpty() bool {
	return len(k) == 0
}

// Equals compares two public keys.
func (k PublicKey) Equals(o PublicKey) bool {
	return bytes.Equal(k, o)
}

// Verify reports whether sig is a valid signature of msg by this key.
func (k PublicKey) Verify(msg, sig []byte) bool {
	if len(k) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(k), msg, sig)
}

// Curve25519 returns the Montgomery form of the key, usable with X25519.
func (k PublicKey) Curve25519() ([]byte, error) {
	p, err := new(edwards25519.Point).SetBytes(k)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return p.BytesMontgomery(), nil
}

// MarshalText implements encoding.TextMarshaler.
func (k PublicKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *PublicKey) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*k = nil
		return nil
	}
	pub, err := ParsePublicKey(string(text))
	if err != nil {
		return err
	}
	*k = pub
	return nil
}
