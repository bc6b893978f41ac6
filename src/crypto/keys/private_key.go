package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"fmt"
)

// PrivateKey is an Ed25519 private key.
type PrivateKey ed25519.PrivateKey

// GenerateKey creates a new random PrivateKey.
func GenerateKey() (PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return PrivateKey(priv), nil
}

// NewPrivateKey derives the PrivateKey corresponding to a 32 byte seed.
func NewPrivateKey(seed []byte) (PrivateKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("invalid seed length, need %d bytes", ed25519.SeedSize)
	}
	return PrivateKey(ed25519.NewKeyFromSeed(seed)), nil
}

// Seed returns the 32 byte seed the key was derived from.
func (k PrivateKey) Seed() []byte {
	return ed25519.PrivateKey(k).Seed()
}

// PublicKey returns the public half of the key-pair.
func (k PrivateKey) PublicKey() PublicKey {
	pub := ed25519.PrivateKey(k).Public().(ed25519.PublicKey)
	return PublicKey(pub)
}

// Sign signs msg.
func (k PrivateKey) Sign(msg []byte) []byte {
	return ed25519.Sign(ed25519.PrivateKey(k), msg)
}

// IsEmpty reports whether the key holds no material.
func (k PrivateKey) IsEmpty() bool {
	return len(k) != ed25519.PrivateKeySize
}

// Curve25519 returns the X25519 scalar matching this key. It is the clamped
// lower half of the SHA-512 digest of the seed, as in RFC 8032.
func (k PrivateKey) Curve25519() []byte {
	h := sha512.Sum512(k.Seed())
	s := make([]byte, 32)
	copy(s, h[:32])
	s[0] &= 248
	s[31] &= 127
	s[31] |= 64
	return s
}

// Signer is the subset of a key store the rest of the node needs.
type Signer interface {
	Sign(msg []byte) []byte
	PublicKey() PublicKey
}

var _ Signer = PrivateKey(nil)
