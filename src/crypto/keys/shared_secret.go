package keys

import (
	"golang.org/x/crypto/curve25519"
)

// SharedSecret computes the X25519 shared secret between a private key and
// another peer's public key. Both sides of a pair arrive at the same secret.
func SharedSecret(priv PrivateKey, pub PublicKey) ([]byte, error) {
	montgomery, err := pub.Curve25519()
	if err != nil {
		return nil, err
	}
	return curve25519.X25519(priv.Curve25519(), montgomery)
}
