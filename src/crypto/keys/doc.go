// Package keys implements the public key cryptography used throughout nimona.
//
// A peer owns an Ed25519 key-pair. The private key signs objects; the public
// key identifies the peer, owns streams, and appears as the subject of access
// policies. Public keys are written as "ed25519." followed by the base58
// encoding of the 32 key bytes.
//
// The same key-pair is used for encryption between peers: both halves can be
// converted to their Curve25519 form and combined with X25519 into a shared
// secret.
package keys
