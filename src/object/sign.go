package object

import (
	"crypto/ed25519"

	"github.com/mosaicnetworks/nimona/src/crypto/keys"
)

// SignatureAlgorithm is the only supported value of metadata.signature.alg.
const SignatureAlgorithm = "ed25519"

// Sign returns a copy of the object whose metadata carries the signature of
// its canonical form. Any previous signature is replaced.
func Sign(o *Object, key keys.PrivateKey) (*Object, error) {
	if key.IsEmpty() {
		return nil, &MalformedObjectError{Reason: "empty signing key"}
	}

	c := o.Copy()
	c.Metadata.Signature = nil

	b, err := Canonical(c)
	if err != nil {
		return nil, err
	}

	c.Metadata.Signature = &Signature{
		Alg:    SignatureAlgorithm,
		Signer: key.PublicKey(),
		X:      key.Sign(b),
	}

	return c, nil
}

// Verify checks the signature of the object. It returns false when the
// signature does not match, and a MalformedObjectError when the signature is
// missing or structurally invalid.
func Verify(o *Object) (bool, error) {
	sig := o.Metadata.Signature
	switch {
	case sig == nil:
		return false, &MalformedObjectError{Reason: "missing signature"}
	case sig.Alg != SignatureAlgorithm:
		return false, &MalformedObjectError{Reason: "unsupported signature algorithm " + sig.Alg}
	case len(sig.Signer) != ed25519.PublicKeySize:
		return false, &MalformedObjectError{Reason: "missing signer"}
	case len(sig.X) != ed25519.SignatureSize:
		return false, &MalformedObjectError{Reason: "invalid signature length"}
	}

	c := o.Copy()
	c.Metadata.Signature = nil

	b, err := Canonical(c)
	if err != nil {
		return false, err
	}

	return sig.Signer.Verify(b, sig.X), nil
}

// IsSigned reports whether the object carries a signature.
func IsSigned(o *Object) bool {
	return o.Metadata.Signature != nil
}
