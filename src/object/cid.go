package object

import (
	"fmt"
	"strings"

	gocid "github.com/ipfs/go-cid"
	"github.com/mr-tron/base58"
	"github.com/multiformats/go-multihash"
)

// CIDPrefix is prepended to the base58 digest of every CID.
const CIDPrefix = "oh1."

const digestLength = 32

// CID is the content identifier of an object: "oh1." followed by the base58
// encoding of the SHA2-256 digest of the object's canonical form.
type CID string

// Hint implements Value.
func (CID) Hint() Hint { return CIDHint }

// String implements fmt.Stringer.
func (c CID) String() string { return string(c) }

// IsEmpty reports whether the CID is unset.
func (c CID) IsEmpty() bool { return c == "" }

// ParseCID validates the textual form of a CID.
func ParseCID(s string) (CID, error) {
	c := CID(s)
	if _, err := c.Digest(); err != nil {
		return "", err
	}
	return c, nil
}

// Digest returns the raw SHA2-256 digest.
func (c CID) Digest() ([]byte, error) {
	s := string(c)
	if !strings.HasPrefix(s, CIDPrefix) {
		return nil, fmt.Errorf("%w: missing %q prefix", ErrInvalidCID, CIDPrefix)
	}
	digest, err := base58.Decode(strings.TrimPrefix(s, CIDPrefix))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCID, err)
	}
	if len(digest) != digestLength {
		return nil, fmt.Errorf("%w: digest is %d bytes", ErrInvalidCID, len(digest))
	}
	return digest, nil
}

// Multihash returns the digest as a self-describing multihash.
func (c CID) Multihash() (multihash.Multihash, error) {
	digest, err := c.Digest()
	if err != nil {
		return nil, err
	}
	return multihash.Encode(digest, multihash.SHA2_256)
}

// IPFS returns the equivalent CIDv1 with the raw codec, so that canonical
// forms stored in IPFS resolve to the same digest.
func (c CID) IPFS() (gocid.Cid, error) {
	mh, err := c.Multihash()
	if err != nil {
		return gocid.Undef, err
	}
	return gocid.NewCidV1(gocid.Raw, mh), nil
}

// FromIPFS converts a CIDv0/v1 whose multihash is SHA2-256.
func FromIPFS(ic gocid.Cid) (CID, error) {
	dec, err := multihash.Decode(ic.Hash())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCID, err)
	}
	if dec.Code != multihash.SHA2_256 {
		return "", fmt.Errorf("%w: unsupported hash function %s", ErrInvalidCID, dec.Name)
	}
	return CID(CIDPrefix + base58.Encode(dec.Digest)), nil
}

// SumCID hashes raw bytes into a CID.
func SumCID(b []byte) (CID, error) {
	mh, err := multihash.Sum(b, multihash.SHA2_256, -1)
	if err != nil {
		return "", err
	}
	dec, err := multihash.Decode(mh)
	if err != nil {
		return "", err
	}
	return CID(CIDPrefix + base58.Encode(dec.Digest)), nil
}
