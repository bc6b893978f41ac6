package stream

import (
	"github.com/mosaicnetworks/nimona/src/crypto/keys"
	"github.com/mosaicnetworks/nimona/src/object"
)

// HypotheticalRoot returns the root of the stream of the given type authored
// by author. It only carries the type and the owner, so anyone knowing both
// can compute its CID without talking to the network.
func HypotheticalRoot(typ string, author keys.PublicKey) *object.Object {
	return object.New(typ, object.NewMap(), object.Metadata{
		Owner: author,
	})
}

// HypotheticalRootCID returns the CID of HypotheticalRoot(typ, author).
func HypotheticalRootCID(typ string, author keys.PublicKey) (object.CID, error) {
	return object.Hash(HypotheticalRoot(typ, author))
}
