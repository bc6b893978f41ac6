package store

import (
	"github.com/mosaicnetworks/nimona/src/object"
)

// Store is an interface for backend stores.
type Store interface {
	// Put inserts an object. Putting an object twice is a no-op.
	Put(o *object.Object) error
	// Get returns an object by CID.
	Get(cid object.CID) (*object.Object, error)
	// Has reports whether an object is stored.
	Has(cid object.CID) (bool, error)
	// StreamObjects returns all the objects of a stream, root included, in no
	// particular order.
	StreamObjects(root object.CID) ([]*object.Object, error)
	// Streams returns the CIDs of all known stream roots.
	Streams() ([]object.CID, error)
	// Close closes the underlying database.
	Close() error
}

// StreamRoot returns the CID of the root of the stream an object belongs to.
func StreamRoot(o *object.Object, cid object.CID) object.CID {
	if o.Metadata.Stream.IsEmpty() {
		return cid
	}
	return o.Metadata.Stream
}
