package net

import (
	"github.com/mosaicnetworks/nimona/src/object"
)

// Transport provides an interface for network transports
// to allow a node to communicate with other nodes.
type Transport interface {

	// Starts the transport listening
	Listen()

	// Consumer returns a channel that can be used to
	// consume and respond to RPC requests.
	Consumer() <-chan RPC

	// LocalAddr is used to return our local address
	LocalAddr() string

	// AdvertiseAddr is used to return our advertise address where other peers
	// can reach us
	AdvertiseAddr() string

	// Send delivers an object to the target and returns the reply of the
	// remote node, which may be nil.
	Send(target string, o *object.Object) (*object.Object, error)

	// Close permanently closes a transport, stopping
	// any associated goroutines and freeing other resources.
	Close() error
}
