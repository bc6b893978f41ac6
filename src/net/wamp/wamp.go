// Package wamp implements a transport using RPC over WebSockets, for peers
// that cannot accept inbound connections.
//
// This package contains a WAMP server that relays RPC requests between
// connected clients, usually run by relay nodes, and a Transport which
// implements the net.Transport interface on top of a WAMP client. Each
// Transport registers a procedure named after the public key of its node;
// other peers send it objects by calling that procedure. The matching
// address is "wamp:<public key>".
//
// If the transport is configured with a CA file it trusts that certificate,
// otherwise it relies on the platform trusted certificates. There is also an
// option to skip certificate verification, but this should only be used for
// testing.
package wamp

import "strings"

const (
	// ErrProcessingObject indicates that the client who received the object
	// ran into an error while processing it.
	ErrProcessingObject = "io.nimona.processing_object"

	// Scheme prefixes the addresses of WAMP transports.
	Scheme = "wamp"
)

// Address returns the address under which the peer identified by pubKey is
// reachable through a WAMP router.
func Address(pubKey string) string {
	return Scheme + ":" + pubKey
}

// Procedure extracts the procedure name from a WAMP address.
func Procedure(address string) string {
	return strings.TrimPrefix(address, Scheme+":")
}
