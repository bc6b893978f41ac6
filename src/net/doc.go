// Package net implements the transports nimona nodes use to exchange
// objects.
//
// A Transport sends an object to a target address and returns the reply of
// the remote node, if it sent one. Incoming objects are consumed from the
// channel returned by Consumer, each wrapped in an RPC whose Respond method
// sends the reply back. There are three implementations:
//
// - Inmem: in-memory transport used only for testing
//
// - TCP: objects over plain TCP connections
//
// - WAMP: objects over RPC calls routed by a WAMP server (package wamp)
//
// TCP
//
// The TCP transport is suitable when peers can accept inbound connections.
// Set BindAddr to the IP:PORT the node binds to and, when that address is not
// reachable by other peers, AdvertiseAddr to the reachable one. Each request
// is a JSON frame naming the codec of the payload (json, cbor or msgpack)
// followed by the encoded object.
//
// WAMP
//
// Peers behind NATs can register with a WAMP router, usually run by a relay,
// under a procedure named after their public key. Other peers connected to
// the same router reach them by calling that procedure. Their addresses take
// the form "wamp:<public key>".
//
// Mux
//
// MuxTransport combines a default transport with transports selected by the
// scheme of the target address.
package net
