// Package peers describes how to reach other peers.
//
// A peer is identified by its public key. Its ConnectionInfo lists the
// addresses it accepts connections on and, for peers that cannot accept
// inbound connections, the relays that can forward objects to it. A
// ConnectionInfo may itself be exchanged as an object of type
// "peer.connection-info".
//
// The AddressBook keeps the ConnectionInfo of known peers. It can be
// persisted to a peers.json file in the data directory, which is also how a
// node learns about its first peers.
package peers
