// Package relay lets peers that cannot reach each other exchange objects
// through a third peer.
//
// The sender encrypts the payload for the recipient with a key derived from
// their two key pairs, wraps it in a signed envelope, and asks a relay to
// forward the envelope with a signed request. The relay only reads the
// recipient of the request; it forwards the envelope untouched and answers
// with a signed response telling whether delivery succeeded. Requests whose
// signature does not verify are dropped without an answer, so the sender
// sees a timeout.
//
// An envelope may carry another forward request, in which case the peer
// that opens it acts as the next relay of a chain.
package relay
