// Package node implements the reactive component of a nimona node.
//
// A Node consumes the objects its transport receives and dispatches them by
// type. Stream requests are answered with the CIDs the requester is missing
// and may read, object requests with the object itself. Announcements
// trigger a sync with the announcer, subscriptions are recorded so that new
// leaves get announced, and connection infos feed the address book.
//
// Sync
//
// Syncing a stream with a peer is a pull: the node sends a StreamRequest
// carrying its leaves, the peer answers with the CIDs of the objects that are
// not ancestors of those leaves, in linearized order, and the node fetches
// each one with an ObjectRequest before inserting it. Objects whose parents
// are still missing wait in the pending set of the stream until the parents
// arrive or the pending timeout expires.
//
// Relays
//
// Peers that cannot be reached directly list relays in their connection
// info. When every address of a peer fails, the node wraps the object in an
// encrypted envelope and asks each relay in turn to forward it. Replies to
// relayed requests travel back the same way and are matched by nonce. A node
// started with Relay enabled forwards envelopes for other peers, subject to a
// per-sender rate limit.
//
// Maintenance
//
// A control timer periodically expires pending objects, prunes expired
// subscriptions, and re-syncs the streams the node subscribed to with one of
// their known providers.
package node
