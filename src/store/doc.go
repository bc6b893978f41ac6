// Package store persists the objects of nimona streams.
//
// Objects are addressed by CID and indexed by the root of the stream they
// belong to. A stream root is an object without metadata.stream; it indexes
// under its own CID. InmemStore keeps everything in memory; BadgerStore
// writes to a Badger database fronted by an LRU read cache.
package store
