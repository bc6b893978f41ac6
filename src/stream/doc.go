// Package stream implements streams: directed acyclic graphs of objects that
// share a root.
//
// A Graph holds the local replica of one stream. Objects are kept in a table
// keyed by CID, with parent and child edges expressed as CID lookups. Objects
// whose parents are not known yet are held pending, and promoted as soon as
// every parent has been applied. Linearize returns a deterministic total
// order: a topological sort where, among the objects that are ready at the
// same time, the smallest CID comes first.
//
// Access to a stream is governed by the policies carried in the metadata of
// its objects. A stream without policies can be read by anyone and appended
// to only by the owner of its root.
//
// The Manager keeps the graphs of all known streams on top of a store, and
// messages.go defines the objects exchanged to synchronize replicas.
package stream
