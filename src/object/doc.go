// Package object implements the self-describing objects exchanged between
// nimona peers.
//
// An object is an ordered map whose keys carry a type hint, "name:hint". The
// hint tells any reader how to interpret the value without a schema:
//
//	s  string        i  integer       f  float
//	b  boolean       d  bytes         m  map
//	r  CID reference a<hint> homogeneous array, ie. as, am, ar, aas
//
// Every object has a content identifier (CID) computed from its canonical
// form. The canonical form drops empty arrays and maps, sorts keys bytewise,
// writes integers as base-10 strings and floats as their IEEE-754 bit
// pattern, and serializes the result as compact JSON. Two objects with the
// same logical content always have the same CID, no matter which wire codec
// carried them or in which order their fields were set.
//
// Objects carry their type under "@type:s" and their metadata (owner, stream,
// parents, policies, signature) under "@metadata:m". Signatures cover the
// canonical form of the object without the signature itself.
package object
