package object

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCID is returned when a string is not a valid CID.
	ErrInvalidCID = errors.New("invalid cid")
	// ErrUnknownCodec is returned for codecs other than json, cbor and msgpack.
	ErrUnknownCodec = errors.New("unknown codec")
)

// DecodeError is returned when a hinted key is malformed, carries an unknown
// hint, or when a value cannot be decoded for its hint.
type DecodeError struct {
	Key    string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode %q: %s", e.Key, e.Reason)
}

// TypeMismatchError is returned when the hint of a key disagrees with the
// shape of its value.
type TypeMismatchError struct {
	Key      string
	Expected Hint
	Got      Hint
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("type mismatch for %q: expected %q, got %q", e.Key, e.Expected, e.Got)
}

// MalformedObjectError is returned when an object is structurally invalid,
// for example when it has no type or when its signature is incomplete.
type MalformedObjectError struct {
	Reason string
}

func (e *MalformedObjectError) Error() string {
	return "malformed object: " + e.Reason
}

// IsDecodeError reports whether err is, or wraps, a DecodeError.
func IsDecodeError(err error) bool {
	var e *DecodeError
	return errors.As(err, &e)
}

// IsTypeMismatch reports whether err is, or wraps, a TypeMismatchError.
func IsTypeMismatch(err error) bool {
	var e *TypeMismatchError
	return errors.As(err, &e)
}

// IsMalformed reports whether err is, or wraps, a MalformedObjectError.
func IsMalformed(err error) bool {
	var e *MalformedObjectError
	return errors.As(err, &e)
}
