package stream

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mosaicnetworks/nimona/src/object"
)

var (
	// ErrStreamMismatch is returned when an object does not belong to the
	// stream it is inserted into.
	ErrStreamMismatch = errors.New("object belongs to another stream")
	// ErrNoParents is returned for non-root objects without parents.
	ErrNoParents = errors.New("object has no parents")
	// ErrSelfReference is returned when an object lists itself as a parent.
	ErrSelfReference = errors.New("object references itself")
	// ErrInvalidRoot is returned when a root declares a stream or parents.
	ErrInvalidRoot = errors.New("invalid stream root")
	// ErrUnknownStream is returned when a stream is not known locally.
	ErrUnknownStream = errors.New("unknown stream")
	// ErrForeignPolicies is returned when an object that is not signed by
	// the owner of the stream carries policies.
	ErrForeignPolicies = errors.New("only the stream owner may attach policies")
)

// UnresolvedParentError is returned when an object references parents that
// are not known yet. The object is held pending until they arrive or the
// pending timeout elapses.
type UnresolvedParentError struct {
	CID     object.CID
	Missing []object.CID
}

func (e *UnresolvedParentError) Error() string {
	missing := make([]string, len(e.Missing))
	for i, m := range e.Missing {
		missing[i] = m.String()
	}
	return fmt.Sprintf("object %s is waiting for parents %s", e.CID, strings.Join(missing, ", "))
}

// SignatureError is returned when an object's signature is required but
// missing, or does not verify.
type SignatureError struct {
	CID    object.CID
	Reason string
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("object %s: %s", e.CID, e.Reason)
}

// IsUnresolvedParent reports whether err is an UnresolvedParentError.
func IsUnresolvedParent(err error) bool {
	var target *UnresolvedParentError
	return errors.As(err, &target)
}

// IsSignatureError reports whether err is a SignatureError.
func IsSignatureError(err error) bool {
	var target *SignatureError
	return errors.As(err, &target)
}
