package relay

import (
	"errors"
	"fmt"

	"github.com/mosaicnetworks/nimona/src/crypto/keys"
)

var (
	// ErrTimeout is returned when no response arrived in time. Relays drop
	// invalid requests silently, so this also covers them.
	ErrTimeout = errors.New("relay: timed out waiting for response")
	// ErrDecrypt is returned when an envelope cannot be opened.
	ErrDecrypt = errors.New("relay: cannot decrypt envelope")
	// ErrDeliveryFailed is matched by every DeliveryError.
	ErrDeliveryFailed = errors.New("relay: delivery failed")
	// ErrEmptyPath is returned when forwarding without relays.
	ErrEmptyPath = errors.New("relay: no relays given")
)

// ReasonUnreachable is the error reported when the recipient of a forward
// request cannot be reached.
const ReasonUnreachable = "unreachable"

// ReasonRateLimited is the error reported when a sender exceeds its quota.
const ReasonRateLimited = "rate limited"

// DeliveryError is returned when a relay reports that it could not deliver.
type DeliveryError struct {
	RequestID string
	Relay     keys.PublicKey
	Reason    string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("relay %s could not deliver %s: %s", e.Relay, e.RequestID, e.Reason)
}

// Is makes errors.Is(err, ErrDeliveryFailed) hold.
func (e *DeliveryError) Is(target error) bool {
	return target == ErrDeliveryFailed
}
