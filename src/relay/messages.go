package relay

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/mosaicnetworks/nimona/src/crypto/keys"
	"github.com/mosaicnetworks/nimona/src/object"
)

// Types of the relay objects.
const (
	RequestType  = "relay.forward.request"
	EnvelopeType = "relay.forward.envelope"
	ResponseType = "relay.forward.response"
)

// NewRequestID returns a random request ID.
func NewRequestID() string {
	return uuid.New().String()
}

// Envelope is the part of a forward request the relay passes on. Data is
// the payload, encrypted for the recipient.
type Envelope struct {
	RequestID string
	Sender    keys.PublicKey
	Codec     object.Codec
	Data      []byte
}

// Request asks a relay to forward Envelope to Recipient.
type Request struct {
	RequestID string
	Recipient keys.PublicKey
	Envelope  *object.Object
	Sender    keys.PublicKey
}

// Response tells the sender of a request whether the relay delivered it.
type Response struct {
	RequestID string
	Success   bool
	Error     string
	Sender    keys.PublicKey
}

// NewEnvelope encrypts payload for recipient and wraps it in an envelope
// signed by sender.
func NewEnvelope(requestID string, sender keys.PrivateKey, recipient keys.PublicKey, payload *object.Object, codec object.Codec) (*object.Object, error) {
	plain, err := object.Marshal(codec, payload)
	if err != nil {
		return nil, err
	}

	key, err := DeriveSharedKey(sender, recipient)
	if err != nil {
		return nil, err
	}

	data, err := Encrypt(key, plain)
	if err != nil {
		return nil, err
	}

	d := object.NewMap()
	d.Set("requestID", object.String(requestID))
	d.Set("sender", object.String(sender.PublicKey().String()))
	d.Set("codec", object.String(codec))
	d.Set("data", object.Bytes(data))

	return object.Sign(object.New(EnvelopeType, d, object.Metadata{}), sender)
}

// EnvelopeFromObject parses an envelope and checks that it was signed by its
// sender.
func EnvelopeFromObject(o *object.Object) (*Envelope, error) {
	signer, err := check(o, EnvelopeType)
	if err != nil {
		return nil, err
	}

	sender, err := keys.ParsePublicKey(o.Data.GetString("sender"))
	if err != nil {
		return nil, &object.DecodeError{Key: "sender", Reason: err.Error()}
	}
	if !sender.Equals(signer) {
		return nil, &object.MalformedObjectError{Reason: "envelope not signed by its sender"}
	}

	codec, err := object.ParseCodec(o.Data.GetString("codec"))
	if err != nil {
		return nil, err
	}

	return &Envelope{
		RequestID: o.Data.GetString("requestID"),
		Sender:    sender,
		Codec:     codec,
		Data:      o.Data.GetBytes("data"),
	}, nil
}

// OpenEnvelope authenticates an envelope and decrypts its payload with the
// recipient's key.
func OpenEnvelope(o *object.Object, recipient keys.PrivateKey) (*Envelope, *object.Object, error) {
	env, err := EnvelopeFromObject(o)
	if err != nil {
		return nil, nil, err
	}

	key, err := DeriveSharedKey(recipient, env.Sender)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}

	plain, err := Decrypt(key, env.Data)
	if err != nil {
		return nil, nil, err
	}

	payload, err := object.Unmarshal(env.Codec, plain)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}

	return env, payload, nil
}

// NewRequest returns a forward request signed by key.
func NewRequest(requestID string, recipient keys.PublicKey, envelope *object.Object, key keys.PrivateKey) (*object.Object, error) {
	d := object.NewMap()
	d.Set("requestID", object.String(requestID))
	d.Set("recipient", object.String(recipient.String()))
	d.Set("envelope", envelope.ToMap())

	return object.Sign(object.New(RequestType, d, object.Metadata{}), key)
}

// RequestFromObject parses and authenticates a forward request.
func RequestFromObject(o *object.Object) (*Request, error) {
	signer, err := check(o, RequestType)
	if err != nil {
		return nil, err
	}

	recipient, err := keys.ParsePublicKey(o.Data.GetString("recipient"))
	if err != nil {
		return nil, &object.DecodeError{Key: "recipient", Reason: err.Error()}
	}

	v, ok := o.Data.Get("envelope")
	if !ok {
		return nil, &object.MalformedObjectError{Reason: "request without envelope"}
	}
	m, ok := v.(object.Map)
	if !ok {
		return nil, &object.TypeMismatchError{Key: "envelope", Expected: object.MapHint, Got: v.Hint()}
	}
	env, err := object.FromMap(m)
	if err != nil {
		return nil, err
	}

	return &Request{
		RequestID: o.Data.GetString("requestID"),
		Recipient: recipient,
		Envelope:  env,
		Sender:    signer,
	}, nil
}

// NewResponse returns a forward response signed by key.
func NewResponse(requestID string, success bool, errMsg string, key keys.PrivateKey) (*object.Object, error) {
	d := object.NewMap()
	d.Set("requestID", object.String(requestID))
	d.Set("success", object.Bool(success))
	if errMsg != "" {
		d.Set("error", object.String(errMsg))
	}

	return object.Sign(object.New(ResponseType, d, object.Metadata{}), key)
}

// ResponseFromObject parses and authenticates a forward response.
func ResponseFromObject(o *object.Object) (*Response, error) {
	signer, err := check(o, ResponseType)
	if err != nil {
		return nil, err
	}

	return &Response{
		RequestID: o.Data.GetString("requestID"),
		Success:   o.Data.GetBool("success"),
		Error:     o.Data.GetString("error"),
		Sender:    signer,
	}, nil
}

func check(o *object.Object, typ string) (keys.PublicKey, error) {
	if o.Type != typ {
		return nil, fmt.Errorf("expected %s, got %s", typ, o.Type)
	}
	ok, err := object.Verify(o)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &object.MalformedObjectError{Reason: "signature does not verify"}
	}
	return o.Signer(), nil
}
