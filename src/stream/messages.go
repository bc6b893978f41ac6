package stream

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mosaicnetworks/nimona/src/crypto/keys"
	"github.com/mosaicnetworks/nimona/src/object"
)

// Types of the objects exchanged to synchronize streams.
const (
	StreamRequestType  = "stream.request"
	StreamResponseType = "stream.response"
	AnnouncementType   = "stream.announcement"
	SubscriptionType   = "stream.subscription"
	ObjectRequestType  = "object.request"
	ObjectResponseType = "object.response"
)

// NewNonce returns a random nonce for request/response matching.
func NewNonce() string {
	return uuid.New().String()
}

// StreamRequest asks a peer for the objects of a stream that are not
// ancestors of Leaves.
type StreamRequest struct {
	Nonce   string
	RootCID object.CID
	Leaves  []object.CID
	Sender  keys.PublicKey
}

// StreamResponse lists the CIDs the requester is missing and may read.
type StreamResponse struct {
	Nonce    string
	RootCID  object.CID
	Children []object.CID
	Sender   keys.PublicKey
}

// Announcement tells subscribers about new leaves.
type Announcement struct {
	Nonce   string
	RootCID object.CID
	Leaves  []object.CID
	Sender  keys.PublicKey
}

// Subscription asks a peer to announce changes of some streams until Expiry.
type Subscription struct {
	RootCIDs []object.CID
	Expiry   time.Time
	Sender   keys.PublicKey
}

// ObjectRequest asks a peer for a single object.
type ObjectRequest struct {
	Nonce     string
	ObjectCID object.CID
	Sender    keys.PublicKey
}

// ObjectResponse carries the requested object, or nothing when the object is
// unknown or may not be read by the requester.
type ObjectResponse struct {
	Nonce  string
	Object *object.Object
	Sender keys.PublicKey
}

// ToObject returns the signed object form of the request.
func (r *StreamRequest) ToObject(key keys.PrivateKey) (*object.Object, error) {
	d := object.NewMap()
	d.Set("nonce", object.String(r.Nonce))
	d.Set("rootCID", r.RootCID)
	d.Set("leaves", object.CIDArray(r.Leaves...))
	return sign(StreamRequestType, d, key)
}

// ToObject returns the signed object form of the response.
func (r *StreamResponse) ToObject(key keys.PrivateKey) (*object.Object, error) {
	d := object.NewMap()
	d.Set("nonce", object.String(r.Nonce))
	d.Set("rootCID", r.RootCID)
	d.Set("children", object.CIDArray(r.Children...))
	return sign(StreamResponseType, d, key)
}

// ToObject returns the signed object form of the announcement.
func (a *Announcement) ToObject(key keys.PrivateKey) (*object.Object, error) {
	d := object.NewMap()
	d.Set("nonce", object.String(a.Nonce))
	d.Set("rootCID", a.RootCID)
	d.Set("leaves", object.CIDArray(a.Leaves...))
	return sign(AnnouncementType, d, key)
}

// ToObject returns the signed object form of the subscription.
func (s *Subscription) ToObject(key keys.PrivateKey) (*object.Object, error) {
	d := object.NewMap()
	d.Set("rootCIDs", object.CIDArray(s.RootCIDs...))
	d.Set("expiry", object.String(s.Expiry.UTC().Format(time.RFC3339)))
	return sign(SubscriptionType, d, key)
}

// ToObject returns the signed object form of the request.
func (r *ObjectRequest) ToObject(key keys.PrivateKey) (*object.Object, error) {
	d := object.NewMap()
	d.Set("nonce", object.String(r.Nonce))
	d.Set("objectCID", r.ObjectCID)
	return sign(ObjectRequestType, d, key)
}

// ToObject returns the signed object form of the response.
func (r *ObjectResponse) ToObject(key keys.PrivateKey) (*object.Object, error) {
	d := object.NewMap()
	d.Set("nonce", object.String(r.Nonce))
	if r.Object != nil {
		d.Set("object", r.Object.ToMap())
	}
	return sign(ObjectResponseType, d, key)
}

// StreamRequestFromObject parses and authenticates a StreamRequest.
func StreamRequestFromObject(o *object.Object) (*StreamRequest, error) {
	sender, err := check(o, StreamRequestType)
	if err != nil {
		return nil, err
	}
	return &StreamRequest{
		Nonce:   o.Data.GetString("nonce"),
		RootCID: o.Data.GetCID("rootCID"),
		Leaves:  o.Data.GetArray("leaves").CIDs(),
		Sender:  sender,
	}, nil
}

// StreamResponseFromObject parses and authenticates a StreamResponse.
func StreamResponseFromObject(o *object.Object) (*StreamResponse, error) {
	sender, err := check(o, StreamResponseType)
	if err != nil {
		return nil, err
	}
	return &StreamResponse{
		Nonce:    o.Data.GetString("nonce"),
		RootCID:  o.Data.GetCID("rootCID"),
		Children: o.Data.GetArray("children").CIDs(),
		Sender:   sender,
	}, nil
}

// AnnouncementFromObject parses and authenticates an Announcement.
func AnnouncementFromObject(o *object.Object) (*Announcement, error) {
	sender, err := check(o, AnnouncementType)
	if err != nil {
		return nil, err
	}
	return &Announcement{
		Nonce:   o.Data.GetString("nonce"),
		RootCID: o.Data.GetCID("rootCID"),
		Leaves:  o.Data.GetArray("leaves").CIDs(),
		Sender:  sender,
	}, nil
}

// SubscriptionFromObject parses and authenticates a Subscription.
func SubscriptionFromObject(o *object.Object) (*Subscription, error) {
	sender, err := check(o, SubscriptionType)
	if err != nil {
		return nil, err
	}
	expiry, err := time.Parse(time.RFC3339, o.Data.GetString("expiry"))
	if err != nil {
		return nil, &object.DecodeError{Key: "expiry", Reason: err.Error()}
	}
	return &Subscription{
		RootCIDs: o.Data.GetArray("rootCIDs").CIDs(),
		Expiry:   expiry,
		Sender:   sender,
	}, nil
}

// ObjectRequestFromObject parses and authenticates an ObjectRequest.
func ObjectRequestFromObject(o *object.Object) (*ObjectRequest, error) {
	sender, err := check(o, ObjectRequestType)
	if err != nil {
		return nil, err
	}
	return &ObjectRequest{
		Nonce:     o.Data.GetString("nonce"),
		ObjectCID: o.Data.GetCID("objectCID"),
		Sender:    sender,
	}, nil
}

// ObjectResponseFromObject parses and authenticates an ObjectResponse.
func ObjectResponseFromObject(o *object.Object) (*ObjectResponse, error) {
	sender, err := check(o, ObjectResponseType)
	if err != nil {
		return nil, err
	}
	r := &ObjectResponse{
		Nonce:  o.Data.GetString("nonce"),
		Sender: sender,
	}
	if v, ok := o.Data.Get("object"); ok {
		m, ok := v.(object.Map)
		if !ok {
			return nil, &object.TypeMismatchError{Key: "object", Expected: object.MapHint, Got: v.Hint()}
		}
		r.Object, err = object.FromMap(m)
		if err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Nonce returns the nonce of any request or response object.
func Nonce(o *object.Object) string {
	return o.Data.GetString("nonce")
}

func sign(typ string, data object.Map, key keys.PrivateKey) (*object.Object, error) {
	return object.Sign(object.New(typ, data, object.Metadata{}), key)
}

func check(o *object.Object, typ string) (keys.PublicKey, error) {
	if o.Type != typ {
		return nil, fmt.Errorf("expected %s, got %s", typ, o.Type)
	}
	if err := verify(o, o.CID()); err != nil {
		return nil, err
	}
	return o.Signer(), nil
}
