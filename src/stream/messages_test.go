package stream

import (
	"reflect"
	"testing"
	"time"

	"github.com/mosaicnetworks/nimona/src/object"
)

func TestMessages(t *testing.T) {
	key := generateKey(t)
	g, objs := buildForked(t)

	roundTrip := func(o *object.Object) *object.Object {
		b, err := object.Marshal(object.JSONCodec, o)
		if err != nil {
			t.Fatal(err)
		}
		n, err := object.Unmarshal(object.JSONCodec, b)
		if err != nil {
			t.Fatal(err)
		}
		return n
	}

	t.Run("StreamRequest", func(t *testing.T) {
		req := &StreamRequest{Nonce: NewNonce(), RootCID: g.RootCID(), Leaves: g.Leaves()}
		o, err := req.ToObject(key)
		if err != nil {
			t.Fatal(err)
		}
		got, err := StreamRequestFromObject(roundTrip(o))
		if err != nil {
			t.Fatal(err)
		}
		if got.Nonce != req.Nonce || got.RootCID != req.RootCID || !reflect.DeepEqual(req.Leaves, got.Leaves) {
			t.Fatalf("expected %+v, got %+v", req, got)
		}
		if !got.Sender.Equals(key.PublicKey()) {
			t.Fatalf("sender should be the signer")
		}
	})

	t.Run("StreamResponse", func(t *testing.T) {
		res := &StreamResponse{Nonce: NewNonce(), RootCID: g.RootCID(), Children: cids(objs)}
		o, err := res.ToObject(key)
		if err != nil {
			t.Fatal(err)
		}
		got, err := StreamResponseFromObject(roundTrip(o))
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(res.Children, got.Children) {
			t.Fatalf("expected %v, got %v", res.Children, got.Children)
		}
	})

	t.Run("empty StreamResponse", func(t *testing.T) {
		res := &StreamResponse{Nonce: NewNonce(), RootCID: g.RootCID()}
		o, _ := res.ToObject(key)
		got, err := StreamResponseFromObject(roundTrip(o))
		if err != nil {
			t.Fatal(err)
		}
		if len(got.Children) != 0 {
			t.Fatalf("expected no children, got %v", got.Children)
		}
	})

	t.Run("Announcement", func(t *testing.T) {
		a := &Announcement{Nonce: NewNonce(), RootCID: g.RootCID(), Leaves: g.Leaves()}
		o, _ := a.ToObject(key)
		got, err := AnnouncementFromObject(roundTrip(o))
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(a.Leaves, got.Leaves) {
			t.Fatalf("expected %v, got %v", a.Leaves, got.Leaves)
		}
	})

	t.Run("Subscription", func(t *testing.T) {
		expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
		s := &Subscription{RootCIDs: []object.CID{g.RootCID()}, Expiry: expiry}
		o, _ := s.ToObject(key)
		got, err := SubscriptionFromObject(roundTrip(o))
		if err != nil {
			t.Fatal(err)
		}
		if !got.Expiry.Equal(expiry) || !reflect.DeepEqual(s.RootCIDs, got.RootCIDs) {
			t.Fatalf("expected %+v, got %+v", s, got)
		}
	})

	t.Run("ObjectRequest and ObjectResponse", func(t *testing.T) {
		req := &ObjectRequest{Nonce: NewNonce(), ObjectCID: objs[0].CID()}
		o, _ := req.ToObject(key)
		gotReq, err := ObjectRequestFromObject(roundTrip(o))
		if err != nil {
			t.Fatal(err)
		}
		if gotReq.ObjectCID != objs[0].CID() {
			t.Fatalf("expected %s, got %s", objs[0].CID(), gotReq.ObjectCID)
		}

		res := &ObjectResponse{Nonce: req.Nonce, Object: objs[0]}
		o, _ = res.ToObject(key)
		gotRes, err := ObjectResponseFromObject(roundTrip(o))
		if err != nil {
			t.Fatal(err)
		}
		if gotRes.Object.CID() != objs[0].CID() {
			t.Fatalf("embedded object should keep its CID")
		}
		if ok, err := object.Verify(gotRes.Object); err != nil || !ok {
			t.Fatalf("embedded object should keep its signature")
		}

		empty := &ObjectResponse{Nonce: req.Nonce}
		o, _ = empty.ToObject(key)
		gotRes, err = ObjectResponseFromObject(o)
		if err != nil {
			t.Fatal(err)
		}
		if gotRes.Object != nil {
			t.Fatalf("expected no object")
		}
	})

	t.Run("rejects", func(t *testing.T) {
		req := &StreamRequest{Nonce: NewNonce(), RootCID: g.RootCID()}
		o, _ := req.ToObject(key)

		if _, err := StreamResponseFromObject(o); err == nil {
			t.Fatalf("wrong type should be rejected")
		}

		o.Data.Set("nonce", object.String("changed"))
		if _, err := StreamRequestFromObject(o); !IsSignatureError(err) {
			t.Fatalf("expected SignatureError, got %v", err)
		}
	})
}
