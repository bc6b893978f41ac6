package node

import (
	"testing"

	"github.com/mosaicnetworks/nimona/src/crypto/keys"
	"github.com/mosaicnetworks/nimona/src/stream"
)

func TestPromisesResolve(t *testing.T) {
	peer, err := keys.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	other, err := keys.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}

	ps := newPromises()
	p := NewResponsePromise("n1", peer.PublicKey())
	ps.add(p)

	forged, err := (&stream.ObjectResponse{Nonce: "n1"}).ToObject(other)
	if err != nil {
		t.Fatal(err)
	}
	if ps.resolve(forged) {
		t.Fatal("response signed by another peer resolved the promise")
	}

	spoofed, err := (&stream.ObjectResponse{Nonce: "n1"}).ToObject(other)
	if err != nil {
		t.Fatal(err)
	}
	spoofed.Metadata.Signature.Signer = peer.PublicKey()
	if ps.resolve(spoofed) {
		t.Fatal("response with a signature that does not verify resolved the promise")
	}
	if ps.len() != 1 {
		t.Fatal("promise should still be registered")
	}

	unknown, err := (&stream.ObjectResponse{Nonce: "n2"}).ToObject(peer)
	if err != nil {
		t.Fatal(err)
	}
	if ps.resolve(unknown) {
		t.Fatal("response with unknown nonce resolved a promise")
	}

	resp, err := (&stream.ObjectResponse{Nonce: "n1"}).ToObject(peer)
	if err != nil {
		t.Fatal(err)
	}
	if !ps.resolve(resp) {
		t.Fatal("response did not resolve the promise")
	}
	if ps.len() != 0 {
		t.Fatal("resolved promise still registered")
	}

	select {
	case got := <-p.RespCh:
		if got.CID() != resp.CID() {
			t.Fatal("promise received another response")
		}
	default:
		t.Fatal("promise has no response")
	}

	if ps.resolve(resp) {
		t.Fatal("duplicate response resolved a promise")
	}
}
