package object

import (
	"testing"

	"github.com/mosaicnetworks/nimona/src/crypto/keys"
)

func TestSignVerify(t *testing.T) {
	key, _ := keys.GenerateKey()

	data := NewMap()
	data.Set("body", String("hello"))
	o := New("test/message", data, Metadata{Owner: key.PublicKey()})

	signed, err := Sign(o, key)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if IsSigned(o) {
		t.Fatalf("Sign should not modify its argument")
	}

	if !signed.Signer().Equals(key.PublicKey()) {
		t.Fatalf("signer should be the signing key")
	}

	ok, err := Verify(signed)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !ok {
		t.Fatalf("signature should verify")
	}

	if signed.CID() == o.CID() {
		t.Fatalf("the signature is part of the CID")
	}

	for _, c := range testCodecs {
		b, err := Marshal(c, signed)
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		n, err := Unmarshal(c, b)
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		if ok, err := Verify(n); err != nil || !ok {
			t.Fatalf("signature should survive %s: %v %v", c, ok, err)
		}
	}
}

func TestVerifyTampered(t *testing.T) {
	key, _ := keys.GenerateKey()

	data := NewMap()
	data.Set("body", String("hello"))
	signed, err := Sign(New("test/message", data, Metadata{}), key)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	t.Run("data", func(t *testing.T) {
		tampered := signed.Copy()
		tampered.Data.Set("body", String("hellp"))
		ok, err := Verify(tampered)
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		if ok {
			t.Fatalf("tampered data should not verify")
		}
	})

	t.Run("signature", func(t *testing.T) {
		tampered := signed.Copy()
		tampered.Metadata.Signature.X[10] ^= 0x01
		ok, err := Verify(tampered)
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		if ok {
			t.Fatalf("tampered signature should not verify")
		}
	})

	t.Run("signer", func(t *testing.T) {
		other, _ := keys.GenerateKey()
		tampered := signed.Copy()
		tampered.Metadata.Signature.Signer = other.PublicKey()
		ok, err := Verify(tampered)
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		if ok {
			t.Fatalf("wrong signer should not verify")
		}
	})
}

func TestVerifyMalformed(t *testing.T) {
	key, _ := keys.GenerateKey()
	signed, _ := Sign(New("test/message", NewMap(), Metadata{}), key)

	testCases := []struct {
		name   string
		mutate func(o *Object)
	}{
		{"missing", func(o *Object) { o.Metadata.Signature = nil }},
		{"algorithm", func(o *Object) { o.Metadata.Signature.Alg = "rsa" }},
		{"signer", func(o *Object) { o.Metadata.Signature.Signer = nil }},
		{"length", func(o *Object) { o.Metadata.Signature.X = o.Metadata.Signature.X[:10] }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			o := signed.Copy()
			tc.mutate(o)
			ok, err := Verify(o)
			if ok {
				t.Fatalf("malformed signature should not verify")
			}
			if !IsMalformed(err) {
				t.Fatalf("expected MalformedObjectError, got %v", err)
			}
		})
	}
}
