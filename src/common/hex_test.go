package common

import (
	"bytes"
	"testing"
)

func TestHexRoundTrip(t *testing.T) {
	b := []byte{0x00, 0x01, 0xab, 0xff}

	s := EncodeToString(b)
	if s != "0X0001ABFF" {
		t.Fatalf("unexpected encoding %s", s)
	}

	for _, in := range []string{s, "0x0001abff", "0001ABFF", " 0X0001ABFF\n"} {
		out, err := DecodeFromString(in)
		if err != nil {
			t.Fatalf("decoding %q: %v", in, err)
		}
		if !bytes.Equal(out, b) {
			t.Fatalf("decoding %q: got %x", in, out)
		}
	}
}

func TestStoreErr(t *testing.T) {
	err := NewStoreErr("Object", KeyNotFound, "oh1.abc")

	if !IsStore(err, KeyNotFound) {
		t.Fatal("expected KeyNotFound")
	}
	if IsStore(err, KeyAlreadyExists) {
		t.Fatal("did not expect KeyAlreadyExists")
	}
	if err.Error() != "Object, oh1.abc, Not Found" {
		t.Fatalf("unexpected message %s", err.Error())
	}
}
