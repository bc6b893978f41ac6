package object

import (
	"encoding/json"
	"math"
	"reflect"
	"testing"

	"github.com/mosaicnetworks/nimona/src/crypto/keys"
)

var testCodecs = []Codec{JSONCodec, CBORCodec, MsgpackCodec}

func fullObject(t *testing.T) *Object {
	key, err := keys.GenerateKey()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	ref, _ := SumCID([]byte("ref"))

	nested := NewMap()
	nested.Set("inner", String("value"))
	nested.Set("count", Int(3))

	ints, _ := NewArray(IntHint, Int(1), Int(-2), Int(math.MaxInt64))
	floats, _ := NewArray(FloatHint, Float(1.5), Float(-0.25))
	bools, _ := NewArray(BoolHint, Bool(true), Bool(false))
	bytes, _ := NewArray(BytesHint, Bytes("a"), Bytes{0, 1, 2})
	matrix, _ := NewArray(ArrayHint+StringHint, StringArray("a", "b"), StringArray("c"))

	data := NewMap()
	data.Set("string", String("héllo <world>"))
	data.Set("int", Int(math.MinInt64))
	data.Set("float", Float(3.14159))
	data.Set("bool", Bool(true))
	data.Set("bytes", Bytes{0xde, 0xad, 0xbe, 0xef})
	data.Set("ref", ref)
	data.Set("map", nested)
	data.Set("strings", StringArray("x", "y"))
	data.Set("ints", ints)
	data.Set("floats", floats)
	data.Set("bools", bools)
	data.Set("blobs", bytes)
	data.Set("refs", CIDArray(ref))
	data.Set("maps", MapArray(nested))
	data.Set("matrix", matrix)

	return New("test/full", data, Metadata{
		Owner:    key.PublicKey(),
		Stream:   ref,
		Parents:  Parents{DefaultParents: {ref}},
		Datetime: "2020-01-01T00:00:00Z",
		Policies: []Policy{{
			Type:     SignaturePolicy,
			Subjects: []keys.PublicKey{key.PublicKey()},
			Actions:  []PolicyAction{ReadAction},
			Effect:   AllowEffect,
		}},
	})
}

func TestCodecRoundTrip(t *testing.T) {
	o := fullObject(t)
	cid := o.CID()

	for _, c := range testCodecs {
		t.Run(string(c), func(t *testing.T) {
			b, err := Marshal(c, o)
			if err != nil {
				t.Fatalf("err: %v", err)
			}

			n, err := Unmarshal(c, b)
			if err != nil {
				t.Fatalf("err: %v", err)
			}

			if n.CID() != cid {
				t.Fatalf("CID changed through %s: %s != %s", c, n.CID(), cid)
			}

			for _, name := range o.Data.Keys() {
				ov, _ := o.Data.Get(name)
				nv, ok := n.Data.Get(name)
				if !ok {
					t.Fatalf("missing field %s", name)
				}
				if ov.Hint() != nv.Hint() {
					t.Fatalf("field %s: hint %s became %s", name, ov.Hint(), nv.Hint())
				}
			}

			if !reflect.DeepEqual(o.Metadata.Policies, n.Metadata.Policies) {
				t.Fatalf("policies do not match: %#v %#v", o.Metadata.Policies, n.Metadata.Policies)
			}
		})
	}
}

func TestCodecNonFiniteFloats(t *testing.T) {
	data := NewMap()
	data.Set("nan", Float(math.NaN()))
	data.Set("inf", Float(math.Inf(-1)))
	o := New("test/floats", data, Metadata{})

	for _, c := range testCodecs {
		t.Run(string(c), func(t *testing.T) {
			b, err := Marshal(c, o)
			if err != nil {
				t.Fatalf("err: %v", err)
			}
			n, err := Unmarshal(c, b)
			if err != nil {
				t.Fatalf("err: %v", err)
			}
			if n.CID() != o.CID() {
				t.Fatalf("CID changed through %s", c)
			}
			f, _ := n.Data.Get("nan")
			if !math.IsNaN(float64(f.(Float))) {
				t.Fatalf("expected NaN, got %v", f)
			}
		})
	}
}

func TestCodecCrossDecoding(t *testing.T) {
	raw := []byte(`{
		"@type:s": "test/cross",
		"count:i": 7,
		"big:i": "9007199254740993",
		"tags:as": ["b", "a"],
		"blob:d": "AAEC",
		"ratio:f": 0.5
	}`)

	fromJSON, err := Unmarshal(JSONCodec, raw)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	for _, c := range []Codec{CBORCodec, MsgpackCodec} {
		b, err := Marshal(c, fromJSON)
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		n, err := Unmarshal(c, b)
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		if n.CID() != fromJSON.CID() {
			t.Fatalf("%s decoding gives a different CID", c)
		}
	}

	big, _ := fromJSON.Data.Get("big")
	if big.(Int) != 9007199254740993 {
		t.Fatalf("integer lost precision: %v", big)
	}
}

func TestDecodeErrors(t *testing.T) {
	testCases := []struct {
		name      string
		raw       string
		checkFunc func(error) bool
	}{
		{"unknown hint", `{"@type:s":"foo","a:x":1}`, IsDecodeError},
		{"missing hint", `{"@type:s":"foo","a":1}`, IsDecodeError},
		{"bad integer", `{"@type:s":"foo","a:i":"abc"}`, IsDecodeError},
		{"bad cid", `{"@type:s":"foo","a:r":"nope"}`, IsDecodeError},
		{"bad bytes", `{"@type:s":"foo","a:d":"!!"}`, IsDecodeError},
		{"null item", `{"@type:s":"foo","a:as":["x",null]}`, IsDecodeError},
		{"unknown metadata", `{"@type:s":"foo","@metadata:m":{"color:s":"red"}}`, IsDecodeError},
		{"unknown reserved", `{"@type:s":"foo","@other:s":"x"}`, IsDecodeError},
		{"string as int", `{"@type:s":"foo","a:s":1}`, IsTypeMismatch},
		{"array item", `{"@type:s":"foo","a:as":[1]}`, IsTypeMismatch},
		{"map as array", `{"@type:s":"foo","a:m":[]}`, IsTypeMismatch},
		{"bad owner", `{"@type:s":"foo","@metadata:m":{"owner:i":1}}`, IsTypeMismatch},
		{"missing type", `{"a:s":"x"}`, IsMalformed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Unmarshal(JSONCodec, []byte(tc.raw))
			if err == nil {
				t.Fatalf("expected an error")
			}
			if !tc.checkFunc(err) {
				t.Fatalf("unexpected error type %T: %v", err, err)
			}
		})
	}
}

func TestNullIsAbsent(t *testing.T) {
	withNull, err := Unmarshal(JSONCodec, []byte(`{"@type:s":"foo","a:s":null,"b:s":"x"}`))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	without, err := Unmarshal(JSONCodec, []byte(`{"@type:s":"foo","b:s":"x"}`))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if withNull.CID() != without.CID() {
		t.Fatalf("null fields should be absent")
	}
}

func TestObjectJSON(t *testing.T) {
	o := fullObject(t)

	b, err := json.Marshal(o)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	var n Object
	if err := json.Unmarshal(b, &n); err != nil {
		t.Fatalf("err: %v", err)
	}

	if n.CID() != o.CID() {
		t.Fatalf("CID changed through encoding/json")
	}
}
