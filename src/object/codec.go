package object

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/ugorji/go/codec"
)

// Codec names a wire encoding for objects.
type Codec string

// Supported codecs.
const (
	JSONCodec    Codec = "json"
	CBORCodec    Codec = "cbor"
	MsgpackCodec Codec = "msgpack"
)

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode

	msgpackHandle = func() *codec.MsgpackHandle {
		h := new(codec.MsgpackHandle)
		h.MapType = reflect.TypeOf(map[string]interface{}(nil))
		h.RawToString = true
		h.WriteExt = true
		return h
	}()
)

func init() {
	var err error

	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}

	cborDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]interface{}(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// ParseCodec validates a codec name.
func ParseCodec(s string) (Codec, error) {
	switch c := Codec(s); c {
	case JSONCodec, CBORCodec, MsgpackCodec:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCodec, s)
}

// Marshal encodes an object with the given codec.
func Marshal(c Codec, o *Object) ([]byte, error) {
	return MarshalMap(c, o.ToMap())
}

// Unmarshal decodes an object encoded with the given codec.
func Unmarshal(c Codec, data []byte) (*Object, error) {
	m, err := UnmarshalMap(c, data)
	if err != nil {
		return nil, err
	}
	return FromMap(m)
}

// MarshalMap encodes a hinted map with the given codec.
func MarshalMap(c Codec, m Map) ([]byte, error) {
	switch c {
	case JSONCodec:
		return json.Marshal(wireValue(m, true))
	case CBORCodec:
		return cborEnc.Marshal(wireValue(m, false))
	case MsgpackCodec:
		b := new(bytes.Buffer)
		enc := codec.NewEncoder(b, msgpackHandle)
		if err := enc.Encode(wireValue(m, false)); err != nil {
			return nil, err
		}
		return b.Bytes(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, c)
}

// UnmarshalMap decodes a hinted map encoded with the given codec.
func UnmarshalMap(c Codec, data []byte) (Map, error) {
	var raw interface{}

	switch c {
	case JSONCodec:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return Map{}, &DecodeError{Reason: err.Error()}
		}
	case CBORCodec:
		if err := cborDec.Unmarshal(data, &raw); err != nil {
			return Map{}, &DecodeError{Reason: err.Error()}
		}
	case MsgpackCodec:
		dec := codec.NewDecoderBytes(data, msgpackHandle)
		if err := dec.Decode(&raw); err != nil {
			return Map{}, &DecodeError{Reason: err.Error()}
		}
	default:
		return Map{}, fmt.Errorf("%w: %q", ErrUnknownCodec, c)
	}

	return ParseMap(raw)
}

// wireValue converts a value into the generic tree handed to encoders. When
// jsonSafe is set, non-finite floats are written as their bit pattern since
// JSON has no representation for them.
func wireValue(v Value, jsonSafe bool) interface{} {
	switch t := v.(type) {
	case String:
		return string(t)
	case Int:
		return int64(t)
	case Float:
		f := float64(t)
		if jsonSafe && (math.IsNaN(f) || math.IsInf(f, 0)) {
			return fmt.Sprintf("%016x", math.Float64bits(f))
		}
		return f
	case Bool:
		return bool(t)
	case Bytes:
		return []byte(t)
	case CID:
		return string(t)
	case Map:
		out := make(map[string]interface{}, t.Len())
		for _, name := range t.Keys() {
			fv, _ := t.Get(name)
			out[name+":"+string(fv.Hint())] = wireValue(fv, jsonSafe)
		}
		return out
	case Array:
		out := make([]interface{}, t.Len())
		for i, item := range t.items {
			out[i] = wireValue(item, jsonSafe)
		}
		return out
	}
	return nil
}
