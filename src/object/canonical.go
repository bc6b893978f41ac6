package object

import (
	"bytes"
	"fmt"
	"math"
	"strconv"

	"github.com/ugorji/go/codec"
)

// canonicalNaN is the single bit pattern every NaN is normalized to.
const canonicalNaN uint64 = 0x7ff8000000000000

// Canonical returns the canonical form of the object: the byte string every
// peer hashes and signs.
func Canonical(o *Object) ([]byte, error) {
	if o == nil {
		return nil, &MalformedObjectError{Reason: "nil object"}
	}
	return CanonicalMap(o.ToMap())
}

// CanonicalMap returns the canonical form of a hinted map.
func CanonicalMap(m Map) ([]byte, error) {
	tree, ok := canonicalValue(m)
	if !ok {
		tree = map[string]interface{}{}
	}

	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	jh.HTMLCharsAsIs = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(tree); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Hash computes the CID of the object.
func Hash(o *Object) (CID, error) {
	b, err := Canonical(o)
	if err != nil {
		return "", err
	}
	return SumCID(b)
}

// HashMap computes the CID of a hinted map.
func HashMap(m Map) (CID, error) {
	b, err := CanonicalMap(m)
	if err != nil {
		return "", err
	}
	return SumCID(b)
}

// CanonicalFloat returns the 16 hex digit form of a float, after mapping all
// NaNs to a single pattern and negative zero to zero.
func CanonicalFloat(f float64) string {
	var bits uint64
	switch {
	case math.IsNaN(f):
		bits = canonicalNaN
	case f == 0:
		bits = 0
	default:
		bits = math.Float64bits(f)
	}
	return fmt.Sprintf("%016x", bits)
}

// canonicalValue converts a value into the tree written by Canonical. The
// boolean is false when the value is an empty map or array, which canonical
// forms omit.
func canonicalValue(v Value) (interface{}, bool) {
	switch t := v.(type) {
	case String:
		return string(t), true
	case Int:
		return strconv.FormatInt(int64(t), 10), true
	case Float:
		return CanonicalFloat(float64(t)), true
	case Bool:
		return bool(t), true
	case Bytes:
		return append([]byte{}, t...), true
	case CID:
		return string(t), true
	case Map:
		out := make(map[string]interface{}, t.Len())
		for _, name := range t.Keys() {
			fv, _ := t.Get(name)
			cv, ok := canonicalValue(fv)
			if !ok {
				continue
			}
			out[name+":"+string(fv.Hint())] = cv
		}
		if len(out) == 0 {
			return nil, false
		}
		return out, true
	case Array:
		if t.Len() == 0 {
			return nil, false
		}
		out := make([]interface{}, t.Len())
		for i, item := range t.items {
			cv, ok := canonicalValue(item)
			if !ok {
				// empty items keep their position
				if item.Hint() == MapHint {
					cv = map[string]interface{}{}
				} else {
					cv = []interface{}{}
				}
			}
			out[i] = cv
		}
		return out, true
	}
	return nil, false
}
