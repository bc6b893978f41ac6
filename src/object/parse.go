package object

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// SplitKey splits a hinted key into its name and hint.
func SplitKey(key string) (string, Hint, error) {
	i := strings.LastIndex(key, ":")
	if i <= 0 || i == len(key)-1 {
		return "", "", &DecodeError{Key: key, Reason: "missing hint"}
	}
	name, hint := key[:i], Hint(key[i+1:])
	if !hint.Valid() {
		return "", "", &DecodeError{Key: key, Reason: fmt.Sprintf("unknown hint %q", hint)}
	}
	return name, hint, nil
}

// ParseMap builds a hinted Map out of a generic decoded tree, as produced by
// the json, cbor and msgpack decoders. Null values are treated as absent.
func ParseMap(raw interface{}) (Map, error) {
	return parseMap("", raw)
}

func parseMap(key string, raw interface{}) (Map, error) {
	fields := map[string]interface{}{}

	switch t := raw.(type) {
	case map[string]interface{}:
		fields = t
	case map[interface{}]interface{}:
		for k, v := range t {
			ks, ok := k.(string)
			if !ok {
				return Map{}, &DecodeError{Key: key, Reason: fmt.Sprintf("non-string key %v", k)}
			}
			fields[ks] = v
		}
	default:
		return Map{}, &TypeMismatchError{Key: key, Expected: MapHint, Got: shapeOf(raw)}
	}

	// decoded maps have no order; sort for a stable insertion order
	hintedKeys := make([]string, 0, len(fields))
	for k := range fields {
		hintedKeys = append(hintedKeys, k)
	}
	sort.Strings(hintedKeys)

	m := NewMap()
	for _, hk := range hintedKeys {
		name, hint, err := SplitKey(hk)
		if err != nil {
			return Map{}, err
		}
		if _, dup := m.Get(name); dup {
			return Map{}, &DecodeError{Key: hk, Reason: "duplicate field name"}
		}
		v, err := parseValue(hk, hint, fields[hk])
		if err != nil {
			return Map{}, err
		}
		if v == nil {
			continue
		}
		m.Set(name, v)
	}

	return m, nil
}

func parseValue(key string, hint Hint, raw interface{}) (Value, error) {
	if raw == nil {
		return nil, nil
	}

	mismatch := func() error {
		return &TypeMismatchError{Key: key, Expected: hint, Got: shapeOf(raw)}
	}

	switch hint {
	case StringHint:
		s, ok := raw.(string)
		if !ok {
			return nil, mismatch()
		}
		return String(s), nil

	case IntHint:
		i, err := parseInt(raw)
		if err != nil {
			if _, ok := err.(*TypeMismatchError); ok {
				return nil, mismatch()
			}
			return nil, &DecodeError{Key: key, Reason: err.Error()}
		}
		return Int(i), nil

	case FloatHint:
		f, err := parseFloat(raw)
		if err != nil {
			if _, ok := err.(*TypeMismatchError); ok {
				return nil, mismatch()
			}
			return nil, &DecodeError{Key: key, Reason: err.Error()}
		}
		return Float(f), nil

	case BoolHint:
		b, ok := raw.(bool)
		if !ok {
			return nil, mismatch()
		}
		return Bool(b), nil

	case BytesHint:
		switch t := raw.(type) {
		case []byte:
			return Bytes(append([]byte{}, t...)), nil
		case string:
			b, err := base64.StdEncoding.DecodeString(t)
			if err != nil {
				return nil, &DecodeError{Key: key, Reason: err.Error()}
			}
			return Bytes(b), nil
		}
		return nil, mismatch()

	case CIDHint:
		s, ok := raw.(string)
		if !ok {
			return nil, mismatch()
		}
		c, err := ParseCID(s)
		if err != nil {
			return nil, &DecodeError{Key: key, Reason: err.Error()}
		}
		return c, nil

	case MapHint:
		return parseMap(key, raw)
	}

	if hint.IsArray() {
		items, ok := raw.([]interface{})
		if !ok {
			return nil, mismatch()
		}
		elem := hint.Elem()
		values := make([]Value, 0, len(items))
		for i, item := range items {
			itemKey := fmt.Sprintf("%s[%d]", key, i)
			if item == nil {
				return nil, &DecodeError{Key: itemKey, Reason: "null array item"}
			}
			v, err := parseValue(itemKey, elem, item)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		return Array{elem: elem, items: values}, nil
	}

	return nil, &DecodeError{Key: key, Reason: fmt.Sprintf("unknown hint %q", hint)}
}

func parseInt(raw interface{}) (int64, error) {
	switch t := raw.(type) {
	case string:
		return strconv.ParseInt(t, 10, 64)
	case json.Number:
		return t.Int64()
	case int:
		return int64(t), nil
	case int8:
		return int64(t), nil
	case int16:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case uint:
		return uintToInt(uint64(t))
	case uint8:
		return int64(t), nil
	case uint16:
		return int64(t), nil
	case uint32:
		return int64(t), nil
	case uint64:
		return uintToInt(t)
	case float64:
		if t != math.Trunc(t) || t > math.MaxInt64 || t < math.MinInt64 {
			return 0, fmt.Errorf("%v is not an integer", t)
		}
		return int64(t), nil
	}
	return 0, &TypeMismatchError{}
}

func uintToInt(u uint64) (int64, error) {
	if u > math.MaxInt64 {
		return 0, fmt.Errorf("%d overflows int64", u)
	}
	return int64(u), nil
}

func parseFloat(raw interface{}) (float64, error) {
	switch t := raw.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case json.Number:
		return t.Float64()
	case string:
		// non-finite floats travel as their bit pattern
		if len(t) != 16 {
			return 0, fmt.Errorf("%q is not a float bit pattern", t)
		}
		bits, err := strconv.ParseUint(t, 16, 64)
		if err != nil {
			return 0, err
		}
		return math.Float64frombits(bits), nil
	case int64:
		return float64(t), nil
	case uint64:
		return float64(t), nil
	case int:
		return float64(t), nil
	}
	return 0, &TypeMismatchError{}
}

func shapeOf(raw interface{}) Hint {
	switch raw.(type) {
	case string:
		return StringHint
	case bool:
		return BoolHint
	case []byte:
		return BytesHint
	case float32, float64:
		return FloatHint
	case json.Number, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return IntHint
	case map[string]interface{}, map[interface{}]interface{}:
		return MapHint
	case []interface{}:
		return ArrayHint
	}
	return Hint(fmt.Sprintf("%T", raw))
}
