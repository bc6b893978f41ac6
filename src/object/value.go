package object

import (
	"strings"
)

// Hint is the type annotation carried by every key of an object.
type Hint string

// Scalar and composite hints.
const (
	StringHint Hint = "s"
	IntHint    Hint = "i"
	FloatHint  Hint = "f"
	BoolHint   Hint = "b"
	BytesHint  Hint = "d"
	MapHint    Hint = "m"
	CIDHint    Hint = "r"
	ArrayHint  Hint = "a"
)

// IsArray reports whether the hint describes an array.
func (h Hint) IsArray() bool {
	return strings.HasPrefix(string(h), string(ArrayHint))
}

// Elem returns the hint of the elements of an array hint.
func (h Hint) Elem() Hint {
	return Hint(strings.TrimPrefix(string(h), string(ArrayHint)))
}

// Valid reports whether the hint is known.
func (h Hint) Valid() bool {
	switch h {
	case StringHint, IntHint, FloatHint, BoolHint, BytesHint, MapHint, CIDHint:
		return true
	}
	if h.IsArray() && len(h) > 1 {
		return h.Elem().Valid()
	}
	return false
}

// Value is one of String, Int, Float, Bool, Bytes, CID, Map or Array.
type Value interface {
	Hint() Hint
	value()
}

type (
	// String is a UTF-8 string value.
	String string
	// Int is a signed 64 bit integer value.
	Int int64
	// Float is a 64 bit floating point value.
	Float float64
	// Bool is a boolean value.
	Bool bool
	// Bytes is a raw byte string value.
	Bytes []byte
)

func (String) Hint() Hint { return StringHint }
func (Int) Hint() Hint    { return IntHint }
func (Float) Hint() Hint  { return FloatHint }
func (Bool) Hint() Hint   { return BoolHint }
func (Bytes) Hint() Hint  { return BytesHint }

func (String) value() {}
func (Int) value()    {}
func (Float) value()  {}
func (Bool) value()   {}
func (Bytes) value()  {}
func (CID) value()    {}
func (Map) value()    {}
func (Array) value()  {}

// Array is a homogeneous list of values.
type Array struct {
	elem  Hint
	items []Value
}

// NewArray returns an array of elem values. All items must carry the elem
// hint.
func NewArray(elem Hint, items ...Value) (Array, error) {
	if !elem.Valid() {
		return Array{}, &DecodeError{Key: string(ArrayHint + elem), Reason: "unknown hint"}
	}
	for _, item := range items {
		if item == nil {
			return Array{}, &DecodeError{Key: string(ArrayHint + elem), Reason: "nil item"}
		}
		if item.Hint() != elem {
			return Array{}, &TypeMismatchError{
				Key:      string(ArrayHint + elem),
				Expected: elem,
				Got:      item.Hint(),
			}
		}
	}
	return Array{elem: elem, items: append([]Value(nil), items...)}, nil
}

// StringArray is a shortcut for an array of strings.
func StringArray(ss ...string) Array {
	items := make([]Value, len(ss))
	for i, s := range ss {
		items[i] = String(s)
	}
	return Array{elem: StringHint, items: items}
}

// CIDArray is a shortcut for an array of CIDs.
func CIDArray(cids ...CID) Array {
	items := make([]Value, len(cids))
	for i, c := range cids {
		items[i] = c
	}
	return Array{elem: CIDHint, items: items}
}

// MapArray is a shortcut for an array of maps.
func MapArray(ms ...Map) Array {
	items := make([]Value, len(ms))
	for i, m := range ms {
		items[i] = m
	}
	return Array{elem: MapHint, items: items}
}

// Hint implements Value.
func (a Array) Hint() Hint {
	if a.elem == "" {
		return ArrayHint + StringHint
	}
	return ArrayHint + a.elem
}

// Elem returns the hint of the items.
func (a Array) Elem() Hint {
	return a.Hint().Elem()
}

// Len returns the number of items.
func (a Array) Len() int {
	return len(a.items)
}

// Index returns the i-th item.
func (a Array) Index(i int) Value {
	return a.items[i]
}

// Items returns a copy of the items.
func (a Array) Items() []Value {
	return append([]Value(nil), a.items...)
}

// Strings returns the string items of the array.
func (a Array) Strings() []string {
	res := make([]string, 0, len(a.items))
	for _, item := range a.items {
		if s, ok := item.(String); ok {
			res = append(res, string(s))
		}
	}
	return res
}

// CIDs returns the CID items of the array.
func (a Array) CIDs() []CID {
	res := make([]CID, 0, len(a.items))
	for _, item := range a.items {
		if c, ok := item.(CID); ok {
			res = append(res, c)
		}
	}
	return res
}

// Maps returns the map items of the array.
func (a Array) Maps() []Map {
	res := make([]Map, 0, len(a.items))
	for _, item := range a.items {
		if m, ok := item.(Map); ok {
			res = append(res, m)
		}
	}
	return res
}

func (a Array) copy() Array {
	items := make([]Value, len(a.items))
	for i, item := range a.items {
		items[i] = copyValue(item)
	}
	return Array{elem: a.elem, items: items}
}

// Map is an ordered mapping from field names to values. The order of
// insertion is kept for display but has no effect on the canonical form.
type Map struct {
	names  []string
	values map[string]Value
}

// NewMap returns an empty Map.
func NewMap() Map {
	return Map{values: map[string]Value{}}
}

// Hint implements Value.
func (m Map) Hint() Hint { return MapHint }

// Set sets a field. Setting a nil value removes the field.
func (m *Map) Set(name string, v Value) {
	if v == nil {
		m.Delete(name)
		return
	}
	if m.values == nil {
		m.values = map[string]Value{}
	}
	if _, ok := m.values[name]; !ok {
		m.names = append(m.names, name)
	}
	m.values[name] = v
}

// Get returns a field.
func (m Map) Get(name string) (Value, bool) {
	v, ok := m.values[name]
	return v, ok
}

// Delete removes a field.
func (m *Map) Delete(name string) {
	if _, ok := m.values[name]; !ok {
		return
	}
	delete(m.values, name)
	for i, n := range m.names {
		if n == name {
			m.names = append(m.names[:i:i], m.names[i+1:]...)
			break
		}
	}
}

// Keys returns the field names in insertion order.
func (m Map) Keys() []string {
	return append([]string(nil), m.names...)
}

// Len returns the number of fields.
func (m Map) Len() int {
	return len(m.names)
}

// Copy returns a deep copy of the map.
func (m Map) Copy() Map {
	c := NewMap()
	for _, name := range m.names {
		c.Set(name, copyValue(m.values[name]))
	}
	return c
}

// GetString returns a string field, or the empty string.
func (m Map) GetString(name string) string {
	if s, ok := m.values[name].(String); ok {
		return string(s)
	}
	return ""
}

// GetInt returns an integer field, or zero.
func (m Map) GetInt(name string) int64 {
	if i, ok := m.values[name].(Int); ok {
		return int64(i)
	}
	return 0
}

// GetBool returns a boolean field, or false.
func (m Map) GetBool(name string) bool {
	if b, ok := m.values[name].(Bool); ok {
		return bool(b)
	}
	return false
}

// GetBytes returns a bytes field, or nil.
func (m Map) GetBytes(name string) []byte {
	if b, ok := m.values[name].(Bytes); ok {
		return []byte(b)
	}
	return nil
}

// GetCID returns a CID field, or the empty CID.
func (m Map) GetCID(name string) CID {
	if c, ok := m.values[name].(CID); ok {
		return c
	}
	return ""
}

// GetMap returns a map field, or an empty map.
func (m Map) GetMap(name string) Map {
	if v, ok := m.values[name].(Map); ok {
		return v
	}
	return NewMap()
}

// GetArray returns an array field, or an empty array.
func (m Map) GetArray(name string) Array {
	if a, ok := m.values[name].(Array); ok {
		return a
	}
	return Array{}
}

func copyValue(v Value) Value {
	switch t := v.(type) {
	case Map:
		return t.Copy()
	case Array:
		return t.copy()
	case Bytes:
		return append(Bytes(nil), t...)
	default:
		return v
	}
}
