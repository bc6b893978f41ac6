package object

import (
	"sort"
	"strings"

	"github.com/mosaicnetworks/nimona/src/crypto/keys"
)

// Reserved top-level keys and the default parent label.
const (
	typeKey        = "@type"
	metadataKey    = "@metadata"
	DefaultParents = "*"
)

// Object is a typed, hinted map with metadata.
type Object struct {
	Type     string
	Metadata Metadata
	Data     Map
}

// Metadata holds the fields every object may carry under "@metadata:m".
type Metadata struct {
	Owner     keys.PublicKey
	Stream    CID
	Parents   Parents
	Policies  []Policy
	Datetime  string
	Signature *Signature
}

// Signature is the Ed25519 signature of an object's canonical form, computed
// without the signature itself.
type Signature struct {
	Alg    string
	Signer keys.PublicKey
	X      []byte
}

// Parents groups parent CIDs by label. Objects appended to a stream use the
// "*" label.
type Parents map[string][]CID

// All returns the distinct parents across all labels, sorted.
func (p Parents) All() []CID {
	seen := map[CID]bool{}
	res := []CID{}
	for _, cids := range p {
		for _, c := range cids {
			if !seen[c] {
				seen[c] = true
				res = append(res, c)
			}
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}

// New returns an object with the given type, data and metadata. The data map
// is copied.
func New(typ string, data Map, meta Metadata) *Object {
	return &Object{
		Type:     typ,
		Metadata: meta.copy(),
		Data:     data.Copy(),
	}
}

// CID returns the content identifier of the object, or the empty CID if the
// object cannot be canonicalized.
func (o *Object) CID() CID {
	c, err := Hash(o)
	if err != nil {
		return ""
	}
	return c
}

// Copy returns a deep copy of the object.
func (o *Object) Copy() *Object {
	return &Object{
		Type:     o.Type,
		Metadata: o.Metadata.copy(),
		Data:     o.Data.Copy(),
	}
}

// Signer returns the public key that signed the object, or nil.
func (o *Object) Signer() keys.PublicKey {
	if o.Metadata.Signature == nil {
		return nil
	}
	return o.Metadata.Signature.Signer
}

// ToMap returns the hinted map form of the object: "@type:s", "@metadata:m"
// and the data fields at the top level.
func (o *Object) ToMap() Map {
	m := NewMap()
	m.Set(typeKey, String(o.Type))
	m.Set(metadataKey, o.Metadata.toMap())
	for _, name := range o.Data.Keys() {
		if strings.HasPrefix(name, "@") {
			continue
		}
		v, _ := o.Data.Get(name)
		m.Set(name, copyValue(v))
	}
	return m
}

// FromMap parses the hinted map form of an object.
func FromMap(m Map) (*Object, error) {
	o := &Object{
		Data: NewMap(),
	}

	tv, ok := m.Get(typeKey)
	if !ok {
		return nil, &MalformedObjectError{Reason: "missing @type"}
	}
	typ, ok := tv.(String)
	if !ok {
		return nil, &TypeMismatchError{Key: typeKey, Expected: StringHint, Got: tv.Hint()}
	}
	if typ == "" {
		return nil, &MalformedObjectError{Reason: "empty @type"}
	}
	o.Type = string(typ)

	for _, name := range m.Keys() {
		v, _ := m.Get(name)
		switch {
		case name == typeKey:
		case name == metadataKey:
			mm, ok := v.(Map)
			if !ok {
				return nil, &TypeMismatchError{Key: metadataKey, Expected: MapHint, Got: v.Hint()}
			}
			meta, err := metadataFromMap(mm)
			if err != nil {
				return nil, err
			}
			o.Metadata = meta
		case strings.HasPrefix(name, "@"):
			return nil, &DecodeError{Key: name, Reason: "unknown reserved field"}
		default:
			o.Data.Set(name, copyValue(v))
		}
	}

	return o, nil
}

func (m Metadata) copy() Metadata {
	c := Metadata{
		Owner:    append(keys.PublicKey(nil), m.Owner...),
		Stream:   m.Stream,
		Datetime: m.Datetime,
	}
	if m.Parents != nil {
		c.Parents = Parents{}
		for label, cids := range m.Parents {
			c.Parents[label] = append([]CID(nil), cids...)
		}
	}
	for _, p := range m.Policies {
		c.Policies = append(c.Policies, p.copy())
	}
	if m.Signature != nil {
		c.Signature = &Signature{
			Alg:    m.Signature.Alg,
			Signer: append(keys.PublicKey(nil), m.Signature.Signer...),
			X:      append([]byte(nil), m.Signature.X...),
		}
	}
	return c
}

func (m Metadata) toMap() Map {
	r := NewMap()
	if !m.Owner.IsEmpty() {
		r.Set("owner", String(m.Owner.String()))
	}
	if !m.Stream.IsEmpty() {
		r.Set("stream", m.Stream)
	}
	if len(m.Parents) > 0 {
		labels := make([]string, 0, len(m.Parents))
		for label := range m.Parents {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		pm := NewMap()
		for _, label := range labels {
			pm.Set(label, CIDArray(m.Parents[label]...))
		}
		r.Set("parents", pm)
	}
	if len(m.Policies) > 0 {
		ps := make([]Map, len(m.Policies))
		for i, p := range m.Policies {
			ps[i] = p.ToMap()
		}
		r.Set("policies", MapArray(ps...))
	}
	if m.Datetime != "" {
		r.Set("datetime", String(m.Datetime))
	}
	if m.Signature != nil {
		s := NewMap()
		s.Set("alg", String(m.Signature.Alg))
		if !m.Signature.Signer.IsEmpty() {
			s.Set("signer", String(m.Signature.Signer.String()))
		}
		s.Set("x", Bytes(m.Signature.X))
		r.Set("signature", s)
	}
	return r
}

func metadataFromMap(m Map) (Metadata, error) {
	meta := Metadata{}

	for _, name := range m.Keys() {
		v, _ := m.Get(name)
		key := metadataKey + "." + name

		switch name {
		case "owner":
			s, ok := v.(String)
			if !ok {
				return meta, &TypeMismatchError{Key: key, Expected: StringHint, Got: v.Hint()}
			}
			pub, err := keys.ParsePublicKey(string(s))
			if err != nil {
				return meta, &DecodeError{Key: key, Reason: err.Error()}
			}
			meta.Owner = pub

		case "stream":
			c, ok := v.(CID)
			if !ok {
				return meta, &TypeMismatchError{Key: key, Expected: CIDHint, Got: v.Hint()}
			}
			meta.Stream = c

		case "parents":
			pm, ok := v.(Map)
			if !ok {
				return meta, &TypeMismatchError{Key: key, Expected: MapHint, Got: v.Hint()}
			}
			meta.Parents = Parents{}
			for _, label := range pm.Keys() {
				lv, _ := pm.Get(label)
				arr, ok := lv.(Array)
				if !ok || arr.Elem() != CIDHint {
					return meta, &TypeMismatchError{Key: key + "." + label, Expected: ArrayHint + CIDHint, Got: lv.Hint()}
				}
				meta.Parents[label] = arr.CIDs()
			}

		case "policies":
			arr, ok := v.(Array)
			if !ok || arr.Elem() != MapHint {
				return meta, &TypeMismatchError{Key: key, Expected: ArrayHint + MapHint, Got: v.Hint()}
			}
			for _, pm := range arr.Maps() {
				p, err := PolicyFromMap(pm)
				if err != nil {
					return meta, err
				}
				meta.Policies = append(meta.Policies, p)
			}

		case "datetime":
			s, ok := v.(String)
			if !ok {
				return meta, &TypeMismatchError{Key: key, Expected: StringHint, Got: v.Hint()}
			}
			meta.Datetime = string(s)

		case "signature":
			sm, ok := v.(Map)
			if !ok {
				return meta, &TypeMismatchError{Key: key, Expected: MapHint, Got: v.Hint()}
			}
			sig, err := signatureFromMap(sm)
			if err != nil {
				return meta, err
			}
			meta.Signature = sig

		default:
			return meta, &DecodeError{Key: key, Reason: "unknown metadata field"}
		}
	}

	return meta, nil
}

// signatureFromMap keeps whatever is present; Verify decides whether the
// result is well formed.
func signatureFromMap(m Map) (*Signature, error) {
	sig := &Signature{}
	for _, name := range m.Keys() {
		v, _ := m.Get(name)
		key := metadataKey + ".signature." + name
		switch name {
		case "alg":
			s, ok := v.(String)
			if !ok {
				return nil, &TypeMismatchError{Key: key, Expected: StringHint, Got: v.Hint()}
			}
			sig.Alg = string(s)
		case "signer":
			s, ok := v.(String)
			if !ok {
				return nil, &TypeMismatchError{Key: key, Expected: StringHint, Got: v.Hint()}
			}
			pub, err := keys.ParsePublicKey(string(s))
			if err != nil {
				return nil, &DecodeError{Key: key, Reason: err.Error()}
			}
			sig.Signer = pub
		case "x":
			b, ok := v.(Bytes)
			if !ok {
				return nil, &TypeMismatchError{Key: key, Expected: BytesHint, Got: v.Hint()}
			}
			sig.X = []byte(b)
		default:
			return nil, &DecodeError{Key: key, Reason: "unknown signature field"}
		}
	}
	return sig, nil
}

// MarshalJSON encodes the object with the json codec.
func (o *Object) MarshalJSON() ([]byte, error) {
	return Marshal(JSONCodec, o)
}

// UnmarshalJSON decodes an object encoded with the json codec.
func (o *Object) UnmarshalJSON(b []byte) error {
	n, err := Unmarshal(JSONCodec, b)
	if err != nil {
		return err
	}
	*o = *n
	return nil
}
