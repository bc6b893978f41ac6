package peers

import (
	"sort"

	"github.com/mosaicnetworks/nimona/src/crypto/keys"
	"github.com/mosaicnetworks/nimona/src/object"
)

// ConnectionInfoType is the object type of a ConnectionInfo.
const ConnectionInfoType = "peer.connection-info"

// ConnectionInfo tells how to reach a peer.
type ConnectionInfo struct {
	PublicKey keys.PublicKey    `json:"publicKey"`
	Addresses []string          `json:"addresses,omitempty"`
	Relays    []*ConnectionInfo `json:"relays,omitempty"`
	Moniker   string            `json:"moniker,omitempty"`
}

// NewConnectionInfo is a shortcut for a ConnectionInfo without relays.
func NewConnectionInfo(key keys.PublicKey, addresses ...string) *ConnectionInfo {
	return &ConnectionInfo{
		PublicKey: key,
		Addresses: addresses,
	}
}

// Copy returns a deep copy.
func (c *ConnectionInfo) Copy() *ConnectionInfo {
	res := &ConnectionInfo{
		PublicKey: append(keys.PublicKey(nil), c.PublicKey...),
		Addresses: append([]string(nil), c.Addresses...),
		Moniker:   c.Moniker,
	}
	for _, r := range c.Relays {
		res.Relays = append(res.Relays, r.Copy())
	}
	return res
}

// ToMap returns the hinted map form.
func (c *ConnectionInfo) ToMap() object.Map {
	m := object.NewMap()
	m.Set("publicKey", object.String(c.PublicKey.String()))
	m.Set("addresses", object.StringArray(c.Addresses...))
	relays := make([]object.Map, len(c.Relays))
	for i, r := range c.Relays {
		relays[i] = r.ToMap()
	}
	m.Set("relays", object.MapArray(relays...))
	if c.Moniker != "" {
		m.Set("moniker", object.String(c.Moniker))
	}
	return m
}

// ToObject returns the object form, signed by key when it is not empty.
func (c *ConnectionInfo) ToObject(key keys.PrivateKey) (*object.Object, error) {
	o := object.New(ConnectionInfoType, c.ToMap(), object.Metadata{})
	if key.IsEmpty() {
		return o, nil
	}
	return object.Sign(o, key)
}

// ConnectionInfoFromMap parses the hinted map form.
func ConnectionInfoFromMap(m object.Map) (*ConnectionInfo, error) {
	pub, err := keys.ParsePublicKey(m.GetString("publicKey"))
	if err != nil {
		return nil, &object.DecodeError{Key: "publicKey", Reason: err.Error()}
	}

	c := &ConnectionInfo{
		PublicKey: pub,
		Addresses: m.GetArray("addresses").Strings(),
		Moniker:   m.GetString("moniker"),
	}

	for _, rm := range m.GetArray("relays").Maps() {
		r, err := ConnectionInfoFromMap(rm)
		if err != nil {
			return nil, err
		}
		c.Relays = append(c.Relays, r)
	}

	return c, nil
}

// ConnectionInfoFromObject parses the object form. A signed ConnectionInfo
// must be signed by the peer it describes.
func ConnectionInfoFromObject(o *object.Object) (*ConnectionInfo, error) {
	if o.Type != ConnectionInfoType {
		return nil, &object.MalformedObjectError{Reason: "not a connection info: " + o.Type}
	}

	c, err := ConnectionInfoFromMap(o.Data)
	if err != nil {
		return nil, err
	}

	if object.IsSigned(o) {
		ok, err := object.Verify(o)
		if err != nil {
			return nil, err
		}
		if !ok || !o.Signer().Equals(c.PublicKey) {
			return nil, &object.MalformedObjectError{Reason: "connection info not signed by its peer"}
		}
	}

	return c, nil
}

// RelayKeys returns the public keys of the relays of the peer.
func (c *ConnectionInfo) RelayKeys() []keys.PublicKey {
	res := make([]keys.PublicKey, len(c.Relays))
	for i, r := range c.Relays {
		res[i] = r.PublicKey
	}
	return res
}

// ByPublicKey implements sort.Interface.
type ByPublicKey []*ConnectionInfo

func (a ByPublicKey) Len() int      { return len(a) }
func (a ByPublicKey) Swap(i, j int) { a[i], a[j] = a[j], a[i] }
func (a ByPublicKey) Less(i, j int) bool {
	return a[i].PublicKey.String() < a[j].PublicKey.String()
}

var _ sort.Interface = ByPublicKey(nil)
