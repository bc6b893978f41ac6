package peers

import (
	"sort"
	"sync"

	"github.com/mosaicnetworks/nimona/src/crypto/keys"
)

// AddressBook keeps the ConnectionInfo of known peers, indexed by public key.
type AddressBook struct {
	l     sync.RWMutex
	byKey map[string]*ConnectionInfo
	file  *JSONAddressBook
}

// NewAddressBook creates an empty AddressBook. When file is not nil, every
// change is written to it.
func NewAddressBook(file *JSONAddressBook) *AddressBook {
	return &AddressBook{
		byKey: map[string]*ConnectionInfo{},
		file:  file,
	}
}

// LoadAddressBook creates an AddressBook from the content of file. A missing
// or empty file yields an empty book.
func LoadAddressBook(file *JSONAddressBook) (*AddressBook, error) {
	book := NewAddressBook(file)

	infos, err := file.Read()
	if err != nil {
		return nil, err
	}

	for _, c := range infos {
		book.byKey[c.PublicKey.String()] = c
	}

	return book, nil
}

// Put adds or replaces the ConnectionInfo of a peer.
func (b *AddressBook) Put(c *ConnectionInfo) error {
	b.l.Lock()
	b.byKey[c.PublicKey.String()] = c.Copy()
	b.l.Unlock()
	return b.persist()
}

// Get returns the ConnectionInfo of a peer.
func (b *AddressBook) Get(key keys.PublicKey) (*ConnectionInfo, bool) {
	b.l.RLock()
	defer b.l.RUnlock()
	c, ok := b.byKey[key.String()]
	if !ok {
		return nil, false
	}
	return c.Copy(), true
}

// Remove forgets a peer.
func (b *AddressBook) Remove(key keys.PublicKey) error {
	b.l.Lock()
	delete(b.byKey, key.String())
	b.l.Unlock()
	return b.persist()
}

// All returns every known peer, sorted by public key.
func (b *AddressBook) All() []*ConnectionInfo {
	b.l.RLock()
	defer b.l.RUnlock()
	res := make([]*ConnectionInfo, 0, len(b.byKey))
	for _, c := range b.byKey {
		res = append(res, c.Copy())
	}
	sort.Sort(ByPublicKey(res))
	return res
}

// Len returns the number of known peers.
func (b *AddressBook) Len() int {
	b.l.RLock()
	defer b.l.RUnlock()
	return len(b.byKey)
}

func (b *AddressBook) persist() error {
	if b.file == nil {
		return nil
	}
	return b.file.Write(b.All())
}
