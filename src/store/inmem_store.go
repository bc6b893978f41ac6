package store

import (
	"sort"
	"sync"

	cm "github.com/mosaicnetworks/nimona/src/common"
	"github.com/mosaicnetworks/nimona/src/object"
)

// InmemStore implements the Store interface with in-memory maps.
type InmemStore struct {
	l        sync.RWMutex
	objects  map[object.CID]*object.Object
	byStream map[object.CID][]object.CID
	closed   bool
}

// NewInmemStore creates a new InmemStore.
func NewInmemStore() *InmemStore {
	return &InmemStore{
		objects:  map[object.CID]*object.Object{},
		byStream: map[object.CID][]object.CID{},
	}
}

// Put implements the Store interface.
func (s *InmemStore) Put(o *object.Object) error {
	cid, err := object.Hash(o)
	if err != nil {
		return err
	}

	s.l.Lock()
	defer s.l.Unlock()

	if s.closed {
		return cm.NewStoreErr("Object", cm.Closed, cid.String())
	}

	if _, ok := s.objects[cid]; ok {
		return nil
	}

	s.objects[cid] = o.Copy()
	root := StreamRoot(o, cid)
	s.byStream[root] = append(s.byStream[root], cid)

	return nil
}

// Get implements the Store interface.
func (s *InmemStore) Get(cid object.CID) (*object.Object, error) {
	s.l.RLock()
	defer s.l.RUnlock()

	o, ok := s.objects[cid]
	if !ok {
		return nil, cm.NewStoreErr("Object", cm.KeyNotFound, cid.String())
	}

	return o.Copy(), nil
}

// Has implements the Store interface.
func (s *InmemStore) Has(cid object.CID) (bool, error) {
	s.l.RLock()
	defer s.l.RUnlock()

	_, ok := s.objects[cid]
	return ok, nil
}

// StreamObjects implements the Store interface.
func (s *InmemStore) StreamObjects(root object.CID) ([]*object.Object, error) {
	s.l.RLock()
	defer s.l.RUnlock()

	cids, ok := s.byStream[root]
	if !ok {
		return nil, cm.NewStoreErr("Stream", cm.KeyNotFound, root.String())
	}

	res := make([]*object.Object, 0, len(cids))
	for _, c := range cids {
		res = append(res, s.objects[c].Copy())
	}

	return res, nil
}

// Streams implements the Store interface. Only streams whose root is stored
// are returned.
func (s *InmemStore) Streams() ([]object.CID, error) {
	s.l.RLock()
	defer s.l.RUnlock()

	res := []object.CID{}
	for root := range s.byStream {
		if _, ok := s.objects[root]; ok {
			res = append(res, root)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })

	return res, nil
}

// Close implements the Store interface.
func (s *InmemStore) Close() error {
	s.l.Lock()
	defer s.l.Unlock()
	s.closed = true
	return nil
}
