package stream

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	cm "github.com/mosaicnetworks/nimona/src/common"
	"github.com/mosaicnetworks/nimona/src/crypto/keys"
	"github.com/mosaicnetworks/nimona/src/object"
	"github.com/mosaicnetworks/nimona/src/store"
)

// Manager keeps the graphs of all the streams known locally and persists
// their objects.
type Manager struct {
	mu     sync.RWMutex
	graphs map[object.CID]*Graph

	store          store.Store
	pendingTimeout time.Duration

	logger *logrus.Entry
}

// NewManager creates a Manager on top of s. Call Load to read back the
// streams already in the store.
func NewManager(s store.Store, pendingTimeout time.Duration, logger *logrus.Entry) *Manager {
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}
	return &Manager{
		graphs:         map[object.CID]*Graph{},
		store:          s,
		pendingTimeout: pendingTimeout,
		logger:         logger,
	}
}

// Load rebuilds the graphs of the streams found in the store.
func (m *Manager) Load() error {
	roots, err := m.store.Streams()
	if err != nil {
		return err
	}

	for _, r := range roots {
		objs, err := m.store.StreamObjects(r)
		if err != nil {
			return err
		}

		var root *object.Object
		rest := make([]*object.Object, 0, len(objs))
		for _, o := range objs {
			if o.CID() == r {
				root = o
			} else {
				rest = append(rest, o)
			}
		}
		if root == nil {
			return cm.NewStoreErr("Stream", cm.KeyNotFound, r.String())
		}

		g, err := NewGraph(root, m.pendingTimeout, m.logger)
		if err != nil {
			return err
		}
		if err := g.Restore(rest); err != nil {
			if !IsUnresolvedParent(err) {
				return err
			}
			m.logger.WithError(err).WithField("stream", r).Warn("Stream restored with pending objects")
		}

		m.mu.Lock()
		m.graphs[r] = g
		m.mu.Unlock()

		m.logger.WithFields(logrus.Fields{
			"stream":  r,
			"objects": g.Len(),
		}).Debug("Loaded stream")
	}

	return nil
}

// Get returns the graph of a stream.
func (m *Manager) Get(root object.CID) (*Graph, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.graphs[root]
	return g, ok
}

// Streams returns the roots of all known streams.
func (m *Manager) Streams() []object.CID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]object.CID, 0, len(m.graphs))
	for r := range m.graphs {
		res = append(res, r)
	}
	sortCIDs(res)
	return res
}

// Create starts tracking the stream rooted at root and persists the root.
// Creating a known stream returns its graph.
func (m *Manager) Create(root *object.Object) (*Graph, error) {
	cid, err := object.Hash(root)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if g, ok := m.graphs[cid]; ok {
		return g, nil
	}

	g, err := NewGraph(root, m.pendingTimeout, m.logger)
	if err != nil {
		return nil, err
	}

	if err := m.store.Put(root); err != nil {
		return nil, err
	}

	m.graphs[cid] = g

	return g, nil
}

// Insert adds a remote object to its stream and persists whatever got
// applied. Roots create their stream.
func (m *Manager) Insert(o *object.Object) ([]*object.Object, error) {
	if o.Metadata.Stream.IsEmpty() {
		if _, err := m.Create(o); err != nil {
			return nil, err
		}
		return []*object.Object{o}, nil
	}

	g, ok := m.Get(o.Metadata.Stream)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStream, o.Metadata.Stream)
	}

	applied, err := g.Insert(o)
	for _, a := range applied {
		if perr := m.store.Put(a); perr != nil {
			return applied, perr
		}
	}

	return applied, err
}

// Append appends a new object to a stream and persists it.
func (m *Manager) Append(root object.CID, typ string, data object.Map, key keys.PrivateKey, policies ...object.Policy) (*object.Object, error) {
	g, ok := m.Get(root)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStream, root)
	}

	o, err := g.Append(typ, data, key, policies...)
	if err != nil {
		return nil, err
	}

	if err := m.store.Put(o); err != nil {
		return nil, err
	}

	return o, nil
}

// GetObject returns a stored object.
func (m *Manager) GetObject(cid object.CID) (*object.Object, error) {
	return m.store.Get(cid)
}

// ExpirePending expires the pending objects of every stream. It returns the
// number of discarded objects.
func (m *Manager) ExpirePending(now time.Time) int {
	n := 0
	for _, r := range m.Streams() {
		if g, ok := m.Get(r); ok {
			n += len(g.ExpirePending(now))
		}
	}
	return n
}

// PendingCount returns the number of pending objects over all streams.
func (m *Manager) PendingCount() int {
	n := 0
	for _, r := range m.Streams() {
		if g, ok := m.Get(r); ok {
			n += len(g.Pending())
		}
	}
	return n
}
