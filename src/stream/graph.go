package stream

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/nimona/src/crypto/keys"
	"github.com/mosaicnetworks/nimona/src/object"
	"github.com/mosaicnetworks/nimona/src/policy"
)

// DatetimeFormat is the layout of metadata.datetime on appended objects.
const DatetimeFormat = time.RFC3339Nano

// pendingObject is an object waiting for some of its parents.
type pendingObject struct {
	object   *object.Object
	received time.Time
	missing  map[object.CID]bool
	trusted  bool
}

// Graph is the local replica of a stream. It is safe for concurrent use;
// writers are serialized.
type Graph struct {
	mu sync.RWMutex

	root    *object.Object
	rootCID object.CID

	objects  map[object.CID]*object.Object
	children map[object.CID][]object.CID
	leaves   map[object.CID]bool

	pending map[object.CID]*pendingObject
	// missing parent => pending objects waiting for it
	waiting map[object.CID][]object.CID

	pendingTimeout time.Duration

	logger *logrus.Entry
}

// NewGraph creates the replica of the stream rooted at root. A root must not
// declare a stream or parents, and when signed its signature must verify.
func NewGraph(root *object.Object, pendingTimeout time.Duration, logger *logrus.Entry) (*Graph, error) {
	if !root.Metadata.Stream.IsEmpty() || len(root.Metadata.Parents.All()) > 0 {
		return nil, ErrInvalidRoot
	}

	rootCID, err := object.Hash(root)
	if err != nil {
		return nil, err
	}

	if object.IsSigned(root) {
		if err := verify(root, rootCID); err != nil {
			return nil, err
		}
		if !root.Metadata.Owner.IsEmpty() && !root.Signer().Equals(root.Metadata.Owner) {
			return nil, &SignatureError{CID: rootCID, Reason: "root not signed by its owner"}
		}
	}

	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}

	g := &Graph{
		root:           root.Copy(),
		rootCID:        rootCID,
		objects:        map[object.CID]*object.Object{rootCID: root.Copy()},
		children:       map[object.CID][]object.CID{},
		leaves:         map[object.CID]bool{rootCID: true},
		pending:        map[object.CID]*pendingObject{},
		waiting:        map[object.CID][]object.CID{},
		pendingTimeout: pendingTimeout,
		logger:         logger.WithField("stream", rootCID.String()),
	}

	return g, nil
}

// Root returns the root object.
func (g *Graph) Root() *object.Object {
	return g.root.Copy()
}

// RootCID returns the CID of the root, which identifies the stream.
func (g *Graph) RootCID() object.CID {
	return g.rootCID
}

// Owner returns the owner of the root, if any.
func (g *Graph) Owner() keys.PublicKey {
	return g.root.Metadata.Owner
}

// RequiresSignature reports whether appended objects must be signed. That
// is the case when the root has an owner or is itself signed.
func (g *Graph) RequiresSignature() bool {
	return !g.root.Metadata.Owner.IsEmpty() || object.IsSigned(g.root)
}

// Len returns the number of applied objects, root included.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.objects)
}

// Get returns an applied object.
func (g *Graph) Get(cid object.CID) (*object.Object, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	o, ok := g.objects[cid]
	if !ok {
		return nil, false
	}
	return o.Copy(), true
}

// Has reports whether an object is applied or pending.
func (g *Graph) Has(cid object.CID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, applied := g.objects[cid]
	_, pending := g.pending[cid]
	return applied || pending
}

// Leaves returns the sorted CIDs of the applied objects that no other applied
// object references as a parent.
func (g *Graph) Leaves() []object.CID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.leavesLocked()
}

func (g *Graph) leavesLocked() []object.CID {
	return sortedKeys(g.leaves)
}

// IsPending reports whether an object is waiting for parents.
func (g *Graph) IsPending(cid object.CID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.pending[cid]
	return ok
}

// Pending returns the sorted CIDs of the objects waiting for parents.
func (g *Graph) Pending() []object.CID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	res := make([]object.CID, 0, len(g.pending))
	for c := range g.pending {
		res = append(res, c)
	}
	sortCIDs(res)
	return res
}

// MissingParents returns the sorted CIDs of the parents pending objects are
// waiting for.
func (g *Graph) MissingParents() []object.CID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	res := make([]object.CID, 0, len(g.waiting))
	for c := range g.waiting {
		res = append(res, c)
	}
	sortCIDs(res)
	return res
}

// Insert adds a remote object to the stream. It returns the objects that were
// applied as a result, in the order they were applied: the object itself
// followed by any pending objects it unblocked. Inserting a known object is a
// no-op. When some parents are unknown the object is held pending and an
// UnresolvedParentError is returned.
func (g *Graph) Insert(o *object.Object) ([]*object.Object, error) {
	return g.insert(o, time.Now(), false)
}

// Restore inserts objects that were validated before, typically read back
// from a store, without checking signatures or policies again. Objects may
// be given in any order.
func (g *Graph) Restore(objs []*object.Object) error {
	now := time.Now()
	for _, o := range objs {
		if _, err := g.insert(o, now, true); err != nil && !IsUnresolvedParent(err) {
			return err
		}
	}
	if p := g.Pending(); len(p) > 0 {
		return &UnresolvedParentError{CID: p[0], Missing: g.MissingParents()}
	}
	return nil
}

func (g *Graph) insert(o *object.Object, now time.Time, trusted bool) ([]*object.Object, error) {
	cid, err := object.Hash(o)
	if err != nil {
		return nil, err
	}

	if cid == g.rootCID {
		return nil, nil
	}

	if o.Metadata.Stream != g.rootCID {
		return nil, fmt.Errorf("%w: %s is not part of %s", ErrStreamMismatch, cid, g.rootCID)
	}

	parents := o.Metadata.Parents.All()
	if len(parents) == 0 {
		return nil, ErrNoParents
	}
	for _, p := range parents {
		if p == cid {
			return nil, ErrSelfReference
		}
	}

	if !trusted {
		if err := g.checkSignature(o, cid); err != nil {
			return nil, err
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.objects[cid]; ok {
		return nil, nil
	}
	if _, ok := g.pending[cid]; ok {
		return nil, nil
	}

	missing := map[object.CID]bool{}
	for _, p := range parents {
		if _, ok := g.objects[p]; !ok {
			missing[p] = true
		}
	}

	if len(missing) > 0 {
		g.pending[cid] = &pendingObject{
			object:   o.Copy(),
			received: now,
			missing:  missing,
			trusted:  trusted,
		}
		for p := range missing {
			g.waiting[p] = append(g.waiting[p], cid)
		}

		g.logger.WithFields(logrus.Fields{
			"object":  cid,
			"missing": len(missing),
		}).Debug("Object pending")

		return nil, &UnresolvedParentError{CID: cid, Missing: sortedKeys(missing)}
	}

	if !trusted {
		if err := g.checkAppend(o); err != nil {
			return nil, err
		}
	}

	g.apply(cid, o.Copy())
	applied := []*object.Object{o.Copy()}

	return append(applied, g.promote(cid)...), nil
}

// promote applies the pending objects unblocked by cid, transitively.
func (g *Graph) promote(cid object.CID) []*object.Object {
	applied := []*object.Object{}

	queue := []object.CID{cid}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]

		waiters := g.waiting[parent]
		delete(g.waiting, parent)
		sortCIDs(waiters)

		for _, w := range waiters {
			p, ok := g.pending[w]
			if !ok {
				continue
			}
			delete(p.missing, parent)
			if len(p.missing) > 0 {
				continue
			}

			delete(g.pending, w)

			if !p.trusted {
				if err := g.checkAppend(p.object); err != nil {
					g.logger.WithError(err).WithField("object", w).Debug("Dropping pending object")
					g.drop(w)
					continue
				}
			}

			g.apply(w, p.object)
			applied = append(applied, p.object.Copy())
			queue = append(queue, w)
		}
	}

	return applied
}

// drop discards everything that waits, directly or not, on cid, and returns
// the discarded CIDs.
func (g *Graph) drop(cid object.CID) []object.CID {
	dropped := []object.CID{}
	queue := []object.CID{cid}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		for _, w := range g.waiting[c] {
			if _, ok := g.pending[w]; ok {
				g.removePending(w)
				dropped = append(dropped, w)
				queue = append(queue, w)
			}
		}
		delete(g.waiting, c)
	}
	return dropped
}

func (g *Graph) apply(cid object.CID, o *object.Object) {
	g.objects[cid] = o
	for _, p := range o.Metadata.Parents.All() {
		g.children[p] = append(g.children[p], cid)
		delete(g.leaves, p)
	}
	if len(g.children[cid]) == 0 {
		g.leaves[cid] = true
	}

	g.logger.WithFields(logrus.Fields{
		"object": cid,
		"type":   o.Type,
	}).Debug("Object applied")
}

func (g *Graph) removePending(cid object.CID) {
	p, ok := g.pending[cid]
	if !ok {
		return
	}
	delete(g.pending, cid)
	for m := range p.missing {
		ws := g.waiting[m]
		for i, w := range ws {
			if w == cid {
				ws = append(ws[:i], ws[i+1:]...)
				break
			}
		}
		if len(ws) == 0 {
			delete(g.waiting, m)
		} else {
			g.waiting[m] = ws
		}
	}
}

// ExpirePending discards the objects that have been waiting for their
// parents longer than the pending timeout, together with everything that
// waits on them. It returns the discarded CIDs.
func (g *Graph) ExpirePending(now time.Time) []object.CID {
	g.mu.Lock()
	defer g.mu.Unlock()

	expired := []object.CID{}
	for cid, p := range g.pending {
		if now.Sub(p.received) > g.pendingTimeout {
			expired = append(expired, cid)
		}
	}
	sortCIDs(expired)

	dropped := []object.CID{}
	for _, cid := range expired {
		if _, ok := g.pending[cid]; !ok {
			continue
		}
		g.removePending(cid)
		dropped = append(dropped, cid)
		dropped = append(dropped, g.drop(cid)...)
	}

	if len(dropped) > 0 {
		g.logger.WithField("expired", len(dropped)).Debug("Expired pending objects")
	}

	return dropped
}

func (g *Graph) checkSignature(o *object.Object, cid object.CID) error {
	if !object.IsSigned(o) {
		if g.RequiresSignature() {
			return &SignatureError{CID: cid, Reason: "missing signature"}
		}
		return nil
	}
	return verify(o, cid)
}

func verify(o *object.Object, cid object.CID) error {
	ok, err := object.Verify(o)
	if err != nil {
		return &SignatureError{CID: cid, Reason: err.Error()}
	}
	if !ok {
		return &SignatureError{CID: cid, Reason: "signature does not verify"}
	}
	return nil
}

// checkAppend must be called with the lock held and every parent of o
// applied. The append is judged by the policies found in the ancestry of o,
// so replicas reach the same verdict whatever order objects arrive in.
func (g *Graph) checkAppend(o *object.Object) error {
	subject := o.Signer()
	if len(o.Metadata.Policies) > 0 && !g.isOwner(subject) {
		return ErrForeignPolicies
	}
	policies := g.policiesOfLocked(g.ancestorsLocked(o.Metadata.Parents.All()))
	if !g.canAppendWith(policies, subject, o.Type) {
		return &policy.DeniedError{Request: policy.Request{
			Subject:  subject,
			Resource: o.Type,
			Action:   object.AppendAction,
		}}
	}
	return nil
}

// Append builds an object on top of the current leaves, signs it with key
// and applies it. Signing is mandatory when the stream requires signatures.
// The policies are attached to the new object's metadata.
func (g *Graph) Append(typ string, data object.Map, key keys.PrivateKey, policies ...object.Policy) (*object.Object, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if key.IsEmpty() && g.RequiresSignature() {
		return nil, &SignatureError{Reason: "stream requires signed objects"}
	}

	var subject keys.PublicKey
	if !key.IsEmpty() {
		subject = key.PublicKey()
	}

	if len(policies) > 0 && !g.isOwner(subject) {
		return nil, ErrForeignPolicies
	}

	if !g.canAppendLocked(subject, typ) {
		return nil, &policy.DeniedError{Request: policy.Request{
			Subject:  subject,
			Resource: typ,
			Action:   object.AppendAction,
		}}
	}

	o := object.New(typ, data, object.Metadata{
		Stream:   g.rootCID,
		Parents:  object.Parents{object.DefaultParents: g.leavesLocked()},
		Policies: policies,
		Datetime: time.Now().UTC().Format(DatetimeFormat),
	})

	if !key.IsEmpty() {
		var err error
		o, err = object.Sign(o, key)
		if err != nil {
			return nil, err
		}
	}

	cid, err := object.Hash(o)
	if err != nil {
		return nil, err
	}

	g.apply(cid, o.Copy())

	return o, nil
}

// Linearize returns the applied objects in a deterministic topological
// order. Among the objects whose parents have all been emitted, the one with
// the smallest CID comes first. Two replicas holding the same objects always
// return the same sequence.
func (g *Graph) Linearize() []*object.Object {
	g.mu.RLock()
	defer g.mu.RUnlock()

	order := g.linearizeLocked()
	res := make([]*object.Object, len(order))
	for i, c := range order {
		res[i] = g.objects[c].Copy()
	}
	return res
}

// LinearizedCIDs is Linearize without the objects.
func (g *Graph) LinearizedCIDs() []object.CID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.linearizeLocked()
}

func (g *Graph) linearizeLocked() []object.CID {
	indegree := make(map[object.CID]int, len(g.objects))
	for c, o := range g.objects {
		indegree[c] = len(o.Metadata.Parents.All())
	}

	ready := []object.CID{g.rootCID}
	res := make([]object.CID, 0, len(g.objects))

	for len(ready) > 0 {
		c := ready[0]
		ready = ready[1:]
		res = append(res, c)

		for _, child := range g.children[c] {
			indegree[child]--
			if indegree[child] == 0 {
				ready = insertSorted(ready, child)
			}
		}
	}

	return res
}

// Missing returns, in linearized order, the applied objects that are neither
// one of theirLeaves nor one of their ancestors. Unknown CIDs in theirLeaves
// are ignored.
func (g *Graph) Missing(theirLeaves []object.CID) []*object.Object {
	g.mu.RLock()
	defer g.mu.RUnlock()

	known := map[object.CID]bool{}
	queue := []object.CID{}
	for _, l := range theirLeaves {
		if _, ok := g.objects[l]; ok && !known[l] {
			known[l] = true
			queue = append(queue, l)
		}
	}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		for _, p := range g.objects[c].Metadata.Parents.All() {
			if _, ok := g.objects[p]; ok && !known[p] {
				known[p] = true
				queue = append(queue, p)
			}
		}
	}

	res := []*object.Object{}
	for _, c := range g.linearizeLocked() {
		if !known[c] {
			res = append(res, g.objects[c].Copy())
		}
	}
	return res
}

// Policies returns the policies in force: those of the root followed by
// those of the objects signed by the owner, in linearized order. Policies
// carried by any other object are ignored.
func (g *Graph) Policies() []object.Policy {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.policiesLocked()
}

func (g *Graph) policiesLocked() []object.Policy {
	return g.policiesOfLocked(nil)
}

// policiesOfLocked collects the policies in force among the objects of
// within, or among all applied objects when within is nil.
func (g *Graph) policiesOfLocked(within map[object.CID]bool) []object.Policy {
	res := []object.Policy{}
	for _, c := range g.linearizeLocked() {
		if within != nil && !within[c] {
			continue
		}
		o := g.objects[c]
		if c != g.rootCID && !g.isOwner(o.Signer()) {
			continue
		}
		res = append(res, o.Metadata.Policies...)
	}
	return res
}

// ancestorsLocked returns the applied objects among cids and their
// ancestors, root included.
func (g *Graph) ancestorsLocked(cids []object.CID) map[object.CID]bool {
	res := map[object.CID]bool{g.rootCID: true}
	queue := []object.CID{}
	for _, c := range cids {
		if _, ok := g.objects[c]; ok && !res[c] {
			res[c] = true
			queue = append(queue, c)
		}
	}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		for _, p := range g.objects[c].Metadata.Parents.All() {
			if _, ok := g.objects[p]; ok && !res[p] {
				res[p] = true
				queue = append(queue, p)
			}
		}
	}
	return res
}

func (g *Graph) isOwner(subject keys.PublicKey) bool {
	owner := g.root.Metadata.Owner
	return !owner.IsEmpty() && !subject.IsEmpty() && owner.Equals(subject)
}

// CanRead reports whether subject may read o. Owners can always read their
// streams, and streams without policies are open.
func (g *Graph) CanRead(subject keys.PublicKey, o *object.Object) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.isOwner(subject) {
		return true
	}

	return policy.Allowed(g.policiesLocked(), policy.Request{
		Subject:  subject,
		Resource: o.Type,
		Action:   object.ReadAction,
	})
}

// CanAppend reports whether subject may append objects of type typ.
func (g *Graph) CanAppend(subject keys.PublicKey, typ string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.canAppendLocked(subject, typ)
}

// canAppendLocked: the owner always may; a stream without policies only
// accepts its owner, or anyone when it has none.
func (g *Graph) canAppendLocked(subject keys.PublicKey, typ string) bool {
	return g.canAppendWith(g.policiesLocked(), subject, typ)
}

func (g *Graph) canAppendWith(policies []object.Policy, subject keys.PublicKey, typ string) bool {
	if g.isOwner(subject) {
		return true
	}

	if len(policies) == 0 {
		return g.root.Metadata.Owner.IsEmpty()
	}

	return policy.Allowed(policies, policy.Request{
		Subject:  subject,
		Resource: typ,
		Action:   object.AppendAction,
	})
}

// Children returns the sorted CIDs of the applied objects listing cid as a
// parent.
func (g *Graph) Children(cid object.CID) []object.CID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	res := append([]object.CID(nil), g.children[cid]...)
	sortCIDs(res)
	return res
}

func sortCIDs(cids []object.CID) {
	sort.Slice(cids, func(i, j int) bool { return cids[i] < cids[j] })
}

func sortedKeys(m map[object.CID]bool) []object.CID {
	res := make([]object.CID, 0, len(m))
	for c := range m {
		res = append(res, c)
	}
	sortCIDs(res)
	return res
}

func insertSorted(cids []object.CID, c object.CID) []object.CID {
	i := sort.Search(len(cids), func(i int) bool { return cids[i] >= c })
	cids = append(cids, "")
	copy(cids[i+1:], cids[i:])
	cids[i] = c
	return cids
}
