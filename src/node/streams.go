package node

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/nimona/src/crypto/keys"
	"github.com/mosaicnetworks/nimona/src/object"
	"github.com/mosaicnetworks/nimona/src/stream"
)

// CreateStream creates a stream owned by the node. The root carries the
// given policies and is signed.
func (n *Node) CreateStream(typ string, data object.Map, policies ...object.Policy) (*object.Object, error) {
	root := object.New(typ, data, object.Metadata{
		Owner:    n.key.PublicKey(),
		Policies: policies,
		Datetime: time.Now().UTC().Format(stream.DatetimeFormat),
	})

	root, err := object.Sign(root, n.key)
	if err != nil {
		return nil, err
	}

	if _, err := n.streams.Create(root); err != nil {
		return nil, err
	}

	n.logger.WithFields(logrus.Fields{
		"stream": root.CID(),
		"type":   typ,
	}).Debug("Created stream")

	return root, nil
}

// CreateHypotheticalStream starts tracking the hypothetical stream of the
// given type owned by the node. Every peer derives the same root from the
// type and the owner, without having seen it.
func (n *Node) CreateHypotheticalStream(typ string) (*object.Object, error) {
	root := stream.HypotheticalRoot(typ, n.key.PublicKey())
	if _, err := n.streams.Create(root); err != nil {
		return nil, err
	}
	return root, nil
}

// Append appends an object to a stream, persists it and announces the new
// leaves to the subscribers allowed to read it.
func (n *Node) Append(root object.CID, typ string, data object.Map, policies ...object.Policy) (*object.Object, error) {
	o, err := n.streams.Append(root, typ, data, n.key, policies...)
	if err != nil {
		return nil, err
	}

	n.announce(root, []*object.Object{o}, nil)

	return o, nil
}

// announce tells the subscribers of a stream about its new leaves. A
// subscriber is only told when it may read one of the new objects.
func (n *Node) announce(root object.CID, objs []*object.Object, except keys.PublicKey) {
	g, ok := n.streams.Get(root)
	if !ok {
		return
	}

	subscribers := n.subscriptions.Subscribers(root, time.Now())
	if len(subscribers) == 0 {
		return
	}

	ann := &stream.Announcement{
		Nonce:   stream.NewNonce(),
		RootCID: root,
		Leaves:  g.Leaves(),
	}
	o, err := ann.ToObject(n.key)
	if err != nil {
		n.logger.WithError(err).Error("Creating announcement")
		return
	}

	for _, sub := range subscribers {
		if !except.IsEmpty() && sub.Equals(except) {
			continue
		}

		readable := false
		for _, obj := range objs {
			if g.CanRead(sub, obj) {
				readable = true
				break
			}
		}
		if !readable {
			continue
		}

		sub := sub
		ok := n.goFunc(func() {
			ctx, cancel := n.requestContext(context.Background())
			defer cancel()
			if _, err := n.Send(ctx, sub, o); err != nil {
				n.logger.WithError(err).WithField("to", sub).Debug("Sending announcement")
				return
			}
			n.metrics.Announcements.Inc()
		})
		if !ok {
			n.logger.WithField("to", sub).Warn("Too many concurrent routines, announcement skipped")
		}
	}
}

// Sync pulls from a peer the objects of a stream we are missing. Unknown
// streams are fetched from their root. It returns the number of objects
// applied.
func (n *Node) Sync(ctx context.Context, root object.CID, peer keys.PublicKey) (int, error) {
	atomic.AddUint64(&n.syncRequests, 1)

	applied, err := n.sync(ctx, root, peer)
	if err != nil {
		atomic.AddUint64(&n.syncErrors, 1)
		n.metrics.Syncs.WithLabelValues("error").Inc()
		return len(applied), err
	}
	n.metrics.Syncs.WithLabelValues("ok").Inc()
	n.metrics.ObjectsApplied.Add(float64(len(applied)))

	n.addProvider(root, peer)

	if len(applied) > 0 {
		n.announce(root, applied, peer)
	}

	return len(applied), nil
}

func (n *Node) sync(ctx context.Context, root object.CID, peer keys.PublicKey) ([]*object.Object, error) {
	var leaves []object.CID
	if g, ok := n.streams.Get(root); ok {
		leaves = g.Leaves()
	}

	req := &stream.StreamRequest{
		Nonce:   stream.NewNonce(),
		RootCID: root,
		Leaves:  leaves,
	}
	reqObj, err := req.ToObject(n.key)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	respObj, err := n.request(ctx, peer, req.Nonce, reqObj)
	if err != nil {
		return nil, err
	}

	resp, err := stream.StreamResponseFromObject(respObj)
	if err != nil {
		return nil, err
	}
	if !resp.Sender.Equals(peer) {
		return nil, fmt.Errorf("stream response signed by %s, expected %s", resp.Sender, peer)
	}
	if resp.RootCID != root {
		return nil, fmt.Errorf("stream response for %s, expected %s", resp.RootCID, root)
	}

	n.logger.WithFields(logrus.Fields{
		"stream":   root,
		"from":     peer,
		"children": len(resp.Children),
		"duration": time.Since(start).Nanoseconds(),
	}).Debug("StreamResponse")

	applied := []*object.Object{}
	stuck := []object.CID{}
	for _, c := range resp.Children {
		if g, ok := n.streams.Get(root); ok && g.Has(c) {
			continue
		}

		o, err := n.fetch(ctx, peer, c)
		if err != nil {
			return applied, err
		}

		if o.Metadata.Stream.IsEmpty() {
			if c != root {
				return applied, fmt.Errorf("%w: %s is not the root of %s", stream.ErrInvalidRoot, c, root)
			}
		} else if o.Metadata.Stream != root {
			return applied, fmt.Errorf("%w: %s", stream.ErrStreamMismatch, c)
		}

		objs, err := n.streams.Insert(o)
		applied = append(applied, objs...)
		if stream.IsUnresolvedParent(err) {
			stuck = append(stuck, c)
		} else if err != nil {
			return applied, err
		}
	}

	if len(stuck) == 0 {
		return applied, nil
	}

	objs, err := n.resolveParents(ctx, root, peer, stuck)
	return append(applied, objs...), err
}

// resolveParents fetches from peer the parents that the objects in stuck
// are still waiting for. It fails with an UnresolvedParentError when one of
// them remains pending; it is kept until its parents arrive or it expires.
func (n *Node) resolveParents(ctx context.Context, root object.CID, peer keys.PublicKey, stuck []object.CID) ([]*object.Object, error) {
	g, ok := n.streams.Get(root)
	if !ok {
		return nil, fmt.Errorf("%w: %s", stream.ErrUnknownStream, root)
	}

	applied := []*object.Object{}
	tried := map[object.CID]bool{}
	for {
		next := []object.CID{}
		for _, p := range g.MissingParents() {
			if !tried[p] {
				next = append(next, p)
			}
		}
		if len(next) == 0 {
			break
		}

		for _, p := range next {
			tried[p] = true

			o, err := n.fetch(ctx, peer, p)
			if err != nil {
				if ctx.Err() != nil {
					return applied, ctx.Err()
				}
				n.logger.WithError(err).WithField("parent", p).Debug("Fetching missing parent")
				continue
			}
			if o.Metadata.Stream != root {
				continue
			}

			objs, err := n.streams.Insert(o)
			applied = append(applied, objs...)
			if err != nil && !stream.IsUnresolvedParent(err) {
				return applied, err
			}
		}
	}

	for _, c := range stuck {
		if g.IsPending(c) {
			return applied, &stream.UnresolvedParentError{
				CID:     c,
				Missing: g.MissingParents(),
			}
		}
	}

	return applied, nil
}

// fetch requests a single object from a peer and checks it is the one we
// asked for.
func (n *Node) fetch(ctx context.Context, peer keys.PublicKey, cid object.CID) (*object.Object, error) {
	req := &stream.ObjectRequest{
		Nonce:     stream.NewNonce(),
		ObjectCID: cid,
	}
	reqObj, err := req.ToObject(n.key)
	if err != nil {
		return nil, err
	}

	respObj, err := n.request(ctx, peer, req.Nonce, reqObj)
	if err != nil {
		return nil, err
	}

	resp, err := stream.ObjectResponseFromObject(respObj)
	if err != nil {
		return nil, err
	}
	if resp.Object == nil {
		return nil, fmt.Errorf("%w: %s", ErrObjectUnavailable, cid)
	}

	got, err := object.Hash(resp.Object)
	if err != nil {
		return nil, err
	}
	if got != cid {
		return nil, fmt.Errorf("%w: asked for %s, got %s", ErrObjectUnavailable, cid, got)
	}

	return resp.Object, nil
}

// Subscribe asks a peer to announce the changes of a stream for ttl. A zero
// ttl uses the configured subscription lifetime. The peer becomes a provider
// of the stream for periodic syncs.
func (n *Node) Subscribe(ctx context.Context, root object.CID, peer keys.PublicKey, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = n.conf.SubscriptionTTL
	}

	sub := &stream.Subscription{
		RootCIDs: []object.CID{root},
		Expiry:   time.Now().Add(ttl),
	}
	o, err := sub.ToObject(n.key)
	if err != nil {
		return err
	}

	if _, err := n.Send(ctx, peer, o); err != nil {
		return err
	}

	n.addProvider(root, peer)

	return nil
}

func (n *Node) addProvider(root object.CID, peer keys.PublicKey) {
	n.selectorLock.Lock()
	defer n.selectorLock.Unlock()

	ps, ok := n.selectors[root]
	if !ok {
		ps = NewRandomPeerSelector(n.key.PublicKey())
		n.selectors[root] = ps
	}
	ps.Add(peer)
}

// Providers returns the peers known to hold a stream.
func (n *Node) Providers(root object.CID) []keys.PublicKey {
	n.selectorLock.Lock()
	defer n.selectorLock.Unlock()

	if ps, ok := n.selectors[root]; ok {
		return ps.Peers()
	}
	return nil
}

// SyncAny syncs a stream with one of its known providers.
func (n *Node) SyncAny(ctx context.Context, root object.CID) (int, error) {
	n.selectorLock.Lock()
	ps, ok := n.selectors[root]
	n.selectorLock.Unlock()

	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoProvider, root)
	}

	peer := ps.Next()
	if peer == nil {
		return 0, fmt.Errorf("%w: %s", ErrNoProvider, root)
	}
	ps.UpdateLast(peer)

	return n.Sync(ctx, root, peer)
}

// nextProviders picks a provider for every stream that has one.
func (n *Node) nextProviders() map[object.CID]keys.PublicKey {
	n.selectorLock.Lock()
	defer n.selectorLock.Unlock()

	res := map[object.CID]keys.PublicKey{}
	for root, ps := range n.selectors {
		if peer := ps.Next(); peer != nil {
			ps.UpdateLast(peer)
			res[root] = peer
		}
	}
	return res
}
