package stream

import (
	"sort"
	"sync"
	"time"

	"github.com/mosaicnetworks/nimona/src/crypto/keys"
	"github.com/mosaicnetworks/nimona/src/object"
)

type subscriber struct {
	key   keys.PublicKey
	roots map[object.CID]time.Time
}

// Subscriptions records which peers want to hear about which streams.
type Subscriptions struct {
	mu   sync.Mutex
	subs map[string]*subscriber
}

// NewSubscriptions creates an empty table.
func NewSubscriptions() *Subscriptions {
	return &Subscriptions{
		subs: map[string]*subscriber{},
	}
}

// Add subscribes key to roots until expiry. A later subscription to the same
// root replaces the expiry.
func (s *Subscriptions) Add(key keys.PublicKey, roots []object.CID, expiry time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[key.String()]
	if !ok {
		sub = &subscriber{
			key:   key,
			roots: map[object.CID]time.Time{},
		}
		s.subs[key.String()] = sub
	}
	for _, r := range roots {
		sub.roots[r] = expiry
	}
}

// Subscribers returns the keys subscribed to root at time now, sorted by
// their string form.
func (s *Subscriptions) Subscribers(root object.CID, now time.Time) []keys.PublicKey {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := []keys.PublicKey{}
	for _, sub := range s.subs {
		if exp, ok := sub.roots[root]; ok && exp.After(now) {
			res = append(res, sub.key)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].String() < res[j].String() })
	return res
}

// Prune removes expired subscriptions and returns how many were removed.
func (s *Subscriptions) Prune(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k, sub := range s.subs {
		for r, exp := range sub.roots {
			if !exp.After(now) {
				delete(sub.roots, r)
				n++
			}
		}
		if len(sub.roots) == 0 {
			delete(s.subs, k)
		}
	}
	return n
}

// Len returns the number of live (subscriber, root) pairs, expired ones
// included until pruned.
func (s *Subscriptions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sub := range s.subs {
		n += len(sub.roots)
	}
	return n
}
