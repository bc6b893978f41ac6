package node

import (
	"math/rand"
	"sync"

	"github.com/mosaicnetworks/nimona/src/crypto/keys"
)

//PeerSelector defines and interface for Peer Selectors
type PeerSelector interface {
	Peers() []keys.PublicKey
	Add(peer keys.PublicKey)
	UpdateLast(peer keys.PublicKey)
	Next() keys.PublicKey
}

//+++++++++++++++++++++++++++++++++++++++
//RANDOM

//RandomPeerSelector picks the providers of a stream at random, avoiding the
//last one used when it can.
type RandomPeerSelector struct {
	sync.Mutex
	peers []keys.PublicKey
	self  keys.PublicKey
	last  keys.PublicKey
}

//NewRandomPeerSelector is a factory method that returns a new instance of RandomPeerSelector
func NewRandomPeerSelector(self keys.PublicKey, peers ...keys.PublicKey) *RandomPeerSelector {
	ps := &RandomPeerSelector{self: self}
	for _, p := range peers {
		ps.Add(p)
	}
	return ps
}

//Peers returns the selectable peers
func (ps *RandomPeerSelector) Peers() []keys.PublicKey {
	ps.Lock()
	defer ps.Unlock()
	return append([]keys.PublicKey(nil), ps.peers...)
}

//Add makes a peer selectable. Ourselves and known peers are ignored.
func (ps *RandomPeerSelector) Add(peer keys.PublicKey) {
	ps.Lock()
	defer ps.Unlock()

	if peer.IsEmpty() || peer.Equals(ps.self) {
		return
	}
	for _, p := range ps.peers {
		if p.Equals(peer) {
			return
		}
	}
	ps.peers = append(ps.peers, peer)
}

//UpdateLast sets the last peer
func (ps *RandomPeerSelector) UpdateLast(peer keys.PublicKey) {
	ps.Lock()
	defer ps.Unlock()
	ps.last = peer
}

//Next returns the next peer, or nil when there is none
func (ps *RandomPeerSelector) Next() keys.PublicKey {
	ps.Lock()
	defer ps.Unlock()

	selectablePeers := ps.peers

	if len(selectablePeers) == 0 {
		return nil
	}

	if len(selectablePeers) > 1 && !ps.last.IsEmpty() {
		filtered := make([]keys.PublicKey, 0, len(selectablePeers))
		for _, p := range selectablePeers {
			if !p.Equals(ps.last) {
				filtered = append(filtered, p)
			}
		}
		selectablePeers = filtered
	}

	i := rand.Intn(len(selectablePeers))

	return selectablePeers[i]
}
