package node

import (
	"sync"

	"github.com/mosaicnetworks/nimona/src/crypto/keys"
	"github.com/mosaicnetworks/nimona/src/object"
	"github.com/mosaicnetworks/nimona/src/stream"
)

// ResponsePromise waits for the response to a request whose reply does not
// come back on the same connection, such as requests sent through relays.
type ResponsePromise struct {
	From   keys.PublicKey
	RespCh chan *object.Object
	nonce  string
}

// NewResponsePromise creates a promise for the response with the given
// nonce, expected to be signed by from.
func NewResponsePromise(nonce string, from keys.PublicKey) *ResponsePromise {
	return &ResponsePromise{
		From:   from,
		nonce:  nonce,
		RespCh: make(chan *object.Object, 1),
	}
}

// Respond delivers a response. Only the first one is kept.
func (p *ResponsePromise) Respond(o *object.Object) {
	select {
	case p.RespCh <- o:
	default:
	}
}

type promises struct {
	sync.Mutex
	byNonce map[string]*ResponsePromise
}

func newPromises() *promises {
	return &promises{byNonce: map[string]*ResponsePromise{}}
}

func (ps *promises) add(p *ResponsePromise) {
	ps.Lock()
	defer ps.Unlock()
	ps.byNonce[p.nonce] = p
}

func (ps *promises) remove(nonce string) {
	ps.Lock()
	defer ps.Unlock()
	delete(ps.byNonce, nonce)
}

func (ps *promises) len() int {
	ps.Lock()
	defer ps.Unlock()
	return len(ps.byNonce)
}

// resolve hands a response to the promise with the same nonce, provided it
// is signed by the expected peer. It reports whether a promise took it.
func (ps *promises) resolve(o *object.Object) bool {
	if ok, err := object.Verify(o); err != nil || !ok {
		return false
	}

	nonce := stream.Nonce(o)

	ps.Lock()
	p, ok := ps.byNonce[nonce]
	if ok && p.From.Equals(o.Signer()) {
		delete(ps.byNonce, nonce)
	} else {
		ok = false
	}
	ps.Unlock()

	if !ok {
		return false
	}
	p.Respond(o)
	return true
}
