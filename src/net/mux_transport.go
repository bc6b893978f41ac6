package net

import (
	"fmt"
	"strings"
	"sync"

	"github.com/mosaicnetworks/nimona/src/object"
)

// MuxTransport sends objects over the transport registered for the scheme of
// the target address, falling back to a default transport. Incoming objects
// of every transport are merged into one consumer channel.
type MuxTransport struct {
	def     Transport
	schemes map[string]Transport
	order   []string

	consumeCh  chan RPC
	listenOnce sync.Once
	closeOnce  sync.Once
	shutdownCh chan struct{}
}

// NewMuxTransport creates a MuxTransport around a default transport, which
// may be nil.
func NewMuxTransport(def Transport) *MuxTransport {
	return &MuxTransport{
		def:        def,
		schemes:    make(map[string]Transport),
		consumeCh:  make(chan RPC),
		shutdownCh: make(chan struct{}),
	}
}

// Register routes targets of the form "<scheme>:..." to t. It must be called
// before Listen.
func (m *MuxTransport) Register(scheme string, t Transport) {
	if _, ok := m.schemes[scheme]; !ok {
		m.order = append(m.order, scheme)
	}
	m.schemes[scheme] = t
}

func (m *MuxTransport) all() []Transport {
	res := []Transport{}
	if m.def != nil {
		res = append(res, m.def)
	}
	for _, s := range m.order {
		res = append(res, m.schemes[s])
	}
	return res
}

func (m *MuxTransport) route(target string) (Transport, error) {
	if i := strings.Index(target, ":"); i > 0 {
		if t, ok := m.schemes[target[:i]]; ok {
			return t, nil
		}
	}
	if m.def == nil {
		return nil, fmt.Errorf("no transport for %s", target)
	}
	return m.def, nil
}

// Listen implements the Transport interface. It starts every transport.
func (m *MuxTransport) Listen() {
	m.listenOnce.Do(func() {
		for _, t := range m.all() {
			go t.Listen()
			go m.forward(t.Consumer())
		}
	})
}

func (m *MuxTransport) forward(ch <-chan RPC) {
	for {
		select {
		case rpc := <-ch:
			select {
			case m.consumeCh <- rpc:
			case <-m.shutdownCh:
				return
			}
		case <-m.shutdownCh:
			return
		}
	}
}

// Consumer implements the Transport interface.
func (m *MuxTransport) Consumer() <-chan RPC {
	return m.consumeCh
}

// LocalAddr implements the Transport interface.
func (m *MuxTransport) LocalAddr() string {
	if m.def == nil {
		return ""
	}
	return m.def.LocalAddr()
}

// AdvertiseAddr implements the Transport interface.
func (m *MuxTransport) AdvertiseAddr() string {
	if m.def == nil {
		return ""
	}
	return m.def.AdvertiseAddr()
}

// Addresses returns the advertise address of every transport.
func (m *MuxTransport) Addresses() []string {
	res := []string{}
	for _, t := range m.all() {
		if a := t.AdvertiseAddr(); a != "" {
			res = append(res, a)
		}
	}
	return res
}

// Send implements the Transport interface.
func (m *MuxTransport) Send(target string, o *object.Object) (*object.Object, error) {
	t, err := m.route(target)
	if err != nil {
		return nil, err
	}
	return t.Send(target, o)
}

// Close implements the Transport interface. It closes every transport and
// returns the first error.
func (m *MuxTransport) Close() error {
	var first error
	m.closeOnce.Do(func() {
		close(m.shutdownCh)
		for _, t := range m.all() {
			if err := t.Close(); err != nil && first == nil {
				first = err
			}
		}
	})
	return first
}
