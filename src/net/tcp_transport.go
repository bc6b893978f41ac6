package net

import (
	"errors"
	"net"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/nimona/src/object"
)

// TCPScheme may prefix TCP addresses, as in "tcp:10.0.0.1:1337", so they can
// be told apart from the addresses of other transports.
const TCPScheme = "tcp"

var (
	errNotAdvertisable = errors.New("local bind address is not advertisable")
	errNotTCP          = errors.New("local address is not a TCP address")
)

// tcpLayer carries the framed objects of a NetworkTransport over plain TCP
// connections.
type tcpLayer struct {
	*net.TCPListener
	advertise string
}

func (t *tcpLayer) Dial(address string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", stripTCPScheme(address), timeout)
}

func (t *tcpLayer) AdvertiseAddr() string {
	if t.advertise != "" {
		return t.advertise
	}
	return t.Addr().String()
}

func stripTCPScheme(address string) string {
	return strings.TrimPrefix(address, TCPScheme+":")
}

// NewTCPTransport listens on bindAddr and returns a NetworkTransport that
// exchanges objects encoded with codec over TCP. Peers are told to reach it
// at advertise, or at the bound address when advertise is empty; either way
// the address must not be unspecified.
func NewTCPTransport(
	bindAddr string,
	advertise string,
	maxPool int,
	timeout time.Duration,
	codec object.Codec,
	logger *logrus.Entry,
) (*NetworkTransport, error) {
	list, err := net.Listen("tcp", stripTCPScheme(bindAddr))
	if err != nil {
		return nil, err
	}

	if err := checkAdvertisable(list.Addr(), stripTCPScheme(advertise)); err != nil {
		list.Close()
		return nil, err
	}

	layer := &tcpLayer{
		TCPListener: list.(*net.TCPListener),
		advertise:   advertise,
	}

	return NewNetworkTransport(layer, maxPool, timeout, codec, logger), nil
}

func checkAdvertisable(bound net.Addr, advertise string) error {
	addr := bound
	if advertise != "" {
		resolved, err := net.ResolveTCPAddr("tcp", advertise)
		if err != nil {
			return err
		}
		addr = resolved
	}

	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return errNotTCP
	}
	if tcpAddr.IP.IsUnspecified() {
		return errNotAdvertisable
	}
	return nil
}
