package net

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/nimona/src/object"
)

/*******************************************************************************
MOST OF THIS IS TAKEN FROM HASHICORP RAFT
*******************************************************************************/

const (
	bufSize = math.MaxUint16
)

var (
	// ErrTransportShutdown is returned when operations on a transport are
	// invoked after it's been terminated.
	ErrTransportShutdown = errors.New("transport shutdown")
)

// frame carries one encoded object on the wire. An empty Data field stands
// for no object.
type frame struct {
	Codec object.Codec `json:"codec"`
	Data  []byte       `json:"data,omitempty"`
}

func newFrame(codec object.Codec, o *object.Object) (*frame, error) {
	f := &frame{Codec: codec}
	if o == nil {
		return f, nil
	}
	data, err := object.Marshal(codec, o)
	if err != nil {
		return nil, err
	}
	f.Data = data
	return f, nil
}

func (f *frame) object() (*object.Object, error) {
	if len(f.Data) == 0 {
		return nil, nil
	}
	codec, err := object.ParseCodec(string(f.Codec))
	if err != nil {
		return nil, err
	}
	return object.Unmarshal(codec, f.Data)
}

// StreamLayer accepts and dials the connections a NetworkTransport writes its
// frames to.
type StreamLayer interface {
	net.Listener

	Dial(address string, timeout time.Duration) (net.Conn, error)

	// AdvertiseAddr is the address other peers should dial.
	AdvertiseAddr() string
}

/*
NetworkTransport provides a network based transport that can be
used to communicate with nimona on remote machines. It requires
an underlying stream layer to provide a stream abstraction, which can
be simple TCP, TLS, etc.

This transport is very simple and lightweight. Each request is a JSON frame
holding the object encoded with the codec of the transport.

The response is an error string followed by a response frame, which the
remote node encodes with its own codec.
*/
type NetworkTransport struct {
	logger *logrus.Entry

	connPool     map[string][]*netConn
	connPoolLock sync.Mutex
	maxPool      int

	consumeCh chan RPC

	shutdown     bool
	shutdownCh   chan struct{}
	shutdownLock sync.Mutex

	stream StreamLayer
	codec  object.Codec

	timeout time.Duration
}

type netConn struct {
	target string
	conn   net.Conn
	r      *bufio.Reader
	w      *bufio.Writer
	dec    *json.Decoder
	enc    *json.Encoder
}

// Release closes the underlying connection
func (n *netConn) Release() error {
	return n.conn.Close()
}

// NewNetworkTransport creates a new network transport with the given dialer
// and listener. The maxPool controls how many connections we will pool (per
// target). The timeout is used to apply I/O deadlines. Outgoing objects are
// encoded with codec.
func NewNetworkTransport(
	stream StreamLayer,
	maxPool int,
	timeout time.Duration,
	codec object.Codec,
	logger *logrus.Entry,
) *NetworkTransport {

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	if codec == "" {
		codec = object.JSONCodec
	}

	trans := &NetworkTransport{
		connPool:   make(map[string][]*netConn),
		consumeCh:  make(chan RPC),
		logger:     logger,
		maxPool:    maxPool,
		shutdownCh: make(chan struct{}),
		stream:     stream,
		codec:      codec,
		timeout:    timeout,
	}

	return trans
}

// Close is used to stop the network transport.
func (n *NetworkTransport) Close() error {
	n.shutdownLock.Lock()
	defer n.shutdownLock.Unlock()

	if !n.shutdown {
		close(n.shutdownCh)
		n.stream.Close()

		n.connPoolLock.Lock()
		for target, conns := range n.connPool {
			for _, c := range conns {
				c.Release()
			}
			delete(n.connPool, target)
		}
		n.connPoolLock.Unlock()

		n.shutdown = true
	}
	return nil
}

// Consumer implements the Transport interface.
func (n *NetworkTransport) Consumer() <-chan RPC {
	return n.consumeCh
}

// LocalAddr implements the Transport interface.
func (n *NetworkTransport) LocalAddr() string {
	addr := n.stream.Addr()

	if addr != nil {
		return addr.String()
	}

	return ""
}

// AdvertiseAddr implements the Transport interface.
func (n *NetworkTransport) AdvertiseAddr() string {
	return n.stream.AdvertiseAddr()
}

// Codec returns the codec used for outgoing objects.
func (n *NetworkTransport) Codec() object.Codec {
	return n.codec
}

// IsShutdown is used to check if the transport is shutdown.
func (n *NetworkTransport) IsShutdown() bool {
	select {
	case <-n.shutdownCh:
		return true
	default:
		return false
	}
}

// getPooledConn is used to grab a pooled connection.
func (n *NetworkTransport) getPooledConn(target string) *netConn {
	n.connPoolLock.Lock()
	defer n.connPoolLock.Unlock()

	conns, ok := n.connPool[target]
	if !ok || len(conns) == 0 {
		return nil
	}

	var conn *netConn
	num := len(conns)
	conn, conns[num-1] = conns[num-1], nil
	n.connPool[target] = conns[:num-1]
	return conn
}

// getConn is used to get a connection from the pool.
func (n *NetworkTransport) getConn(target string, timeout time.Duration) (*netConn, error) {
	// Check for a pooled conn
	if conn := n.getPooledConn(target); conn != nil {
		return conn, nil
	}

	// Dial a new connection
	conn, err := n.stream.Dial(target, timeout)
	if err != nil {
		return nil, err
	}

	// Wrap the conn
	netConn := &netConn{
		target: target,
		conn:   conn,
		r:      bufio.NewReaderSize(conn, bufSize),
		w:      bufio.NewWriterSize(conn, bufSize),
	}
	// Setup encoder/decoders
	netConn.dec = json.NewDecoder(netConn.r)
	netConn.enc = json.NewEncoder(netConn.w)

	// Done
	return netConn, nil
}

// returnConn returns a connection back to the pool.
func (n *NetworkTransport) returnConn(conn *netConn) {
	n.connPoolLock.Lock()
	defer n.connPoolLock.Unlock()

	key := conn.target
	conns := n.connPool[key]

	if !n.IsShutdown() && len(conns) < n.maxPool {
		n.connPool[key] = append(conns, conn)
	} else {
		conn.Release()
	}
}

// Send implements the Transport interface.
func (n *NetworkTransport) Send(target string, o *object.Object) (*object.Object, error) {
	if n.IsShutdown() {
		return nil, ErrTransportShutdown
	}

	req, err := newFrame(n.codec, o)
	if err != nil {
		return nil, err
	}

	// Get a conn
	conn, err := n.getConn(target, n.timeout)
	if err != nil {
		return nil, err
	}

	// Set a deadline
	if n.timeout > 0 {
		conn.conn.SetDeadline(time.Now().Add(n.timeout))
	}

	// Send the RPC
	if err = sendRPC(conn, req); err != nil {
		return nil, err
	}

	// Decode the response
	var resp frame
	canReturn, err := decodeResponse(conn, &resp)
	if canReturn {
		n.returnConn(conn)
	}
	if err != nil {
		return nil, err
	}

	return resp.object()
}

// sendRPC is used to encode and send the RPC.
func sendRPC(conn *netConn, req *frame) error {
	// Send the request
	if err := conn.enc.Encode(req); err != nil {
		conn.Release()
		return err
	}

	// Flush
	if err := conn.w.Flush(); err != nil {
		conn.Release()
		return err
	}
	return nil
}

// decodeResponse is used to decode an RPC response and reports whether
// the connection can be reused.
func decodeResponse(conn *netConn, resp *frame) (bool, error) {
	// Decode the error if any
	var rpcError string
	if err := conn.dec.Decode(&rpcError); err != nil {
		conn.Release()
		return false, err
	}

	// Decode the response
	if err := conn.dec.Decode(resp); err != nil {
		conn.Release()
		return false, err
	}

	// Format an error if any
	if rpcError != "" {
		return true, errors.New(rpcError)
	}
	return true, nil
}

// Listen opens the stream and handles incoming connections.
func (n *NetworkTransport) Listen() {
	for {
		// Accept incoming connections
		conn, err := n.stream.Accept()
		if err != nil {
			if n.IsShutdown() {
				return
			}
			n.logger.WithField("error", err).Error("Failed to accept connection")
			continue
		}
		n.logger.WithFields(logrus.Fields{
			"node": conn.LocalAddr(),
			"from": conn.RemoteAddr(),
		}).Debug("accepted connection")

		// Handle the connection in dedicated routine
		go n.handleConn(conn)
	}
}

// handleConn is used to handle an inbound connection for its lifespan.
func (n *NetworkTransport) handleConn(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReaderSize(conn, bufSize)
	w := bufio.NewWriterSize(conn, bufSize)
	dec := json.NewDecoder(r)
	enc := json.NewEncoder(w)

	for {
		if err := n.handleCommand(dec, enc); err != nil {

			if err == ErrTransportShutdown {
				n.logger.WithField("error", err).Warn("Failed to decode incoming object")
			} else {
				if err != io.EOF {
					n.logger.WithField("error", err).Error("Failed to decode incoming object")
				}
			}
			return
		}
		if err := w.Flush(); err != nil {
			n.logger.WithField("error", err).Error("Failed to flush response")
			return
		}
	}
}

// handleCommand is used to decode and dispatch a single object. Frames
// holding an object that cannot be decoded are answered with an error and do
// not close the connection.
func (n *NetworkTransport) handleCommand(dec *json.Decoder, enc *json.Encoder) error {
	var req frame
	if err := dec.Decode(&req); err != nil {
		return err
	}

	o, err := req.object()
	if err == nil && o == nil {
		err = fmt.Errorf("empty request")
	}
	if err != nil {
		n.logger.WithError(err).Debug("Rejecting incoming object")
		return encodeResponse(enc, n.codec, RPCResponse{Error: err})
	}

	// Create the RPC object
	respCh := make(chan RPCResponse, 1)
	rpc := RPC{
		Object:   o,
		RespChan: respCh,
	}

	// Dispatch the RPC
	select {
	case n.consumeCh <- rpc:
	case <-n.shutdownCh:
		return ErrTransportShutdown
	}

	// Wait for response
	select {
	case resp := <-respCh:
		return encodeResponse(enc, n.codec, resp)
	case <-n.shutdownCh:
		return ErrTransportShutdown
	}
}

func encodeResponse(enc *json.Encoder, codec object.Codec, resp RPCResponse) error {
	f, err := newFrame(codec, resp.Response)
	if err != nil {
		f = &frame{Codec: codec}
		resp.Error = err
	}

	// Send the error first
	respErr := ""
	if resp.Error != nil {
		respErr = resp.Error.Error()
	}
	if err := enc.Encode(respErr); err != nil {
		return err
	}

	// Send the response
	return enc.Encode(f)
}
