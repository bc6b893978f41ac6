package wamp

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gammazero/nexus/v3/client"
	"github.com/gammazero/nexus/v3/router"
	"github.com/gammazero/nexus/v3/wamp"
	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/nimona/src/net"
	"github.com/mosaicnetworks/nimona/src/object"
)

// Transport implements the net.Transport interface. It sends and receives
// objects through a WAMP router using WebSockets.
type Transport struct {
	pubKey    string
	routerURL string
	local     router.Router
	config    client.Config
	codec     object.Codec

	mu     sync.Mutex
	client *client.Client

	consumer   chan net.RPC
	shutdownCh chan struct{}
	closeOnce  sync.Once

	logger *logrus.Entry
}

// NewTransport instantiates a new Transport, and opens a connection to the
// WAMP router at url. The url must include the scheme (ws or wss).
func NewTransport(
	url string,
	realm string,
	pubKey string,
	caFile string,
	insecureSkipVerify bool,
	responseTimeout time.Duration,
	codec object.Codec,
	logger *logrus.Entry,
) (*Transport, error) {

	res := newTransport(realm, pubKey, responseTimeout, codec, logger)
	res.routerURL = url

	tlscfg, err := tlsConfig(caFile, insecureSkipVerify, res.logger)
	if err != nil {
		return nil, err
	}
	res.config.TlsCfg = tlscfg

	if err := res.Connect(); err != nil {
		return nil, err
	}

	return res, nil
}

// NewLocalTransport instantiates a Transport connected to a router running in
// the same process.
func NewLocalTransport(
	r router.Router,
	realm string,
	pubKey string,
	responseTimeout time.Duration,
	codec object.Codec,
	logger *logrus.Entry,
) (*Transport, error) {

	res := newTransport(realm, pubKey, responseTimeout, codec, logger)
	res.local = r

	if err := res.Connect(); err != nil {
		return nil, err
	}

	return res, nil
}

func newTransport(realm, pubKey string, responseTimeout time.Duration, codec object.Codec, logger *logrus.Entry) *Transport {
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}
	if codec == "" {
		codec = object.JSONCodec
	}

	return &Transport{
		pubKey: pubKey,
		config: client.Config{
			Realm:           realm,
			ResponseTimeout: responseTimeout,
			Logger:          logger,
		},
		codec:      codec,
		consumer:   make(chan net.RPC),
		shutdownCh: make(chan struct{}),
		logger:     logger,
	}
}

func tlsConfig(caFile string, insecureSkipVerify bool, logger *logrus.Entry) (*tls.Config, error) {
	tlscfg := &tls.Config{}

	if insecureSkipVerify {
		logger.Debug("Skip Verify. Accepting any certificate provided by WAMP server.")
		tlscfg.InsecureSkipVerify = true
		return tlscfg, nil
	}

	if _, err := os.Stat(caFile); caFile == "" || os.IsNotExist(err) {
		logger.Debugf("No certificate file found. Relying on platform trusted certificates.")
		return tlscfg, nil
	}

	// Load PEM-encoded certificate to trust.
	certPEM, err := os.ReadFile(caFile)
	if err != nil {
		return nil, err
	}

	// Create CertPool containing the certificate to trust.
	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM(certPEM) {
		return nil, errors.New("Failed to import certificate to trust")
	}

	// Trust the certificate by putting it into the pool of root CAs.
	tlscfg.RootCAs = roots

	// Decode and parse the server cert to extract the subject info.
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return nil, errors.New("Failed to decode certificate to trust")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, err
	}

	logger.Debugf("Trusting certificate %s with CN: %s", caFile, cert.Subject.CommonName)

	// Set ServerName in TLS config to CN from trusted cert so that
	// certificate will validate if CN does not match DNS name.
	tlscfg.ServerName = cert.Subject.CommonName

	return tlscfg, nil
}

// Connect creates a new WAMP client connected to the WAMP router. If a WAMP
// client already exists and is already connected, it does nothing.
func (t *Transport) Connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client != nil && t.client.Connected() {
		return nil
	}

	var (
		cli *client.Client
		err error
	)
	if t.local != nil {
		cli, err = client.ConnectLocal(t.local, t.config)
	} else {
		cli, err = client.ConnectNet(context.Background(), t.routerURL, t.config)
	}
	if err != nil {
		return err
	}

	t.client = cli

	return nil
}

func (t *Transport) wampClient() (*client.Client, error) {
	if err := t.Connect(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client, nil
}

// Listen implements the net.Transport interface. It registers a procedure
// within the WAMP router, identified by the public key of the transport,
// which forwards incoming objects to the consumer channel.
func (t *Transport) Listen() {
	cli, err := t.wampClient()
	if err != nil {
		t.logger.WithError(err).Error("Failed to connect to WAMP router")
		return
	}
	if err := cli.Register(t.pubKey, t.callHandler, nil); err != nil {
		t.logger.WithError(err).Error("Failed to register procedure")
		return
	}
	t.logger.Debug("Registered procedure with router")
}

// Consumer implements the net.Transport interface.
func (t *Transport) Consumer() <-chan net.RPC {
	return t.consumer
}

// LocalAddr implements the net.Transport interface.
func (t *Transport) LocalAddr() string {
	return Address(t.pubKey)
}

// AdvertiseAddr implements the net.Transport interface.
func (t *Transport) AdvertiseAddr() string {
	return Address(t.pubKey)
}

// Send implements the net.Transport interface. It calls the procedure of the
// target and waits for the reply.
func (t *Transport) Send(target string, o *object.Object) (*object.Object, error) {
	cli, err := t.wampClient()
	if err != nil {
		return nil, err
	}

	data, err := object.Marshal(t.codec, o)
	if err != nil {
		return nil, err
	}

	callArgs := wamp.List{
		string(t.codec),
		base64.StdEncoding.EncodeToString(data),
	}

	// Create a context to cancel the call after timeout.
	ctx, cancel := context.WithTimeout(
		context.Background(),
		t.config.ResponseTimeout,
	)
	defer cancel()

	result, err := cli.Call(ctx, Procedure(target), nil, callArgs, nil, nil)
	if err != nil {
		var rpcErr client.RPCError
		if errors.As(err, &rpcErr) && rpcErr.Err != nil && len(rpcErr.Err.Arguments) > 0 {
			if msg, ok := wamp.AsString(rpcErr.Err.Arguments[0]); ok {
				return nil, errors.New(msg)
			}
		}
		return nil, err
	}

	return decodeArgs(result.Arguments)
}

// Close implements the net.Transport interface. It closes the connection to
// the WAMP router.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.shutdownCh)

		t.mu.Lock()
		defer t.mu.Unlock()
		if t.client == nil {
			return
		}
		t.client.Unregister(t.pubKey)
		err = t.client.Close()
	})
	return err
}

// callHandler is called when an object is received from the router.
func (t *Transport) callHandler(ctx context.Context, inv *wamp.Invocation) client.InvokeResult {
	if len(inv.Arguments) != 2 {
		return errResult(
			fmt.Sprintf("Invocation should contain 2 arguments, not %d", len(inv.Arguments)))
	}

	o, err := decodeArgs(inv.Arguments)
	if err != nil {
		return errResult(fmt.Sprintf("Error decoding object: %v", err))
	}

	respCh := make(chan net.RPCResponse, 1)

	rpc := net.RPC{
		Object:   o,
		RespChan: respCh,
	}

	select {
	case t.consumer <- rpc:
	case <-t.shutdownCh:
		return errResult("transport shutdown")
	case <-ctx.Done():
		return errResult("Callee TIMEOUT")
	}

	// Wait for response
	timer := time.NewTimer(t.config.ResponseTimeout)
	defer timer.Stop()
	select {
	case <-timer.C:
		return errResult("Callee TIMEOUT")
	case <-t.shutdownCh:
		return errResult("transport shutdown")
	case resp := <-respCh:
		if resp.Error != nil {
			return errResult(resp.Error.Error())
		}

		if resp.Response == nil {
			return client.InvokeResult{}
		}

		data, err := object.Marshal(t.codec, resp.Response)
		if err != nil {
			return errResult(fmt.Sprintf("Error encoding response: %v", err))
		}

		return client.InvokeResult{
			Args: wamp.List{
				string(t.codec),
				base64.StdEncoding.EncodeToString(data),
			},
		}
	}
}

// decodeArgs reads an object from a [codec, base64 data] argument list. An
// empty list holds no object.
func decodeArgs(args wamp.List) (*object.Object, error) {
	if len(args) == 0 {
		return nil, nil
	}
	if len(args) != 2 {
		return nil, fmt.Errorf("expected 2 arguments, got %d", len(args))
	}

	name, ok := wamp.AsString(args[0])
	if !ok {
		return nil, errors.New("Error reading codec argument")
	}
	codec, err := object.ParseCodec(name)
	if err != nil {
		return nil, err
	}

	raw, ok := wamp.AsString(args[1])
	if !ok {
		return nil, errors.New("Error reading data argument")
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, err
	}

	return object.Unmarshal(codec, data)
}

func errResult(msg string) client.InvokeResult {
	return client.InvokeResult{
		Err:  ErrProcessingObject,
		Args: wamp.List{msg},
	}
}
