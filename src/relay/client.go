package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/nimona/src/crypto/keys"
	"github.com/mosaicnetworks/nimona/src/object"
)

type waiter struct {
	relay keys.PublicKey
	ch    chan *Response
}

// Client sends objects through relays and waits for their responses.
type Client struct {
	key       keys.PrivateKey
	codec     object.Codec
	deliverer Deliverer
	timeout   time.Duration

	mu      sync.Mutex
	waiters map[string]*waiter

	logger *logrus.Entry
}

// NewClient creates a Client. Payloads are encoded with codec before being
// encrypted, and every forward gives up after timeout.
func NewClient(key keys.PrivateKey, codec object.Codec, deliverer Deliverer, timeout time.Duration, logger *logrus.Entry) *Client {
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}
	return &Client{
		key:       key,
		codec:     codec,
		deliverer: deliverer,
		timeout:   timeout,
		waiters:   map[string]*waiter{},
		logger:    logger,
	}
}

// Forward sends payload to recipient through relay and waits for the relay
// to confirm delivery.
func (c *Client) Forward(ctx context.Context, relay, recipient keys.PublicKey, payload *object.Object) error {
	return c.ForwardVia(ctx, []keys.PublicKey{relay}, recipient, payload)
}

type hop struct {
	requestID string
	relay     keys.PublicKey
}

// ForwardVia sends payload to recipient through a chain of relays. The
// request for each hop travels encrypted inside the envelope of the previous
// one. It returns once every relay of the chain confirmed delivery, or with
// the first failure.
func (c *Client) ForwardVia(ctx context.Context, path []keys.PublicKey, recipient keys.PublicKey, payload *object.Object) error {
	if len(path) == 0 {
		return ErrEmptyPath
	}

	hops := make([]hop, len(path))
	target := recipient
	inner := payload
	for i := len(path) - 1; i >= 0; i-- {
		id := NewRequestID()

		env, err := NewEnvelope(id, c.key, target, inner, c.codec)
		if err != nil {
			return err
		}

		req, err := NewRequest(id, target, env, c.key)
		if err != nil {
			return err
		}

		hops[i] = hop{requestID: id, relay: path[i]}
		inner = req
		target = path[i]
	}

	chans := make([]chan *Response, len(hops))
	for i, h := range hops {
		chans[i] = c.register(h.requestID, h.relay)
	}
	defer func() {
		for _, h := range hops {
			c.unregister(h.requestID)
		}
	}()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	errCh := make(chan error, 1)
	go func() {
		reply, err := c.deliverer.Deliver(ctx, path[0], inner)
		if err != nil {
			errCh <- err
			return
		}
		if reply != nil {
			c.HandleResponse(reply)
		}
	}()

	for i, h := range hops {
		var res *Response
		select {
		case res = <-chans[i]:
		case err := <-errCh:
			if i == 0 {
				return &DeliveryError{RequestID: h.requestID, Relay: h.relay, Reason: err.Error()}
			}
			// delivery already confirmed by the first hop
			select {
			case res = <-chans[i]:
			case <-ctx.Done():
				return ctxError(ctx)
			}
		case <-ctx.Done():
			return ctxError(ctx)
		}

		if !res.Success {
			return &DeliveryError{RequestID: h.requestID, Relay: h.relay, Reason: res.Error}
		}
	}

	return nil
}

func ctxError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ctx.Err()
}

func (c *Client) register(requestID string, relay keys.PublicKey) chan *Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan *Response, 1)
	c.waiters[requestID] = &waiter{relay: relay, ch: ch}
	return ch
}

func (c *Client) unregister(requestID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.waiters, requestID)
}

// HandleResponse hands a forward response to the request waiting for it.
// Responses nobody waits for, duplicates, and responses signed by another
// peer than the relay the request was sent to are dropped. It reports
// whether the response was consumed.
func (c *Client) HandleResponse(o *object.Object) bool {
	res, err := ResponseFromObject(o)
	if err != nil {
		c.logger.WithError(err).Debug("Invalid forward response")
		return false
	}

	c.mu.Lock()
	w, ok := c.waiters[res.RequestID]
	if ok && w.relay.Equals(res.Sender) {
		delete(c.waiters, res.RequestID)
	} else {
		ok = false
	}
	c.mu.Unlock()

	if !ok {
		c.logger.WithField("request_id", res.RequestID).Debug("Dropping unexpected forward response")
		return false
	}

	w.ch <- res
	return true
}

// Waiting returns the number of requests waiting for a response.
func (c *Client) Waiting() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}
