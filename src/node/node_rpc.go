package node

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/nimona/src/crypto/keys"
	"github.com/mosaicnetworks/nimona/src/net"
	"github.com/mosaicnetworks/nimona/src/object"
	"github.com/mosaicnetworks/nimona/src/peers"
	"github.com/mosaicnetworks/nimona/src/relay"
	"github.com/mosaicnetworks/nimona/src/store"
	"github.com/mosaicnetworks/nimona/src/stream"
)

// sendDirect tries the addresses of a peer in turn and returns the reply of
// the first one that answers.
func (n *Node) sendDirect(ctx context.Context, to keys.PublicKey, o *object.Object) (*object.Object, error) {
	addrs := n.addresses(to)
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoAddress, to)
	}

	var lastErr error
	for _, addr := range addrs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		reply, err := n.trans.Send(addr, o)
		if err == nil {
			n.metrics.Sends.WithLabelValues("direct").Inc()
			return reply, nil
		}

		n.logger.WithFields(logrus.Fields{
			"peer":    to,
			"address": addr,
			"error":   err,
		}).Debug("Direct send failed")
		lastErr = err
	}

	return nil, lastErr
}

// send delivers an object to a peer, directly when possible and through the
// relays of the peer otherwise. It reports whether the object was relayed,
// in which case there is no reply.
func (n *Node) send(ctx context.Context, to keys.PublicKey, o *object.Object) (*object.Object, bool, error) {
	reply, err := n.sendDirect(ctx, to, o)
	if err == nil {
		return reply, false, nil
	}

	info, ok := n.book.Get(to)
	if !ok || len(info.Relays) == 0 {
		return nil, false, err
	}

	for _, r := range info.Relays {
		n.learn(r)

		ferr := n.relayClient.Forward(ctx, r.PublicKey, to, o)
		if ferr == nil {
			n.metrics.Sends.WithLabelValues("relay").Inc()
			return nil, true, nil
		}

		n.logger.WithFields(logrus.Fields{
			"peer":  to,
			"relay": r.PublicKey,
			"error": ferr,
		}).Debug("Relayed send failed")
		err = ferr
	}

	return nil, false, err
}

// Send delivers an object to a peer: first to each of its addresses, then
// through each relay listed in its connection info. Objects that went
// through a relay have no reply.
func (n *Node) Send(ctx context.Context, to keys.PublicKey, o *object.Object) (*object.Object, error) {
	reply, _, err := n.send(ctx, to, o)
	return reply, err
}

// request sends a request and returns the response with the same nonce,
// whether it comes back as the reply or later through a relay.
func (n *Node) request(ctx context.Context, to keys.PublicKey, nonce string, req *object.Object) (*object.Object, error) {
	promise := NewResponsePromise(nonce, to)
	n.promises.add(promise)
	defer n.promises.remove(nonce)

	reply, _, err := n.send(ctx, to, req)
	if err != nil {
		return nil, err
	}
	if reply != nil {
		return reply, nil
	}

	select {
	case resp := <-promise.RespCh:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-n.shutdownCh:
		return nil, fmt.Errorf("node shut down")
	}
}

// Introduce sends our connection info to an address and records the one the
// peer answers with.
func (n *Node) Introduce(addr string) (*peers.ConnectionInfo, error) {
	o, err := n.ConnectionInfo().ToObject(n.key)
	if err != nil {
		return nil, err
	}

	reply, err := n.trans.Send(addr, o)
	if err != nil {
		return nil, err
	}
	if reply == nil {
		return nil, fmt.Errorf("no connection info from %s", addr)
	}

	info, err := n.acceptConnectionInfo(reply)
	if err != nil {
		return nil, err
	}

	return info, nil
}

func (n *Node) acceptConnectionInfo(o *object.Object) (*peers.ConnectionInfo, error) {
	if !object.IsSigned(o) {
		return nil, &object.MalformedObjectError{Reason: "unsigned connection info"}
	}

	info, err := peers.ConnectionInfoFromObject(o)
	if err != nil {
		return nil, err
	}

	if !info.PublicKey.Equals(n.key.PublicKey()) {
		if err := n.book.Put(info); err != nil {
			return nil, err
		}
	}

	for _, r := range info.Relays {
		n.learn(r)
	}

	return info, nil
}

func (n *Node) processRPC(rpc net.RPC) {
	ctx, cancel := n.requestContext(context.Background())
	defer cancel()

	resp, err := n.handle(ctx, rpc.Object)
	rpc.Respond(resp, err)
}

// handle dispatches an incoming object by type and returns the reply, if
// any.
func (n *Node) handle(ctx context.Context, o *object.Object) (*object.Object, error) {
	n.metrics.ObjectsReceived.WithLabelValues(o.Type).Inc()

	n.logger.WithFields(logrus.Fields{
		"type":   o.Type,
		"signer": o.Signer(),
	}).Debug("Processing object")

	switch o.Type {
	case stream.StreamRequestType:
		return n.processStreamRequest(o)
	case stream.ObjectRequestType:
		return n.processObjectRequest(o)
	case stream.AnnouncementType:
		return nil, n.processAnnouncement(o)
	case stream.SubscriptionType:
		return nil, n.processSubscription(o)
	case stream.StreamResponseType, stream.ObjectResponseType:
		if !n.promises.resolve(o) {
			n.logger.WithField("nonce", stream.Nonce(o)).Debug("Dropping unexpected response")
		}
		return nil, nil
	case peers.ConnectionInfoType:
		if _, err := n.acceptConnectionInfo(o); err != nil {
			return nil, err
		}
		return n.ConnectionInfo().ToObject(n.key)
	case relay.RequestType:
		if !n.conf.Relay {
			return nil, fmt.Errorf("not a relay")
		}
		return n.relayServer.Handle(ctx, o)
	case relay.EnvelopeType:
		return nil, n.processEnvelope(o)
	case relay.ResponseType:
		n.relayClient.HandleResponse(o)
		return nil, nil
	default:
		n.logger.WithField("type", o.Type).Debug("Unexpected object type")
		return nil, fmt.Errorf("unexpected object type %s", o.Type)
	}
}

func (n *Node) processStreamRequest(o *object.Object) (*object.Object, error) {
	req, err := stream.StreamRequestFromObject(o)
	if err != nil {
		return nil, err
	}

	resp := &stream.StreamResponse{
		Nonce:   req.Nonce,
		RootCID: req.RootCID,
	}

	if g, ok := n.streams.Get(req.RootCID); ok {
		for _, c := range g.Missing(req.Leaves) {
			if g.CanRead(req.Sender, c) {
				resp.Children = append(resp.Children, c.CID())
			}
		}
	}

	n.logger.WithFields(logrus.Fields{
		"stream":   req.RootCID,
		"from":     req.Sender,
		"leaves":   len(req.Leaves),
		"children": len(resp.Children),
	}).Debug("Responding to StreamRequest")

	return resp.ToObject(n.key)
}

func (n *Node) processObjectRequest(o *object.Object) (*object.Object, error) {
	req, err := stream.ObjectRequestFromObject(o)
	if err != nil {
		return nil, err
	}

	resp := &stream.ObjectResponse{
		Nonce: req.Nonce,
	}

	obj, err := n.streams.GetObject(req.ObjectCID)
	if err == nil {
		g, ok := n.streams.Get(store.StreamRoot(obj, req.ObjectCID))
		if ok && g.CanRead(req.Sender, obj) {
			resp.Object = obj
		}
	}

	return resp.ToObject(n.key)
}

func (n *Node) processAnnouncement(o *object.Object) error {
	ann, err := stream.AnnouncementFromObject(o)
	if err != nil {
		return err
	}

	n.addProvider(ann.RootCID, ann.Sender)

	if g, ok := n.streams.Get(ann.RootCID); ok {
		known := true
		for _, l := range ann.Leaves {
			if !g.Has(l) {
				known = false
				break
			}
		}
		if known {
			return nil
		}
	}

	n.goFunc(func() {
		ctx, cancel := n.requestContext(context.Background())
		defer cancel()
		if _, err := n.Sync(ctx, ann.RootCID, ann.Sender); err != nil {
			n.logger.WithError(err).WithField("stream", ann.RootCID).Debug("Sync after announcement failed")
		}
	})

	return nil
}

func (n *Node) processSubscription(o *object.Object) error {
	sub, err := stream.SubscriptionFromObject(o)
	if err != nil {
		return err
	}

	n.subscriptions.Add(sub.Sender, sub.RootCIDs, sub.Expiry)

	n.logger.WithFields(logrus.Fields{
		"from":    sub.Sender,
		"streams": len(sub.RootCIDs),
		"expiry":  sub.Expiry,
	}).Debug("Recorded subscription")

	return nil
}

// processEnvelope opens an envelope addressed to us and handles its payload
// as a new message. Forward requests found inside are handled as the next
// hop of a relay chain. Replies are sent back to the sender of the envelope.
func (n *Node) processEnvelope(o *object.Object) error {
	env, payload, err := relay.OpenEnvelope(o, n.key)
	if err != nil {
		n.logger.WithError(err).Debug("Dropping envelope")
		return err
	}

	n.logger.WithFields(logrus.Fields{
		"request_id": env.RequestID,
		"sender":     env.Sender,
		"type":       payload.Type,
	}).Debug("Opened envelope")

	ok := n.goFunc(func() {
		ctx, cancel := n.requestContext(context.Background())
		defer cancel()

		resp, err := n.handle(ctx, payload)
		if err != nil {
			n.logger.WithError(err).WithField("type", payload.Type).Debug("Handling envelope payload")
			return
		}
		if resp == nil {
			return
		}

		if _, err := n.Send(ctx, env.Sender, resp); err != nil {
			n.logger.WithError(err).WithField("to", env.Sender).Debug("Replying to envelope sender")
		}
	})
	if !ok {
		return fmt.Errorf("node busy")
	}

	return nil
}
