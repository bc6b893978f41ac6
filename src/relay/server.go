package relay

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/mosaicnetworks/nimona/src/crypto/keys"
	"github.com/mosaicnetworks/nimona/src/object"
)

// Deliverer hands an object to a peer and returns its reply, if any.
type Deliverer interface {
	Deliver(ctx context.Context, to keys.PublicKey, o *object.Object) (*object.Object, error)
}

// DelivererFunc adapts a function to the Deliverer interface.
type DelivererFunc func(ctx context.Context, to keys.PublicKey, o *object.Object) (*object.Object, error)

// Deliver implements Deliverer.
func (f DelivererFunc) Deliver(ctx context.Context, to keys.PublicKey, o *object.Object) (*object.Object, error) {
	return f(ctx, to, o)
}

// ServerStats counts what a relay did.
type ServerStats struct {
	Forwarded   uint64
	Failed      uint64
	Dropped     uint64
	RateLimited uint64
}

// Server forwards envelopes on behalf of other peers.
type Server struct {
	key       keys.PrivateKey
	deliverer Deliverer

	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	forwarded   uint64
	failed      uint64
	dropped     uint64
	rateLimited uint64

	logger *logrus.Entry
}

// NewServer creates a relay server. Each sender may issue limit requests
// per second with bursts of burst; a zero limit disables throttling.
func NewServer(key keys.PrivateKey, deliverer Deliverer, limit rate.Limit, burst int, logger *logrus.Entry) *Server {
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}
	if limit == 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &Server{
		key:       key,
		deliverer: deliverer,
		limit:     limit,
		burst:     burst,
		limiters:  map[string]*rate.Limiter{},
		logger:    logger,
	}
}

func (s *Server) limiter(sender keys.PublicKey) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.limiters[sender.String()]
	if !ok {
		l = rate.NewLimiter(s.limit, s.burst)
		s.limiters[sender.String()] = l
	}
	return l
}

// Handle processes a forward request. Requests that cannot be authenticated
// yield neither a response nor an error.
func (s *Server) Handle(ctx context.Context, o *object.Object) (*object.Object, error) {
	req, err := RequestFromObject(o)
	if err != nil {
		atomic.AddUint64(&s.dropped, 1)
		s.logger.WithError(err).Debug("Dropping forward request")
		return nil, nil
	}

	logger := s.logger.WithFields(logrus.Fields{
		"request_id": req.RequestID,
		"sender":     req.Sender,
		"recipient":  req.Recipient,
	})

	if !s.limiter(req.Sender).Allow() {
		atomic.AddUint64(&s.rateLimited, 1)
		logger.Debug("Sender rate limited")
		return NewResponse(req.RequestID, false, ReasonRateLimited, s.key)
	}

	if _, err := s.deliverer.Deliver(ctx, req.Recipient, req.Envelope); err != nil {
		atomic.AddUint64(&s.failed, 1)
		logger.WithError(err).Debug("Forward failed")
		return NewResponse(req.RequestID, false, ReasonUnreachable, s.key)
	}

	atomic.AddUint64(&s.forwarded, 1)
	logger.Debug("Forwarded envelope")

	return NewResponse(req.RequestID, true, "", s.key)
}

// Stats returns the counters of the server.
func (s *Server) Stats() ServerStats {
	return ServerStats{
		Forwarded:   atomic.LoadUint64(&s.forwarded),
		Failed:      atomic.LoadUint64(&s.failed),
		Dropped:     atomic.LoadUint64(&s.dropped),
		RateLimited: atomic.LoadUint64(&s.rateLimited),
	}
}
