package account

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/marginbook/internal/domain"
	"github.com/vadiminshakov/marginbook/internal/metrics"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// socket one live connection. gen distinguishes it from earlier connections of the same route.
type socket struct {
	gen    uint64
	mu     sync.RWMutex
	closed bool
	stream Stream
}

func (sock *socket) current() Stream {
	sock.mu.RLock()
	defer sock.mu.RUnlock()
	return sock.stream
}

type livenessKey struct{}

// withLiveness attaches the check telling whether the connection an event came from is still attached.
func withLiveness(ctx context.Context, live func() bool) context.Context {
	return context.WithValue(ctx, livenessKey{}, live)
}

// sourceAttached reports whether the connection that delivered the event in ctx is still attached.
// Events applied outside a connection always are.
func sourceAttached(ctx context.Context) bool {
	live, ok := ctx.Value(livenessKey{}).(func() bool)
	return !ok || live()
}

// socketSet owns the live connections keyed by route.
// Events from a connection that was forgotten are dropped, never queued.
type socketSet struct {
	ctx        context.Context
	factory    StreamFactory
	dispatcher *Dispatcher
	onFatal    func(Route, error)
	metrics    *metrics.Metrics
	logger     *zap.Logger

	mu      sync.Mutex
	gen     uint64
	sockets map[Route]*socket
}

func newSocketSet(
	ctx context.Context,
	factory StreamFactory,
	dispatcher *Dispatcher,
	onFatal func(Route, error),
	m *metrics.Metrics,
	logger *zap.Logger,
) *socketSet {
	return &socketSet{
		ctx:        ctx,
		factory:    factory,
		dispatcher: dispatcher,
		onFatal:    onFatal,
		metrics:    m,
		logger:     logger,
		sockets:    make(map[Route]*socket),
	}
}

// open attaches a connection for route. Opening an attached route is a no-op.
func (s *socketSet) open(ctx context.Context, route Route) error {
	s.mu.Lock()
	if _, ok := s.sockets[route]; ok {
		s.mu.Unlock()
		return nil
	}
	s.gen++
	sock := &socket{gen: s.gen}
	// registered before dialing so events delivered during Open are accepted
	s.sockets[route] = sock
	s.mu.Unlock()

	stream, err := s.factory.Open(ctx, route, func(raw []byte) {
		s.handle(route, sock, raw)
	})
	if err != nil {
		s.remove(route, sock)
		return errors.Wrapf(err, "open %s stream", route)
	}

	sock.mu.Lock()
	if sock.closed {
		sock.mu.Unlock()
		// forgotten while dialing
		return stream.Close()
	}
	sock.stream = stream
	sock.mu.Unlock()

	s.logger.Info("stream attached", zap.Stringer("route", route), zap.Uint64("gen", sock.gen))
	return nil
}

func (s *socketSet) handle(route Route, sock *socket, raw []byte) {
	scope := route.Scope.String()

	if !s.live(route, sock) {
		s.metrics.EventDropped(scope, "detached")
		s.logger.Debug("dropping event for detached stream", zap.Stringer("route", route), zap.Uint64("gen", sock.gen))
		return
	}

	// no socket lock is held while dispatching: callbacks may close this socket
	ctx := withLiveness(s.ctx, func() bool { return s.live(route, sock) })
	err := s.dispatcher.Dispatch(ctx, route, raw)

	switch {
	case err == nil:
	case errors.Is(err, ErrReconnect):
		stream := sock.current()
		if stream == nil || !s.live(route, sock) {
			return
		}
		s.metrics.Reconnected(scope)
		if rerr := stream.Reconnect(s.ctx); rerr != nil {
			s.logger.Error("stream reconnect failed", zap.Stringer("route", route), zap.Error(rerr))
			s.fail(route, sock, rerr)
		}
	case domain.IsAccountError(err):
		s.fail(route, sock, err)
	default:
		s.logger.Error("failed to apply stream event", zap.Stringer("route", route), zap.Error(err))
	}
}

// live reports whether sock is open and still the route's connection.
func (s *socketSet) live(route Route, sock *socket) bool {
	sock.mu.RLock()
	closed := sock.closed
	sock.mu.RUnlock()

	return !closed && s.isCurrent(route, sock)
}

// fail shuts the route down after an error that makes its state untrustworthy.
func (s *socketSet) fail(route Route, sock *socket, err error) {
	if !s.remove(route, sock) {
		return
	}
	s.metrics.ScopeFailed(route.Scope.String())
	s.logger.Error("stream closed after fatal error", zap.Stringer("route", route), zap.Error(err))

	if cerr := s.closeSocket(sock); cerr != nil {
		s.logger.Warn("failed to close stream", zap.Stringer("route", route), zap.Error(cerr))
	}
	if s.onFatal != nil {
		s.onFatal(route, err)
	}
}

func (s *socketSet) isCurrent(route Route, sock *socket) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sockets[route] == sock
}

// remove forgets sock if it is still the route's connection.
func (s *socketSet) remove(route Route, sock *socket) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sockets[route] != sock {
		return false
	}
	delete(s.sockets, route)
	return true
}

// closeSocket marks the socket closed. It never waits for an event being dispatched,
// store mutations re-check liveness under the store lock instead.
func (s *socketSet) closeSocket(sock *socket) error {
	sock.mu.Lock()
	sock.closed = true
	stream := sock.stream
	sock.mu.Unlock()

	if stream == nil {
		return nil
	}
	return stream.Close()
}

// close forgets the route's key first, then detaches the connection.
func (s *socketSet) close(route Route) error {
	s.mu.Lock()
	sock, ok := s.sockets[route]
	delete(s.sockets, route)
	s.mu.Unlock()

	if !ok {
		return nil
	}
	return s.closeSocket(sock)
}

func (s *socketSet) attached(route Route) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sockets[route]
	return ok
}

func (s *socketSet) closeAll() error {
	s.mu.Lock()
	all := s.sockets
	s.sockets = make(map[Route]*socket)
	s.mu.Unlock()

	var err error
	for route, sock := range all {
		if cerr := s.closeSocket(sock); cerr != nil {
			err = multierr.Append(err, errors.Wrapf(cerr, "close %s stream", route))
		}
	}
	return err
}
