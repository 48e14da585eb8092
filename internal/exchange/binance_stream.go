package exchange

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/marginbook/internal/account"
	"github.com/vadiminshakov/marginbook/pkg/retrier"
	"go.uber.org/zap"
)

// TestnetStreamURL user data stream endpoint of the Binance spot testnet.
const TestnetStreamURL = "wss://testnet.binance.vision/ws"

const (
	defaultStreamURL         = "wss://stream.binance.com:9443/ws"
	defaultKeepaliveInterval = 30 * time.Minute
	defaultHandshakeTimeout  = 10 * time.Second
	defaultRedialInitial     = time.Second
	defaultRedialMax         = 30 * time.Second
	closeKeyTimeout          = 5 * time.Second
)

// StreamOptions configures user-data stream connections.
type StreamOptions struct {
	BaseURL           string
	KeepaliveInterval time.Duration
	HandshakeTimeout  time.Duration
	RedialInitial     time.Duration
	RedialMax         time.Duration
	// Sleeper replaces the redial backoff sleep, used by tests.
	Sleeper retrier.Sleeper
}

func (o *StreamOptions) applyDefaults() {
	if o.BaseURL == "" {
		o.BaseURL = defaultStreamURL
	}
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	if o.KeepaliveInterval <= 0 {
		o.KeepaliveInterval = defaultKeepaliveInterval
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = defaultHandshakeTimeout
	}
	if o.RedialInitial <= 0 {
		o.RedialInitial = defaultRedialInitial
	}
	if o.RedialMax <= 0 {
		o.RedialMax = defaultRedialMax
	}
}

// StreamFactory opens Binance user-data streams over websocket.
type StreamFactory struct {
	keys   ListenKeys
	opts   StreamOptions
	dialer *websocket.Dialer
	redial *retrier.Retrier
	logger *zap.Logger
}

// NewStreamFactory creates a stream factory.
func NewStreamFactory(keys ListenKeys, opts StreamOptions, logger *zap.Logger) *StreamFactory {
	opts.applyDefaults()

	retrierOpts := []retrier.Option{
		retrier.WithInitialInterval(opts.RedialInitial),
		retrier.WithMaxInterval(opts.RedialMax),
		retrier.WithMaxRetries(math.MaxInt32),
	}
	if opts.Sleeper != nil {
		retrierOpts = append(retrierOpts, retrier.WithSleeper(opts.Sleeper))
	}

	return &StreamFactory{
		keys:   keys,
		opts:   opts,
		dialer: &websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout},
		redial: retrier.New(retrierOpts...),
		logger: logger,
	}
}

// Open connects the route's stream. The connection lives until Close, independent of ctx.
func (f *StreamFactory) Open(ctx context.Context, route account.Route, handler account.MessageHandler) (account.Stream, error) {
	id := uuid.NewString()
	s := &userStream{
		factory: f,
		route:   route,
		handler: handler,
		logger:  f.logger.With(zap.Stringer("route", route), zap.String("conn_id", id)),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if err := s.connect(ctx); err != nil {
		s.cancel()
		return nil, err
	}

	go s.run()
	go s.keepalive()

	s.logger.Info("user stream connected")
	return s, nil
}

// userStream one route's connection. Messages are handed to handler from a single goroutine.
type userStream struct {
	factory *StreamFactory
	route   account.Route
	handler account.MessageHandler
	logger  *zap.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu   sync.Mutex
	conn *websocket.Conn
	key  string
}

func (s *userStream) connect(ctx context.Context) error {
	key, err := s.factory.keys.Start(ctx, s.route)
	if err != nil {
		return err
	}

	conn, _, err := s.factory.dialer.DialContext(ctx, s.factory.opts.BaseURL+"/"+key, nil)
	if err != nil {
		if cerr := s.factory.keys.Close(ctx, s.route, key); cerr != nil {
			s.logger.Debug("release listen key after failed dial", zap.Error(cerr))
		}
		return errors.Wrapf(err, "dial %s stream", s.route)
	}

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		_ = conn.Close()
		return s.ctx.Err()
	}
	previous := s.key
	s.conn = conn
	s.key = key
	s.mu.Unlock()

	if previous != "" && previous != key {
		if err := s.factory.keys.Close(ctx, s.route, previous); err != nil {
			s.logger.Debug("release previous listen key", zap.Error(err))
		}
	}

	return nil
}

func (s *userStream) run() {
	for {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()

		if conn != nil {
			s.read(conn)
		}
		if s.ctx.Err() != nil {
			return
		}

		err := s.factory.redial.Do(s.ctx, func(ctx context.Context) error {
			if err := s.connect(ctx); err != nil {
				s.logger.Warn("user stream redial failed", zap.Error(err))
				return err
			}
			return nil
		})
		if err != nil {
			if s.ctx.Err() == nil {
				s.logger.Error("user stream gave up reconnecting", zap.Error(err))
			}
			return
		}
		s.logger.Info("user stream reconnected")
	}
}

func (s *userStream) read(conn *websocket.Conn) {
	defer s.drop(conn)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() == nil {
				s.logger.Warn("user stream read failed", zap.Error(err))
			}
			return
		}
		s.handler(msg)
	}
}

// drop closes conn and forgets it if it is still current.
func (s *userStream) drop(conn *websocket.Conn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
	_ = conn.Close()
}

func (s *userStream) keepalive() {
	ticker := time.NewTicker(s.factory.opts.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		key := s.key
		s.mu.Unlock()
		if key == "" {
			continue
		}

		if err := s.factory.keys.Keepalive(s.ctx, s.route, key); err != nil {
			s.logger.Warn("listen key keepalive failed, reconnecting", zap.Error(err))
			_ = s.Reconnect(s.ctx)
		}
	}
}

// Reconnect drops the current connection, the run loop redials with a fresh listen key.
// It does not block and is safe to call from the message handler.
func (s *userStream) Reconnect(context.Context) error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

// Close stops the stream and invalidates its listen key. It does not wait for the
// handler to return and is safe to call from it.
func (s *userStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()

		s.mu.Lock()
		conn, key := s.conn, s.key
		s.conn = nil
		s.mu.Unlock()

		if conn != nil {
			_ = conn.Close()
		}
		if key == "" {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), closeKeyTimeout)
		defer cancel()
		err = s.factory.keys.Close(ctx, s.route, key)
		s.logger.Info("user stream closed")
	})
	return err
}
