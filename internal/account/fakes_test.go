package account

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

type fakeStream struct {
	mu         sync.Mutex
	closed     bool
	reconnects int
}

func (s *fakeStream) Reconnect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnects++
	return nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeStream) reconnectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnects
}

// fakeStreams records the handler of every opened route so tests can push payloads,
// including to connections that were already detached.
type fakeStreams struct {
	mu       sync.Mutex
	handlers map[Route]MessageHandler
	streams  map[Route]*fakeStream
	opened   map[Route]int
	failOpen map[Route]error
}

func newFakeStreams() *fakeStreams {
	return &fakeStreams{
		handlers: make(map[Route]MessageHandler),
		streams:  make(map[Route]*fakeStream),
		opened:   make(map[Route]int),
		failOpen: make(map[Route]error),
	}
}

func (f *fakeStreams) Open(_ context.Context, route Route, handler MessageHandler) (Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failOpen[route]; err != nil {
		return nil, err
	}
	s := &fakeStream{}
	f.handlers[route] = handler
	f.streams[route] = s
	f.opened[route]++
	return s, nil
}

func (f *fakeStreams) deliver(route Route, payload string) error {
	f.mu.Lock()
	h, ok := f.handlers[route]
	f.mu.Unlock()
	if !ok {
		return errors.Errorf("route %s was never opened", route)
	}
	h([]byte(payload))
	return nil
}

func (f *fakeStreams) stream(route Route) *fakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams[route]
}

func (f *fakeStreams) openCount(route Route) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened[route]
}
