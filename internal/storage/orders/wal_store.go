// Package orders persists order records produced by the account engine.
package orders

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
	"github.com/vadiminshakov/marginbook/internal/domain"
)

const (
	DefaultDir   = "./wal/orders"
	segmentLimit = 1000
	maxSegments  = 10

	orderKeyPrefix = "order_"
)

var errNotInitialized = errors.New("order store is not initialized")

// Record one persisted order version with its WAL index.
type Record struct {
	Index uint64       `json:"index"`
	Order domain.Order `json:"order"`
}

// WALStore appends every order version to a WAL and keeps the latest version of each
// order in memory.
type WALStore struct {
	wal    *gowal.Wal
	mu     sync.RWMutex
	latest map[domain.OrderKey]domain.Order
}

// NewWALStore opens the WAL in dir and replays it.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = DefaultDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "orders_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init order WAL")
	}

	s := &WALStore{wal: wal, latest: make(map[domain.OrderKey]domain.Order)}
	records, err := s.RecordsAfter(0)
	if err != nil {
		_ = wal.Close()
		return nil, err
	}
	for _, r := range records {
		s.latest[r.Order.Key()] = r.Order
	}

	return s, nil
}

// InsertOrUpdate appends the order version.
func (s *WALStore) InsertOrUpdate(_ context.Context, order domain.Order) error {
	if s == nil || s.wal == nil {
		return errNotInitialized
	}
	if order.Symbol.IsZero() {
		return errors.New("order symbol is required")
	}

	payload, err := json.Marshal(order)
	if err != nil {
		return errors.Wrap(err, "marshal order")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	if err := s.wal.Write(nextIndex, orderKeyPrefix+order.Key().String(), payload); err != nil {
		return errors.Wrapf(err, "write order %s", order.Key())
	}
	s.latest[order.Key()] = order

	return nil
}

// Order returns the latest stored version of the order.
func (s *WALStore) Order(_ context.Context, key domain.OrderKey) (domain.Order, bool, error) {
	if s == nil || s.wal == nil {
		return domain.Order{}, false, errNotInitialized
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.latest[key]
	return o, ok, nil
}

// Orders returns the latest version of every stored order of symbol, or of every symbol
// when symbol is empty. Orders are sorted by symbol and id.
func (s *WALStore) Orders(_ context.Context, symbol domain.Symbol) ([]domain.Order, error) {
	if s == nil || s.wal == nil {
		return nil, errNotInitialized
	}

	s.mu.RLock()
	out := make([]domain.Order, 0, len(s.latest))
	for key, o := range s.latest {
		if !symbol.IsZero() && key.Symbol != symbol {
			continue
		}
		out = append(out, o)
	}
	s.mu.RUnlock()

	sortOrders(out)
	return out, nil
}

// RecordsAfter returns every order version written after the provided WAL index.
func (s *WALStore) RecordsAfter(index uint64) ([]Record, error) {
	if s == nil || s.wal == nil {
		return nil, errNotInitialized
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	records := make([]Record, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil {
			// rotated out
			continue
		}
		if !strings.HasPrefix(key, orderKeyPrefix) {
			continue
		}

		var o domain.Order
		if err := json.Unmarshal(payload, &o); err != nil {
			return nil, errors.Wrapf(err, "decode order record %d", idx)
		}
		records = append(records, Record{Index: idx, Order: o})
	}

	return records, nil
}

// CurrentIndex returns the latest WAL index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errNotInitialized
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}

func sortOrders(list []domain.Order) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Symbol != list[j].Symbol {
			return list[i].Symbol < list[j].Symbol
		}
		return list[i].ID < list[j].ID
	})
}
