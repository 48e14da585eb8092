package orders

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/vadiminshakov/marginbook/internal/domain"
)

const DefaultKeyPrefix = "marginbook"

// RedisStore keeps the latest version of each order in a Redis hash per symbol
// (field = order id) and the set of known symbols next to it.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed order store.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) ordersKey(symbol domain.Symbol) string {
	return s.prefix + ":orders:" + symbol.String()
}

func (s *RedisStore) symbolsKey() string {
	return s.prefix + ":orders:symbols"
}

// InsertOrUpdate stores the order, replacing a previous version.
func (s *RedisStore) InsertOrUpdate(ctx context.Context, order domain.Order) error {
	if order.Symbol.IsZero() {
		return errors.New("order symbol is required")
	}

	payload, err := json.Marshal(order)
	if err != nil {
		return errors.Wrap(err, "marshal order")
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.ordersKey(order.Symbol), strconv.FormatInt(order.ID, 10), payload)
		pipe.SAdd(ctx, s.symbolsKey(), order.Symbol.String())
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "store order %s", order.Key())
	}

	return nil
}

// Order returns the stored order.
func (s *RedisStore) Order(ctx context.Context, key domain.OrderKey) (domain.Order, bool, error) {
	raw, err := s.client.HGet(ctx, s.ordersKey(key.Symbol), strconv.FormatInt(key.ID, 10)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Order{}, false, nil
		}
		return domain.Order{}, false, errors.Wrapf(err, "get order %s", key)
	}

	var o domain.Order
	if err := json.Unmarshal(raw, &o); err != nil {
		return domain.Order{}, false, errors.Wrapf(err, "decode order %s", key)
	}
	return o, true, nil
}

// Orders returns every stored order of symbol, or of every symbol when symbol is empty.
// Orders are sorted by symbol and id.
func (s *RedisStore) Orders(ctx context.Context, symbol domain.Symbol) ([]domain.Order, error) {
	symbols := []string{symbol.String()}
	if symbol.IsZero() {
		var err error
		if symbols, err = s.client.SMembers(ctx, s.symbolsKey()).Result(); err != nil {
			return nil, errors.Wrap(err, "list order symbols")
		}
	}

	var out []domain.Order
	for _, sym := range symbols {
		values, err := s.client.HVals(ctx, s.ordersKey(domain.Symbol(sym))).Result()
		if err != nil {
			return nil, errors.Wrapf(err, "list orders of %s", sym)
		}
		for _, raw := range values {
			var o domain.Order
			if err := json.Unmarshal([]byte(raw), &o); err != nil {
				return nil, errors.Wrapf(err, "decode order of %s", sym)
			}
			out = append(out, o)
		}
	}

	sortOrders(out)
	return out, nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
