package orders

import (
	"context"

	"github.com/vadiminshakov/marginbook/internal/domain"
)

// Store persisted order records.
type Store interface {
	InsertOrUpdate(ctx context.Context, order domain.Order) error
	Order(ctx context.Context, key domain.OrderKey) (domain.Order, bool, error)
	Orders(ctx context.Context, symbol domain.Symbol) ([]domain.Order, error)
	Close() error
}

var (
	_ Store = (*WALStore)(nil)
	_ Store = (*RedisStore)(nil)
)
