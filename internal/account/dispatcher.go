package account

import (
	"context"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/marginbook/internal/domain"
	"github.com/vadiminshakov/marginbook/internal/metrics"
	"go.uber.org/zap"
)

// ErrReconnect the stream reported an error; the socket that delivered it must be
// reconnected and resubscribed. It never affects other sockets.
var ErrReconnect = errors.New("stream error event, reconnect required")

// Dispatcher routes raw user data events to the reconciler by event type.
type Dispatcher struct {
	reconciler *Reconciler
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(reconciler *Reconciler, m *metrics.Metrics, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{reconciler: reconciler, metrics: m, logger: logger}
}

// Dispatch decodes one payload delivered on route and applies it.
// A returned *domain.AccountError is fatal for the route's account scope.
func (d *Dispatcher) Dispatch(ctx context.Context, route Route, raw []byte) error {
	var head eventHeader
	if err := wireJSON.Unmarshal(raw, &head); err != nil {
		return malformed(route, "", err)
	}

	scope := route.Scope.String()
	d.metrics.EventDispatched(scope, head.Type)

	switch head.Type {
	case eventExecutionReport:
		var ev executionReport
		if err := wireJSON.Unmarshal(raw, &ev); err != nil {
			return malformed(route, head.Type, err)
		}
		order, err := ev.order(route)
		if err != nil {
			return malformed(route, head.Type, err)
		}
		return d.reconciler.ApplyExecution(ctx, order)

	case eventAccountPosition:
		var ev accountPosition
		if err := wireJSON.Unmarshal(raw, &ev); err != nil {
			return malformed(route, head.Type, err)
		}
		return d.reconciler.ApplyAccountPosition(ctx, route, millisToTime(ev.Time), ev.balances())

	case eventBalanceUpdate:
		var ev balanceUpdate
		if err := wireJSON.Unmarshal(raw, &ev); err != nil {
			return malformed(route, head.Type, err)
		}
		return d.reconciler.ApplyBalanceDelta(ctx, route, millisToTime(ev.Time), ev.Asset, ev.Delta)

	case eventListStatus:
		var ev listStatus
		if err := wireJSON.Unmarshal(raw, &ev); err != nil {
			return malformed(route, head.Type, err)
		}
		d.logger.Info("order list status",
			zap.Stringer("route", route),
			zap.String("symbol", ev.Symbol),
			zap.Int64("order_list_id", ev.OrderListID),
			zap.String("list_status", ev.ListStatusType),
			zap.String("list_order_status", ev.ListOrderStatus))
		return nil

	case eventError:
		var ev streamError
		if err := wireJSON.Unmarshal(raw, &ev); err != nil {
			return malformed(route, head.Type, err)
		}
		d.logger.Warn("stream reported error", zap.Stringer("route", route), zap.String("message", ev.Message))
		return ErrReconnect

	default:
		d.logger.Error("unknown stream event", zap.Stringer("route", route), zap.String("type", head.Type))
		return &domain.AccountError{
			Op:     "dispatch",
			Scope:  route.Scope,
			Symbol: route.Symbol,
			Detail: "type=" + head.Type,
			Err:    domain.ErrUnknownEvent,
		}
	}
}

func malformed(route Route, eventType string, cause error) error {
	detail := cause.Error()
	if eventType != "" {
		detail = "type=" + eventType + ": " + detail
	}
	return &domain.AccountError{
		Op:     "dispatch",
		Scope:  route.Scope,
		Symbol: route.Symbol,
		Detail: detail,
		Err:    domain.ErrMalformedEvent,
	}
}
