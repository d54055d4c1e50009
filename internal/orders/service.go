package orders

import (
	"context"
	"errors"
	"time"

	"mx-orderdesk/internal/engine"
	"mx-orderdesk/internal/model"
	"mx-orderdesk/internal/notify"
	"mx-orderdesk/internal/ordercache"
	"mx-orderdesk/internal/types"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DurableLog is the authoritative relational order log.
type DurableLog interface {
	InsertQueued(ctx context.Context, o model.Order) error
	FindOrCreate(ctx context.Context, o model.Order) (model.Order, error)
	MarkRejected(ctx context.Context, kind types.AccountKind, orderID, reason string) error
	ApplyExecution(ctx context.Context, kind types.AccountKind, orderID string, status types.OrderStatus, price, margin, contractValue, commission *decimal.Decimal) error
	SetCloseIDs(ctx context.Context, kind types.AccountKind, orderID, closeID, slCancelID, tpCancelID string) error
	ClearCloseClaim(ctx context.Context, kind types.AccountKind, orderID, closeID string) error
	SetStopLoss(ctx context.Context, kind types.AccountKind, orderID, stopLossID string, price *decimal.Decimal) error
	SetTakeProfit(ctx context.Context, kind types.AccountKind, orderID, takeProfitID string, price *decimal.Decimal) error
	FinalizeClose(ctx context.Context, kind types.AccountKind, orderID string, closePrice, netProfit, swap, totalCommission *decimal.Decimal) error
	GetByID(ctx context.Context, kind types.AccountKind, orderID string) (model.Order, bool, error)
	ListByAccount(ctx context.Context, kind types.AccountKind, accountID string, limit int) ([]model.Order, error)
	ListByStatus(ctx context.Context, kind types.AccountKind, accountID string, status types.OrderStatus) ([]model.Order, error)
	AddNetProfit(ctx context.Context, kind types.AccountKind, accountID string, delta decimal.Decimal) error
}

// OrderCache is the volatile mirror of open orders. All writes here are
// fire-and-forget on the request path.
type OrderCache interface {
	Put(ctx context.Context, o model.Order) error
	Get(ctx context.Context, orderID string) (ordercache.Record, bool, error)
	SetStopLoss(ctx context.Context, orderID, stopLossID string, price decimal.Decimal) error
	SetTakeProfit(ctx context.Context, orderID, takeProfitID string, price decimal.Decimal) error
	Delete(ctx context.Context, orderID string) error
	HoldingEntry(ctx context.Context, kind types.AccountKind, accountID, orderID string) (decimal.Decimal, bool, error)
}

type ExecutionBridge interface {
	Execute(ctx context.Context, req engine.ExecuteRequest) (engine.ExecuteResponse, error)
	Close(ctx context.Context, req engine.CloseRequest) (engine.CloseResponse, error)
	AttachTrigger(ctx context.Context, req engine.AttachTriggerRequest) (engine.AttachTriggerResponse, error)
}

type IDGenerator interface {
	Next(ctx context.Context, kind types.IDKind) (string, error)
}

type Authorizer interface {
	Authorize(ctx context.Context, userID string, kind types.AccountKind, accountID string) error
}

type MarketHours interface {
	IsOpen(symbol string, t time.Time) bool
}

type MarginPropagator interface {
	Propagate(ctx context.Context, kind types.AccountKind, accountID string, usedMargin decimal.Decimal)
}

type Notifier interface {
	Publish(evt notify.Event)
}

// Service is the order lifecycle coordinator: it drives intake, the
// execution bridge, the durable log and the cache, and keeps the two stores
// consistent across the local/provider execution split.
type Service struct {
	durable DurableLog
	cache   OrderCache
	bridge  ExecutionBridge
	ids     IDGenerator
	authz   Authorizer
	hours   MarketHours
	margin  MarginPropagator
	events  Notifier
	log     *zap.Logger
	now     func() time.Time
}

func NewService(durable DurableLog, cache OrderCache, bridge ExecutionBridge, ids IDGenerator, authz Authorizer, hours MarketHours, margin MarginPropagator, events Notifier, log *zap.Logger) *Service {
	return &Service{
		durable: durable,
		cache:   cache,
		bridge:  bridge,
		ids:     ids,
		authz:   authz,
		hours:   hours,
		margin:  margin,
		events:  events,
		log:     log,
		now:     time.Now,
	}
}

type PlaceRequest struct {
	UserID         string
	AccountID      string
	AccountKind    types.AccountKind
	Symbol         string
	Side           types.OrderSide
	Price          decimal.Decimal
	Qty            decimal.Decimal
	IdempotencyKey string
}

type PlaceResult struct {
	OrderID string            `json:"order_id"`
	Status  types.OrderStatus `json:"status"`
	Flow    types.Flow        `json:"flow"`
}

func (r PlaceRequest) validate() error {
	var fields []string
	if r.Symbol == "" {
		fields = append(fields, "symbol")
	}
	if !r.Side.Valid() {
		fields = append(fields, "side")
	}
	if !r.Price.GreaterThan(decimal.Zero) {
		fields = append(fields, "price")
	}
	if !r.Qty.GreaterThan(decimal.Zero) {
		fields = append(fields, "qty")
	}
	if r.AccountID == "" {
		fields = append(fields, "account_id")
	}
	if !r.AccountKind.Valid() {
		fields = append(fields, "account_kind")
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Place runs the placement lifecycle: validate, authorize, generate the
// order id, anchor a QUEUED row, call the execution engine, then branch on
// the local/provider flow.
func (s *Service) Place(ctx context.Context, req PlaceRequest) (PlaceResult, error) {
	if err := req.validate(); err != nil {
		return PlaceResult{}, err
	}
	if err := s.authz.Authorize(ctx, req.UserID, req.AccountKind, req.AccountID); err != nil {
		return PlaceResult{}, err
	}

	orderID, err := s.ids.Next(ctx, types.IDKindOrder)
	if err != nil {
		return PlaceResult{}, err
	}

	anchor := model.Order{
		OrderID:        orderID,
		AccountID:      req.AccountID,
		AccountKind:    req.AccountKind,
		Symbol:         req.Symbol,
		Side:           req.Side,
		Status:         types.OrderStatusQueued,
		RequestedPrice: req.Price,
		Qty:            req.Qty,
	}

	// With an idempotency key the anchor is skipped: the row is resolved by
	// find-or-create under the engine's final id, so a retried request can
	// never produce two rows.
	anchored := req.IdempotencyKey == ""
	if anchored {
		if err := s.durable.InsertQueued(ctx, anchor); err != nil {
			return PlaceResult{}, err
		}
	}

	resp, execErr := s.bridge.Execute(ctx, engine.ExecuteRequest{
		OrderID:        orderID,
		AccountID:      req.AccountID,
		AccountKind:    req.AccountKind,
		Symbol:         req.Symbol,
		Side:           req.Side,
		Price:          req.Price,
		Qty:            req.Qty,
		IdempotencyKey: req.IdempotencyKey,
	})
	if execErr != nil {
		s.rejectAnchor(ctx, anchor, anchored, execErr)
		return PlaceResult{}, execErr
	}

	finalID := resp.OrderID
	if finalID == "" {
		finalID = orderID
	}

	// Reconcile row identity: an idempotent replay (or an engine that
	// assigned its own id) lands on the final id's row, not the anchor.
	if !anchored || finalID != orderID {
		reconciled := anchor
		reconciled.OrderID = finalID
		if _, err := s.durable.FindOrCreate(ctx, reconciled); err != nil {
			s.log.Error("order row reconciliation failed",
				zap.String("order_id", finalID), zap.Error(err))
		}
	}

	order := anchor
	order.OrderID = finalID

	if resp.Flow == types.FlowLocal {
		return s.settleLocalPlacement(ctx, order, resp)
	}

	// Provider flow: non-financial fields only, margin deferred to the
	// asynchronous confirmation consumer.
	if err := s.durable.ApplyExecution(ctx, order.AccountKind, order.OrderID, types.OrderStatusQueued, nil, nil, nil, nil); err != nil {
		s.log.Error("provider-flow durable update failed",
			zap.String("order_id", order.OrderID), zap.Error(err))
	}
	if err := s.cache.Put(ctx, order); err != nil {
		s.log.Warn("order cache write failed",
			zap.String("order_id", order.OrderID), zap.Error(err))
	}
	return PlaceResult{OrderID: order.OrderID, Status: types.OrderStatusQueued, Flow: types.FlowProvider}, nil
}

func (s *Service) settleLocalPlacement(ctx context.Context, order model.Order, resp engine.ExecuteResponse) (PlaceResult, error) {
	order.Status = types.OrderStatusOpen
	order.OrderPrice = resp.ExecPrice
	order.Margin = resp.MarginUSD
	order.ContractValue = resp.ContractValue
	order.Commission = resp.CommissionEntry

	// The execution already took effect; persistence failures from here on
	// are logged and reconciled later, never surfaced.
	if err := s.durable.ApplyExecution(ctx, order.AccountKind, order.OrderID, types.OrderStatusOpen,
		resp.ExecPrice, resp.MarginUSD, resp.ContractValue, resp.CommissionEntry); err != nil {
		s.log.Error("local-flow durable update failed",
			zap.String("order_id", order.OrderID), zap.Error(err))
	}
	if err := s.cache.Put(ctx, order); err != nil {
		s.log.Warn("order cache write failed",
			zap.String("order_id", order.OrderID), zap.Error(err))
	}

	if resp.UsedMarginExecuted != nil {
		s.margin.Propagate(ctx, order.AccountKind, order.AccountID, *resp.UsedMarginExecuted)
		s.publishMargin(order.AccountKind, order.AccountID, *resp.UsedMarginExecuted)
	}
	s.publishOrder(order)

	return PlaceResult{OrderID: order.OrderID, Status: types.OrderStatusOpen, Flow: types.FlowLocal}, nil
}

// rejectAnchor records the failure reason so no order is left silently
// QUEUED. Without an anchor the row is find-or-created first.
func (s *Service) rejectAnchor(ctx context.Context, anchor model.Order, anchored bool, execErr error) {
	reason := execErr.Error()
	var engErr *engine.Error
	if errors.As(execErr, &engErr) {
		reason = engErr.Message
	}
	if !anchored {
		if _, err := s.durable.FindOrCreate(ctx, anchor); err != nil {
			s.log.Error("reject find-or-create failed",
				zap.String("order_id", anchor.OrderID), zap.Error(err))
			return
		}
	}
	if err := s.durable.MarkRejected(ctx, anchor.AccountKind, anchor.OrderID, reason); err != nil {
		s.log.Error("reject mark failed",
			zap.String("order_id", anchor.OrderID), zap.Error(err))
	}
}

func (s *Service) publishOrder(order model.Order) {
	s.events.Publish(notify.Event{
		Type:    notify.EventOrderUpdate,
		Account: notify.AccountRef{Kind: order.AccountKind, ID: order.AccountID},
		Payload: order,
	})
}

func (s *Service) publishMargin(kind types.AccountKind, accountID string, usedMargin decimal.Decimal) {
	s.events.Publish(notify.Event{
		Type:    notify.EventUserMarginUpdate,
		Account: notify.AccountRef{Kind: kind, ID: accountID},
		Payload: map[string]string{"used_margin": usedMargin.String()},
	})
}

func (s *Service) ListOpen(ctx context.Context, userID string, kind types.AccountKind, accountID string) ([]model.Order, error) {
	if err := s.authz.Authorize(ctx, userID, kind, accountID); err != nil {
		return nil, err
	}
	return s.durable.ListByStatus(ctx, kind, accountID, types.OrderStatusOpen)
}

func (s *Service) History(ctx context.Context, userID string, kind types.AccountKind, accountID string, limit int) ([]model.Order, error) {
	if err := s.authz.Authorize(ctx, userID, kind, accountID); err != nil {
		return nil, err
	}
	return s.durable.ListByAccount(ctx, kind, accountID, limit)
}
