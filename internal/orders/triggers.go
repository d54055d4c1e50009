package orders

import (
	"context"

	"mx-orderdesk/internal/engine"
	"mx-orderdesk/internal/types"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type TriggerKind string

const (
	TriggerStopLoss   TriggerKind = "stop_loss"
	TriggerTakeProfit TriggerKind = "take_profit"
)

type AttachTriggerRequest struct {
	UserID         string
	AccountID      string
	AccountKind    types.AccountKind
	OrderID        string
	Trigger        TriggerKind
	TriggerPrice   decimal.Decimal
	IdempotencyKey string
}

type AttachTriggerResult struct {
	OrderID   string     `json:"order_id"`
	TriggerID string     `json:"trigger_id"`
	Flow      types.Flow `json:"flow"`
}

// entrySource is one step of the entry-price fallback chain. Sources are
// tried in order; the first positive price wins.
type entrySource func(ctx context.Context) (decimal.Decimal, bool)

func (s *Service) entryPrice(ctx context.Context, ord resolved) (decimal.Decimal, bool) {
	sources := []entrySource{
		func(context.Context) (decimal.Decimal, bool) {
			return ord.orderPrice, ord.fromCache && ord.orderPrice.GreaterThan(decimal.Zero)
		},
		func(ctx context.Context) (decimal.Decimal, bool) {
			row, found, err := s.durable.GetByID(ctx, ord.kind, ord.orderID)
			if err != nil || !found || row.OrderPrice == nil {
				return decimal.Zero, false
			}
			return *row.OrderPrice, row.OrderPrice.GreaterThan(decimal.Zero)
		},
		func(ctx context.Context) (decimal.Decimal, bool) {
			v, ok, err := s.cache.HoldingEntry(ctx, ord.kind, ord.accountID, ord.orderID)
			if err != nil {
				s.log.Warn("holdings snapshot read failed",
					zap.String("order_id", ord.orderID), zap.Error(err))
				return decimal.Zero, false
			}
			return v, ok
		},
	}
	for _, src := range sources {
		if v, ok := src(ctx); ok {
			return v, true
		}
	}
	return decimal.Zero, false
}

// validateTriggerDirection rejects a trigger on the wrong side of entry:
// for a BUY, stop-loss strictly below and take-profit strictly above; a
// SELL inverts both.
func validateTriggerDirection(side types.OrderSide, trigger TriggerKind, triggerPrice, entry decimal.Decimal) error {
	switch trigger {
	case TriggerStopLoss:
		if side == types.OrderSideBuy && !triggerPrice.LessThan(entry) {
			return triggerDirectionError("stop-loss must be below entry price for a BUY order")
		}
		if side == types.OrderSideSell && !triggerPrice.GreaterThan(entry) {
			return triggerDirectionError("stop-loss must be above entry price for a SELL order")
		}
	case TriggerTakeProfit:
		if side == types.OrderSideBuy && !triggerPrice.GreaterThan(entry) {
			return triggerDirectionError("take-profit must be above entry price for a BUY order")
		}
		if side == types.OrderSideSell && !triggerPrice.LessThan(entry) {
			return triggerDirectionError("take-profit must be below entry price for a SELL order")
		}
	}
	return nil
}

// AttachTrigger attaches a stop-loss or take-profit to an open order. The
// direction check runs before any lifecycle id is generated or any external
// call is made; the id is persisted before the engine call so the trigger
// stays traceable even if that call fails.
func (s *Service) AttachTrigger(ctx context.Context, req AttachTriggerRequest) (AttachTriggerResult, error) {
	var fields []string
	if req.OrderID == "" {
		fields = append(fields, "order_id")
	}
	if req.Trigger != TriggerStopLoss && req.Trigger != TriggerTakeProfit {
		fields = append(fields, "trigger")
	}
	if !req.TriggerPrice.GreaterThan(decimal.Zero) {
		fields = append(fields, "trigger_price")
	}
	if !req.AccountKind.Valid() {
		fields = append(fields, "account_kind")
	}
	if len(fields) > 0 {
		return AttachTriggerResult{}, &ValidationError{Fields: fields}
	}
	if err := s.authz.Authorize(ctx, req.UserID, req.AccountKind, req.AccountID); err != nil {
		return AttachTriggerResult{}, err
	}

	ord, err := s.resolveOrder(ctx, req.AccountKind, req.OrderID)
	if err != nil {
		return AttachTriggerResult{}, err
	}
	if err := ord.checkOwnership(req.AccountKind, req.AccountID); err != nil {
		return AttachTriggerResult{}, err
	}
	if ord.status != types.OrderStatusOpen {
		return AttachTriggerResult{}, errOrderNotOpen
	}

	entry, ok := s.entryPrice(ctx, ord)
	if !ok {
		return AttachTriggerResult{}, errNoEntryPrice
	}
	if err := validateTriggerDirection(ord.side, req.Trigger, req.TriggerPrice, entry); err != nil {
		return AttachTriggerResult{}, err
	}

	idKind := types.IDKindStopLoss
	if req.Trigger == TriggerTakeProfit {
		idKind = types.IDKindTakeProfit
	}
	triggerID, err := s.ids.Next(ctx, idKind)
	if err != nil {
		return AttachTriggerResult{}, err
	}

	if req.Trigger == TriggerStopLoss {
		err = s.durable.SetStopLoss(ctx, req.AccountKind, req.OrderID, triggerID, nil)
	} else {
		err = s.durable.SetTakeProfit(ctx, req.AccountKind, req.OrderID, triggerID, nil)
	}
	if err != nil {
		return AttachTriggerResult{}, err
	}

	resp, execErr := s.bridge.AttachTrigger(ctx, engine.AttachTriggerRequest{
		OrderID:        req.OrderID,
		TriggerID:      triggerID,
		TriggerKind:    idKind,
		AccountID:      req.AccountID,
		AccountKind:    req.AccountKind,
		Symbol:         ord.symbol,
		Side:           ord.side,
		TriggerPrice:   req.TriggerPrice,
		IdempotencyKey: req.IdempotencyKey,
	})
	if execErr != nil {
		return AttachTriggerResult{}, execErr
	}

	if resp.Flow != types.FlowLocal {
		return AttachTriggerResult{OrderID: req.OrderID, TriggerID: triggerID, Flow: types.FlowProvider}, nil
	}

	// Local flow: the trigger value is live, persist it now and fan out.
	price := req.TriggerPrice
	if req.Trigger == TriggerStopLoss {
		if err := s.durable.SetStopLoss(ctx, req.AccountKind, req.OrderID, triggerID, &price); err != nil {
			s.log.Error("stop-loss persist failed",
				zap.String("order_id", req.OrderID), zap.Error(err))
		}
		if err := s.cache.SetStopLoss(ctx, req.OrderID, triggerID, price); err != nil {
			s.log.Warn("stop-loss cache write failed",
				zap.String("order_id", req.OrderID), zap.Error(err))
		}
	} else {
		if err := s.durable.SetTakeProfit(ctx, req.AccountKind, req.OrderID, triggerID, &price); err != nil {
			s.log.Error("take-profit persist failed",
				zap.String("order_id", req.OrderID), zap.Error(err))
		}
		if err := s.cache.SetTakeProfit(ctx, req.OrderID, triggerID, price); err != nil {
			s.log.Warn("take-profit cache write failed",
				zap.String("order_id", req.OrderID), zap.Error(err))
		}
	}

	updated, found, err := s.durable.GetByID(ctx, req.AccountKind, req.OrderID)
	if err == nil && found {
		s.publishOrder(updated)
	}

	return AttachTriggerResult{OrderID: req.OrderID, TriggerID: triggerID, Flow: types.FlowLocal}, nil
}
