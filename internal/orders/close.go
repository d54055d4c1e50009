package orders

import (
	"context"
	"errors"

	"mx-orderdesk/internal/engine"
	"mx-orderdesk/internal/model"
	"mx-orderdesk/internal/orderlog"
	"mx-orderdesk/internal/types"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// resolved is the order view the close and trigger paths check preconditions
// against: cache record when present, durable row otherwise.
type resolved struct {
	orderID      string
	accountID    string
	kind         types.AccountKind
	symbol       string
	side         types.OrderSide
	status       types.OrderStatus
	qty          decimal.Decimal
	orderPrice   decimal.Decimal
	stopLossID   string
	takeProfitID string
	fromCache    bool
}

// resolveOrder looks the order up cache-first. A missing cache record is an
// expected state, never an error; a cache read failure only demotes the
// lookup to the durable log.
func (s *Service) resolveOrder(ctx context.Context, kind types.AccountKind, orderID string) (resolved, error) {
	rec, found, err := s.cache.Get(ctx, orderID)
	if err != nil {
		s.log.Warn("order cache read failed, falling back to durable log",
			zap.String("order_id", orderID), zap.Error(err))
	} else if found {
		return resolved{
			orderID:      orderID,
			accountID:    rec.AccountID,
			kind:         rec.AccountKind,
			symbol:       rec.Symbol,
			side:         rec.Side,
			status:       rec.Status,
			qty:          rec.Qty,
			orderPrice:   rec.OrderPrice,
			stopLossID:   rec.StopLossID,
			takeProfitID: rec.TakeProfitID,
			fromCache:    true,
		}, nil
	}

	row, found, err := s.durable.GetByID(ctx, kind, orderID)
	if err != nil {
		return resolved{}, err
	}
	if !found {
		return resolved{}, errOrderNotFound
	}
	out := resolved{
		orderID:      orderID,
		accountID:    row.AccountID,
		kind:         row.AccountKind,
		symbol:       row.Symbol,
		side:         row.Side,
		status:       row.Status,
		qty:          row.Qty,
		stopLossID:   row.StopLossID,
		takeProfitID: row.TakeProfitID,
	}
	if row.OrderPrice != nil {
		out.orderPrice = *row.OrderPrice
	}
	return out, nil
}

func (r resolved) checkOwnership(kind types.AccountKind, accountID string) error {
	if r.kind != kind || r.accountID != accountID {
		return errWrongAccount
	}
	return nil
}

type CloseRequest struct {
	UserID         string
	AccountID      string
	AccountKind    types.AccountKind
	OrderID        string
	ClosePrice     *decimal.Decimal
	IdempotencyKey string
}

type CloseResult struct {
	OrderID string            `json:"order_id"`
	CloseID string            `json:"close_id"`
	Status  types.OrderStatus `json:"status"`
	Flow    types.Flow        `json:"flow"`
}

// CloseOrder drives the close lifecycle. The open-status check reads the
// order's own status field: a provider-side close can set an interim
// transport status while the order is still actionable.
func (s *Service) CloseOrder(ctx context.Context, req CloseRequest) (CloseResult, error) {
	if req.OrderID == "" {
		return CloseResult{}, &ValidationError{Fields: []string{"order_id"}}
	}
	if !req.AccountKind.Valid() {
		return CloseResult{}, &ValidationError{Fields: []string{"account_kind"}}
	}
	if err := s.authz.Authorize(ctx, req.UserID, req.AccountKind, req.AccountID); err != nil {
		return CloseResult{}, err
	}

	ord, err := s.resolveOrder(ctx, req.AccountKind, req.OrderID)
	if err != nil {
		return CloseResult{}, err
	}
	if err := ord.checkOwnership(req.AccountKind, req.AccountID); err != nil {
		return CloseResult{}, err
	}
	if ord.status != types.OrderStatusOpen {
		return CloseResult{}, errOrderNotOpen
	}
	if !s.hours.IsOpen(ord.symbol, s.now()) {
		return CloseResult{}, errMarketClosed
	}

	closeID, err := s.ids.Next(ctx, types.IDKindClose)
	if err != nil {
		return CloseResult{}, err
	}
	var slCancelID, tpCancelID string
	if ord.stopLossID != "" {
		if slCancelID, err = s.ids.Next(ctx, types.IDKindStopLossCancel); err != nil {
			return CloseResult{}, err
		}
	}
	if ord.takeProfitID != "" {
		if tpCancelID, err = s.ids.Next(ctx, types.IDKindTakeProfitCancel); err != nil {
			return CloseResult{}, err
		}
	}

	// The claim write is the serialization point: exactly one of any racing
	// closes gets the ids onto the still-OPEN row, the rest conflict here
	// and never reach the engine.
	if err := s.durable.SetCloseIDs(ctx, req.AccountKind, req.OrderID, closeID, slCancelID, tpCancelID); err != nil {
		if errors.Is(err, orderlog.ErrCloseAlreadyClaimed) {
			return CloseResult{}, errOrderNotOpen
		}
		return CloseResult{}, err
	}

	resp, execErr := s.bridge.Close(ctx, engine.CloseRequest{
		OrderID:        req.OrderID,
		CloseID:        closeID,
		AccountID:      req.AccountID,
		AccountKind:    req.AccountKind,
		Symbol:         ord.symbol,
		Side:           ord.side,
		Qty:            ord.qty,
		ClosePrice:     req.ClosePrice,
		IdempotencyKey: req.IdempotencyKey,
	})
	if execErr != nil {
		// The engine rejected this attempt; release the claim so the order
		// stays closeable. The attempt itself survives in the logs.
		if err := s.durable.ClearCloseClaim(ctx, req.AccountKind, req.OrderID, closeID); err != nil {
			s.log.Error("close claim release failed",
				zap.String("order_id", req.OrderID),
				zap.String("close_id", closeID), zap.Error(err))
		}
		return CloseResult{}, execErr
	}

	if resp.Flow != types.FlowLocal {
		// Provider flow: the asynchronous confirmation path finalizes the
		// row and the cache; the recorded ids are the audit trail.
		return CloseResult{OrderID: req.OrderID, CloseID: closeID, Status: types.OrderStatusOpen, Flow: types.FlowProvider}, nil
	}

	// Local flow settlement. The engine already executed; failures below
	// are logged for reconciliation, never returned.
	if err := s.durable.FinalizeClose(ctx, req.AccountKind, req.OrderID,
		resp.ClosePrice, resp.NetProfit, resp.Swap, resp.TotalCommission); err != nil {
		s.log.Error("close finalize failed",
			zap.String("order_id", req.OrderID), zap.Error(err))
	}
	if resp.NetProfit != nil {
		if err := s.durable.AddNetProfit(ctx, req.AccountKind, req.AccountID, *resp.NetProfit); err != nil {
			s.log.Error("net-profit credit failed",
				zap.String("order_id", req.OrderID),
				zap.String("account_id", req.AccountID), zap.Error(err))
		}
	}
	if resp.UsedMarginExecuted != nil {
		s.margin.Propagate(ctx, req.AccountKind, req.AccountID, *resp.UsedMarginExecuted)
		s.publishMargin(req.AccountKind, req.AccountID, *resp.UsedMarginExecuted)
	}
	if err := s.cache.Delete(ctx, req.OrderID); err != nil {
		s.log.Warn("order cache delete failed",
			zap.String("order_id", req.OrderID), zap.Error(err))
	}

	closed := model.Order{
		OrderID:     req.OrderID,
		AccountID:   req.AccountID,
		AccountKind: req.AccountKind,
		Symbol:      ord.symbol,
		Side:        ord.side,
		Status:      types.OrderStatusClosed,
		Qty:         ord.qty,
		ClosePrice:  resp.ClosePrice,
		NetProfit:   resp.NetProfit,
		CloseID:     closeID,
	}
	s.publishOrder(closed)

	return CloseResult{OrderID: req.OrderID, CloseID: closeID, Status: types.OrderStatusClosed, Flow: types.FlowLocal}, nil
}
