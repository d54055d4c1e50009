package types

type OrderSide string

type OrderStatus string

type AccountKind string

type Flow string

type IDKind string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

const (
	OrderStatusQueued   OrderStatus = "QUEUED"
	OrderStatusOpen     OrderStatus = "OPEN"
	OrderStatusClosed   OrderStatus = "CLOSED"
	OrderStatusRejected OrderStatus = "REJECTED"
)

const (
	AccountKindLive AccountKind = "live"
	AccountKindDemo AccountKind = "demo"
)

const (
	FlowLocal    Flow = "local"
	FlowProvider Flow = "provider"
)

const (
	IDKindOrder            IDKind = "ord"
	IDKindClose            IDKind = "cls"
	IDKindStopLoss         IDKind = "sl"
	IDKindTakeProfit       IDKind = "tp"
	IDKindStopLossCancel   IDKind = "slx"
	IDKindTakeProfitCancel IDKind = "tpx"
)

func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

func (k AccountKind) Valid() bool {
	return k == AccountKindLive || k == AccountKindDemo
}

// CanTransitionTo enforces the order state machine. CLOSED and REJECTED are
// terminal. OPEN self-transitions cover stop-loss/take-profit updates.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case OrderStatusQueued:
		return next == OrderStatusOpen || next == OrderStatusRejected || next == OrderStatusQueued
	case OrderStatusOpen:
		return next == OrderStatusClosed || next == OrderStatusOpen
	default:
		return false
	}
}

func (s OrderStatus) Terminal() bool {
	return s == OrderStatusClosed || s == OrderStatusRejected
}
