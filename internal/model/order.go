package model

import (
	"time"

	"mx-orderdesk/internal/types"

	"github.com/shopspring/decimal"
)

type Order struct {
	OrderID         string            `json:"order_id"`
	AccountID       string            `json:"account_id"`
	AccountKind     types.AccountKind `json:"account_kind"`
	Symbol          string            `json:"symbol"`
	Side            types.OrderSide   `json:"side"`
	Status          types.OrderStatus `json:"status"`
	RequestedPrice  decimal.Decimal   `json:"requested_price"`
	Qty             decimal.Decimal   `json:"qty"`
	OrderPrice      *decimal.Decimal  `json:"order_price"`
	Margin          *decimal.Decimal  `json:"margin"`
	ContractValue   *decimal.Decimal  `json:"contract_value"`
	Commission      *decimal.Decimal  `json:"commission"`
	Swap            *decimal.Decimal  `json:"swap"`
	ClosePrice      *decimal.Decimal  `json:"close_price"`
	NetProfit       *decimal.Decimal  `json:"net_profit"`
	CloseID         string            `json:"close_id,omitempty"`
	StopLossID      string            `json:"stoploss_id,omitempty"`
	StopLossPrice   *decimal.Decimal  `json:"stoploss_price,omitempty"`
	TakeProfitID    string            `json:"takeprofit_id,omitempty"`
	TakeProfitPrice *decimal.Decimal  `json:"takeprofit_price,omitempty"`
	RejectReason    string            `json:"reject_reason,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Account is the per-account aggregate mutated by margin propagation and
// close settlement. One aggregate to many orders, keyed by (kind, id).
type Account struct {
	ID         string            `json:"id"`
	UserID     string            `json:"user_id"`
	Kind       types.AccountKind `json:"kind"`
	Balance    decimal.Decimal   `json:"balance"`
	UsedMargin decimal.Decimal   `json:"used_margin"`
	NetProfit  decimal.Decimal   `json:"net_profit"`
	UpdatedAt  time.Time         `json:"updated_at"`
}
