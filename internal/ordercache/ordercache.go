package ordercache

import (
	"context"
	"fmt"

	"mx-orderdesk/internal/model"
	"mx-orderdesk/internal/types"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Record is the denormalized mirror of an open order. It exists only while
// the order is actionable; absence is an expected state, not an error.
type Record struct {
	OrderID         string
	AccountID       string
	AccountKind     types.AccountKind
	Symbol          string
	Side            types.OrderSide
	Status          types.OrderStatus
	OrderPrice      decimal.Decimal
	Qty             decimal.Decimal
	Margin          decimal.Decimal
	StopLossID      string
	StopLossPrice   decimal.Decimal
	TakeProfitID    string
	TakeProfitPrice decimal.Decimal
}

type Cache struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

func orderKey(orderID string) string {
	return "order:" + orderID
}

func marginKey(kind types.AccountKind, accountID string) string {
	return fmt.Sprintf("acct:margin:%s:%s", kind, accountID)
}

func holdingsKey(kind types.AccountKind, accountID string) string {
	return fmt.Sprintf("holdings:%s:%s", kind, accountID)
}

func (c *Cache) Put(ctx context.Context, o model.Order) error {
	fields := map[string]any{
		"account_id":   o.AccountID,
		"account_kind": string(o.AccountKind),
		"symbol":       o.Symbol,
		"side":         string(o.Side),
		"status":       string(o.Status),
		"qty":          o.Qty.String(),
	}
	if o.OrderPrice != nil {
		fields["order_price"] = o.OrderPrice.String()
	}
	if o.Margin != nil {
		fields["margin"] = o.Margin.String()
	}
	if o.StopLossID != "" {
		fields["stoploss_id"] = o.StopLossID
	}
	if o.StopLossPrice != nil {
		fields["stoploss_price"] = o.StopLossPrice.String()
	}
	if o.TakeProfitID != "" {
		fields["takeprofit_id"] = o.TakeProfitID
	}
	if o.TakeProfitPrice != nil {
		fields["takeprofit_price"] = o.TakeProfitPrice.String()
	}
	return c.rdb.HSet(ctx, orderKey(o.OrderID), fields).Err()
}

func (c *Cache) Get(ctx context.Context, orderID string) (Record, bool, error) {
	vals, err := c.rdb.HGetAll(ctx, orderKey(orderID)).Result()
	if err != nil {
		return Record{}, false, err
	}
	if len(vals) == 0 {
		return Record{}, false, nil
	}
	rec := Record{
		OrderID:      orderID,
		AccountID:    vals["account_id"],
		AccountKind:  types.AccountKind(vals["account_kind"]),
		Symbol:       vals["symbol"],
		Side:         types.OrderSide(vals["side"]),
		Status:       types.OrderStatus(vals["status"]),
		StopLossID:   vals["stoploss_id"],
		TakeProfitID: vals["takeprofit_id"],
	}
	rec.OrderPrice = parseDecimal(vals["order_price"])
	rec.Qty = parseDecimal(vals["qty"])
	rec.Margin = parseDecimal(vals["margin"])
	rec.StopLossPrice = parseDecimal(vals["stoploss_price"])
	rec.TakeProfitPrice = parseDecimal(vals["takeprofit_price"])
	return rec, true, nil
}

func (c *Cache) SetStopLoss(ctx context.Context, orderID, stopLossID string, price decimal.Decimal) error {
	return c.rdb.HSet(ctx, orderKey(orderID), map[string]any{
		"stoploss_id":    stopLossID,
		"stoploss_price": price.String(),
	}).Err()
}

func (c *Cache) SetTakeProfit(ctx context.Context, orderID, takeProfitID string, price decimal.Decimal) error {
	return c.rdb.HSet(ctx, orderKey(orderID), map[string]any{
		"takeprofit_id":    takeProfitID,
		"takeprofit_price": price.String(),
	}).Err()
}

func (c *Cache) Delete(ctx context.Context, orderID string) error {
	return c.rdb.Del(ctx, orderKey(orderID)).Err()
}

// PublishUsedMargin mirrors the account aggregate's used margin. The durable
// store may lag this value for provider-flow orders.
func (c *Cache) PublishUsedMargin(ctx context.Context, kind types.AccountKind, accountID string, usedMargin decimal.Decimal) error {
	return c.rdb.Set(ctx, marginKey(kind, accountID), usedMargin.String(), 0).Err()
}

// HoldingEntry reads the per-order entry price from the account's holdings
// snapshot. Last resort of the entry-price fallback chain.
func (c *Cache) HoldingEntry(ctx context.Context, kind types.AccountKind, accountID, orderID string) (decimal.Decimal, bool, error) {
	raw, err := c.rdb.HGet(ctx, holdingsKey(kind, accountID), orderID).Result()
	if err == redis.Nil {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	v := parseDecimal(raw)
	return v, v.GreaterThan(decimal.Zero), nil
}

func parseDecimal(raw string) decimal.Decimal {
	if raw == "" {
		return decimal.Zero
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return v
}
