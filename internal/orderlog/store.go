package orderlog

import (
	"context"
	"errors"
	"time"

	"mx-orderdesk/internal/model"
	"mx-orderdesk/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Store is the authoritative relational log: one row per order, one table
// per account kind. The order_id unique constraint is the serialization
// point for the pre-insert/finalize sequence.
type Store struct {
	pool *pgxpool.Pool
}

var (
	// ErrCloseAlreadyClaimed means another request holds the close claim
	// for this order, or the row is no longer OPEN.
	ErrCloseAlreadyClaimed = errors.New("close already claimed for this order")

	// ErrInvalidTransition means the row's current status does not permit
	// the requested status change.
	ErrInvalidTransition = errors.New("order status transition not allowed")
)

var allStatuses = []types.OrderStatus{
	types.OrderStatusQueued,
	types.OrderStatusOpen,
	types.OrderStatusClosed,
	types.OrderStatusRejected,
}

// statusSources lists the statuses a row may currently hold for a move to
// next to be legal. Used as the WHERE guard on status updates.
func statusSources(next types.OrderStatus) []string {
	var out []string
	for _, s := range allStatuses {
		if s.CanTransitionTo(next) {
			out = append(out, string(s))
		}
	}
	return out
}

// activeStatuses lists the non-terminal statuses. Lifecycle-id writes are
// refused on rows that already reached CLOSED or REJECTED.
func activeStatuses() []string {
	var out []string
	for _, s := range allStatuses {
		if !s.Terminal() {
			out = append(out, string(s))
		}
	}
	return out
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func tableFor(kind types.AccountKind) string {
	if kind == types.AccountKindDemo {
		return "orders_demo"
	}
	return "orders_live"
}

const orderColumns = "order_id, account_id, symbol, side, status, requested_price, qty, order_price, margin, contract_value, commission, swap, close_price, net_profit, close_id, stoploss_id, stoploss_price, takeprofit_id, takeprofit_price, reject_reason, created_at, updated_at"

// InsertQueued writes the pre-insert anchor row. It is the recovery point if
// the execution call never returns.
func (s *Store) InsertQueued(ctx context.Context, o model.Order) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		"insert into "+tableFor(o.AccountKind)+" (order_id, account_id, symbol, side, status, requested_price, qty, created_at, updated_at) values ($1,$2,$3,$4,$5,$6,$7,$8,$9)",
		o.OrderID, o.AccountID, o.Symbol, string(o.Side), string(types.OrderStatusQueued), o.RequestedPrice, o.Qty, now, now)
	return err
}

// FindOrCreate resolves a row by order_id, inserting it when absent. The
// insert uses ON CONFLICT DO NOTHING so two racing callers converge on the
// same row (idempotent replay, post-failure reconciliation).
func (s *Store) FindOrCreate(ctx context.Context, o model.Order) (model.Order, error) {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		"insert into "+tableFor(o.AccountKind)+" (order_id, account_id, symbol, side, status, requested_price, qty, created_at, updated_at) values ($1,$2,$3,$4,$5,$6,$7,$8,$9) on conflict (order_id) do nothing",
		o.OrderID, o.AccountID, o.Symbol, string(o.Side), string(o.Status), o.RequestedPrice, o.Qty, now, now)
	if err != nil {
		return model.Order{}, err
	}
	got, found, err := s.GetByID(ctx, o.AccountKind, o.OrderID)
	if err != nil {
		return model.Order{}, err
	}
	if !found {
		return model.Order{}, errors.New("order row vanished after find-or-create")
	}
	return got, nil
}

func (s *Store) MarkRejected(ctx context.Context, kind types.AccountKind, orderID, reason string) error {
	tag, err := s.pool.Exec(ctx,
		"update "+tableFor(kind)+" set status = $1, reject_reason = $2, updated_at = $3 where order_id = $4 and status = any($5)",
		string(types.OrderStatusRejected), reason, time.Now().UTC(), orderID, statusSources(types.OrderStatusRejected))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// ApplyExecution persists the execution engine's response. Financial fields
// are pointers: a field the engine did not return (or returned mistyped)
// stays null rather than being written as a sentinel.
func (s *Store) ApplyExecution(ctx context.Context, kind types.AccountKind, orderID string, status types.OrderStatus, price, margin, contractValue, commission *decimal.Decimal) error {
	tag, err := s.pool.Exec(ctx,
		"update "+tableFor(kind)+" set status = $1, order_price = coalesce($2, order_price), margin = coalesce($3, margin), contract_value = coalesce($4, contract_value), commission = coalesce($5, commission), updated_at = $6 where order_id = $7 and status = any($8)",
		string(status), price, margin, contractValue, commission, time.Now().UTC(), orderID, statusSources(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// SetCloseIDs claims the close: the conditional write succeeds for at most
// one caller per order, so racing closes cannot both reach the engine. The
// recorded ids also make the attempt traceable regardless of what happens
// next.
func (s *Store) SetCloseIDs(ctx context.Context, kind types.AccountKind, orderID, closeID, slCancelID, tpCancelID string) error {
	tag, err := s.pool.Exec(ctx,
		"update "+tableFor(kind)+" set close_id = $1, stoploss_id = case when $2 <> '' then $2 else stoploss_id end, takeprofit_id = case when $3 <> '' then $3 else takeprofit_id end, updated_at = $4 where order_id = $5 and status = $6 and close_id is null",
		closeID, slCancelID, tpCancelID, time.Now().UTC(), orderID, string(types.OrderStatusOpen))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCloseAlreadyClaimed
	}
	return nil
}

// ClearCloseClaim releases a claim after the engine rejected the close, so
// the order can be closed again. Only the claim holder's id is cleared.
func (s *Store) ClearCloseClaim(ctx context.Context, kind types.AccountKind, orderID, closeID string) error {
	_, err := s.pool.Exec(ctx,
		"update "+tableFor(kind)+" set close_id = null, updated_at = $1 where order_id = $2 and close_id = $3",
		time.Now().UTC(), orderID, closeID)
	return err
}

func (s *Store) SetStopLoss(ctx context.Context, kind types.AccountKind, orderID, stopLossID string, price *decimal.Decimal) error {
	tag, err := s.pool.Exec(ctx,
		"update "+tableFor(kind)+" set stoploss_id = $1, stoploss_price = coalesce($2, stoploss_price), updated_at = $3 where order_id = $4 and status = any($5)",
		stopLossID, price, time.Now().UTC(), orderID, activeStatuses())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

func (s *Store) SetTakeProfit(ctx context.Context, kind types.AccountKind, orderID, takeProfitID string, price *decimal.Decimal) error {
	tag, err := s.pool.Exec(ctx,
		"update "+tableFor(kind)+" set takeprofit_id = $1, takeprofit_price = coalesce($2, takeprofit_price), updated_at = $3 where order_id = $4 and status = any($5)",
		takeProfitID, price, time.Now().UTC(), orderID, activeStatuses())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

func (s *Store) FinalizeClose(ctx context.Context, kind types.AccountKind, orderID string, closePrice, netProfit, swap, totalCommission *decimal.Decimal) error {
	tag, err := s.pool.Exec(ctx,
		"update "+tableFor(kind)+" set status = $1, close_price = coalesce($2, close_price), net_profit = coalesce($3, net_profit), swap = coalesce($4, swap), commission = coalesce($5, commission), updated_at = $6 where order_id = $7 and status = any($8)",
		string(types.OrderStatusClosed), closePrice, netProfit, swap, totalCommission, time.Now().UTC(), orderID, statusSources(types.OrderStatusClosed))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, kind types.AccountKind, orderID string) (model.Order, bool, error) {
	row := s.pool.QueryRow(ctx, "select "+orderColumns+" from "+tableFor(kind)+" where order_id = $1", orderID)
	o, err := scanOrder(row, kind)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Order{}, false, nil
	}
	if err != nil {
		return model.Order{}, false, err
	}
	return o, true, nil
}

func (s *Store) ListByAccount(ctx context.Context, kind types.AccountKind, accountID string, limit int) ([]model.Order, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		"select "+orderColumns+" from "+tableFor(kind)+" where account_id = $1 order by created_at desc limit $2",
		accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows, kind)
}

func (s *Store) ListByStatus(ctx context.Context, kind types.AccountKind, accountID string, status types.OrderStatus) ([]model.Order, error) {
	rows, err := s.pool.Query(ctx,
		"select "+orderColumns+" from "+tableFor(kind)+" where account_id = $1 and status = $2 order by created_at desc",
		accountID, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows, kind)
}

func scanOrders(rows pgx.Rows, kind types.AccountKind) ([]model.Order, error) {
	var out []model.Order
	for rows.Next() {
		o, err := scanOrder(rows, kind)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner, kind types.AccountKind) (model.Order, error) {
	var o model.Order
	var side, status string
	var closeID, stopLossID, takeProfitID, rejectReason *string
	err := row.Scan(&o.OrderID, &o.AccountID, &o.Symbol, &side, &status,
		&o.RequestedPrice, &o.Qty, &o.OrderPrice, &o.Margin, &o.ContractValue,
		&o.Commission, &o.Swap, &o.ClosePrice, &o.NetProfit,
		&closeID, &stopLossID, &o.StopLossPrice, &takeProfitID, &o.TakeProfitPrice,
		&rejectReason, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return o, err
	}
	o.AccountKind = kind
	o.Side = types.OrderSide(side)
	o.Status = types.OrderStatus(status)
	if closeID != nil {
		o.CloseID = *closeID
	}
	if stopLossID != nil {
		o.StopLossID = *stopLossID
	}
	if takeProfitID != nil {
		o.TakeProfitID = *takeProfitID
	}
	if rejectReason != nil {
		o.RejectReason = *rejectReason
	}
	return o, nil
}
