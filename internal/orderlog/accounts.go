package orderlog

import (
	"context"
	"errors"
	"time"

	"mx-orderdesk/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

func accountTableFor(kind types.AccountKind) string {
	if kind == types.AccountKindDemo {
		return "accounts_demo"
	}
	return "accounts_live"
}

// UpdateUsedMargin overwrites the account aggregate's used-margin mirror.
// The row is locked before the write so two concurrent balance-affecting
// operations on the same account cannot lose an update.
func (s *Store) UpdateUsedMargin(ctx context.Context, kind types.AccountKind, accountID string, usedMargin decimal.Decimal) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var current decimal.Decimal
	err = tx.QueryRow(ctx, "select used_margin from "+accountTableFor(kind)+" where id = $1 for update", accountID).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return errors.New("account not found")
		}
		return err
	}
	_, err = tx.Exec(ctx, "update "+accountTableFor(kind)+" set used_margin = $1, updated_at = $2 where id = $3",
		usedMargin, time.Now().UTC(), accountID)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// AddNetProfit credits a close settlement: the net-profit counter and the
// wallet balance move together under the same row lock.
func (s *Store) AddNetProfit(ctx context.Context, kind types.AccountKind, accountID string, delta decimal.Decimal) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var balance, netProfit decimal.Decimal
	err = tx.QueryRow(ctx, "select balance, net_profit from "+accountTableFor(kind)+" where id = $1 for update", accountID).Scan(&balance, &netProfit)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return errors.New("account not found")
		}
		return err
	}
	_, err = tx.Exec(ctx, "update "+accountTableFor(kind)+" set balance = $1, net_profit = $2, updated_at = $3 where id = $4",
		balance.Add(delta), netProfit.Add(delta), time.Now().UTC(), accountID)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}
