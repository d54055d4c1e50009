package accounts

import (
	"context"
	"errors"
	"time"

	"mx-orderdesk/internal/model"
	"mx-orderdesk/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrNotOwner            = errors.New("account does not belong to caller")
	ErrRoleNotEligible     = errors.New("role is not eligible to trade")
	ErrSelfTradingDisabled = errors.New("self trading is disabled for this account")
	ErrAccountDisabled     = errors.New("account is disabled")
)

var tradingRoles = map[string]struct{}{
	"trader": {},
	"vip":    {},
}

type Service struct {
	pool *pgxpool.Pool
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

func tableFor(kind types.AccountKind) string {
	if kind == types.AccountKindDemo {
		return "accounts_demo"
	}
	return "accounts_live"
}

type gate struct {
	userID      string
	role        string
	selfTrading bool
	disabled    bool
}

// Authorize runs the trade-eligibility gates for one account: ownership,
// role eligibility, self-trading flag and account state. Every violation
// fails closed.
func (s *Service) Authorize(ctx context.Context, userID string, kind types.AccountKind, accountID string) error {
	var g gate
	err := s.pool.QueryRow(ctx,
		"select user_id, role, self_trading_enabled, disabled from "+tableFor(kind)+" where id = $1",
		accountID).Scan(&g.userID, &g.role, &g.selfTrading, &g.disabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAccountNotFound
		}
		return err
	}
	if g.userID != userID {
		return ErrNotOwner
	}
	if _, ok := tradingRoles[g.role]; !ok {
		return ErrRoleNotEligible
	}
	if !g.selfTrading {
		return ErrSelfTradingDisabled
	}
	if g.disabled {
		return ErrAccountDisabled
	}
	return nil
}

func (s *Service) Get(ctx context.Context, kind types.AccountKind, accountID string) (model.Account, error) {
	var a model.Account
	var updatedAt *time.Time
	err := s.pool.QueryRow(ctx,
		"select id, user_id, balance, used_margin, net_profit, updated_at from "+tableFor(kind)+" where id = $1",
		accountID).Scan(&a.ID, &a.UserID, &a.Balance, &a.UsedMargin, &a.NetProfit, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return a, ErrAccountNotFound
		}
		return a, err
	}
	a.Kind = kind
	if updatedAt != nil {
		a.UpdatedAt = *updatedAt
	}
	return a, nil
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]model.Account, error) {
	var out []model.Account
	for _, kind := range []types.AccountKind{types.AccountKindLive, types.AccountKindDemo} {
		rows, err := s.pool.Query(ctx,
			"select id, user_id, balance, used_margin, net_profit from "+tableFor(kind)+" where user_id = $1 order by id",
			userID)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var a model.Account
			if err := rows.Scan(&a.ID, &a.UserID, &a.Balance, &a.UsedMargin, &a.NetProfit); err != nil {
				rows.Close()
				return nil, err
			}
			a.Kind = kind
			out = append(out, a)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}
