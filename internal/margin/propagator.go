package margin

import (
	"context"

	"mx-orderdesk/internal/types"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type DurableStore interface {
	UpdateUsedMargin(ctx context.Context, kind types.AccountKind, accountID string, usedMargin decimal.Decimal) error
}

type CacheMirror interface {
	PublishUsedMargin(ctx context.Context, kind types.AccountKind, accountID string, usedMargin decimal.Decimal) error
}

// Propagator writes the account's aggregate used margin to the durable store
// and mirrors it in the cache. Called synchronously only for local-flow
// executions; provider flow is settled by the async confirmation consumer.
type Propagator struct {
	durable DurableStore
	mirror  CacheMirror
	log     *zap.Logger
}

func NewPropagator(durable DurableStore, mirror CacheMirror, log *zap.Logger) *Propagator {
	return &Propagator{durable: durable, mirror: mirror, log: log}
}

// Propagate never fails the request: the engine-computed value in the cache
// is the freshness authority, the durable store is allowed to lag and gets
// reconciled by the refresh consumer.
func (p *Propagator) Propagate(ctx context.Context, kind types.AccountKind, accountID string, usedMargin decimal.Decimal) {
	if err := p.durable.UpdateUsedMargin(ctx, kind, accountID, usedMargin); err != nil {
		p.log.Error("used-margin durable update failed",
			zap.String("account_id", accountID),
			zap.String("account_kind", string(kind)),
			zap.String("used_margin", usedMargin.String()),
			zap.Error(err))
	}
	if err := p.mirror.PublishUsedMargin(ctx, kind, accountID, usedMargin); err != nil {
		p.log.Warn("used-margin cache mirror failed",
			zap.String("account_id", accountID),
			zap.String("account_kind", string(kind)),
			zap.Error(err))
	}
}
