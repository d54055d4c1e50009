package margin

import (
	"context"
	"errors"
	"testing"

	"mx-orderdesk/internal/types"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type durableRec struct {
	calls []decimal.Decimal
	err   error
}

func (d *durableRec) UpdateUsedMargin(_ context.Context, _ types.AccountKind, _ string, usedMargin decimal.Decimal) error {
	d.calls = append(d.calls, usedMargin)
	return d.err
}

type mirrorRec struct {
	calls []decimal.Decimal
	err   error
}

func (m *mirrorRec) PublishUsedMargin(_ context.Context, _ types.AccountKind, _ string, usedMargin decimal.Decimal) error {
	m.calls = append(m.calls, usedMargin)
	return m.err
}

func TestPropagateWritesBothStores(t *testing.T) {
	durable := &durableRec{}
	mirror := &mirrorRec{}
	p := NewPropagator(durable, mirror, zap.NewNop())

	v := decimal.NewFromInt(50)
	p.Propagate(context.Background(), types.AccountKindLive, "42", v)

	if len(durable.calls) != 1 || !durable.calls[0].Equal(v) {
		t.Fatalf("durable calls = %v", durable.calls)
	}
	if len(mirror.calls) != 1 || !mirror.calls[0].Equal(v) {
		t.Fatalf("mirror calls = %v", mirror.calls)
	}
}

func TestPropagateSwallowsFailures(t *testing.T) {
	durable := &durableRec{err: errors.New("db down")}
	mirror := &mirrorRec{err: errors.New("redis down")}
	p := NewPropagator(durable, mirror, zap.NewNop())

	// Must not panic or propagate; the mirror is still attempted after a
	// durable failure.
	p.Propagate(context.Background(), types.AccountKindDemo, "7", decimal.NewFromInt(10))

	if len(durable.calls) != 1 || len(mirror.calls) != 1 {
		t.Fatal("both stores must be attempted even when failing")
	}
}
