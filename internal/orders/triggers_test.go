package orders

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"mx-orderdesk/internal/engine"
	"mx-orderdesk/internal/model"
	"mx-orderdesk/internal/types"
)

func attachReq(trigger TriggerKind, price string) AttachTriggerRequest {
	return AttachTriggerRequest{
		UserID:       "u1",
		AccountID:    "42",
		AccountKind:  types.AccountKindLive,
		OrderID:      "ord_20260317_000001",
		Trigger:      trigger,
		TriggerPrice: dec(price),
	}
}

func TestAttachStopLossLocalFlow(t *testing.T) {
	svc, d := newTestService()
	d.cache.records["ord_20260317_000001"] = openCacheRecord() // BUY at 1.0951
	d.bridge.attachResp = engine.AttachTriggerResponse{Flow: types.FlowLocal}

	res, err := svc.AttachTrigger(context.Background(), attachReq(TriggerStopLoss, "1.0900"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Flow != types.FlowLocal {
		t.Fatalf("flow = %s", res.Flow)
	}
	if res.TriggerID != "sl_20260317_000001" {
		t.Fatalf("trigger id = %q", res.TriggerID)
	}

	// Persisted twice: the bare id before the engine call, the price after.
	if len(d.durable.slSets) != 2 {
		t.Fatalf("durable stop-loss writes = %d", len(d.durable.slSets))
	}
	if d.durable.slSets[0].price != nil {
		t.Fatal("pre-engine persist must not carry a price")
	}
	if d.durable.slSets[1].price == nil || !d.durable.slSets[1].price.Equal(dec("1.0900")) {
		t.Fatalf("persisted price = %v", d.durable.slSets[1].price)
	}
	if len(d.cache.slSets) != 1 || !d.cache.slSets[0].price.Equal(dec("1.0900")) {
		t.Fatal("cache must mirror the trigger")
	}
}

func TestAttachTakeProfitLocalFlow(t *testing.T) {
	svc, d := newTestService()
	d.cache.records["ord_20260317_000001"] = openCacheRecord()
	d.bridge.attachResp = engine.AttachTriggerResponse{Flow: types.FlowLocal}

	res, err := svc.AttachTrigger(context.Background(), attachReq(TriggerTakeProfit, "1.1000"))
	if err != nil {
		t.Fatal(err)
	}
	if res.TriggerID != "tp_20260317_000001" {
		t.Fatalf("trigger id = %q", res.TriggerID)
	}
	if len(d.durable.tpSets) != 2 {
		t.Fatalf("durable take-profit writes = %d", len(d.durable.tpSets))
	}
}

func TestAttachProviderFlowDefersPersist(t *testing.T) {
	svc, d := newTestService()
	d.cache.records["ord_20260317_000001"] = openCacheRecord()
	d.bridge.attachResp = engine.AttachTriggerResponse{Flow: types.FlowProvider}

	res, err := svc.AttachTrigger(context.Background(), attachReq(TriggerStopLoss, "1.0900"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Flow != types.FlowProvider {
		t.Fatalf("flow = %s", res.Flow)
	}
	// Only the pre-engine id persist; the price waits for confirmation.
	if len(d.durable.slSets) != 1 || d.durable.slSets[0].price != nil {
		t.Fatalf("durable writes = %+v", d.durable.slSets)
	}
	if len(d.cache.slSets) != 0 {
		t.Fatal("no cache mirror before confirmation")
	}
}

func TestAttachDirectionRejectedBeforeID(t *testing.T) {
	cases := []struct {
		name    string
		side    types.OrderSide
		trigger TriggerKind
		price   string
	}{
		{"buy stop-loss at entry", types.OrderSideBuy, TriggerStopLoss, "1.0951"},
		{"buy stop-loss above entry", types.OrderSideBuy, TriggerStopLoss, "1.1000"},
		{"buy take-profit at entry", types.OrderSideBuy, TriggerTakeProfit, "1.0951"},
		{"buy take-profit below entry", types.OrderSideBuy, TriggerTakeProfit, "1.0900"},
		{"sell stop-loss below entry", types.OrderSideSell, TriggerStopLoss, "1.0900"},
		{"sell take-profit above entry", types.OrderSideSell, TriggerTakeProfit, "1.1000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, d := newTestService()
			rec := openCacheRecord()
			rec.Side = tc.side
			d.cache.records["ord_20260317_000001"] = rec

			_, err := svc.AttachTrigger(context.Background(), attachReq(tc.trigger, tc.price))
			var sErr *StatusError
			if !errors.As(err, &sErr) || sErr.Status != http.StatusBadRequest {
				t.Fatalf("got %v", err)
			}
			if len(d.ids.kinds) != 0 {
				t.Fatal("no lifecycle id may be generated for a rejected trigger")
			}
			if len(d.bridge.attachCalls) != 0 {
				t.Fatal("rejected trigger must not reach the engine")
			}
		})
	}
}

func TestAttachValidDirections(t *testing.T) {
	cases := []struct {
		name    string
		side    types.OrderSide
		trigger TriggerKind
		price   string
	}{
		{"buy stop-loss below entry", types.OrderSideBuy, TriggerStopLoss, "1.0900"},
		{"buy take-profit above entry", types.OrderSideBuy, TriggerTakeProfit, "1.1000"},
		{"sell stop-loss above entry", types.OrderSideSell, TriggerStopLoss, "1.1000"},
		{"sell take-profit below entry", types.OrderSideSell, TriggerTakeProfit, "1.0900"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, d := newTestService()
			rec := openCacheRecord()
			rec.Side = tc.side
			d.cache.records["ord_20260317_000001"] = rec
			d.bridge.attachResp = engine.AttachTriggerResponse{Flow: types.FlowLocal}

			if _, err := svc.AttachTrigger(context.Background(), attachReq(tc.trigger, tc.price)); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestAttachEntryPriceFallbackToDurable(t *testing.T) {
	svc, d := newTestService()
	// Cache record with no usable price; entry must come from the row.
	rec := openCacheRecord()
	rec.OrderPrice = dec("0")
	d.cache.records["ord_20260317_000001"] = rec
	d.durable.rows["ord_20260317_000001"] = model.Order{
		OrderID:     "ord_20260317_000001",
		AccountID:   "42",
		AccountKind: types.AccountKindLive,
		Symbol:      "EURUSD",
		Side:        types.OrderSideBuy,
		Status:      types.OrderStatusOpen,
		Qty:         dec("1.0"),
		OrderPrice:  decp("1.0951"),
	}
	d.bridge.attachResp = engine.AttachTriggerResponse{Flow: types.FlowLocal}

	// 1.0960 is above the durable entry, so a stop-loss must be rejected:
	// proof the durable price was used.
	_, err := svc.AttachTrigger(context.Background(), attachReq(TriggerStopLoss, "1.0960"))
	var sErr *StatusError
	if !errors.As(err, &sErr) || sErr.Status != http.StatusBadRequest {
		t.Fatalf("got %v", err)
	}
	if _, err := svc.AttachTrigger(context.Background(), attachReq(TriggerStopLoss, "1.0900")); err != nil {
		t.Fatal(err)
	}
}

func TestAttachEntryPriceFallbackToHoldings(t *testing.T) {
	svc, d := newTestService()
	rec := openCacheRecord()
	rec.OrderPrice = dec("0")
	d.cache.records["ord_20260317_000001"] = rec
	d.durable.rows["ord_20260317_000001"] = model.Order{
		OrderID:     "ord_20260317_000001",
		AccountID:   "42",
		AccountKind: types.AccountKindLive,
		Symbol:      "EURUSD",
		Side:        types.OrderSideBuy,
		Status:      types.OrderStatusOpen,
		Qty:         dec("1.0"),
	}
	d.cache.holdings["live:42:ord_20260317_000001"] = dec("1.0951")
	d.bridge.attachResp = engine.AttachTriggerResponse{Flow: types.FlowLocal}

	if _, err := svc.AttachTrigger(context.Background(), attachReq(TriggerStopLoss, "1.0900")); err != nil {
		t.Fatal(err)
	}
}

func TestAttachNoEntryPrice(t *testing.T) {
	svc, d := newTestService()
	rec := openCacheRecord()
	rec.OrderPrice = dec("0")
	d.cache.records["ord_20260317_000001"] = rec
	d.durable.rows["ord_20260317_000001"] = model.Order{
		OrderID:     "ord_20260317_000001",
		AccountID:   "42",
		AccountKind: types.AccountKindLive,
		Symbol:      "EURUSD",
		Side:        types.OrderSideBuy,
		Status:      types.OrderStatusOpen,
		Qty:         dec("1.0"),
	}

	_, err := svc.AttachTrigger(context.Background(), attachReq(TriggerStopLoss, "1.0900"))
	var sErr *StatusError
	if !errors.As(err, &sErr) || sErr.Status != http.StatusConflict {
		t.Fatalf("got %v", err)
	}
	if len(d.bridge.attachCalls) != 0 {
		t.Fatal("unresolvable entry must not reach the engine")
	}
}

func TestAttachNotOpen(t *testing.T) {
	svc, d := newTestService()
	rec := openCacheRecord()
	rec.Status = types.OrderStatusQueued
	d.cache.records["ord_20260317_000001"] = rec

	_, err := svc.AttachTrigger(context.Background(), attachReq(TriggerStopLoss, "1.0900"))
	var sErr *StatusError
	if !errors.As(err, &sErr) || sErr.Status != http.StatusConflict {
		t.Fatalf("got %v", err)
	}
}

func TestAttachValidation(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.AttachTrigger(context.Background(), AttachTriggerRequest{
		UserID:      "u1",
		AccountID:   "42",
		AccountKind: types.AccountKind("paper"),
		Trigger:     TriggerKind("trailing"),
	})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("got %v", err)
	}
	want := map[string]bool{"order_id": true, "trigger": true, "trigger_price": true, "account_kind": true}
	for _, f := range vErr.Fields {
		if !want[f] {
			t.Fatalf("unexpected field %q", f)
		}
	}
	if len(vErr.Fields) != len(want) {
		t.Fatalf("fields = %v", vErr.Fields)
	}
}

func TestAttachEngineFailureRelayed(t *testing.T) {
	svc, d := newTestService()
	d.cache.records["ord_20260317_000001"] = openCacheRecord()
	d.bridge.attachErr = &engine.Error{Status: http.StatusBadGateway, Reason: engine.ReasonUnreachable, Message: "timeout"}

	_, err := svc.AttachTrigger(context.Background(), attachReq(TriggerStopLoss, "1.0900"))
	var engErr *engine.Error
	if !errors.As(err, &engErr) || engErr.Reason != engine.ReasonUnreachable {
		t.Fatalf("got %v", err)
	}
	// The id was persisted before the call, so the attempt stays traceable.
	if len(d.durable.slSets) != 1 {
		t.Fatal("trigger id must be persisted before the engine call")
	}
}
