package types

import "testing"

func TestOrderStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to OrderStatus
		want     bool
	}{
		{OrderStatusQueued, OrderStatusOpen, true},
		{OrderStatusQueued, OrderStatusRejected, true},
		{OrderStatusQueued, OrderStatusQueued, true},
		{OrderStatusQueued, OrderStatusClosed, false},
		{OrderStatusOpen, OrderStatusClosed, true},
		{OrderStatusOpen, OrderStatusOpen, true},
		{OrderStatusOpen, OrderStatusRejected, false},
		{OrderStatusOpen, OrderStatusQueued, false},
		{OrderStatusClosed, OrderStatusOpen, false},
		{OrderStatusClosed, OrderStatusClosed, false},
		{OrderStatusRejected, OrderStatusOpen, false},
		{OrderStatusRejected, OrderStatusQueued, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Errorf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTerminal(t *testing.T) {
	if !OrderStatusClosed.Terminal() {
		t.Error("CLOSED should be terminal")
	}
	if !OrderStatusRejected.Terminal() {
		t.Error("REJECTED should be terminal")
	}
	if OrderStatusQueued.Terminal() {
		t.Error("QUEUED should not be terminal")
	}
	if OrderStatusOpen.Terminal() {
		t.Error("OPEN should not be terminal")
	}
}

func TestSideValid(t *testing.T) {
	if !OrderSideBuy.Valid() || !OrderSideSell.Valid() {
		t.Error("BUY and SELL should be valid")
	}
	if OrderSide("HOLD").Valid() {
		t.Error("HOLD should not be valid")
	}
	if OrderSide("buy").Valid() {
		t.Error("lowercase side should not be valid")
	}
}

func TestAccountKindValid(t *testing.T) {
	if !AccountKindLive.Valid() || !AccountKindDemo.Valid() {
		t.Error("live and demo should be valid")
	}
	if AccountKind("paper").Valid() {
		t.Error("paper should not be valid")
	}
}
