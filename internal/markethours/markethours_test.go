package markethours

import (
	"testing"
	"time"
)

var (
	saturday  = time.Date(2026, 3, 21, 12, 0, 0, 0, time.UTC)
	sunday    = time.Date(2026, 3, 22, 12, 0, 0, 0, time.UTC)
	wednesday = time.Date(2026, 3, 18, 12, 0, 0, 0, time.UTC)
)

func TestClassify(t *testing.T) {
	o := NewOracle(nil)
	cases := []struct {
		symbol string
		want   Classification
	}{
		{"BTCUSD", Continuous},
		{"btcusd", Continuous},
		{" ETHUSD ", Continuous},
		{"EURUSD", Weekday},
		{"XAUUSD", Weekday},
		{"", Weekday},
	}
	for _, tc := range cases {
		if got := o.Classify(tc.symbol); got != tc.want {
			t.Errorf("Classify(%q) = %s, want %s", tc.symbol, got, tc.want)
		}
	}
}

func TestClassifyExtraSymbols(t *testing.T) {
	o := NewOracle([]string{"adausd", " TONUSD "})
	if o.Classify("ADAUSD") != Continuous {
		t.Error("configured extra symbol should classify as continuous")
	}
	if o.Classify("TONUSD") != Continuous {
		t.Error("configured extra symbol should classify as continuous")
	}
	if o.Classify("EURUSD") != Weekday {
		t.Error("extra symbols must not affect others")
	}
}

func TestIsOpen(t *testing.T) {
	o := NewOracle(nil)
	cases := []struct {
		symbol string
		at     time.Time
		want   bool
	}{
		{"BTCUSD", saturday, true},
		{"BTCUSD", sunday, true},
		{"BTCUSD", wednesday, true},
		{"EURUSD", wednesday, true},
		{"EURUSD", saturday, false},
		{"EURUSD", sunday, false},
	}
	for _, tc := range cases {
		if got := o.IsOpen(tc.symbol, tc.at); got != tc.want {
			t.Errorf("IsOpen(%q, %s) = %v, want %v", tc.symbol, tc.at.Weekday(), got, tc.want)
		}
	}
}

func TestIsOpenUsesUTC(t *testing.T) {
	o := NewOracle(nil)
	// Friday 23:00 in a UTC+3 zone is already Saturday in local terms but
	// still Friday in UTC, so the market is open.
	loc := time.FixedZone("UTC+3", 3*60*60)
	fridayUTC := time.Date(2026, 3, 21, 1, 0, 0, 0, loc) // 2026-03-20 22:00 UTC
	if !o.IsOpen("EURUSD", fridayUTC) {
		t.Error("weekday check must use UTC")
	}
}
