package markethours

import (
	"strings"
	"time"
)

type Classification string

const (
	// Continuous instruments (crypto) trade around the clock.
	Continuous Classification = "continuous"
	// Weekday instruments (forex, metals, indices) close for the weekend.
	Weekday Classification = "weekday"
)

type Oracle struct {
	continuous map[string]struct{}
}

var defaultContinuous = []string{
	"BTCUSD", "ETHUSD", "LTCUSD", "XRPUSD", "SOLUSD", "DOGEUSD",
}

// NewOracle builds the classifier. extra symbols come from configuration and
// are merged into the built-in continuous set.
func NewOracle(extra []string) *Oracle {
	o := &Oracle{continuous: make(map[string]struct{}, len(defaultContinuous)+len(extra))}
	for _, s := range defaultContinuous {
		o.continuous[s] = struct{}{}
	}
	for _, s := range extra {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			o.continuous[s] = struct{}{}
		}
	}
	return o
}

func (o *Oracle) Classify(symbol string) Classification {
	if _, ok := o.continuous[strings.ToUpper(strings.TrimSpace(symbol))]; ok {
		return Continuous
	}
	return Weekday
}

// IsOpen reports whether the instrument's market is trading at t.
// Weekday instruments are closed on Saturday and Sunday (UTC).
func (o *Oracle) IsOpen(symbol string, t time.Time) bool {
	if o.Classify(symbol) == Continuous {
		return true
	}
	switch t.UTC().Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return true
}
