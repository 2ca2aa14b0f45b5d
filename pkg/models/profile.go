package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PatternBucket is one entry of the trading-pattern multiplier table,
// keyed by day-of-week and an hour range in the profile's timezone.
type PatternBucket struct {
	Day        int     `json:"day"` // 0=Sunday .. 6=Saturday
	HourStart  int     `json:"hour_start" validate:"gte=0,lte=23"`
	HourEnd    int     `json:"hour_end" validate:"gte=0,lte=23"`
	Multiplier float64 `json:"multiplier" validate:"gt=0"`
}

// FinancialTradingProfile captures the market-hours window and seasonal
// trading pattern of a service. During the window, scale-down is blocked
// outright unless a decision is critical; scale-up targets are amplified by
// the bucket multiplier.
type FinancialTradingProfile struct {
	ServiceName string          `json:"service_name,omitempty"` // empty = global
	Timezone    string          `json:"timezone" validate:"required"`
	MarketOpen  string          `json:"market_open" validate:"required"`  // "15:04"
	MarketClose string          `json:"market_close" validate:"required"` // "15:04"
	TradingDays []int           `json:"trading_days" validate:"required,min=1"`
	Patterns    []PatternBucket `json:"patterns,omitempty"`
}

func parseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

// Validate checks the profile can actually be evaluated at runtime
func (p *FinancialTradingProfile) Validate() error {
	if _, err := time.LoadLocation(p.Timezone); err != nil {
		return fmt.Errorf("profile timezone %q: %w", p.Timezone, err)
	}
	open, err := parseClock(p.MarketOpen)
	if err != nil {
		return fmt.Errorf("profile market open: %w", err)
	}
	clos, err := parseClock(p.MarketClose)
	if err != nil {
		return fmt.Errorf("profile market close: %w", err)
	}
	if clos <= open {
		return fmt.Errorf("profile market close %q not after open %q", p.MarketClose, p.MarketOpen)
	}
	for _, d := range p.TradingDays {
		if d < 0 || d > 6 {
			return fmt.Errorf("profile trading day %d outside 0..6", d)
		}
	}
	return nil
}

// InTradingWindow reports whether t falls inside the market-hours window
func (p *FinancialTradingProfile) InTradingWindow(t time.Time) bool {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		// Fail-safe: an unresolvable timezone keeps protection active.
		return true
	}
	local := t.In(loc)

	day := int(local.Weekday())
	trading := false
	for _, d := range p.TradingDays {
		if d == day {
			trading = true
			break
		}
	}
	if !trading {
		return false
	}

	open, err1 := parseClock(p.MarketOpen)
	clos, err2 := parseClock(p.MarketClose)
	if err1 != nil || err2 != nil {
		return true
	}
	minute := local.Hour()*60 + local.Minute()
	return minute >= open && minute < clos
}

// MultiplierAt returns the trading-pattern multiplier for the bucket
// containing t, or 1.0 when no bucket matches.
func (p *FinancialTradingProfile) MultiplierAt(t time.Time) float64 {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return 1.0
	}
	local := t.In(loc)
	day := int(local.Weekday())
	hour := local.Hour()

	for _, b := range p.Patterns {
		if b.Day == day && hour >= b.HourStart && hour <= b.HourEnd {
			return b.Multiplier
		}
	}
	return 1.0
}
