// Package cyclemath implements the date arithmetic behind recurring billing
// cycles. All advancement of a subscription's due date goes through Advance so
// generation, backfill and projection agree on calendar semantics.
package cyclemath

import (
	"strings"
	"time"
)

// Cycle is the recurrence unit governing how often a subscription bills.
type Cycle string

const (
	Daily   Cycle = "daily"
	Weekly  Cycle = "weekly"
	Monthly Cycle = "monthly"
	Yearly  Cycle = "yearly"
)

// Normalize maps raw input onto a known cycle. Unknown or empty input falls
// back to Monthly; the fallback is part of the contract, not an error.
func Normalize(raw string) Cycle {
	switch Cycle(strings.ToLower(strings.TrimSpace(raw))) {
	case Daily:
		return Daily
	case Weekly:
		return Weekly
	case Yearly:
		return Yearly
	default:
		return Monthly
	}
}

// Advance returns the next cycle boundary after t. Month and year addition
// follow time.AddDate normalization (Jan 31 + 1 month = Mar 2/3), applied
// consistently everywhere a boundary is computed.
func Advance(t time.Time, cycle Cycle) time.Time {
	switch Normalize(string(cycle)) {
	case Daily:
		return t.AddDate(0, 0, 1)
	case Weekly:
		return t.AddDate(0, 0, 7)
	case Yearly:
		return t.AddDate(1, 0, 0)
	default:
		return t.AddDate(0, 1, 0)
	}
}

// MonthlyEquivalent normalizes a per-cycle amount to a per-month figure for
// distribution and flow views.
func MonthlyEquivalent(amount float64, cycle Cycle) float64 {
	switch Normalize(string(cycle)) {
	case Daily:
		return amount * 30
	case Weekly:
		return amount * 52 / 12
	case Yearly:
		return amount / 12
	default:
		return amount
	}
}

// SameDay reports whether two instants fall on the same calendar day in UTC.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
