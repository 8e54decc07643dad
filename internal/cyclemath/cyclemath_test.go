package cyclemath

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAdvanceTwiceLandsTwoCyclesOut(t *testing.T) {
	start := date(2025, time.March, 15)

	cases := []struct {
		cycle Cycle
		want  time.Time
	}{
		{Daily, date(2025, time.March, 17)},
		{Weekly, date(2025, time.March, 29)},
		{Monthly, date(2025, time.May, 15)},
		{Yearly, date(2027, time.March, 15)},
	}

	for _, tc := range cases {
		got := Advance(Advance(start, tc.cycle), tc.cycle)
		if !got.Equal(tc.want) {
			t.Errorf("Advance twice with %s: expected %v, got %v", tc.cycle, tc.want, got)
		}
	}
}

func TestAdvanceMonthEndOverflow(t *testing.T) {
	// AddDate normalization: Jan 31 + 1 month = Mar 3 (non-leap year).
	got := Advance(date(2025, time.January, 31), Monthly)
	want := date(2025, time.March, 3)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestAdvanceUnknownCycleDefaultsToMonthly(t *testing.T) {
	start := date(2025, time.June, 1)
	got := Advance(start, Cycle("fortnightly"))
	want := date(2025, time.July, 1)
	if !got.Equal(want) {
		t.Fatalf("expected unknown cycle to behave as monthly: want %v, got %v", want, got)
	}
}

func TestNormalize(t *testing.T) {
	cases := map[string]Cycle{
		"daily":   Daily,
		"WEEKLY":  Weekly,
		" yearly": Yearly,
		"monthly": Monthly,
		"":        Monthly,
		"bogus":   Monthly,
	}
	for raw, want := range cases {
		if got := Normalize(raw); got != want {
			t.Errorf("Normalize(%q): expected %s, got %s", raw, want, got)
		}
	}
}

func TestMonthlyEquivalent(t *testing.T) {
	if got := MonthlyEquivalent(120, Yearly); got != 10 {
		t.Fatalf("expected yearly 120 to normalize to 10/month, got %v", got)
	}
	if got := MonthlyEquivalent(10, Monthly); got != 10 {
		t.Fatalf("expected monthly amount unchanged, got %v", got)
	}
	if got := MonthlyEquivalent(1, Daily); got != 30 {
		t.Fatalf("expected daily 1 to normalize to 30/month, got %v", got)
	}
}

func TestStartOfDayAndSameDay(t *testing.T) {
	at := time.Date(2025, time.April, 9, 17, 42, 3, 0, time.UTC)
	sod := StartOfDay(at)
	if sod.Hour() != 0 || sod.Minute() != 0 {
		t.Fatalf("expected midnight, got %v", sod)
	}
	if !SameDay(at, sod) {
		t.Fatal("expected same calendar day")
	}
	if SameDay(at, at.AddDate(0, 0, 1)) {
		t.Fatal("expected different calendar day")
	}
}
