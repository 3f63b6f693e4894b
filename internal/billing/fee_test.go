package billing

import (
	"testing"
	"time"
)

func TestFee_DefaultTariff(t *testing.T) {
	e := time.Date(2025, 12, 28, 19, 37, 53, 0, time.UTC)

	cases := []struct {
		name    string
		elapsed time.Duration
		want    int64
	}{
		{"same instant", 0, 5},
		{"negative skew", -30 * time.Second, 5},
		{"one second", time.Second, 5},
		{"exactly one unit", 2 * time.Second, 5},
		{"just over one unit", 2*time.Second + time.Millisecond, 10},
		{"ten seconds", 10 * time.Second, 25},
		{"eleven seconds", 11 * time.Second, 30},
		{"one hour", time.Hour, 9000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DefaultTariff.Fee(e, e.Add(tc.elapsed)); got != tc.want {
				t.Fatalf("Fee(+%v) = %d, want %d", tc.elapsed, got, tc.want)
			}
		})
	}
}

func TestFee_CustomTariff(t *testing.T) {
	tr := Tariff{UnitSeconds: 3600, UnitPrice: 4}
	e := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

	if got := tr.Fee(e, e.Add(90*time.Minute)); got != 8 {
		t.Fatalf("90m on hourly tariff = %d, want 8", got)
	}
	if got := tr.Fee(e, e); got != 4 {
		t.Fatalf("zero stay = %d, want 4", got)
	}
}

func TestTariff_Validate(t *testing.T) {
	if err := DefaultTariff.Validate(); err != nil {
		t.Fatalf("default tariff invalid: %v", err)
	}
	for _, tr := range []Tariff{{0, 5}, {2, 0}, {-1, 5}, {2, -5}} {
		if err := tr.Validate(); err == nil {
			t.Fatalf("expected error for %+v", tr)
		}
	}
}
