package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal literal %q: %v", s, err)
	}
	return d
}

func TestGatewayMinorUnits(t *testing.T) {
	cases := []struct {
		amount string
		want   int64
	}{
		{"50000000", 5000000000},
		{"0", 0},
		{"1234.5", 123450},
	}
	for _, tc := range cases {
		if got := GatewayMinorUnits(dec(t, tc.amount)); got != tc.want {
			t.Errorf("GatewayMinorUnits(%s) = %d, want %d", tc.amount, got, tc.want)
		}
	}
}

func TestClampDeduction(t *testing.T) {
	deposit := dec(t, "50000000")
	cases := []struct {
		name  string
		total string
		want  string
	}{
		{"credit deducts nothing", "-300000", "0"},
		{"zero total", "0", "0"},
		{"within deposit", "1200000", "1200000"},
		{"exactly deposit", "50000000", "50000000"},
		{"above deposit caps", "60000000", "50000000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ClampDeduction(dec(t, tc.total), deposit)
			if !got.Equal(dec(t, tc.want)) {
				t.Errorf("ClampDeduction(%s) = %s, want %s", tc.total, got, tc.want)
			}
		})
	}
}

func TestRefundableAmount(t *testing.T) {
	cases := []struct {
		name     string
		deposit  string
		deducted string
		fines    string
		want     string
	}{
		{"full refund", "50000000", "0", "0", "50000000"},
		{"deduction and fines", "50000000", "2000000", "1000000", "47000000"},
		{"fines exhaust deposit", "1000000", "800000", "500000", "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := RefundableAmount(dec(t, tc.deposit), dec(t, tc.deducted), dec(t, tc.fines))
			if !got.Equal(dec(t, tc.want)) {
				t.Errorf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestRentalDays(t *testing.T) {
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		name   string
		offset time.Duration
		want   int64
	}{
		{"same day counts as one", 3 * time.Hour, 1},
		{"just under a day", 23 * time.Hour, 1},
		{"exactly one day", 24 * time.Hour, 1},
		{"partial second day floors", 36 * time.Hour, 1},
		{"five full days", 5 * 24 * time.Hour, 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := RentalDays(start, start.Add(tc.offset)); got != tc.want {
				t.Errorf("RentalDays(+%s) = %d, want %d", tc.offset, got, tc.want)
			}
		})
	}
}

func TestDaysLate(t *testing.T) {
	end := time.Date(2025, 3, 6, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		name   string
		offset time.Duration
		want   int64
	}{
		{"early", -2 * time.Hour, 0},
		{"on time", 0, 0},
		{"one minute late rounds up", time.Minute, 1},
		{"one hour late", time.Hour, 1},
		{"exactly one day", 24 * time.Hour, 1},
		{"one day one hour", 25 * time.Hour, 2},
		{"two full days", 48 * time.Hour, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DaysLate(end, end.Add(tc.offset)); got != tc.want {
				t.Errorf("DaysLate(+%s) = %d, want %d", tc.offset, got, tc.want)
			}
		})
	}
}

func TestDaysLate_Monotonic(t *testing.T) {
	end := time.Date(2025, 3, 6, 9, 0, 0, 0, time.UTC)
	prev := int64(0)
	for h := 0; h <= 96; h++ {
		got := DaysLate(end, end.Add(time.Duration(h)*time.Hour))
		if got < prev {
			t.Fatalf("DaysLate decreased at +%dh: %d -> %d", h, prev, got)
		}
		prev = got
	}
}
