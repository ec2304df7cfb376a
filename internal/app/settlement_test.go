package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rentiva/settlement-service/internal/domain"
)

type settingsStub struct {
	values map[string]string
	err    error
}

func (s *settingsStub) ReadSetting(ctx context.Context, key, fallback string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if v, ok := s.values[key]; ok {
		return v, nil
	}
	return fallback, nil
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal literal %q: %v", s, err)
	}
	return d
}

func testContract(t *testing.T) *domain.Contract {
	t.Helper()
	return &domain.Contract{
		ID:             uuid.New(),
		ContractNumber: "CT-2025-0042",
		CustomerID:     uuid.New(),
		VehicleID:      uuid.New(),
		StartDate:      time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2025, 3, 6, 9, 0, 0, 0, time.UTC),
		DailyRate:      mustDecimal(t, "800000"),
		DepositAmount:  mustDecimal(t, "50000000"),
		TotalRentalFee: mustDecimal(t, "4000000"),
		Status:         domain.ContractActive,
	}
}

func testReturnRequest(contract *domain.Contract, returnTime time.Time, locationID uuid.UUID) *domain.ReturnRequest {
	return &domain.ReturnRequest{
		ContractID:       contract.ID,
		ActualReturnTime: returnTime,
		Odometer:         15230,
		FuelLevel:        80,
		ConditionNotes:   "clean, no visible issues",
		ReturnLocationID: locationID,
	}
}

func TestCalculateSettlement_OnTimeReturnHasNoFees(t *testing.T) {
	contract := testContract(t)
	location := uuid.New()
	req := testReturnRequest(contract, contract.EndDate, location)
	settings := &settingsStub{values: map[string]string{}}

	s, err := CalculateSettlement(context.Background(), settings, contract, req, location)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s.Fee.IsLate {
		t.Error("expected on-time return not to be late")
	}
	if !s.Fee.LateFee.IsZero() || !s.Fee.OneWayFee.IsZero() || !s.Fee.DamageFee.IsZero() {
		t.Errorf("expected zero fees, got late=%s oneway=%s damage=%s", s.Fee.LateFee, s.Fee.OneWayFee, s.Fee.DamageFee)
	}
	if !s.Fee.TotalFees.IsZero() {
		t.Errorf("expected zero total, got %s", s.Fee.TotalFees)
	}
	if !s.DeductedAtReturn.IsZero() {
		t.Errorf("expected zero deduction, got %s", s.DeductedAtReturn)
	}
	if s.ActualDays != 5 {
		t.Errorf("expected 5 actual days, got %d", s.ActualDays)
	}
}

func TestCalculateSettlement_LateReturnChargesPerStartedDay(t *testing.T) {
	contract := testContract(t)
	location := uuid.New()
	// 25 hours past the contracted end: two started days late.
	returnTime := contract.EndDate.Add(25 * time.Hour)
	req := testReturnRequest(contract, returnTime, location)
	settings := &settingsStub{values: map[string]string{
		"late_fee_per_day": "600000",
	}}

	s, err := CalculateSettlement(context.Background(), settings, contract, req, location)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !s.Fee.IsLate || s.Fee.DaysLate != 2 {
		t.Fatalf("expected 2 days late, got late=%t days=%d", s.Fee.IsLate, s.Fee.DaysLate)
	}
	if want := mustDecimal(t, "1200000"); !s.Fee.LateFee.Equal(want) {
		t.Errorf("expected late fee %s, got %s", want, s.Fee.LateFee)
	}
	// The sixth completed rental day is billed through the adjustment.
	if want := mustDecimal(t, "800000"); !s.Fee.RentalAdjustment.Equal(want) {
		t.Errorf("expected rental adjustment %s, got %s", want, s.Fee.RentalAdjustment)
	}
}

func TestCalculateSettlement_LateFeeFallsBackToHourlyRate(t *testing.T) {
	contract := testContract(t)
	location := uuid.New()
	returnTime := contract.EndDate.Add(3 * time.Hour)
	req := testReturnRequest(contract, returnTime, location)
	settings := &settingsStub{values: map[string]string{}}

	s, err := CalculateSettlement(context.Background(), settings, contract, req, location)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Default 50000/hour * 24 = 1200000 per started day, one day late.
	if want := mustDecimal(t, "1200000"); !s.Fee.LateFee.Equal(want) {
		t.Errorf("expected derived late fee %s, got %s", want, s.Fee.LateFee)
	}
}

func TestCalculateSettlement_EarlyReturnCreditsDaysNotUsed(t *testing.T) {
	contract := testContract(t)
	location := uuid.New()
	// Returned after 4 full days instead of the contracted 5.
	returnTime := contract.StartDate.Add(4 * 24 * time.Hour)
	req := testReturnRequest(contract, returnTime, location)
	settings := &settingsStub{values: map[string]string{}}

	s, err := CalculateSettlement(context.Background(), settings, contract, req, location)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if want := mustDecimal(t, "-800000"); !s.Fee.TotalFees.Equal(want) {
		t.Errorf("expected credit %s, got %s", want, s.Fee.TotalFees)
	}
	// A credit never claims deposit money.
	if !s.DeductedAtReturn.IsZero() {
		t.Errorf("expected zero deduction on credit, got %s", s.DeductedAtReturn)
	}
}

func TestCalculateSettlement_OneWayFeePercentOfActualRental(t *testing.T) {
	contract := testContract(t)
	contracted := uuid.New()
	dropOff := uuid.New()
	req := testReturnRequest(contract, contract.EndDate, dropOff)
	settings := &settingsStub{values: map[string]string{
		"one_way_fee_percent": "10",
	}}

	s, err := CalculateSettlement(context.Background(), settings, contract, req, contracted)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !s.Fee.IsDifferentLocation {
		t.Fatal("expected one-way return to be flagged")
	}
	// 10% of 5 days * 800000 = 400000.
	if want := mustDecimal(t, "400000"); !s.Fee.OneWayFee.Equal(want) {
		t.Errorf("expected one-way fee %s, got %s", want, s.Fee.OneWayFee)
	}
}

func TestCalculateSettlement_DamageFeePassesThrough(t *testing.T) {
	contract := testContract(t)
	location := uuid.New()
	req := testReturnRequest(contract, contract.EndDate, location)
	req.HasDamage = true
	req.DamageDescription = "scratched rear bumper"
	req.DamageFee = mustDecimal(t, "2500000")
	settings := &settingsStub{values: map[string]string{}}

	s, err := CalculateSettlement(context.Background(), settings, contract, req, location)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !s.Fee.HasDamage || s.Fee.DamageDescription == nil {
		t.Fatal("expected damage to be recorded")
	}
	if want := mustDecimal(t, "2500000"); !s.Fee.TotalFees.Equal(want) {
		t.Errorf("expected total %s, got %s", want, s.Fee.TotalFees)
	}
	if !s.DeductedAtReturn.Equal(mustDecimal(t, "2500000")) {
		t.Errorf("expected full deduction, got %s", s.DeductedAtReturn)
	}
}

func TestCalculateSettlement_DeductionClampedToDeposit(t *testing.T) {
	contract := testContract(t)
	contract.DepositAmount = mustDecimal(t, "1000000")
	location := uuid.New()
	req := testReturnRequest(contract, contract.EndDate, location)
	req.HasDamage = true
	req.DamageDescription = "front collision damage"
	req.DamageFee = mustDecimal(t, "9000000")
	settings := &settingsStub{values: map[string]string{}}

	s, err := CalculateSettlement(context.Background(), settings, contract, req, location)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !s.DeductedAtReturn.Equal(contract.DepositAmount) {
		t.Errorf("expected deduction clamped to %s, got %s", contract.DepositAmount, s.DeductedAtReturn)
	}
	// The breakdown keeps the real total even when the deposit cannot cover it.
	if !s.Fee.TotalFees.Equal(mustDecimal(t, "9000000")) {
		t.Errorf("expected total %s, got %s", "9000000", s.Fee.TotalFees)
	}
}

func TestCalculateSettlement_HoldWindowFromSettings(t *testing.T) {
	contract := testContract(t)
	location := uuid.New()
	req := testReturnRequest(contract, contract.EndDate, location)
	settings := &settingsStub{values: map[string]string{
		"deposit_hold_days": "21",
	}}

	s, err := CalculateSettlement(context.Background(), settings, contract, req, location)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if want := req.ActualReturnTime.AddDate(0, 0, 21); !s.HoldEndDate.Equal(want) {
		t.Errorf("expected hold end %s, got %s", want, s.HoldEndDate)
	}
}

func TestCalculateSettlement_PropagatesSettingsErrors(t *testing.T) {
	contract := testContract(t)
	location := uuid.New()
	req := testReturnRequest(contract, contract.EndDate.Add(2*time.Hour), location)
	settings := &settingsStub{err: errors.New("settings unavailable")}

	if _, err := CalculateSettlement(context.Background(), settings, contract, req, location); err == nil {
		t.Fatal("expected settings error to propagate")
	}
}

func TestValidateReturn(t *testing.T) {
	contract := testContract(t)
	location := uuid.New()

	valid := testReturnRequest(contract, contract.EndDate, location)
	if err := ValidateReturn(contract, valid); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*domain.ReturnRequest)
	}{
		{"negative odometer", func(r *domain.ReturnRequest) { r.Odometer = -1 }},
		{"fuel above 100", func(r *domain.ReturnRequest) { r.FuelLevel = 101 }},
		{"missing notes", func(r *domain.ReturnRequest) { r.ConditionNotes = "" }},
		{"damage without description", func(r *domain.ReturnRequest) {
			r.HasDamage = true
			r.DamageFee = mustDecimal(t, "100000")
		}},
		{"damage without fee", func(r *domain.ReturnRequest) {
			r.HasDamage = true
			r.DamageDescription = "dent"
		}},
		{"return before start", func(r *domain.ReturnRequest) {
			r.ActualReturnTime = contract.StartDate.Add(-time.Hour)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := testReturnRequest(contract, contract.EndDate, location)
			tc.mutate(req)
			err := ValidateReturn(contract, req)
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}
