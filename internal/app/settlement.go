/**
 * @description
 * The return settlement calculator. Given a contract snapshot and the
 * recorded return event it computes the fee breakdown: rental-day
 * adjustment, late fee, damage fee and one-way fee, plus the resulting
 * deposit deduction.
 *
 * The two configured rates (late fee per day, one-way fee percent) and the
 * hold window come from the mutable settings store and are re-read on every
 * call. Staff can change them between requests, so caching them here would
 * calculate with stale rates.
 */

package app

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rentiva/settlement-service/internal/domain"
)

// Settings keys and their fallbacks. late_fee_per_day wins when present;
// otherwise it derives from the hourly rate times 24.
const (
	settingLateFeePerDay    = "late_fee_per_day"
	settingLateFeePerHour   = "late_fee_per_hour"
	settingOneWayFeePercent = "one_way_fee_percent"
	settingDepositHoldDays  = "deposit_hold_days"

	defaultLateFeePerHour   = "50000"
	defaultOneWayFeePercent = "5"
	defaultDepositHoldDays  = "14"
)

// SettingsReader is the slice of the repository the calculator needs.
type SettingsReader interface {
	ReadSetting(ctx context.Context, key, fallback string) (string, error)
}

// Settlement is the computed outcome of a vehicle return before persistence.
type Settlement struct {
	Fee              domain.ReturnFee
	ActualDays       int64
	ActualRentalFee  decimal.Decimal
	DeductedAtReturn decimal.Decimal
	HoldEndDate      time.Time
}

// ValidateReturn checks the staff-recorded return event against the
// contract. Violations come back as domain.ErrValidation wrappers.
func ValidateReturn(contract *domain.Contract, req *domain.ReturnRequest) error {
	if req.Odometer < 0 {
		return domain.NewValidationError("odometer", "must be zero or greater")
	}
	if req.FuelLevel < 0 || req.FuelLevel > 100 {
		return domain.NewValidationError("fuel_level", "must be between 0 and 100")
	}
	if req.ConditionNotes == "" {
		return domain.NewValidationError("condition_notes", "required")
	}
	if req.HasDamage {
		if req.DamageDescription == "" {
			return domain.NewValidationError("damage_description", "required when damage is reported")
		}
		if req.DamageFee.Sign() <= 0 {
			return domain.NewValidationError("damage_fee", "must be greater than zero when damage is reported")
		}
	}
	if req.ActualReturnTime.Before(contract.StartDate) {
		return domain.NewValidationError("actual_return_time", "cannot precede the contract start date")
	}
	return nil
}

// CalculateSettlement computes the full fee breakdown for a validated
// return. Pure given its inputs except for the configured rates, which are
// read per call from the settings store.
func CalculateSettlement(ctx context.Context, settings SettingsReader, contract *domain.Contract, req *domain.ReturnRequest, contractedLocationID uuid.UUID) (*Settlement, error) {
	actualDays := domain.RentalDays(contract.StartDate, req.ActualReturnTime)
	actualRentalFee := contract.DailyRate.Mul(decimal.NewFromInt(actualDays))
	rentalAdjustment := actualRentalFee.Sub(contract.TotalRentalFee)

	daysLate := domain.DaysLate(contract.EndDate, req.ActualReturnTime)
	lateFee := decimal.Zero
	if daysLate > 0 {
		perDay, err := lateFeePerDay(ctx, settings)
		if err != nil {
			return nil, err
		}
		lateFee = perDay.Mul(decimal.NewFromInt(daysLate)).Round(0)
	}

	isDifferentLocation := req.ReturnLocationID != contractedLocationID
	oneWayFee := decimal.Zero
	if isDifferentLocation {
		percent, err := readDecimalSetting(ctx, settings, settingOneWayFeePercent, defaultOneWayFeePercent)
		if err != nil {
			return nil, err
		}
		oneWayFee = actualRentalFee.Mul(percent).Div(decimal.NewFromInt(100)).Round(0)
	}

	damageFee := decimal.Zero
	var damageDescription *string
	if req.HasDamage {
		damageFee = req.DamageFee
		desc := req.DamageDescription
		damageDescription = &desc
	}

	totalFees := rentalAdjustment.Add(lateFee).Add(damageFee).Add(oneWayFee)

	holdDays, err := depositHoldDays(ctx, settings)
	if err != nil {
		return nil, err
	}

	return &Settlement{
		Fee: domain.ReturnFee{
			ContractID:          contract.ID,
			IsLate:              daysLate > 0,
			DaysLate:            daysLate,
			LateFee:             lateFee,
			HasDamage:           req.HasDamage,
			DamageDescription:   damageDescription,
			DamageFee:           damageFee,
			IsDifferentLocation: isDifferentLocation,
			OneWayFee:           oneWayFee,
			RentalAdjustment:    rentalAdjustment,
			TotalFees:           totalFees,
		},
		ActualDays:       actualDays,
		ActualRentalFee:  actualRentalFee,
		DeductedAtReturn: domain.ClampDeduction(totalFees, contract.DepositAmount),
		HoldEndDate:      req.ActualReturnTime.AddDate(0, 0, holdDays),
	}, nil
}

func lateFeePerDay(ctx context.Context, settings SettingsReader) (decimal.Decimal, error) {
	raw, err := settings.ReadSetting(ctx, settingLateFeePerDay, "")
	if err != nil {
		return decimal.Zero, err
	}
	if raw != "" {
		return parseDecimalSetting(settingLateFeePerDay, raw)
	}
	// Fall back to the hourly rate times 24.
	perHour, err := readDecimalSetting(ctx, settings, settingLateFeePerHour, defaultLateFeePerHour)
	if err != nil {
		return decimal.Zero, err
	}
	return perHour.Mul(decimal.NewFromInt(24)), nil
}

func depositHoldDays(ctx context.Context, settings SettingsReader) (int, error) {
	raw, err := settings.ReadSetting(ctx, settingDepositHoldDays, defaultDepositHoldDays)
	if err != nil {
		return 0, err
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days <= 0 {
		return 0, fmt.Errorf("setting %s has invalid value %q", settingDepositHoldDays, raw)
	}
	return days, nil
}

func readDecimalSetting(ctx context.Context, settings SettingsReader, key, fallback string) (decimal.Decimal, error) {
	raw, err := settings.ReadSetting(ctx, key, fallback)
	if err != nil {
		return decimal.Zero, err
	}
	return parseDecimalSetting(key, raw)
}

func parseDecimalSetting(key, raw string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("setting %s has invalid value %q: %w", key, raw, err)
	}
	return value, nil
}
