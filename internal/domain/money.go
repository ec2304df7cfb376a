/**
 * @description
 * Money and day-rounding helpers shared by the settlement calculator and the
 * refund processor. All currency math stays in shopspring/decimal; the only
 * integer conversion happens at the payment-gateway boundary, which speaks
 * whole minor units (amount × 100).
 */

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

var minorUnitFactor = decimal.NewFromInt(100)

// GatewayMinorUnits converts an internal decimal amount into the whole
// minor units the payment gateway expects.
func GatewayMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(minorUnitFactor).IntPart()
}

// ClampDeduction clamps the signed settlement total into [0, deposit].
// Negative totals (early-return credit) deduct nothing from the deposit;
// totals above the deposit cap at the full deposit, with the excess handled
// as a separate receivable outside this service.
func ClampDeduction(totalFees, deposit decimal.Decimal) decimal.Decimal {
	if totalFees.Sign() <= 0 {
		return decimal.Zero
	}
	if totalFees.GreaterThan(deposit) {
		return deposit
	}
	return totalFees
}

// RefundableAmount is the single refund formula: preview and processing must
// never diverge. The result never goes negative.
func RefundableAmount(deposit, deductedAtReturn, trafficFines decimal.Decimal) decimal.Decimal {
	amount := deposit.Sub(deductedAtReturn).Sub(trafficFines)
	if amount.Sign() < 0 {
		return decimal.Zero
	}
	return amount
}

// RentalDays counts billable days between pickup and return: whole elapsed
// days, minimum one.
func RentalDays(start, returnTime time.Time) int64 {
	days := int64(returnTime.Sub(start).Hours() / 24)
	if days < 1 {
		days = 1
	}
	return days
}

// DaysLate counts late days past the contracted end, rounding any partial
// day up. Zero when the return is on time.
func DaysLate(end, returnTime time.Time) int64 {
	if !returnTime.After(end) {
		return 0
	}
	elapsed := returnTime.Sub(end)
	days := int64(elapsed.Hours() / 24)
	if elapsed%(24*time.Hour) > 0 {
		days++
	}
	return days
}
