/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the settlement-service. By defining an interface,
 * we decouple the application's business logic from the specific database implementation
 * (e.g., PostgreSQL), making the code more modular and easier to test.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - github.com/shopspring/decimal: Exact currency amounts.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rentiva/settlement-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
//
// Every hold read path first applies the due-date promotion (HOLDING -> READY
// once hold_end_date has passed) with a conditional update, so correctness
// never depends on the background sweep having run.
type Repository interface {
	// Return settlement
	// CreateReturnSettlement persists the fee breakdown, the deposit hold and
	// the pending rental bill as one transaction. The three rows are born
	// together; a failure leaves none of them behind.
	CreateReturnSettlement(ctx context.Context, fee *domain.ReturnFee, hold *domain.DepositHold, bill *domain.Payment) error
	FindReturnFeeByContract(ctx context.Context, contractID uuid.UUID) (*domain.ReturnFee, error)

	// Deposit hold lifecycle
	FindHoldByID(ctx context.Context, holdID uuid.UUID) (*domain.DepositHold, error)
	FindHoldByContractID(ctx context.Context, contractID uuid.UUID) (*domain.DepositHold, error)
	ListHolds(ctx context.Context, status *domain.HoldStatus) ([]domain.DepositHold, error)
	// PromoteDueHolds flips every overdue HOLDING row to READY and reports how
	// many rows changed. Used by the cron sweep; the same conditional update
	// runs inline on reads.
	PromoteDueHolds(ctx context.Context, now time.Time) (int64, error)

	// Violation ledger
	CreateViolation(ctx context.Context, v *domain.TrafficViolation) error
	ConfirmViolation(ctx context.Context, violationID uuid.UUID) (*domain.TrafficViolation, error)
	DeleteViolation(ctx context.Context, violationID uuid.UUID) error
	ListViolationsByHold(ctx context.Context, holdID uuid.UUID) ([]domain.TrafficViolation, error)
	SumFinesByHold(ctx context.Context, holdID uuid.UUID) (decimal.Decimal, error)

	// Refund processing
	// ProcessRefund performs the read-check-write settlement as one database
	// transaction: verify READY, insert the refund (hold_id is unique),
	// transition the hold to REFUNDED, record the payout payment and mark the
	// refund COMPLETED. Concurrent callers get domain.ErrAlreadyRefunded.
	ProcessRefund(ctx context.Context, holdID uuid.UUID, customerID uuid.UUID, method domain.RefundMethod, now time.Time) (*domain.Refund, error)
	FindRefundByHoldID(ctx context.Context, holdID uuid.UUID) (*domain.Refund, error)
	ListRefundsByStatus(ctx context.Context, status domain.RefundStatus) ([]domain.Refund, error)

	// Payments
	CreatePayment(ctx context.Context, p *domain.Payment) error
	FindPaymentByTransactionRef(ctx context.Context, txnRef string) (*domain.Payment, error)
	FindPendingPaymentByContract(ctx context.Context, contractID uuid.UUID, kind domain.PaymentType) (*domain.Payment, error)
	UpdatePaymentForNewAttempt(ctx context.Context, paymentID uuid.UUID, txnRef, paymentURL string) error
	RecordPaymentCallback(ctx context.Context, paymentID uuid.UUID, status domain.PaymentStatus, paidAt *time.Time, echo domain.GatewayEcho) error

	// Mutable system settings, re-read on every calculation.
	ReadSetting(ctx context.Context, key, fallback string) (string, error)
}
