/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the necessary SQL queries to interact with the database tables
 * related to return fees, deposit holds, traffic violations, refunds, payments
 * and system settings.
 *
 * Invariants enforced here rather than in callers:
 * - Hold promotion is a conditional update (status must still be HOLDING), so
 *   concurrent readers and refund attempts cannot double-write or regress.
 * - Refund exactly-once rests on the UNIQUE constraint on refunds.hold_id plus
 *   a transactional read-check-write under a row lock.
 * - Violation mutations are rejected once the owning hold is REFUNDED.
 *
 * @dependencies
 * - context, time, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/rentiva/settlement-service/internal/domain"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// --- Return settlement ---

// CreateReturnSettlement writes the fee breakdown, the deposit hold and the
// pending rental bill in one transaction. A contract settles exactly once;
// the unique constraints on contract_id back that, and a failure anywhere
// rolls back every row so a retry starts from a clean slate.
func (r *PostgresRepository) CreateReturnSettlement(ctx context.Context, fee *domain.ReturnFee, hold *domain.DepositHold, bill *domain.Payment) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO return_fees (
			id, contract_id, is_late, days_late, late_fee,
			has_damage, damage_description, damage_fee,
			is_different_location, one_way_fee, rental_adjustment, total_fees, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		fee.ID, fee.ContractID, fee.IsLate, fee.DaysLate, fee.LateFee,
		fee.HasDamage, fee.DamageDescription, fee.DamageFee,
		fee.IsDifferentLocation, fee.OneWayFee, fee.RentalAdjustment, fee.TotalFees, fee.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("return fee already recorded for contract %s: %w", fee.ContractID, err)
		}
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO deposit_holds (
			id, contract_id, deposit_amount, deducted_at_return,
			hold_start_date, hold_end_date, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		hold.ID, hold.ContractID, hold.DepositAmount, hold.DeductedAtReturn,
		hold.HoldStartDate, hold.HoldEndDate, string(hold.Status), hold.CreatedAt, hold.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("deposit hold already exists for contract %s: %w", hold.ContractID, err)
		}
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO payments (
			id, contract_id, type, amount, method, status,
			transaction_ref, payment_url, payment_date, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		bill.ID, bill.ContractID, string(bill.Type), bill.Amount, string(bill.Method), string(bill.Status),
		bill.TransactionRef, bill.PaymentURL, bill.PaymentDate, bill.CreatedAt, bill.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PostgresRepository) FindReturnFeeByContract(ctx context.Context, contractID uuid.UUID) (*domain.ReturnFee, error) {
	var fee domain.ReturnFee
	query := `
		SELECT id, contract_id, is_late, days_late, late_fee,
		       has_damage, damage_description, damage_fee,
		       is_different_location, one_way_fee, rental_adjustment, total_fees, created_at
		FROM return_fees
		WHERE contract_id = $1
	`
	err := r.db.QueryRow(ctx, query, contractID).Scan(
		&fee.ID, &fee.ContractID, &fee.IsLate, &fee.DaysLate, &fee.LateFee,
		&fee.HasDamage, &fee.DamageDescription, &fee.DamageFee,
		&fee.IsDifferentLocation, &fee.OneWayFee, &fee.RentalAdjustment, &fee.TotalFees, &fee.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("return fee for contract %s: %w", contractID, domain.ErrNotFound)
		}
		return nil, err
	}
	return &fee, nil
}

// --- Deposit holds ---

// promoteHoldIfDue applies the lazy HOLDING -> READY transition. Conditional
// on the current status so racing readers cannot double-write and a
// concurrent refund never sees a regression.
func (r *PostgresRepository) promoteHoldIfDue(ctx context.Context, holdID uuid.UUID) error {
	query := `
		UPDATE deposit_holds
		SET status = 'READY', updated_at = NOW()
		WHERE id = $1 AND status = 'HOLDING' AND hold_end_date <= NOW()
	`
	_, err := r.db.Exec(ctx, query, holdID)
	return err
}

func scanHold(row pgx.Row, hold *domain.DepositHold) error {
	var status string
	err := row.Scan(
		&hold.ID, &hold.ContractID, &hold.DepositAmount, &hold.DeductedAtReturn,
		&hold.HoldStartDate, &hold.HoldEndDate, &status, &hold.CreatedAt, &hold.UpdatedAt,
	)
	if err != nil {
		return err
	}
	hold.Status, err = domain.ParseHoldStatus(status)
	return err
}

const holdColumns = `id, contract_id, deposit_amount, deducted_at_return,
	hold_start_date, hold_end_date, status, created_at, updated_at`

func (r *PostgresRepository) FindHoldByID(ctx context.Context, holdID uuid.UUID) (*domain.DepositHold, error) {
	if err := r.promoteHoldIfDue(ctx, holdID); err != nil {
		return nil, err
	}
	var hold domain.DepositHold
	query := `SELECT ` + holdColumns + ` FROM deposit_holds WHERE id = $1`
	err := scanHold(r.db.QueryRow(ctx, query, holdID), &hold)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("deposit hold %s: %w", holdID, domain.ErrNotFound)
		}
		return nil, err
	}
	return &hold, nil
}

func (r *PostgresRepository) FindHoldByContractID(ctx context.Context, contractID uuid.UUID) (*domain.DepositHold, error) {
	var hold domain.DepositHold
	query := `SELECT ` + holdColumns + ` FROM deposit_holds WHERE contract_id = $1`
	err := scanHold(r.db.QueryRow(ctx, query, contractID), &hold)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("deposit hold for contract %s: %w", contractID, domain.ErrNotFound)
		}
		return nil, err
	}
	// Re-read after promotion so list and detail views agree.
	if hold.Status == domain.HoldStatusHolding && !hold.HoldEndDate.After(time.Now()) {
		return r.FindHoldByID(ctx, hold.ID)
	}
	return &hold, nil
}

func (r *PostgresRepository) ListHolds(ctx context.Context, status *domain.HoldStatus) ([]domain.DepositHold, error) {
	// Promote everything due first so the listing reflects current state.
	if _, err := r.PromoteDueHolds(ctx, time.Now()); err != nil {
		return nil, err
	}

	query := `SELECT ` + holdColumns + ` FROM deposit_holds`
	args := []interface{}{}
	if status != nil {
		query += ` WHERE status = $1`
		args = append(args, string(*status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holds []domain.DepositHold
	for rows.Next() {
		var hold domain.DepositHold
		if err := scanHold(rows, &hold); err != nil {
			return nil, err
		}
		holds = append(holds, hold)
	}
	return holds, rows.Err()
}

// PromoteDueHolds is the bulk form of the promotion rule, run by the cron
// sweep and before listings.
func (r *PostgresRepository) PromoteDueHolds(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE deposit_holds
		SET status = 'READY', updated_at = NOW()
		WHERE status = 'HOLDING' AND hold_end_date <= $1
	`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// --- Traffic violations ---

// lockHoldStatus reads a hold's status under FOR UPDATE inside tx.
func lockHoldStatus(ctx context.Context, tx pgx.Tx, holdID uuid.UUID) (domain.HoldStatus, error) {
	var status string
	err := tx.QueryRow(ctx, `SELECT status FROM deposit_holds WHERE id = $1 FOR UPDATE`, holdID).Scan(&status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", fmt.Errorf("deposit hold %s: %w", holdID, domain.ErrNotFound)
		}
		return "", err
	}
	return domain.ParseHoldStatus(status)
}

func (r *PostgresRepository) CreateViolation(ctx context.Context, v *domain.TrafficViolation) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	status, err := lockHoldStatus(ctx, tx, v.HoldID)
	if err != nil {
		return err
	}
	if status == domain.HoldStatusRefunded {
		return domain.ErrImmutableAfterRefund
	}

	query := `
		INSERT INTO traffic_violations (
			id, hold_id, contract_id, violation_type, violation_date,
			fine_amount, description, evidence_ref, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = tx.Exec(ctx, query,
		v.ID, v.HoldID, v.ContractID, v.ViolationType, v.ViolationDate,
		v.FineAmount, v.Description, v.EvidenceRef, string(v.Status), v.CreatedAt,
	)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PostgresRepository) ConfirmViolation(ctx context.Context, violationID uuid.UUID) (*domain.TrafficViolation, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var holdID uuid.UUID
	err = tx.QueryRow(ctx, `SELECT hold_id FROM traffic_violations WHERE id = $1`, violationID).Scan(&holdID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("violation %s: %w", violationID, domain.ErrNotFound)
		}
		return nil, err
	}
	status, err := lockHoldStatus(ctx, tx, holdID)
	if err != nil {
		return nil, err
	}
	if status == domain.HoldStatusRefunded {
		return nil, domain.ErrImmutableAfterRefund
	}

	var v domain.TrafficViolation
	var statusStr string
	err = tx.QueryRow(ctx, `
		UPDATE traffic_violations
		SET status = 'CONFIRMED'
		WHERE id = $1
		RETURNING id, hold_id, contract_id, violation_type, violation_date,
		          fine_amount, description, evidence_ref, status, created_at
	`, violationID).Scan(
		&v.ID, &v.HoldID, &v.ContractID, &v.ViolationType, &v.ViolationDate,
		&v.FineAmount, &v.Description, &v.EvidenceRef, &statusStr, &v.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if v.Status, err = domain.ParseViolationStatus(statusStr); err != nil {
		return nil, err
	}
	return &v, tx.Commit(ctx)
}

// DeleteViolation removes a fine claim. Deleting after the hold reached
// REFUNDED is an invariant violation and fails with ErrImmutableAfterRefund.
func (r *PostgresRepository) DeleteViolation(ctx context.Context, violationID uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var holdID uuid.UUID
	err = tx.QueryRow(ctx, `SELECT hold_id FROM traffic_violations WHERE id = $1`, violationID).Scan(&holdID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return fmt.Errorf("violation %s: %w", violationID, domain.ErrNotFound)
		}
		return err
	}
	status, err := lockHoldStatus(ctx, tx, holdID)
	if err != nil {
		return err
	}
	if status == domain.HoldStatusRefunded {
		return domain.ErrImmutableAfterRefund
	}

	if _, err = tx.Exec(ctx, `DELETE FROM traffic_violations WHERE id = $1`, violationID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PostgresRepository) ListViolationsByHold(ctx context.Context, holdID uuid.UUID) ([]domain.TrafficViolation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, hold_id, contract_id, violation_type, violation_date,
		       fine_amount, description, evidence_ref, status, created_at
		FROM traffic_violations
		WHERE hold_id = $1
		ORDER BY violation_date ASC
	`, holdID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var violations []domain.TrafficViolation
	for rows.Next() {
		var v domain.TrafficViolation
		var statusStr string
		if err := rows.Scan(
			&v.ID, &v.HoldID, &v.ContractID, &v.ViolationType, &v.ViolationDate,
			&v.FineAmount, &v.Description, &v.EvidenceRef, &statusStr, &v.CreatedAt,
		); err != nil {
			return nil, err
		}
		if v.Status, err = domain.ParseViolationStatus(statusStr); err != nil {
			return nil, err
		}
		violations = append(violations, v)
	}
	return violations, rows.Err()
}

// SumFinesByHold totals every recorded fine for the hold. PENDING and
// CONFIRMED both count toward the deduction.
func (r *PostgresRepository) SumFinesByHold(ctx context.Context, holdID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(fine_amount), 0)
		FROM traffic_violations
		WHERE hold_id = $1
	`, holdID).Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

// --- Refunds ---

// ProcessRefund is the terminal write for a hold. The refund row, the hold
// transition and the payout payment commit as one transaction; anything that
// fails before commit leaves the hold READY.
func (r *PostgresRepository) ProcessRefund(ctx context.Context, holdID uuid.UUID, customerID uuid.UUID, method domain.RefundMethod, now time.Time) (*domain.Refund, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// Apply the read-time promotion inside the transaction so a hold whose
	// window just lapsed can be refunded in the same call.
	if _, err = tx.Exec(ctx, `
		UPDATE deposit_holds
		SET status = 'READY', updated_at = NOW()
		WHERE id = $1 AND status = 'HOLDING' AND hold_end_date <= $2
	`, holdID, now); err != nil {
		return nil, err
	}

	var hold domain.DepositHold
	var statusStr string
	err = tx.QueryRow(ctx, `
		SELECT id, contract_id, deposit_amount, deducted_at_return, status
		FROM deposit_holds
		WHERE id = $1
		FOR UPDATE
	`, holdID).Scan(&hold.ID, &hold.ContractID, &hold.DepositAmount, &hold.DeductedAtReturn, &statusStr)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("deposit hold %s: %w", holdID, domain.ErrNotFound)
		}
		return nil, err
	}
	if hold.Status, err = domain.ParseHoldStatus(statusStr); err != nil {
		return nil, err
	}

	switch hold.Status {
	case domain.HoldStatusHolding:
		return nil, domain.ErrNotReady
	case domain.HoldStatusRefunded:
		return nil, domain.ErrAlreadyRefunded
	}

	// Belt and braces: the unique constraint on hold_id catches racing
	// writers, but check first so the common double-submit fails cleanly.
	var existing int
	if err = tx.QueryRow(ctx, `SELECT COUNT(1) FROM refunds WHERE hold_id = $1`, holdID).Scan(&existing); err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, domain.ErrAlreadyRefunded
	}

	var fines decimal.Decimal
	if err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(fine_amount), 0) FROM traffic_violations WHERE hold_id = $1
	`, holdID).Scan(&fines); err != nil {
		return nil, err
	}

	refund := &domain.Refund{
		ID:               uuid.New(),
		HoldID:           holdID,
		ContractID:       hold.ContractID,
		CustomerID:       customerID,
		OriginalDeposit:  hold.DepositAmount,
		DeductedAtReturn: hold.DeductedAtReturn,
		TrafficFines:     fines,
		RefundAmount:     domain.RefundableAmount(hold.DepositAmount, hold.DeductedAtReturn, fines),
		RefundMethod:     method,
		Status:           domain.RefundPending,
		ProcessedAt:      now,
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO refunds (
			id, hold_id, contract_id, customer_id, original_deposit,
			deducted_at_return, traffic_fines, refund_amount, refund_method, status, processed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, refund.ID, refund.HoldID, refund.ContractID, refund.CustomerID, refund.OriginalDeposit,
		refund.DeductedAtReturn, refund.TrafficFines, refund.RefundAmount, string(refund.RefundMethod),
		string(refund.Status), refund.ProcessedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrAlreadyRefunded
		}
		return nil, err
	}

	// Conditional transition; zero rows means a racing writer got here first.
	tag, err := tx.Exec(ctx, `
		UPDATE deposit_holds
		SET status = 'REFUNDED', updated_at = NOW()
		WHERE id = $1 AND status = 'READY'
	`, holdID)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, domain.ErrAlreadyRefunded
	}

	// TRANSFER refunds pay out as TRANSFER, CASH as CASH.
	paymentMethod := domain.PaymentMethodCash
	if method == domain.RefundMethodTransfer {
		paymentMethod = domain.PaymentMethodTransfer
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO payments (
			id, contract_id, type, amount, method, status, payment_date, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, uuid.New(), hold.ContractID, string(domain.PaymentTypeRefund), refund.RefundAmount,
		string(paymentMethod), string(domain.PaymentCompleted), now, now, now,
	)
	if err != nil {
		return nil, err
	}

	if _, err = tx.Exec(ctx, `UPDATE refunds SET status = 'COMPLETED' WHERE id = $1`, refund.ID); err != nil {
		return nil, err
	}
	refund.Status = domain.RefundCompleted

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return refund, nil
}

func scanRefund(row pgx.Row) (*domain.Refund, error) {
	var refund domain.Refund
	var methodStr, statusStr string
	err := row.Scan(
		&refund.ID, &refund.HoldID, &refund.ContractID, &refund.CustomerID,
		&refund.OriginalDeposit, &refund.DeductedAtReturn, &refund.TrafficFines,
		&refund.RefundAmount, &methodStr, &statusStr, &refund.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	if refund.RefundMethod, err = domain.ParseRefundMethod(methodStr); err != nil {
		return nil, err
	}
	switch domain.RefundStatus(statusStr) {
	case domain.RefundPending, domain.RefundCompleted:
		refund.Status = domain.RefundStatus(statusStr)
	default:
		return nil, &domain.UnknownEnumError{Kind: "refund status", Value: statusStr}
	}
	return &refund, nil
}

const refundColumns = `id, hold_id, contract_id, customer_id, original_deposit,
	deducted_at_return, traffic_fines, refund_amount, refund_method, status, processed_at`

func (r *PostgresRepository) FindRefundByHoldID(ctx context.Context, holdID uuid.UUID) (*domain.Refund, error) {
	refund, err := scanRefund(r.db.QueryRow(ctx, `SELECT `+refundColumns+` FROM refunds WHERE hold_id = $1`, holdID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("refund for hold %s: %w", holdID, domain.ErrNotFound)
		}
		return nil, err
	}
	return refund, nil
}

func (r *PostgresRepository) ListRefundsByStatus(ctx context.Context, status domain.RefundStatus) ([]domain.Refund, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+refundColumns+` FROM refunds WHERE status = $1 ORDER BY processed_at DESC
	`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refunds []domain.Refund
	for rows.Next() {
		refund, err := scanRefund(rows)
		if err != nil {
			return nil, err
		}
		refunds = append(refunds, *refund)
	}
	return refunds, rows.Err()
}

// --- Payments ---

func (r *PostgresRepository) CreatePayment(ctx context.Context, p *domain.Payment) error {
	query := `
		INSERT INTO payments (
			id, contract_id, type, amount, method, status,
			transaction_ref, payment_url, payment_date, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.Exec(ctx, query,
		p.ID, p.ContractID, string(p.Type), p.Amount, string(p.Method), string(p.Status),
		p.TransactionRef, p.PaymentURL, p.PaymentDate, p.CreatedAt, p.UpdatedAt,
	)
	return err
}

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var p domain.Payment
	var typeStr, methodStr, statusStr string
	err := row.Scan(
		&p.ID, &p.ContractID, &typeStr, &p.Amount, &methodStr, &statusStr,
		&p.TransactionRef, &p.PaymentURL, &p.PaymentDate,
		&p.Gateway.TransactionNo, &p.Gateway.ResponseCode, &p.Gateway.TransactionStatus,
		&p.Gateway.BankCode, &p.Gateway.CardType, &p.Gateway.PayDate, &p.Gateway.SecureHash,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if p.Type, err = domain.ParsePaymentType(typeStr); err != nil {
		return nil, err
	}
	switch domain.PaymentMethod(methodStr) {
	case domain.PaymentMethodOnline, domain.PaymentMethodTransfer, domain.PaymentMethodCash:
		p.Method = domain.PaymentMethod(methodStr)
	default:
		return nil, &domain.UnknownEnumError{Kind: "payment method", Value: methodStr}
	}
	switch domain.PaymentStatus(statusStr) {
	case domain.PaymentPending, domain.PaymentCompleted, domain.PaymentFailed:
		p.Status = domain.PaymentStatus(statusStr)
	default:
		return nil, &domain.UnknownEnumError{Kind: "payment status", Value: statusStr}
	}
	return &p, nil
}

const paymentColumns = `id, contract_id, type, amount, method, status,
	transaction_ref, payment_url, payment_date,
	gateway_transaction_no, gateway_response_code, gateway_transaction_status,
	gateway_bank_code, gateway_card_type, gateway_pay_date, gateway_secure_hash,
	created_at, updated_at`

func (r *PostgresRepository) FindPaymentByTransactionRef(ctx context.Context, txnRef string) (*domain.Payment, error) {
	p, err := scanPayment(r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE transaction_ref = $1`, txnRef))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("payment with reference %q: %w", txnRef, domain.ErrNotFound)
		}
		return nil, err
	}
	return p, nil
}

func (r *PostgresRepository) FindPendingPaymentByContract(ctx context.Context, contractID uuid.UUID, kind domain.PaymentType) (*domain.Payment, error) {
	p, err := scanPayment(r.db.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE contract_id = $1 AND type = $2 AND status = 'PENDING'
		ORDER BY created_at DESC
		LIMIT 1
	`, contractID, string(kind)))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("pending %s payment for contract %s: %w", kind, contractID, domain.ErrNotFound)
		}
		return nil, err
	}
	return p, nil
}

// UpdatePaymentForNewAttempt swaps in a freshly signed URL and reference when
// the previous gateway URL has passed its expiry window.
func (r *PostgresRepository) UpdatePaymentForNewAttempt(ctx context.Context, paymentID uuid.UUID, txnRef, paymentURL string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE payments
		SET transaction_ref = $2, payment_url = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'
	`, paymentID, txnRef, paymentURL)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pending payment %s: %w", paymentID, domain.ErrNotFound)
	}
	return nil
}

// RecordPaymentCallback stores the gateway's verdict and echo fields.
func (r *PostgresRepository) RecordPaymentCallback(ctx context.Context, paymentID uuid.UUID, status domain.PaymentStatus, paidAt *time.Time, echo domain.GatewayEcho) error {
	_, err := r.db.Exec(ctx, `
		UPDATE payments
		SET status = $2,
		    payment_date = COALESCE($3, payment_date),
		    gateway_transaction_no = $4,
		    gateway_response_code = $5,
		    gateway_transaction_status = $6,
		    gateway_bank_code = $7,
		    gateway_card_type = $8,
		    gateway_pay_date = $9,
		    gateway_secure_hash = $10,
		    updated_at = NOW()
		WHERE id = $1
	`, paymentID, string(status), paidAt,
		echo.TransactionNo, echo.ResponseCode, echo.TransactionStatus,
		echo.BankCode, echo.CardType, echo.PayDate, echo.SecureHash,
	)
	return err
}

// --- System settings ---

// ReadSetting returns the current value for key, or fallback when the key is
// absent. Callers must not cache the result: staff change rates between
// requests.
func (r *PostgresRepository) ReadSetting(ctx context.Context, key, fallback string) (string, error) {
	var value string
	err := r.db.QueryRow(ctx, `SELECT setting_value FROM system_settings WHERE setting_key = $1`, key).Scan(&value)
	if err != nil {
		if err == pgx.ErrNoRows {
			return fallback, nil
		}
		return "", err
	}
	return value, nil
}
