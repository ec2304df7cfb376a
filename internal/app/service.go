/**
 * @description
 * This file contains the core business logic for the settlement-service. The
 * `Service` struct orchestrates the deposit settlement lifecycle: processing
 * vehicle returns, managing deposit holds and traffic-violation claims,
 * paying out refunds exactly once, and driving gateway payments for deposits
 * and rental bills.
 *
 * Key invariants owned here:
 * - A return produces the ReturnFee, DepositHold and rental bill together,
 *   once, in a single repository transaction.
 * - Refund preview and refund processing share one formula and can never
 *   diverge.
 * - Notification dispatch happens after the settlement transaction commits;
 *   a slow or failing notifier cannot hold the settlement hostage.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - github.com/shopspring/decimal: Exact currency amounts.
 * - internal/domain, internal/store, internal/gateway: Models, data access
 *   and the payment-gateway boundary.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rentiva/settlement-service/internal/domain"
	"github.com/rentiva/settlement-service/internal/gateway"
	"github.com/rentiva/settlement-service/internal/store"
)

// Service provides the core business logic for deposit settlement.
type Service struct {
	repo      store.Repository
	contracts ContractDirectory
	vehicles  VehicleDirectory
	notifier  Notifier
	evidence  EvidenceStore
	gateway   *gateway.Client
	now       func() time.Time
}

// NewService creates a new settlement service instance.
func NewService(repo store.Repository, contracts ContractDirectory, vehicles VehicleDirectory, notifier Notifier, evidence EvidenceStore, gw *gateway.Client) *Service {
	return &Service{
		repo:      repo,
		contracts: contracts,
		vehicles:  vehicles,
		notifier:  notifier,
		evidence:  evidence,
		gateway:   gw,
		now:       time.Now,
	}
}

// ReturnOutcome is what ProcessReturn hands back to the API layer.
type ReturnOutcome struct {
	Fee        *domain.ReturnFee
	Hold       *domain.DepositHold
	BillAmount decimal.Decimal
}

// ProcessReturn settles a vehicle return: validates the event, computes the
// fee breakdown, persists the ReturnFee and DepositHold, releases the
// vehicle, moves the contract to BILL_PENDING, records the rental bill and
// notifies the customer.
func (s *Service) ProcessReturn(ctx context.Context, req *domain.ReturnRequest) (*ReturnOutcome, error) {
	contract, err := s.contracts.GetContract(ctx, req.ContractID)
	if err != nil {
		return nil, fmt.Errorf("failed to load contract: %w", err)
	}
	if contract.Status != domain.ContractActive {
		return nil, domain.NewValidationError("contract", "is not active")
	}
	if err := ValidateReturn(contract, req); err != nil {
		return nil, err
	}
	// A contract is returned once; a second return must not regenerate fees.
	if _, err := s.repo.FindReturnFeeByContract(ctx, req.ContractID); err == nil {
		return nil, domain.NewValidationError("contract", "return already completed")
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	contractedLocation, err := s.vehicles.GetVehicleLocation(ctx, contract.VehicleID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve vehicle location: %w", err)
	}

	settlement, err := CalculateSettlement(ctx, s.repo, contract, req, contractedLocation)
	if err != nil {
		return nil, err
	}

	now := s.now()
	fee := settlement.Fee
	fee.ID = uuid.New()
	fee.CreatedAt = now

	hold := &domain.DepositHold{
		ID:               uuid.New(),
		ContractID:       contract.ID,
		DepositAmount:    contract.DepositAmount,
		DeductedAtReturn: settlement.DeductedAtReturn,
		HoldStartDate:    req.ActualReturnTime,
		HoldEndDate:      settlement.HoldEndDate,
		Status:           domain.HoldStatusHolding,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	// The rental bill settles everything the deposit deduction did not cover:
	// the contracted fee, the signed settlement total, minus the deduction
	// already claimed from the deposit.
	billAmount := contract.TotalRentalFee.Add(fee.TotalFees).Sub(settlement.DeductedAtReturn)
	if billAmount.Sign() < 0 {
		billAmount = decimal.Zero
	}
	bill := &domain.Payment{
		ID:         uuid.New(),
		ContractID: contract.ID,
		Type:       domain.PaymentTypeBill,
		Amount:     billAmount,
		Method:     domain.PaymentMethodOnline,
		Status:     domain.PaymentPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	// Fee, hold and bill commit together. A failure here leaves no settlement
	// rows behind, so the staff can simply retry the return.
	if err := s.repo.CreateReturnSettlement(ctx, &fee, hold, bill); err != nil {
		return nil, fmt.Errorf("failed to record return settlement: %w", err)
	}

	// The settlement is committed; everything below is a collaborator side
	// effect that must not undo it. Failures are logged for reconciliation.
	if err := s.vehicles.ReleaseVehicle(ctx, contract.VehicleID); err != nil {
		log.Printf("level=error component=settlement msg=\"vehicle release failed\" vehicle_id=%s err=%v", contract.VehicleID, err)
	}
	if fee.IsDifferentLocation {
		if err := s.vehicles.SetVehicleLocation(ctx, contract.VehicleID, req.ReturnLocationID); err != nil {
			log.Printf("level=error component=settlement msg=\"vehicle relocation failed\" vehicle_id=%s err=%v", contract.VehicleID, err)
		}
	}
	if err := s.contracts.SetContractStatus(ctx, contract.ID, domain.ContractBillPending); err != nil {
		log.Printf("level=error component=settlement msg=\"contract status update failed\" contract_id=%s status=%s err=%v", contract.ID, domain.ContractBillPending, err)
	}
	if err := s.notifier.NotifyBillPending(ctx, contract.CustomerID, contract.ContractNumber, billAmount); err != nil {
		log.Printf("level=warn component=settlement msg=\"bill notification failed\" contract_id=%s err=%v", contract.ID, err)
	}

	return &ReturnOutcome{Fee: &fee, Hold: hold, BillAmount: billAmount}, nil
}

// GetHoldDetail returns the hold (promoted if due), its violations, the
// running fine total and the refund preview.
func (s *Service) GetHoldDetail(ctx context.Context, holdID uuid.UUID) (*domain.HoldDetail, error) {
	hold, err := s.repo.FindHoldByID(ctx, holdID)
	if err != nil {
		return nil, err
	}
	return s.holdDetail(ctx, hold)
}

// GetHoldByContract resolves the deposit hold opened for a contract. The
// contract side of the system addresses holds this way after a return.
func (s *Service) GetHoldByContract(ctx context.Context, contractID uuid.UUID) (*domain.HoldDetail, error) {
	hold, err := s.repo.FindHoldByContractID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	return s.holdDetail(ctx, hold)
}

func (s *Service) holdDetail(ctx context.Context, hold *domain.DepositHold) (*domain.HoldDetail, error) {
	violations, err := s.repo.ListViolationsByHold(ctx, hold.ID)
	if err != nil {
		return nil, err
	}
	fines, err := s.repo.SumFinesByHold(ctx, hold.ID)
	if err != nil {
		return nil, err
	}
	return &domain.HoldDetail{
		Hold:          *hold,
		Violations:    violations,
		TotalFines:    fines,
		RefundPreview: domain.RefundableAmount(hold.DepositAmount, hold.DeductedAtReturn, fines),
	}, nil
}

// ListHolds returns all holds, optionally filtered by status, after
// promoting everything that is due.
func (s *Service) ListHolds(ctx context.Context, status *domain.HoldStatus) ([]domain.DepositHold, error) {
	return s.repo.ListHolds(ctx, status)
}

// AddViolationInput carries a new traffic-fine claim.
type AddViolationInput struct {
	HoldID        uuid.UUID
	ViolationType string
	ViolationDate time.Time
	FineAmount    decimal.Decimal
	Description   *string
	Evidence      []byte
	EvidenceName  string
}

// AddViolation records a fine claim against a hold that has not been
// refunded yet.
func (s *Service) AddViolation(ctx context.Context, input AddViolationInput) (*domain.TrafficViolation, error) {
	if input.ViolationType == "" {
		return nil, domain.NewValidationError("violation_type", "required")
	}
	if input.ViolationDate.IsZero() {
		return nil, domain.NewValidationError("violation_date", "required")
	}
	if input.FineAmount.Sign() <= 0 {
		return nil, domain.NewValidationError("fine_amount", "must be greater than zero")
	}

	hold, err := s.repo.FindHoldByID(ctx, input.HoldID)
	if err != nil {
		return nil, err
	}

	var evidenceRef *string
	if len(input.Evidence) > 0 {
		ref, err := s.evidence.Store(ctx, fmt.Sprintf("violations/%s", hold.ID), input.EvidenceName, input.Evidence)
		if err != nil {
			return nil, fmt.Errorf("failed to store evidence: %w", err)
		}
		evidenceRef = &ref
	}

	violation := &domain.TrafficViolation{
		ID:            uuid.New(),
		HoldID:        hold.ID,
		ContractID:    hold.ContractID,
		ViolationType: input.ViolationType,
		ViolationDate: input.ViolationDate,
		FineAmount:    input.FineAmount,
		Description:   input.Description,
		EvidenceRef:   evidenceRef,
		Status:        domain.ViolationPending,
		CreatedAt:     s.now(),
	}
	if err := s.repo.CreateViolation(ctx, violation); err != nil {
		return nil, err
	}
	return violation, nil
}

// ConfirmViolation moves a claim from PENDING to CONFIRMED.
func (s *Service) ConfirmViolation(ctx context.Context, violationID uuid.UUID) (*domain.TrafficViolation, error) {
	return s.repo.ConfirmViolation(ctx, violationID)
}

// RemoveViolation deletes a claim; rejected once the hold is refunded.
func (s *Service) RemoveViolation(ctx context.Context, violationID uuid.UUID) error {
	return s.repo.DeleteViolation(ctx, violationID)
}

// RefundPreview computes the refundable amount without any side effect.
// Repeatable, and always equal to what ProcessRefund would pay.
func (s *Service) RefundPreview(ctx context.Context, holdID uuid.UUID) (decimal.Decimal, error) {
	hold, err := s.repo.FindHoldByID(ctx, holdID)
	if err != nil {
		return decimal.Zero, err
	}
	fines, err := s.repo.SumFinesByHold(ctx, holdID)
	if err != nil {
		return decimal.Zero, err
	}
	return domain.RefundableAmount(hold.DepositAmount, hold.DeductedAtReturn, fines), nil
}

// ProcessRefund settles the hold exactly once and notifies the customer.
// The notification runs after the commit: its failure is logged and never
// undoes the refund.
func (s *Service) ProcessRefund(ctx context.Context, holdID uuid.UUID, method domain.RefundMethod) (*domain.Refund, error) {
	hold, err := s.repo.FindHoldByID(ctx, holdID)
	if err != nil {
		return nil, err
	}
	contract, err := s.contracts.GetContract(ctx, hold.ContractID)
	if err != nil {
		return nil, fmt.Errorf("failed to load contract: %w", err)
	}

	refund, err := s.repo.ProcessRefund(ctx, holdID, contract.CustomerID, method, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.notifier.NotifyRefundCompleted(ctx, contract.CustomerID, contract.ContractNumber, refund.RefundAmount, refund.RefundMethod); err != nil {
		// The refund is committed; the notification is retried by the
		// collaborator, never rolled back here.
		log.Printf("level=error component=refund msg=\"refund notification failed\" hold_id=%s contract=%s err=%v", holdID, contract.ContractNumber, err)
	}
	return refund, nil
}

// RefundByHold exposes the terminal refund record for a hold.
func (s *Service) RefundByHold(ctx context.Context, holdID uuid.UUID) (*domain.Refund, error) {
	return s.repo.FindRefundByHoldID(ctx, holdID)
}

// ListRefundsByStatus lists refunds in a given state.
func (s *Service) ListRefundsByStatus(ctx context.Context, status domain.RefundStatus) ([]domain.Refund, error) {
	return s.repo.ListRefundsByStatus(ctx, status)
}

// InitiatePayment builds (or reuses) a signed gateway redirect URL for a
// deposit or rental-bill payment. A pending payment with a still-valid URL
// is reused; expired URLs are re-signed with a fresh reference.
func (s *Service) InitiatePayment(ctx context.Context, contractID uuid.UUID, kind domain.PaymentType, clientIP string) (string, error) {
	if kind != domain.PaymentTypeDeposit && kind != domain.PaymentTypeBill {
		return "", domain.NewValidationError("type", "must be DEPOSIT or BILL")
	}

	contract, err := s.contracts.GetContract(ctx, contractID)
	if err != nil {
		return "", fmt.Errorf("failed to load contract: %w", err)
	}
	if kind == domain.PaymentTypeDeposit && contract.Status != domain.ContractPendingPayment {
		return "", domain.NewValidationError("contract", "is not awaiting a deposit payment")
	}
	if kind == domain.PaymentTypeBill && contract.Status != domain.ContractBillPending {
		return "", domain.NewValidationError("contract", "has no pending rental bill")
	}

	amount := contract.DepositAmount
	orderInfo := fmt.Sprintf("Deposit payment for contract %s", contract.ContractNumber)
	existing, err := s.repo.FindPendingPaymentByContract(ctx, contractID, kind)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return "", err
	}
	if kind == domain.PaymentTypeBill {
		if existing == nil {
			return "", fmt.Errorf("rental bill for contract %s: %w", contractID, domain.ErrNotFound)
		}
		amount = existing.Amount
		orderInfo = fmt.Sprintf("Rental bill for contract %s", contract.ContractNumber)
	}

	// Reuse a URL still inside the gateway's expiry window instead of signing
	// a new request.
	if existing != nil && existing.PaymentURL != nil && *existing.PaymentURL != "" &&
		s.now().Sub(existing.UpdatedAt) < gateway.PaymentURLTTL {
		return *existing.PaymentURL, nil
	}

	paymentURL, txnRef, err := s.gateway.BuildPaymentURL(gateway.PaymentRequest{
		Kind:       kind,
		ContractID: contractID,
		Amount:     amount,
		OrderInfo:  orderInfo,
		ClientIP:   clientIP,
	})
	if err != nil {
		return "", err
	}

	if existing != nil {
		if err := s.repo.UpdatePaymentForNewAttempt(ctx, existing.ID, txnRef, paymentURL); err != nil {
			return "", err
		}
		return paymentURL, nil
	}

	now := s.now()
	payment := &domain.Payment{
		ID:             uuid.New(),
		ContractID:     contractID,
		Type:           kind,
		Amount:         amount,
		Method:         domain.PaymentMethodOnline,
		Status:         domain.PaymentPending,
		TransactionRef: &txnRef,
		PaymentURL:     &paymentURL,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		return "", fmt.Errorf("failed to record payment: %w", err)
	}
	return paymentURL, nil
}

// CallbackOutcome summarizes a processed gateway callback for the redirect
// page.
type CallbackOutcome struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	ContractID *uuid.UUID      `json:"contract_id,omitempty"`
	TxnRef     string          `json:"transaction_ref"`
	Amount     decimal.Decimal `json:"amount"`
}

// HandleGatewayCallback verifies and applies a gateway payment callback. An
// invalid signature marks the payment FAILED and reports
// domain.ErrInvalidSignature; the result is never applied.
func (s *Service) HandleGatewayCallback(ctx context.Context, params url.Values) (*CallbackOutcome, error) {
	result := s.gateway.ParseCallback(params)

	payment, err := s.repo.FindPaymentByTransactionRef(ctx, result.TxnRef)
	if err != nil {
		return nil, err
	}

	echo := domain.GatewayEcho{
		TransactionNo:     optional(result.TransactionNo),
		ResponseCode:      optional(result.ResponseCode),
		TransactionStatus: optional(result.TransactionStatus),
		BankCode:          optional(result.BankCode),
		CardType:          optional(result.CardType),
		PayDate:           optional(result.PayDate),
		SecureHash:        optional(result.SecureHash),
	}

	if !result.Valid {
		log.Printf("level=error component=gateway msg=\"callback signature verification failed\" txn_ref=%s", result.TxnRef)
		if err := s.repo.RecordPaymentCallback(ctx, payment.ID, domain.PaymentFailed, nil, echo); err != nil {
			return nil, err
		}
		return nil, domain.ErrInvalidSignature
	}

	contract, err := s.contracts.GetContract(ctx, payment.ContractID)
	if err != nil {
		return nil, fmt.Errorf("failed to load contract: %w", err)
	}

	if !result.Success {
		if err := s.repo.RecordPaymentCallback(ctx, payment.ID, domain.PaymentFailed, nil, echo); err != nil {
			return nil, err
		}
		s.notifyPaymentResult(ctx, contract, false, result.FailureReason)
		return &CallbackOutcome{
			Success:    false,
			Message:    result.FailureReason,
			ContractID: &payment.ContractID,
			TxnRef:     result.TxnRef,
			Amount:     payment.Amount,
		}, nil
	}

	var paidAt *time.Time
	if t, err := gateway.ParsePayDate(result.PayDate); err == nil {
		paidAt = &t
	}
	if err := s.repo.RecordPaymentCallback(ctx, payment.ID, domain.PaymentCompleted, paidAt, echo); err != nil {
		return nil, err
	}

	// A confirmed deposit activates the contract; a confirmed bill closes it.
	nextStatus := domain.ContractActive
	if payment.Type == domain.PaymentTypeBill {
		nextStatus = domain.ContractCompleted
	}
	if err := s.contracts.SetContractStatus(ctx, payment.ContractID, nextStatus); err != nil {
		return nil, fmt.Errorf("failed to transition contract after payment: %w", err)
	}

	s.notifyPaymentResult(ctx, contract, true, "")
	return &CallbackOutcome{
		Success:    true,
		Message:    "payment confirmed",
		ContractID: &payment.ContractID,
		TxnRef:     result.TxnRef,
		Amount:     payment.Amount,
	}, nil
}

func (s *Service) notifyPaymentResult(ctx context.Context, contract *domain.Contract, success bool, reason string) {
	if err := s.notifier.NotifyPaymentResult(ctx, contract.CustomerID, contract.ContractNumber, success, reason); err != nil {
		log.Printf("level=warn component=gateway msg=\"payment result notification failed\" contract=%s err=%v", contract.ContractNumber, err)
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
