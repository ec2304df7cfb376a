/**
 * @description
 * This file defines the core domain models for the settlement-service.
 * These structs represent the entities that make up the deposit settlement
 * lifecycle: the contract snapshot consumed from the booking subsystem, the
 * return-time fee breakdown, the deposit hold and its violations, and the
 * terminal refund record.
 *
 * @notes
 * - Monetary amounts use shopspring/decimal so arithmetic is exact; the
 *   payment gateway boundary converts to whole minor units (amount × 100).
 * - Status enums have a single canonical in-memory representation with
 *   explicit parse functions that fail on unknown values. The storage layer
 *   must never silently default a status it does not recognize.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ContractStatus is the booking subsystem's contract state as far as this
// service cares about it. The service only reads contracts and requests
// transitions through the ContractDirectory collaborator.
type ContractStatus string

const (
	ContractPendingPayment ContractStatus = "PENDING_PAYMENT"
	ContractActive         ContractStatus = "ACTIVE"
	ContractBillPending    ContractStatus = "BILL_PENDING"
	ContractCompleted      ContractStatus = "COMPLETED"
)

// Contract is an immutable snapshot of a rental contract, owned by the
// booking subsystem.
type Contract struct {
	ID             uuid.UUID       `json:"id"`
	ContractNumber string          `json:"contract_number"`
	CustomerID     uuid.UUID       `json:"customer_id"`
	VehicleID      uuid.UUID       `json:"vehicle_id"`
	StartDate      time.Time       `json:"start_date"`
	EndDate        time.Time       `json:"end_date"`
	DailyRate      decimal.Decimal `json:"daily_rate"`
	DepositAmount  decimal.Decimal `json:"deposit_amount"`
	TotalRentalFee decimal.Decimal `json:"total_rental_fee"`
	Status         ContractStatus  `json:"status"`
}

// ReturnRequest carries everything staff record at the moment a vehicle
// comes back. Evidence images are opaque references stored by a collaborator.
type ReturnRequest struct {
	ContractID        uuid.UUID       `json:"contract_id"`
	ActualReturnTime  time.Time       `json:"actual_return_time"`
	Odometer          int             `json:"odometer"`
	FuelLevel         int             `json:"fuel_level"`
	ConditionNotes    string          `json:"condition_notes"`
	HasDamage         bool            `json:"has_damage"`
	DamageDescription string          `json:"damage_description,omitempty"`
	DamageFee         decimal.Decimal `json:"damage_fee"`
	ReturnLocationID  uuid.UUID       `json:"return_location_id"`
	EvidenceRefs      []string        `json:"evidence_refs,omitempty"`
}

// ReturnFee is the settlement breakdown computed once at return time and
// never regenerated.
type ReturnFee struct {
	ID                  uuid.UUID       `json:"id"`
	ContractID          uuid.UUID       `json:"contract_id"`
	IsLate              bool            `json:"is_late"`
	DaysLate            int64           `json:"days_late"`
	LateFee             decimal.Decimal `json:"late_fee"`
	HasDamage           bool            `json:"has_damage"`
	DamageDescription   *string         `json:"damage_description,omitempty"`
	DamageFee           decimal.Decimal `json:"damage_fee"`
	IsDifferentLocation bool            `json:"is_different_location"`
	OneWayFee           decimal.Decimal `json:"one_way_fee"`
	RentalAdjustment    decimal.Decimal `json:"rental_adjustment"`
	TotalFees           decimal.Decimal `json:"total_fees"` // signed; negative means early-return credit
	CreatedAt           time.Time       `json:"created_at"`
}

// HoldStatus is the deposit hold state machine. It only moves forward:
// HOLDING -> READY -> REFUNDED.
type HoldStatus string

const (
	HoldStatusHolding  HoldStatus = "HOLDING"
	HoldStatusReady    HoldStatus = "READY"
	HoldStatusRefunded HoldStatus = "REFUNDED"
)

// ParseHoldStatus maps a stored status string onto the canonical enum,
// failing on anything it does not recognize.
func ParseHoldStatus(s string) (HoldStatus, error) {
	switch HoldStatus(s) {
	case HoldStatusHolding, HoldStatusReady, HoldStatusRefunded:
		return HoldStatus(s), nil
	}
	return "", &UnknownEnumError{Kind: "hold status", Value: s}
}

// DepositHold is the time-boxed claim on a customer's deposit pending
// inspection. Created once per contract at return time.
type DepositHold struct {
	ID               uuid.UUID       `json:"id"`
	ContractID       uuid.UUID       `json:"contract_id"`
	DepositAmount    decimal.Decimal `json:"deposit_amount"`
	DeductedAtReturn decimal.Decimal `json:"deducted_at_return"` // clamped to [0, DepositAmount]
	HoldStartDate    time.Time       `json:"hold_start_date"`
	HoldEndDate      time.Time       `json:"hold_end_date"`
	Status           HoldStatus      `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// ViolationStatus tracks whether a traffic-fine claim has been confirmed by
// staff. Both states count toward the refund deduction.
type ViolationStatus string

const (
	ViolationPending   ViolationStatus = "PENDING"
	ViolationConfirmed ViolationStatus = "CONFIRMED"
)

// ParseViolationStatus maps a stored status string onto the canonical enum.
func ParseViolationStatus(s string) (ViolationStatus, error) {
	switch ViolationStatus(s) {
	case ViolationPending, ViolationConfirmed:
		return ViolationStatus(s), nil
	}
	return "", &UnknownEnumError{Kind: "violation status", Value: s}
}

// TrafficViolation is a third-party fine claim recorded against a deposit
// hold while the hold has not been refunded.
type TrafficViolation struct {
	ID            uuid.UUID       `json:"id"`
	HoldID        uuid.UUID       `json:"hold_id"`
	ContractID    uuid.UUID       `json:"contract_id"`
	ViolationType string          `json:"violation_type"`
	ViolationDate time.Time       `json:"violation_date"`
	FineAmount    decimal.Decimal `json:"fine_amount"` // > 0
	Description   *string         `json:"description,omitempty"`
	EvidenceRef   *string         `json:"evidence_ref,omitempty"`
	Status        ViolationStatus `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
}

// RefundMethod is how the remaining deposit is returned to the customer.
type RefundMethod string

const (
	RefundMethodTransfer RefundMethod = "TRANSFER"
	RefundMethodCash     RefundMethod = "CASH"
)

// ParseRefundMethod maps a request/storage string onto the canonical enum.
func ParseRefundMethod(s string) (RefundMethod, error) {
	switch RefundMethod(s) {
	case RefundMethodTransfer, RefundMethodCash:
		return RefundMethod(s), nil
	}
	return "", &UnknownEnumError{Kind: "refund method", Value: s}
}

// RefundStatus is the refund record's own lifecycle. PENDING exists only for
// the duration of the settlement transaction.
type RefundStatus string

const (
	RefundPending   RefundStatus = "PENDING"
	RefundCompleted RefundStatus = "COMPLETED"
)

// ParseRefundStatus maps a request/storage string onto the canonical enum.
func ParseRefundStatus(s string) (RefundStatus, error) {
	switch RefundStatus(s) {
	case RefundPending, RefundCompleted:
		return RefundStatus(s), nil
	}
	return "", &UnknownEnumError{Kind: "refund status", Value: s}
}

// Refund is the terminal write for a deposit hold. At most one exists per
// hold; the hold_id uniqueness is the central invariant of the service.
type Refund struct {
	ID               uuid.UUID       `json:"id"`
	HoldID           uuid.UUID       `json:"hold_id"`
	ContractID       uuid.UUID       `json:"contract_id"`
	CustomerID       uuid.UUID       `json:"customer_id"`
	OriginalDeposit  decimal.Decimal `json:"original_deposit"`
	DeductedAtReturn decimal.Decimal `json:"deducted_at_return"`
	TrafficFines     decimal.Decimal `json:"traffic_fines"`
	RefundAmount     decimal.Decimal `json:"refund_amount"` // >= 0
	RefundMethod     RefundMethod    `json:"refund_method"`
	Status           RefundStatus    `json:"status"`
	ProcessedAt      time.Time       `json:"processed_at"`
}

// PaymentType distinguishes what a payment record settles.
type PaymentType string

const (
	PaymentTypeDeposit PaymentType = "DEPOSIT"
	PaymentTypeBill    PaymentType = "BILL"
	PaymentTypeRefund  PaymentType = "REFUND"
)

// ParsePaymentType maps a stored payment type onto the canonical enum.
func ParsePaymentType(s string) (PaymentType, error) {
	switch PaymentType(s) {
	case PaymentTypeDeposit, PaymentTypeBill, PaymentTypeRefund:
		return PaymentType(s), nil
	}
	return "", &UnknownEnumError{Kind: "payment type", Value: s}
}

// PaymentMethod is the channel money moved through.
type PaymentMethod string

const (
	PaymentMethodOnline   PaymentMethod = "ONLINE"
	PaymentMethodTransfer PaymentMethod = "TRANSFER"
	PaymentMethodCash     PaymentMethod = "CASH"
)

// PaymentStatus is the payment record lifecycle.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
)

// Payment is the money-movement record emitted by this service, both for
// gateway-driven payments (deposit, rental bill) and refunds.
type Payment struct {
	ID             uuid.UUID       `json:"id"`
	ContractID     uuid.UUID       `json:"contract_id"`
	Type           PaymentType     `json:"type"`
	Amount         decimal.Decimal `json:"amount"`
	Method         PaymentMethod   `json:"method"`
	Status         PaymentStatus   `json:"status"`
	TransactionRef *string         `json:"transaction_ref,omitempty"`
	PaymentURL     *string         `json:"payment_url,omitempty"`
	PaymentDate    *time.Time      `json:"payment_date,omitempty"`
	Gateway        GatewayEcho     `json:"gateway"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// GatewayEcho carries the fields the payment gateway echoes back on a
// callback. Kept verbatim for reconciliation and dispute evidence.
type GatewayEcho struct {
	TransactionNo     *string `json:"transaction_no,omitempty"`
	ResponseCode      *string `json:"response_code,omitempty"`
	TransactionStatus *string `json:"transaction_status,omitempty"`
	BankCode          *string `json:"bank_code,omitempty"`
	CardType          *string `json:"card_type,omitempty"`
	PayDate           *string `json:"pay_date,omitempty"`
	SecureHash        *string `json:"secure_hash,omitempty"`
}

// HoldDetail aggregates everything staff see on a hold's detail view: the
// hold itself, recorded violations, the running fine total and the refund
// preview computed with the same formula the processor uses.
type HoldDetail struct {
	Hold          DepositHold        `json:"hold"`
	Violations    []TrafficViolation `json:"violations"`
	TotalFines    decimal.Decimal    `json:"total_fines"`
	RefundPreview decimal.Decimal    `json:"refund_preview"`
}
