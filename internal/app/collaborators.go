/**
 * @description
 * Collaborator interfaces for the subsystems the settlement core depends on
 * but does not own: the booking subsystem (contracts), the fleet subsystem
 * (vehicles and locations), customer notification delivery and evidence blob
 * storage. Each is constructor-injected so tests can substitute fakes.
 */

package app

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rentiva/settlement-service/internal/domain"
)

// ContractDirectory exposes the contract snapshots owned by the booking
// subsystem. The core only reads contracts and requests status transitions.
type ContractDirectory interface {
	GetContract(ctx context.Context, contractID uuid.UUID) (*domain.Contract, error)
	SetContractStatus(ctx context.Context, contractID uuid.UUID, status domain.ContractStatus) error
}

// VehicleDirectory exposes vehicle location and availability owned by the
// fleet subsystem.
type VehicleDirectory interface {
	GetVehicleLocation(ctx context.Context, vehicleID uuid.UUID) (uuid.UUID, error)
	SetVehicleLocation(ctx context.Context, vehicleID uuid.UUID, locationID uuid.UUID) error
	// ReleaseVehicle marks the vehicle available again after a return.
	ReleaseVehicle(ctx context.Context, vehicleID uuid.UUID) error
}

// Notifier delivers customer-facing notifications. Dispatch failures are
// logged and retried by the collaborator; they never roll back a settlement.
type Notifier interface {
	NotifyRefundCompleted(ctx context.Context, customerID uuid.UUID, contractNumber string, amount decimal.Decimal, method domain.RefundMethod) error
	NotifyBillPending(ctx context.Context, customerID uuid.UUID, contractNumber string, amount decimal.Decimal) error
	NotifyPaymentResult(ctx context.Context, customerID uuid.UUID, contractNumber string, success bool, reason string) error
}

// EvidenceStore stores opaque evidence blobs (return condition images,
// violation evidence) and hands back references.
type EvidenceStore interface {
	Store(ctx context.Context, scope string, name string, blob []byte) (ref string, err error)
}
