package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rentiva/settlement-service/internal/domain"
	"github.com/rentiva/settlement-service/internal/gateway"
	"github.com/rentiva/settlement-service/internal/store"
)

type repoStub struct {
	store.Repository

	settings map[string]string

	hold       *domain.DepositHold
	holdErr    error
	fines      decimal.Decimal
	violations []domain.TrafficViolation

	returnFeeByContract *domain.ReturnFee
	settlementErr       error
	createdFee          *domain.ReturnFee
	createdHold         *domain.DepositHold
	createdBill         *domain.Payment
	createdViolation    *domain.TrafficViolation
	createdPayments     []*domain.Payment

	refund            *domain.Refund
	refundErr         error
	refundCalls       int
	refundCustomerID  uuid.UUID
	refundMethod      domain.RefundMethod

	pendingPayment    *domain.Payment
	paymentByRef      *domain.Payment
	callbackStatus    domain.PaymentStatus
	callbackEcho      domain.GatewayEcho
	updatedAttemptRef string
	updatedAttemptURL string
}

func (s *repoStub) ReadSetting(ctx context.Context, key, fallback string) (string, error) {
	if v, ok := s.settings[key]; ok {
		return v, nil
	}
	return fallback, nil
}

func (s *repoStub) FindReturnFeeByContract(ctx context.Context, contractID uuid.UUID) (*domain.ReturnFee, error) {
	if s.returnFeeByContract == nil {
		return nil, domain.ErrNotFound
	}
	return s.returnFeeByContract, nil
}

func (s *repoStub) CreateReturnSettlement(ctx context.Context, fee *domain.ReturnFee, hold *domain.DepositHold, bill *domain.Payment) error {
	if s.settlementErr != nil {
		return s.settlementErr
	}
	s.createdFee = fee
	s.createdHold = hold
	s.createdBill = bill
	s.returnFeeByContract = fee
	return nil
}

func (s *repoStub) FindHoldByID(ctx context.Context, holdID uuid.UUID) (*domain.DepositHold, error) {
	if s.holdErr != nil {
		return nil, s.holdErr
	}
	if s.hold == nil {
		return nil, domain.ErrNotFound
	}
	return s.hold, nil
}

func (s *repoStub) FindHoldByContractID(ctx context.Context, contractID uuid.UUID) (*domain.DepositHold, error) {
	if s.hold == nil || s.hold.ContractID != contractID {
		return nil, domain.ErrNotFound
	}
	return s.hold, nil
}

func (s *repoStub) ListViolationsByHold(ctx context.Context, holdID uuid.UUID) ([]domain.TrafficViolation, error) {
	return s.violations, nil
}

func (s *repoStub) SumFinesByHold(ctx context.Context, holdID uuid.UUID) (decimal.Decimal, error) {
	return s.fines, nil
}

func (s *repoStub) CreateViolation(ctx context.Context, v *domain.TrafficViolation) error {
	s.createdViolation = v
	return nil
}

func (s *repoStub) ProcessRefund(ctx context.Context, holdID uuid.UUID, customerID uuid.UUID, method domain.RefundMethod, now time.Time) (*domain.Refund, error) {
	s.refundCalls++
	s.refundCustomerID = customerID
	s.refundMethod = method
	if s.refundErr != nil {
		return nil, s.refundErr
	}
	return s.refund, nil
}

func (s *repoStub) CreatePayment(ctx context.Context, p *domain.Payment) error {
	s.createdPayments = append(s.createdPayments, p)
	return nil
}

func (s *repoStub) FindPendingPaymentByContract(ctx context.Context, contractID uuid.UUID, kind domain.PaymentType) (*domain.Payment, error) {
	if s.pendingPayment == nil {
		return nil, domain.ErrNotFound
	}
	return s.pendingPayment, nil
}

func (s *repoStub) UpdatePaymentForNewAttempt(ctx context.Context, paymentID uuid.UUID, txnRef, paymentURL string) error {
	s.updatedAttemptRef = txnRef
	s.updatedAttemptURL = paymentURL
	return nil
}

func (s *repoStub) FindPaymentByTransactionRef(ctx context.Context, txnRef string) (*domain.Payment, error) {
	if s.paymentByRef == nil {
		return nil, domain.ErrNotFound
	}
	return s.paymentByRef, nil
}

func (s *repoStub) RecordPaymentCallback(ctx context.Context, paymentID uuid.UUID, status domain.PaymentStatus, paidAt *time.Time, echo domain.GatewayEcho) error {
	s.callbackStatus = status
	s.callbackEcho = echo
	return nil
}

type contractsStub struct {
	contract  *domain.Contract
	statusSet []domain.ContractStatus
	statusErr error
}

func (s *contractsStub) GetContract(ctx context.Context, contractID uuid.UUID) (*domain.Contract, error) {
	if s.contract == nil {
		return nil, domain.ErrNotFound
	}
	return s.contract, nil
}

func (s *contractsStub) SetContractStatus(ctx context.Context, contractID uuid.UUID, status domain.ContractStatus) error {
	s.statusSet = append(s.statusSet, status)
	return s.statusErr
}

type vehiclesStub struct {
	locationID  uuid.UUID
	released    bool
	relocatedTo uuid.UUID
}

func (s *vehiclesStub) GetVehicleLocation(ctx context.Context, vehicleID uuid.UUID) (uuid.UUID, error) {
	return s.locationID, nil
}

func (s *vehiclesStub) SetVehicleLocation(ctx context.Context, vehicleID uuid.UUID, locationID uuid.UUID) error {
	s.relocatedTo = locationID
	return nil
}

func (s *vehiclesStub) ReleaseVehicle(ctx context.Context, vehicleID uuid.UUID) error {
	s.released = true
	return nil
}

type notifierStub struct {
	refundNotified  int
	billNotified    int
	paymentNotified int
	err             error
}

func (s *notifierStub) NotifyRefundCompleted(ctx context.Context, customerID uuid.UUID, contractNumber string, amount decimal.Decimal, method domain.RefundMethod) error {
	s.refundNotified++
	return s.err
}

func (s *notifierStub) NotifyBillPending(ctx context.Context, customerID uuid.UUID, contractNumber string, amount decimal.Decimal) error {
	s.billNotified++
	return s.err
}

func (s *notifierStub) NotifyPaymentResult(ctx context.Context, customerID uuid.UUID, contractNumber string, success bool, reason string) error {
	s.paymentNotified++
	return s.err
}

type evidenceStub struct {
	stored []string
}

func (s *evidenceStub) Store(ctx context.Context, scope string, name string, blob []byte) (string, error) {
	ref := scope + "/" + name
	s.stored = append(s.stored, ref)
	return ref, nil
}

func newTestService(repo *repoStub, contracts *contractsStub, vehicles *vehiclesStub, notifier *notifierStub) *Service {
	gw := gateway.NewClient(
		"https://gateway.example.com/pay",
		"MERCH01",
		"test-secret",
		"2.1.0",
		"https://app.example.com/payments/callback",
	)
	return NewService(repo, contracts, vehicles, notifier, &evidenceStub{}, gw)
}

func TestProcessReturn_SettlesAndOpensHold(t *testing.T) {
	contract := testContract(t)
	location := uuid.New()
	repo := &repoStub{settings: map[string]string{}}
	contracts := &contractsStub{contract: contract}
	vehicles := &vehiclesStub{locationID: location}
	notifier := &notifierStub{}
	svc := newTestService(repo, contracts, vehicles, notifier)

	req := testReturnRequest(contract, contract.EndDate, location)
	outcome, err := svc.ProcessReturn(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if repo.createdFee == nil || repo.createdHold == nil {
		t.Fatal("expected return fee and hold to be persisted")
	}
	if repo.createdHold.Status != domain.HoldStatusHolding {
		t.Errorf("expected new hold HOLDING, got %s", repo.createdHold.Status)
	}
	if !vehicles.released {
		t.Error("expected vehicle to be released")
	}
	if len(contracts.statusSet) != 1 || contracts.statusSet[0] != domain.ContractBillPending {
		t.Errorf("expected contract moved to BILL_PENDING, got %v", contracts.statusSet)
	}
	if repo.createdBill == nil || repo.createdBill.Type != domain.PaymentTypeBill {
		t.Fatalf("expected the rental bill to be recorded with the settlement, got %v", repo.createdBill)
	}
	// On-time return at the contracted location: the bill is the contracted fee.
	if !outcome.BillAmount.Equal(contract.TotalRentalFee) {
		t.Errorf("expected bill %s, got %s", contract.TotalRentalFee, outcome.BillAmount)
	}
	if notifier.billNotified != 1 {
		t.Errorf("expected one bill notification, got %d", notifier.billNotified)
	}
}

func TestProcessReturn_RejectsInactiveContract(t *testing.T) {
	contract := testContract(t)
	contract.Status = domain.ContractCompleted
	repo := &repoStub{settings: map[string]string{}}
	svc := newTestService(repo, &contractsStub{contract: contract}, &vehiclesStub{}, &notifierStub{})

	_, err := svc.ProcessReturn(context.Background(), testReturnRequest(contract, contract.EndDate, uuid.New()))
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestProcessReturn_RejectsSecondReturn(t *testing.T) {
	contract := testContract(t)
	repo := &repoStub{
		settings:            map[string]string{},
		returnFeeByContract: &domain.ReturnFee{ContractID: contract.ID},
	}
	svc := newTestService(repo, &contractsStub{contract: contract}, &vehiclesStub{}, &notifierStub{})

	_, err := svc.ProcessReturn(context.Background(), testReturnRequest(contract, contract.EndDate, uuid.New()))
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if repo.createdFee != nil {
		t.Error("expected no fee to be regenerated")
	}
}

func TestProcessReturn_SettlementFailureLeavesReturnRetryable(t *testing.T) {
	contract := testContract(t)
	location := uuid.New()
	repo := &repoStub{
		settings:      map[string]string{},
		settlementErr: errors.New("connection reset"),
	}
	contracts := &contractsStub{contract: contract}
	notifier := &notifierStub{}
	svc := newTestService(repo, contracts, &vehiclesStub{locationID: location}, notifier)

	req := testReturnRequest(contract, contract.EndDate, location)
	if _, err := svc.ProcessReturn(context.Background(), req); err == nil {
		t.Fatal("expected the settlement failure to surface")
	}
	if repo.createdFee != nil || repo.createdHold != nil || repo.createdBill != nil {
		t.Fatal("expected no partial settlement rows")
	}
	if len(contracts.statusSet) != 0 {
		t.Errorf("expected no contract transition after a failed settlement, got %v", contracts.statusSet)
	}
	if notifier.billNotified != 0 {
		t.Error("expected no bill notification after a failed settlement")
	}

	// Nothing was persisted, so the same return can be driven again.
	repo.settlementErr = nil
	if _, err := svc.ProcessReturn(context.Background(), req); err != nil {
		t.Fatalf("expected the retry to succeed, got %v", err)
	}
	if repo.createdFee == nil || repo.createdHold == nil || repo.createdBill == nil {
		t.Fatal("expected the retry to persist the full settlement")
	}
}

func TestProcessReturn_ContractStatusFailureKeepsSettlement(t *testing.T) {
	contract := testContract(t)
	location := uuid.New()
	repo := &repoStub{settings: map[string]string{}}
	contracts := &contractsStub{contract: contract, statusErr: errors.New("booking service down")}
	notifier := &notifierStub{}
	svc := newTestService(repo, contracts, &vehiclesStub{locationID: location}, notifier)

	outcome, err := svc.ProcessReturn(context.Background(), testReturnRequest(contract, contract.EndDate, location))
	if err != nil {
		t.Fatalf("a committed settlement must survive a status sync failure, got %v", err)
	}
	if outcome.Fee == nil || outcome.Hold == nil {
		t.Fatal("expected the settlement outcome despite the status failure")
	}
	if notifier.billNotified != 1 {
		t.Errorf("expected the bill notification to still go out, got %d", notifier.billNotified)
	}
}

func TestProcessReturn_OneWayRelocatesVehicle(t *testing.T) {
	contract := testContract(t)
	contracted := uuid.New()
	dropOff := uuid.New()
	repo := &repoStub{settings: map[string]string{}}
	vehicles := &vehiclesStub{locationID: contracted}
	svc := newTestService(repo, &contractsStub{contract: contract}, vehicles, &notifierStub{})

	req := testReturnRequest(contract, contract.EndDate, dropOff)
	if _, err := svc.ProcessReturn(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if vehicles.relocatedTo != dropOff {
		t.Errorf("expected vehicle relocated to %s, got %s", dropOff, vehicles.relocatedTo)
	}
}

func TestProcessRefund_NotifiesAfterSettlement(t *testing.T) {
	contract := testContract(t)
	holdID := uuid.New()
	refund := &domain.Refund{
		ID:           uuid.New(),
		HoldID:       holdID,
		ContractID:   contract.ID,
		CustomerID:   contract.CustomerID,
		RefundAmount: mustDecimal(t, "47000000"),
		RefundMethod: domain.RefundMethodTransfer,
		Status:       domain.RefundCompleted,
	}
	repo := &repoStub{
		hold:   &domain.DepositHold{ID: holdID, ContractID: contract.ID, Status: domain.HoldStatusReady},
		refund: refund,
	}
	notifier := &notifierStub{}
	svc := newTestService(repo, &contractsStub{contract: contract}, &vehiclesStub{}, notifier)

	got, err := svc.ProcessRefund(context.Background(), holdID, domain.RefundMethodTransfer)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != refund {
		t.Fatal("expected the committed refund to be returned")
	}
	if repo.refundCustomerID != contract.CustomerID {
		t.Errorf("expected refund attributed to customer %s, got %s", contract.CustomerID, repo.refundCustomerID)
	}
	if notifier.refundNotified != 1 {
		t.Errorf("expected one refund notification, got %d", notifier.refundNotified)
	}
}

func TestProcessRefund_NotificationFailureDoesNotFailRefund(t *testing.T) {
	contract := testContract(t)
	holdID := uuid.New()
	repo := &repoStub{
		hold:   &domain.DepositHold{ID: holdID, ContractID: contract.ID, Status: domain.HoldStatusReady},
		refund: &domain.Refund{ID: uuid.New(), HoldID: holdID, RefundMethod: domain.RefundMethodCash},
	}
	notifier := &notifierStub{err: errors.New("broker down")}
	svc := newTestService(repo, &contractsStub{contract: contract}, &vehiclesStub{}, notifier)

	if _, err := svc.ProcessRefund(context.Background(), holdID, domain.RefundMethodCash); err != nil {
		t.Fatalf("refund must survive a notification failure, got %v", err)
	}
}

func TestProcessRefund_SurfacesRepositoryRejections(t *testing.T) {
	contract := testContract(t)
	holdID := uuid.New()
	for _, want := range []error{domain.ErrNotReady, domain.ErrAlreadyRefunded} {
		repo := &repoStub{
			hold:      &domain.DepositHold{ID: holdID, ContractID: contract.ID},
			refundErr: want,
		}
		notifier := &notifierStub{}
		svc := newTestService(repo, &contractsStub{contract: contract}, &vehiclesStub{}, notifier)

		_, err := svc.ProcessRefund(context.Background(), holdID, domain.RefundMethodTransfer)
		if !errors.Is(err, want) {
			t.Errorf("expected %v, got %v", want, err)
		}
		if notifier.refundNotified != 0 {
			t.Error("expected no notification on a rejected refund")
		}
	}
}

func TestGetHoldByContract_ResolvesHoldDetail(t *testing.T) {
	contractID := uuid.New()
	repo := &repoStub{
		hold: &domain.DepositHold{
			ID:               uuid.New(),
			ContractID:       contractID,
			DepositAmount:    mustDecimal(t, "50000000"),
			DeductedAtReturn: mustDecimal(t, "2000000"),
			Status:           domain.HoldStatusHolding,
		},
		fines: mustDecimal(t, "1000000"),
	}
	svc := newTestService(repo, &contractsStub{}, &vehiclesStub{}, &notifierStub{})

	detail, err := svc.GetHoldByContract(context.Background(), contractID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if detail.Hold.ID != repo.hold.ID {
		t.Errorf("expected hold %s, got %s", repo.hold.ID, detail.Hold.ID)
	}
	if want := mustDecimal(t, "47000000"); !detail.RefundPreview.Equal(want) {
		t.Errorf("expected preview %s, got %s", want, detail.RefundPreview)
	}

	if _, err := svc.GetHoldByContract(context.Background(), uuid.New()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for a contract without a hold, got %v", err)
	}
}

func TestRefundPreview_MatchesFormula(t *testing.T) {
	holdID := uuid.New()
	repo := &repoStub{
		hold: &domain.DepositHold{
			ID:               holdID,
			DepositAmount:    mustDecimal(t, "50000000"),
			DeductedAtReturn: mustDecimal(t, "2000000"),
			Status:           domain.HoldStatusReady,
		},
		fines: mustDecimal(t, "1000000"),
	}
	svc := newTestService(repo, &contractsStub{}, &vehiclesStub{}, &notifierStub{})

	amount, err := svc.RefundPreview(context.Background(), holdID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := mustDecimal(t, "47000000"); !amount.Equal(want) {
		t.Errorf("expected preview %s, got %s", want, amount)
	}
}

func TestAddViolation_Validates(t *testing.T) {
	repo := &repoStub{hold: &domain.DepositHold{ID: uuid.New(), Status: domain.HoldStatusHolding}}
	svc := newTestService(repo, &contractsStub{}, &vehiclesStub{}, &notifierStub{})

	_, err := svc.AddViolation(context.Background(), AddViolationInput{
		HoldID:        repo.hold.ID,
		ViolationType: "SPEEDING",
		ViolationDate: time.Now(),
		FineAmount:    decimal.Zero,
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for zero fine, got %v", err)
	}

	v, err := svc.AddViolation(context.Background(), AddViolationInput{
		HoldID:        repo.hold.ID,
		ViolationType: "SPEEDING",
		ViolationDate: time.Now(),
		FineAmount:    mustDecimal(t, "300000"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Status != domain.ViolationPending {
		t.Errorf("expected new violation PENDING, got %s", v.Status)
	}
}

func TestInitiatePayment_ReusesValidPendingURL(t *testing.T) {
	contract := testContract(t)
	contract.Status = domain.ContractPendingPayment
	existingURL := "https://gateway.example.com/pay?vnp_TxnRef=DEPOSIT123"
	repo := &repoStub{
		pendingPayment: &domain.Payment{
			ID:         uuid.New(),
			ContractID: contract.ID,
			Type:       domain.PaymentTypeDeposit,
			Amount:     contract.DepositAmount,
			Status:     domain.PaymentPending,
			PaymentURL: &existingURL,
			UpdatedAt:  time.Now().Add(-5 * time.Minute),
		},
	}
	svc := newTestService(repo, &contractsStub{contract: contract}, &vehiclesStub{}, &notifierStub{})

	url, err := svc.InitiatePayment(context.Background(), contract.ID, domain.PaymentTypeDeposit, "203.0.113.9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != existingURL {
		t.Errorf("expected pending URL to be reused, got %s", url)
	}
	if repo.updatedAttemptRef != "" {
		t.Error("expected no regenerated attempt")
	}
}

func TestInitiatePayment_RegeneratesExpiredURL(t *testing.T) {
	contract := testContract(t)
	contract.Status = domain.ContractPendingPayment
	staleURL := "https://gateway.example.com/pay?vnp_TxnRef=DEPOSITOLD"
	repo := &repoStub{
		pendingPayment: &domain.Payment{
			ID:         uuid.New(),
			ContractID: contract.ID,
			Type:       domain.PaymentTypeDeposit,
			Amount:     contract.DepositAmount,
			Status:     domain.PaymentPending,
			PaymentURL: &staleURL,
			UpdatedAt:  time.Now().Add(-(gateway.PaymentURLTTL + 5*time.Minute)),
		},
	}
	svc := newTestService(repo, &contractsStub{contract: contract}, &vehiclesStub{}, &notifierStub{})

	url, err := svc.InitiatePayment(context.Background(), contract.ID, domain.PaymentTypeDeposit, "203.0.113.9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url == staleURL {
		t.Fatal("expected a fresh URL for the expired attempt")
	}
	if repo.updatedAttemptRef == "" || repo.updatedAttemptURL != url {
		t.Errorf("expected the attempt to be re-recorded, ref=%q", repo.updatedAttemptRef)
	}
	if !strings.HasPrefix(repo.updatedAttemptRef, "DEPOSIT") {
		t.Errorf("expected deposit reference prefix, got %q", repo.updatedAttemptRef)
	}
}

func TestInitiatePayment_CreatesFirstDepositAttempt(t *testing.T) {
	contract := testContract(t)
	contract.Status = domain.ContractPendingPayment
	repo := &repoStub{}
	svc := newTestService(repo, &contractsStub{contract: contract}, &vehiclesStub{}, &notifierStub{})

	url, err := svc.InitiatePayment(context.Background(), contract.ID, domain.PaymentTypeDeposit, "203.0.113.9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url == "" {
		t.Fatal("expected a payment URL")
	}
	if len(repo.createdPayments) != 1 {
		t.Fatalf("expected one payment record, got %d", len(repo.createdPayments))
	}
	p := repo.createdPayments[0]
	if p.Type != domain.PaymentTypeDeposit || p.Status != domain.PaymentPending {
		t.Errorf("unexpected payment record: type=%s status=%s", p.Type, p.Status)
	}
	if p.TransactionRef == nil || p.PaymentURL == nil {
		t.Fatal("expected transaction ref and URL to be recorded")
	}
}

func TestInitiatePayment_RejectsWrongContractState(t *testing.T) {
	contract := testContract(t)
	contract.Status = domain.ContractActive
	svc := newTestService(&repoStub{}, &contractsStub{contract: contract}, &vehiclesStub{}, &notifierStub{})

	_, err := svc.InitiatePayment(context.Background(), contract.ID, domain.PaymentTypeDeposit, "203.0.113.9")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
