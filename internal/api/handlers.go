/**
 * @description
 * This file contains the HTTP handlers for the settlement-service's API
 * endpoints. Handlers are responsible for parsing incoming requests, calling
 * the appropriate methods on the application service, and writing the HTTP
 * response. They act as the bridge between the web layer and the business
 * logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rentiva/settlement-service/internal/app"
	"github.com/rentiva/settlement-service/internal/domain"
)

// SettlementHandlers holds the application service that handlers will use.
type SettlementHandlers struct {
	service *app.Service
}

// NewSettlementHandlers creates a new instance of SettlementHandlers.
func NewSettlementHandlers(service *app.Service) *SettlementHandlers {
	return &SettlementHandlers{service: service}
}

// ProcessReturnHandler settles a vehicle return and opens the deposit hold.
func (h *SettlementHandlers) ProcessReturnHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.ReturnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=process_return outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	outcome, err := h.service.ProcessReturn(r.Context(), &req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=process_return outcome=failed contract_id=%s err=%v", req.ContractID, err)
		h.writeServiceError(w, err)
		return
	}

	log.Printf("level=info component=api endpoint=process_return outcome=accepted contract_id=%s hold_id=%s", req.ContractID, outcome.Hold.ID)
	h.writeJSON(w, http.StatusCreated, outcome)
}

// ListHoldsHandler lists deposit holds, optionally filtered by status.
func (h *SettlementHandlers) ListHoldsHandler(w http.ResponseWriter, r *http.Request) {
	var status *domain.HoldStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		parsed, err := domain.ParseHoldStatus(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid status filter")
			return
		}
		status = &parsed
	}

	holds, err := h.service.ListHolds(r.Context(), status)
	if err != nil {
		log.Printf("level=error component=api endpoint=list_holds outcome=failed err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, holds)
}

// GetHoldDetailHandler returns a hold with its violations and refund preview.
func (h *SettlementHandlers) GetHoldDetailHandler(w http.ResponseWriter, r *http.Request) {
	holdID, ok := h.parseIDParam(w, r, "holdID")
	if !ok {
		return
	}

	detail, err := h.service.GetHoldDetail(r.Context(), holdID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, detail)
}

// GetContractHoldHandler resolves the deposit hold opened for a contract.
func (h *SettlementHandlers) GetContractHoldHandler(w http.ResponseWriter, r *http.Request) {
	contractID, ok := h.parseIDParam(w, r, "contractID")
	if !ok {
		return
	}

	detail, err := h.service.GetHoldByContract(r.Context(), contractID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, detail)
}

// RefundPreviewHandler computes the refundable amount without side effects.
func (h *SettlementHandlers) RefundPreviewHandler(w http.ResponseWriter, r *http.Request) {
	holdID, ok := h.parseIDParam(w, r, "holdID")
	if !ok {
		return
	}

	amount, err := h.service.RefundPreview(r.Context(), holdID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"refund_amount": amount})
}

type addViolationRequest struct {
	ViolationType string          `json:"violation_type"`
	ViolationDate time.Time       `json:"violation_date"`
	FineAmount    decimal.Decimal `json:"fine_amount"`
	Description   *string         `json:"description,omitempty"`
	EvidenceName  string          `json:"evidence_name,omitempty"`
	Evidence      []byte          `json:"evidence,omitempty"`
}

// AddViolationHandler records a traffic-fine claim against a hold.
func (h *SettlementHandlers) AddViolationHandler(w http.ResponseWriter, r *http.Request) {
	holdID, ok := h.parseIDParam(w, r, "holdID")
	if !ok {
		return
	}

	var req addViolationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	violation, err := h.service.AddViolation(r.Context(), app.AddViolationInput{
		HoldID:        holdID,
		ViolationType: req.ViolationType,
		ViolationDate: req.ViolationDate,
		FineAmount:    req.FineAmount,
		Description:   req.Description,
		Evidence:      req.Evidence,
		EvidenceName:  req.EvidenceName,
	})
	if err != nil {
		log.Printf("level=warn component=api endpoint=add_violation outcome=failed hold_id=%s err=%v", holdID, err)
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, violation)
}

// ConfirmViolationHandler moves a claim from PENDING to CONFIRMED.
func (h *SettlementHandlers) ConfirmViolationHandler(w http.ResponseWriter, r *http.Request) {
	violationID, ok := h.parseIDParam(w, r, "violationID")
	if !ok {
		return
	}

	violation, err := h.service.ConfirmViolation(r.Context(), violationID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, violation)
}

// RemoveViolationHandler deletes a claim from an unrefunded hold.
func (h *SettlementHandlers) RemoveViolationHandler(w http.ResponseWriter, r *http.Request) {
	violationID, ok := h.parseIDParam(w, r, "violationID")
	if !ok {
		return
	}

	if err := h.service.RemoveViolation(r.Context(), violationID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type processRefundRequest struct {
	RefundMethod string `json:"refund_method"`
}

// ProcessRefundHandler pays out a ready deposit hold exactly once.
func (h *SettlementHandlers) ProcessRefundHandler(w http.ResponseWriter, r *http.Request) {
	holdID, ok := h.parseIDParam(w, r, "holdID")
	if !ok {
		return
	}

	var req processRefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	method, err := domain.ParseRefundMethod(req.RefundMethod)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "refund_method must be TRANSFER or CASH")
		return
	}

	// Payouts are audited against the staff member who triggered them.
	staffID, _ := GetStaffID(r.Context())

	refund, err := h.service.ProcessRefund(r.Context(), holdID, method)
	if err != nil {
		log.Printf("level=warn component=api endpoint=process_refund outcome=failed hold_id=%s staff=%s err=%v", holdID, staffID, err)
		h.writeServiceError(w, err)
		return
	}

	log.Printf("level=info component=api endpoint=process_refund outcome=completed hold_id=%s amount=%s staff=%s", holdID, refund.RefundAmount, staffID)
	h.writeJSON(w, http.StatusCreated, refund)
}

// GetRefundHandler returns the terminal refund record for a hold.
func (h *SettlementHandlers) GetRefundHandler(w http.ResponseWriter, r *http.Request) {
	holdID, ok := h.parseIDParam(w, r, "holdID")
	if !ok {
		return
	}

	refund, err := h.service.RefundByHold(r.Context(), holdID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, refund)
}

// ListRefundsHandler lists refunds filtered by status.
func (h *SettlementHandlers) ListRefundsHandler(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("status")
	if raw == "" {
		raw = string(domain.RefundCompleted)
	}
	status, err := domain.ParseRefundStatus(raw)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid status filter")
		return
	}

	refunds, err := h.service.ListRefundsByStatus(r.Context(), status)
	if err != nil {
		log.Printf("level=error component=api endpoint=list_refunds outcome=failed err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, refunds)
}

type initiatePaymentRequest struct {
	ContractID uuid.UUID `json:"contract_id"`
	Type       string    `json:"type"`
}

// InitiatePaymentHandler builds a signed gateway redirect URL for a deposit
// or rental-bill payment.
func (h *SettlementHandlers) InitiatePaymentHandler(w http.ResponseWriter, r *http.Request) {
	var req initiatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	kind, err := domain.ParsePaymentType(req.Type)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "type must be DEPOSIT or BILL")
		return
	}

	paymentURL, err := h.service.InitiatePayment(r.Context(), req.ContractID, kind, clientIP(r))
	if err != nil {
		log.Printf("level=warn component=api endpoint=initiate_payment outcome=failed contract_id=%s err=%v", req.ContractID, err)
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"payment_url": paymentURL})
}

// GatewayCallbackHandler processes the gateway's signed redirect after a
// payment attempt. This route is public: the signature is the auth.
func (h *SettlementHandlers) GatewayCallbackHandler(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.service.HandleGatewayCallback(r.Context(), r.URL.Query())
	if err != nil {
		if errors.Is(err, domain.ErrInvalidSignature) {
			log.Printf("level=error component=api endpoint=gateway_callback outcome=reject reason=invalid_signature ip=%s", clientIP(r))
			h.writeError(w, http.StatusBadRequest, "Invalid signature")
			return
		}
		log.Printf("level=error component=api endpoint=gateway_callback outcome=failed err=%v", err)
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, outcome)
}

func (h *SettlementHandlers) parseIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// writeServiceError maps domain error kinds onto HTTP statuses.
func (h *SettlementHandlers) writeServiceError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	switch {
	case errors.As(err, &validationErr):
		h.writeError(w, http.StatusBadRequest, validationErr.Error())
	case errors.Is(err, domain.ErrValidation):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, domain.ErrNotReady):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrAlreadyRefunded):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrImmutableAfterRefund):
		h.writeError(w, http.StatusConflict, err.Error())
	default:
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// writeJSON is a helper for writing JSON responses.
func (h *SettlementHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *SettlementHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func clientIP(r *http.Request) string {
	// X-Forwarded-For accumulates one entry per proxy hop; the first is the
	// originating client.
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
