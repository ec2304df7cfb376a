/**
 * @description
 * This package provides a client for communicating with the booking-service.
 * It encapsulates the API calls the settlement core needs: reading contract
 * snapshots and requesting contract status transitions.
 */
package bookingclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rentiva/settlement-service/internal/domain"
)

// Client is a client for the booking service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new booking service client.
func NewClient(baseURL string, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type contractResponse struct {
	ID             uuid.UUID       `json:"id"`
	ContractNumber string          `json:"contract_number"`
	CustomerID     uuid.UUID       `json:"customer_id"`
	VehicleID      uuid.UUID       `json:"vehicle_id"`
	Status         string          `json:"status"`
	StartDate      time.Time       `json:"start_date"`
	ExpectedEnd    time.Time       `json:"expected_end_date"`
	DailyRate      decimal.Decimal `json:"daily_rate"`
	TotalRentalFee decimal.Decimal `json:"total_rental_fee"`
	DepositAmount  decimal.Decimal `json:"deposit_amount"`
}

// GetContract fetches a contract snapshot from the booking service.
func (c *Client) GetContract(ctx context.Context, contractID uuid.UUID) (*domain.Contract, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("booking service base url is empty")
	}

	url := fmt.Sprintf("%s/internal/contracts/%s", c.baseURL, contractID)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request to booking service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("contract %s: %w", contractID, domain.ErrNotFound)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("booking service returned error status %d", resp.StatusCode)
	}

	var response contractResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &domain.Contract{
		ID:             response.ID,
		ContractNumber: response.ContractNumber,
		CustomerID:     response.CustomerID,
		VehicleID:      response.VehicleID,
		Status:         domain.ContractStatus(response.Status),
		StartDate:      response.StartDate,
		EndDate:        response.ExpectedEnd,
		DailyRate:      response.DailyRate,
		TotalRentalFee: response.TotalRentalFee,
		DepositAmount:  response.DepositAmount,
	}, nil
}

type statusUpdateRequest struct {
	Status string `json:"status"`
}

// SetContractStatus requests a contract status transition.
func (c *Client) SetContractStatus(ctx context.Context, contractID uuid.UUID, status domain.ContractStatus) error {
	if c.baseURL == "" {
		return fmt.Errorf("booking service base url is empty")
	}

	url := fmt.Sprintf("%s/internal/contracts/%s/status", c.baseURL, contractID)

	body, err := json.Marshal(statusUpdateRequest{Status: string(status)})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "PUT", url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request to booking service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("contract %s: %w", contractID, domain.ErrNotFound)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("booking service returned error status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(c.apiKey) != "" {
		req.Header.Set("X-Internal-API-Key", strings.TrimSpace(c.apiKey))
	}
}
