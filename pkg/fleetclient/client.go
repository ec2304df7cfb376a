/**
 * @description
 * This package provides a client for communicating with the fleet-service.
 * The settlement core uses it to resolve a vehicle's contracted location,
 * relocate a vehicle after a one-way return, and release it back into the
 * available pool.
 */
package fleetclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rentiva/settlement-service/internal/domain"
)

// Client is a client for the fleet service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new fleet service client.
func NewClient(baseURL string, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type vehicleLocationResponse struct {
	LocationID uuid.UUID `json:"location_id"`
}

// GetVehicleLocation reads the vehicle's current location.
func (c *Client) GetVehicleLocation(ctx context.Context, vehicleID uuid.UUID) (uuid.UUID, error) {
	if c.baseURL == "" {
		return uuid.Nil, fmt.Errorf("fleet service base url is empty")
	}

	url := fmt.Sprintf("%s/internal/vehicles/%s/location", c.baseURL, vehicleID)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to execute request to fleet service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return uuid.Nil, fmt.Errorf("vehicle %s: %w", vehicleID, domain.ErrNotFound)
	}
	if resp.StatusCode >= 400 {
		return uuid.Nil, fmt.Errorf("fleet service returned error status %d", resp.StatusCode)
	}

	var response vehicleLocationResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return uuid.Nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return response.LocationID, nil
}

type locationUpdateRequest struct {
	LocationID uuid.UUID `json:"location_id"`
}

// SetVehicleLocation moves the vehicle to a new location.
func (c *Client) SetVehicleLocation(ctx context.Context, vehicleID uuid.UUID, locationID uuid.UUID) error {
	url := fmt.Sprintf("%s/internal/vehicles/%s/location", c.baseURL, vehicleID)

	body, err := json.Marshal(locationUpdateRequest{LocationID: locationID})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.put(ctx, url, bytes.NewBuffer(body), vehicleID)
}

// ReleaseVehicle marks the vehicle available again after a return.
func (c *Client) ReleaseVehicle(ctx context.Context, vehicleID uuid.UUID) error {
	url := fmt.Sprintf("%s/internal/vehicles/%s/release", c.baseURL, vehicleID)
	return c.put(ctx, url, nil, vehicleID)
}

func (c *Client) put(ctx context.Context, url string, body io.Reader, vehicleID uuid.UUID) error {
	if c.baseURL == "" {
		return fmt.Errorf("fleet service base url is empty")
	}

	if body == nil {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, "PUT", url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request to fleet service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("vehicle %s: %w", vehicleID, domain.ErrNotFound)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("fleet service returned error status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(c.apiKey) != "" {
		req.Header.Set("X-Internal-API-Key", strings.TrimSpace(c.apiKey))
	}
}
