package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"zlot-parking/internal/models"
)

// GateClient calls the unauthenticated gate and device endpoints.
type GateClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewGateClient(baseURL string) *GateClient {
	return &GateClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

func (c *GateClient) post(ctx context.Context, path string, body, out any) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Add("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(respBody))
		var apiErr models.ErrorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// Poll sends POST /device/poll. It returns nil when no command is pending.
func (c *GateClient) Poll(ctx context.Context, deviceID string) (*models.Command, error) {
	var cmd models.Command
	if err := c.post(ctx, "/device/poll", models.DeviceRequest{DeviceID: deviceID}, &cmd); err != nil {
		return nil, err
	}
	if cmd.ID == "" {
		return nil, nil
	}
	return &cmd, nil
}

// Ack sends POST /device/ack.
func (c *GateClient) Ack(ctx context.Context, commandID string) (*models.AckResponse, error) {
	var out models.AckResponse
	if err := c.post(ctx, "/device/ack", models.AckRequest{CommandID: commandID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Gate sends POST /gate/open or /gate/close.
func (c *GateClient) Gate(ctx context.Context, action, deviceID string) (*models.DeviceMessageResponse, error) {
	var out models.DeviceMessageResponse
	if err := c.post(ctx, "/gate/"+action, models.DeviceRequest{DeviceID: deviceID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
