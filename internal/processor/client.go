// Package processor is the boundary to the external payment processor.
// The pipeline only needs one capability from it: retrieve a charge by its
// transaction id and report whether it reached the terminal success state.
package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"tripdesk_backend/platform/config"
)

// ChargeStatusSucceeded is the processor's terminal success status. Anything
// else is non-settleable.
const ChargeStatusSucceeded = "succeeded"

// Charge is the processor's view of a captured payment.
type Charge struct {
	TransactionID string `json:"id"`
	Status        string `json:"status"`
	AmountCents   int64  `json:"amount"`
	Currency      string `json:"currency"`
}

// Port is the capability settlement depends on.
type Port interface {
	RetrieveCharge(ctx context.Context, transactionID string) (*Charge, error)
}

// Client is an HTTP client for the payment processor's charge API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a processor client from configuration.
func NewClient(cfg config.ProcessorConfig) *Client {
	return &Client{
		baseURL: cfg.GetProcessorBaseURL(),
		apiKey:  cfg.GetProcessorAPIKey(),
		httpClient: &http.Client{
			Timeout: cfg.GetProcessorTimeout(),
		},
	}
}

// RetrieveCharge fetches a charge by transaction id.
func (c *Client) RetrieveCharge(ctx context.Context, transactionID string) (*Charge, error) {
	endpoint := fmt.Sprintf("%s/v1/charges/%s", c.baseURL, url.PathEscape(transactionID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("processor request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("processor call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("charge %s not found", transactionID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("processor returned status %d", resp.StatusCode)
	}

	var charge Charge
	if err := json.NewDecoder(resp.Body).Decode(&charge); err != nil {
		return nil, fmt.Errorf("decode charge: %w", err)
	}
	return &charge, nil
}

// Compile-time check.
var _ Port = (*Client)(nil)
