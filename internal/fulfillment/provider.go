// Package fulfillment turns a fully paid quote into booking work: automated
// booking calls against supplier APIs where a provider integration exists,
// manual tasks for the agent everywhere else.
package fulfillment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"tripdesk_backend/platform/config"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// BookingRequest is the canonical booking payload sent to a supplier API.
// It is marshalled exactly once at dispatch time and stored on the task, so
// the payload an agent previews is byte for byte the payload that executes.
type BookingRequest struct {
	Provider    string    `json:"provider"`
	QuoteID     uuid.UUID `json:"quoteId"`
	ItemID      uuid.UUID `json:"itemId"`
	PaymentID   uuid.UUID `json:"paymentId"`
	ItemType    string    `json:"itemType"`
	Description string    `json:"description"`
	PriceCents  int64     `json:"priceCents"`
	Currency    string    `json:"currency"`
}

// Provider is one supplier API integration.
type Provider interface {
	// Name returns the provider code used on quote items.
	Name() string
	// Prepare validates that the provider can accept this booking. It must
	// not create anything on the supplier side.
	Prepare(ctx context.Context, req BookingRequest) error
	// Book executes a previously prepared booking payload and returns the
	// supplier's confirmation reference.
	Book(ctx context.Context, payload []byte) (string, error)
}

// HTTPProvider is a Provider backed by a supplier's REST endpoint.
type HTTPProvider struct {
	name           string
	endpoint       string
	apiKey         string
	client         *http.Client
	prepareTimeout time.Duration
	limiter        *rate.Limiter
}

// NewHTTPProvider creates a provider client for one supplier endpoint.
// ratePerMinute bounds outbound booking calls; zero means unlimited.
func NewHTTPProvider(name, endpoint, apiKey string, callTimeout, prepareTimeout time.Duration, ratePerMinute int) *HTTPProvider {
	limit := rate.Inf
	burst := 1
	if ratePerMinute > 0 {
		limit = rate.Limit(float64(ratePerMinute) / 60.0)
		burst = ratePerMinute
	}
	return &HTTPProvider{
		name:           name,
		endpoint:       endpoint,
		apiKey:         apiKey,
		client:         &http.Client{Timeout: callTimeout},
		prepareTimeout: prepareTimeout,
		limiter:        rate.NewLimiter(limit, burst),
	}
}

// Name returns the provider code.
func (p *HTTPProvider) Name() string { return p.name }

// Prepare asks the supplier to validate the booking without creating it.
func (p *HTTPProvider) Prepare(ctx context.Context, req BookingRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode booking request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.prepareTimeout)
	defer cancel()

	resp, err := p.post(ctx, "/bookings/validate", payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("provider %s rejected booking: status %d", p.name, resp.StatusCode)
	}
	return nil
}

// Book sends the stored payload to the supplier's booking endpoint.
func (p *HTTPProvider) Book(ctx context.Context, payload []byte) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	resp, err := p.post(ctx, "/bookings", payload)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("provider %s booking failed: status %d", p.name, resp.StatusCode)
	}

	var result struct {
		ConfirmationRef string `json:"confirmationRef"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode booking response: %w", err)
	}
	if result.ConfirmationRef == "" {
		return "", fmt.Errorf("provider %s returned no confirmation reference", p.name)
	}
	return result.ConfirmationRef, nil
}

func (p *HTTPProvider) post(ctx context.Context, path string, payload []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("provider request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider %s call: %w", p.name, err)
	}
	return resp, nil
}

// Registry holds the configured supplier providers keyed by provider code.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry builds the provider registry from configuration. Only suppliers
// with a configured endpoint get an automated integration; everything else
// falls back to manual fulfillment.
func NewRegistry(cfg config.SupplierAPIConfig) *Registry {
	providers := make(map[string]Provider)
	for code, endpoint := range cfg.GetSupplierEndpoints() {
		providers[code] = NewHTTPProvider(
			code,
			endpoint,
			cfg.GetSupplierAPIKey(code),
			cfg.GetSupplierCallTimeout(),
			cfg.GetSupplierPrepareTimeout(),
			cfg.GetSupplierRatePerMinute(code),
		)
	}
	return &Registry{providers: providers}
}

// NewRegistryWith builds a registry from explicit providers, used in tests and
// for stub wiring.
func NewRegistryWith(providers ...Provider) *Registry {
	m := make(map[string]Provider, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}
	return &Registry{providers: m}
}

// Get returns the provider for a code, if one is configured.
func (r *Registry) Get(code string) (Provider, bool) {
	p, ok := r.providers[code]
	return p, ok
}

// Compile-time check.
var _ Provider = (*HTTPProvider)(nil)
