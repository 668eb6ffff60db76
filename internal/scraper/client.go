package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/adr-pipeline/internal/config"
)

// Client talks to the external scraping service that performs credential
// checks and document downloads on vendor portals. All calls go through a
// shared rate limiter since the service throttles per API key, not per
// endpoint.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

// Response is the parsed outcome of a scraping service call. RawBody and
// HTTPStatus are always populated when the request reached the service, even
// on non-2xx responses, so callers can record the full exchange.
type Response struct {
	StatusID   int    `json:"statusId"`
	TrackingID string `json:"trackingId,omitempty"`
	Message    string `json:"message,omitempty"`

	HTTPStatus int    `json:"-"`
	RawBody    string `json:"-"`
}

// NewClient creates a new scraping service client
func NewClient(cfg *config.ScraperConfig) *Client {
	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

type checkLoginRequest struct {
	CredentialID string `json:"credentialId"`
}

type submitDownloadRequest struct {
	CredentialID string    `json:"credentialId"`
	PeriodStart  time.Time `json:"periodStart"`
	PeriodEnd    time.Time `json:"periodEnd"`
}

// CheckLogin asks the scraping service to verify a credential against the
// vendor portal. The service responds synchronously with a status code.
func (c *Client) CheckLogin(ctx context.Context, credentialID string) (*Response, error) {
	payload := checkLoginRequest{CredentialID: credentialID}
	return c.doJSON(ctx, http.MethodPost, "/api/v1/credentials/check", payload)
}

// SubmitDownload submits an asynchronous document download request for the
// given billing window. The returned TrackingID is used to poll for progress.
func (c *Client) SubmitDownload(ctx context.Context, credentialID string, periodStart, periodEnd time.Time) (*Response, error) {
	payload := submitDownloadRequest{
		CredentialID: credentialID,
		PeriodStart:  periodStart,
		PeriodEnd:    periodEnd,
	}
	return c.doJSON(ctx, http.MethodPost, "/api/v1/downloads", payload)
}

// GetStatus polls the scraping service for the current state of a previously
// submitted download request.
func (c *Client) GetStatus(ctx context.Context, trackingID string) (*Response, error) {
	return c.doJSON(ctx, http.MethodGet, "/api/v1/requests/"+trackingID+"/status", nil)
}

// doJSON performs a rate-limited request and parses the JSON body. A non-2xx
// status returns both the parsed response and an error so callers can persist
// the exchange before deciding how to proceed.
func (c *Client) doJSON(ctx context.Context, method, path string, payload interface{}) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait cancelled: %w", err)
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call scraping service: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	parsed := &Response{
		HTTPStatus: resp.StatusCode,
		RawBody:    string(raw),
	}
	if len(raw) > 0 {
		// Body may be non-JSON on gateway errors; keep the raw text and let
		// the status code drive the outcome.
		if err := json.Unmarshal(raw, parsed); err != nil && resp.StatusCode < 300 {
			return parsed, fmt.Errorf("failed to parse response: %w", err)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parsed, fmt.Errorf("scraping service returned HTTP %d: %s", resp.StatusCode, string(raw))
	}

	return parsed, nil
}
