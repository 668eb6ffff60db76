// Package directory wraps the account directory service that owns the
// canonical list of accounts enrolled for automated document retrieval.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/adr-pipeline/internal/config"
	"github.com/adr-pipeline/internal/retry"
)

// DirectoryAccount is an account record as the directory service reports it.
// The sync step reconciles these against the local accounts table.
type DirectoryAccount struct {
	ExternalID    string `json:"externalId"`
	AccountNumber string `json:"accountNumber"`
	VendorCode    string `json:"vendorCode"`
	CredentialID  string `json:"credentialId"`
	PeriodType    string `json:"periodType"`
	CycleDays     int    `json:"cycleDays,omitempty"`
}

type listAccountsResponse struct {
	Accounts []DirectoryAccount `json:"accounts"`
}

// Client is an HTTP client for the account directory service
type Client struct {
	baseURL  string
	apiKey   string
	client   *http.Client
	retryCfg *retry.Config
}

// NewClient creates a new directory service client
func NewClient(cfg *config.DirectoryConfig) *Client {
	return &Client{
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: cfg.Timeout},
		retryCfg: retry.DefaultConfig(),
	}
}

// ListAccounts fetches the full enrolled account list. The directory is the
// source of truth for enrollment, so transient failures are retried rather
// than treated as an empty list.
func (c *Client) ListAccounts(ctx context.Context) ([]DirectoryAccount, error) {
	var accounts []DirectoryAccount

	err := retry.Do(ctx, c.retryCfg, func(ctx context.Context, attempt int) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/accounts", nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("X-Api-Key", c.apiKey)

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to call directory service: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("directory service returned HTTP %d: %s", resp.StatusCode, string(body))
		}

		var parsed listAccountsResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return fmt.Errorf("failed to parse account list: %w", err)
		}

		accounts = parsed.Accounts
		return nil
	})
	if err != nil {
		return nil, err
	}

	return accounts, nil
}
