package directory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adr-pipeline/internal/config"
	"github.com/adr-pipeline/internal/retry"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(&config.DirectoryConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Timeout: 5 * time.Second,
	})
	// Fast retries so failure tests do not sleep for real
	c.retryCfg = &retry.Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
	return c
}

func TestListAccounts(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/accounts", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"accounts": []map[string]interface{}{
				{
					"externalId":    "ext-1",
					"accountNumber": "ACC-1001",
					"vendorCode":    "acme",
					"credentialId":  "cred-1",
					"periodType":    "monthly",
				},
				{
					"externalId":    "ext-2",
					"accountNumber": "ACC-1002",
					"vendorCode":    "globex",
					"credentialId":  "cred-2",
					"periodType":    "custom",
					"cycleDays":     45,
				},
			},
		})
	})

	accounts, err := client.ListAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "ext-1", accounts[0].ExternalID)
	assert.Equal(t, "monthly", accounts[0].PeriodType)
	assert.Equal(t, 45, accounts[1].CycleDays)
}

func TestListAccountsRetriesTransientFailure(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"accounts": []map[string]interface{}{
				{"externalId": "ext-1", "vendorCode": "acme", "credentialId": "cred-1", "periodType": "monthly"},
			},
		})
	})

	accounts, err := client.ListAccounts(context.Background())
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestListAccountsExhaustsRetries(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.ListAccounts(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
}
