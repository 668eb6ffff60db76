package scraper

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adr-pipeline/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(&config.ScraperConfig{
		BaseURL:        srv.URL,
		APIKey:         "test-key",
		Timeout:        5 * time.Second,
		RequestsPerSec: 100,
	}), srv
}

func TestCheckLogin(t *testing.T) {
	var gotPath, gotAPIKey string
	var gotBody map[string]string

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("X-Api-Key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"statusId": 4,
			"message":  "Login succeeded",
		})
	})

	resp, err := client.CheckLogin(context.Background(), "cred-123")
	require.NoError(t, err)

	assert.Equal(t, "/api/v1/credentials/check", gotPath)
	assert.Equal(t, "test-key", gotAPIKey)
	assert.Equal(t, "cred-123", gotBody["credentialId"])
	assert.Equal(t, 4, resp.StatusID)
	assert.Equal(t, http.StatusOK, resp.HTTPStatus)
	assert.Contains(t, resp.RawBody, "Login succeeded")
}

func TestSubmitDownload(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/downloads", r.URL.Path)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "cred-456", body["credentialId"])
		assert.NotEmpty(t, body["periodStart"])
		assert.NotEmpty(t, body["periodEnd"])

		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"statusId":   1,
			"trackingId": "track-789",
		})
	})

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	resp, err := client.SubmitDownload(context.Background(), "cred-456", start, end)
	require.NoError(t, err)
	assert.Equal(t, "track-789", resp.TrackingID)
	assert.Equal(t, http.StatusAccepted, resp.HTTPStatus)
}

func TestGetStatus(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/requests/track-789/status", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"statusId": 11,
			"message":  "Documents downloaded",
		})
	})

	resp, err := client.GetStatus(context.Background(), "track-789")
	require.NoError(t, err)
	assert.Equal(t, 11, resp.StatusID)
}

func TestNon2xxReturnsResponseAndError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream unavailable"))
	})

	resp, err := client.GetStatus(context.Background(), "track-1")
	require.Error(t, err)
	require.NotNil(t, resp, "caller needs the exchange even on failure")
	assert.Equal(t, http.StatusBadGateway, resp.HTTPStatus)
	assert.Equal(t, "upstream unavailable", resp.RawBody)
}

func TestNonJSONBodyOn2xxFails(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	})

	resp, err := client.GetStatus(context.Background(), "track-1")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, "not json", resp.RawBody)
}

func TestContextCancellation(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := client.CheckLogin(ctx, "cred-1")
	require.Error(t, err)
}
