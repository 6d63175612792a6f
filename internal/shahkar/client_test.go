package shahkar

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"userapi/internal/platform/cache"
	"userapi/internal/platform/config"
)

func newTestClient(t *testing.T, cfg config.ShahkarConfig) (*Client, *cache.Memory) {
	t.Helper()
	mem := cache.NewMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := NewClient(cfg, mem, logger)
	client.now = func() time.Time {
		return time.Date(2024, 3, 15, 10, 30, 0, 123456000, time.UTC)
	}
	return client, mem
}

func TestClient_MockMode(t *testing.T) {
	client, _ := newTestClient(t, config.ShahkarConfig{Mock: true})

	result := client.Match(context.Background(), "0013542419", "09121234567")
	assert.True(t, result.Verified)
	assert.Empty(t, result.Detail)

	var stored response
	require.NoError(t, json.Unmarshal([]byte(result.Response), &stored))
	assert.Equal(t, http.StatusOK, stored.StatusCode)
}

func TestClient_RequestID(t *testing.T) {
	client, _ := newTestClient(t, config.ShahkarConfig{ProviderCode: "77"})
	assert.Equal(t, "7720240315103000123456", client.requestID())
}

func TestClient_Match(t *testing.T) {
	var tokenCalls, matchCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "password", r.FormValue("grant_type"))
		assert.Equal(t, "Basic auth-code", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(tokenResponse{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			ExpiresIn:    3600,
		})
	})
	mux.HandleFunc("POST "+matchingPath, func(w http.ResponseWriter, r *http.Request) {
		matchCalls.Add(1)
		assert.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))
		assert.Equal(t, "the-pid", r.Header.Get("pid"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "09121234567", body["serviceNumber"])
		assert.Equal(t, "0013542419", body["identificationNo"])
		assert.NotEmpty(t, body["requestId"])

		json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{"data": map[string]any{"result": 200}}})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, _ := newTestClient(t, config.ShahkarConfig{
		BaseURL:      server.URL,
		Username:     "svc-user",
		Password:     "svc-pass",
		PID:          "the-pid",
		ProviderCode: "77",
		AuthCode:     "auth-code",
	})

	result := client.Match(context.Background(), "0013542419", "09121234567")
	assert.True(t, result.Verified)
	assert.NotEmpty(t, result.Response)

	// Second match reuses the cached token.
	result = client.Match(context.Background(), "0013542419", "09121234567")
	assert.True(t, result.Verified)
	assert.Equal(t, int32(1), tokenCalls.Load())
	assert.Equal(t, int32(2), matchCalls.Load())
}

func TestClient_MatchRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(tokenResponse{AccessToken: "access-1", ExpiresIn: 3600})
	})
	mux.HandleFunc("POST "+matchingPath, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"detail": "no match for this pair"})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, _ := newTestClient(t, config.ShahkarConfig{BaseURL: server.URL})

	result := client.Match(context.Background(), "0013542419", "09121234567")
	assert.False(t, result.Verified)
	assert.Equal(t, "no match for this pair", result.Detail)

	var stored response
	require.NoError(t, json.Unmarshal([]byte(result.Response), &stored))
	assert.Equal(t, http.StatusBadRequest, stored.StatusCode)
}

func TestClient_UpstreamDown(t *testing.T) {
	client, _ := newTestClient(t, config.ShahkarConfig{BaseURL: "http://127.0.0.1:1"})

	result := client.Match(context.Background(), "0013542419", "09121234567")
	assert.False(t, result.Verified)
	assert.NotEmpty(t, result.Detail)

	var stored response
	require.NoError(t, json.Unmarshal([]byte(result.Response), &stored))
	assert.Equal(t, http.StatusInternalServerError, stored.StatusCode)
}

func TestClient_RefreshGrant(t *testing.T) {
	var grants []string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		grants = append(grants, r.FormValue("grant_type"))
		json.NewEncoder(w).Encode(tokenResponse{AccessToken: "access-2", ExpiresIn: 3600})
	})
	mux.HandleFunc("POST "+matchingPath, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"detail": "ok"})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, mem := newTestClient(t, config.ShahkarConfig{BaseURL: server.URL})
	require.NoError(t, mem.Set(context.Background(), refreshTokenKey, "refresh-1", time.Hour))

	result := client.Match(context.Background(), "0013542419", "09121234567")
	assert.True(t, result.Verified)
	assert.Equal(t, []string{"refresh_token"}, grants)
}
