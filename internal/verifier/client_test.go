package verifier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newLocalClient() *Client {
	return NewClient("", "", 10*time.Second, zap.NewNop())
}

func TestVerifyLocalValidEmail(t *testing.T) {
	client := newLocalClient()

	result, raw, err := client.Verify(context.Background(), "user@example.com")

	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.True(t, result.Format)
	assert.False(t, result.IsDisposable)
	assert.Equal(t, scoreValid, result.QualityScore)
	assert.NotEmpty(t, raw)
}

func TestVerifyLocalInvalidFormat(t *testing.T) {
	client := newLocalClient()

	tests := []string{
		"not-an-email",
		"@example.com",
		"user@",
		"user@domain",
		"user example@example.com",
		"",
	}

	for _, email := range tests {
		t.Run(email, func(t *testing.T) {
			result, _, err := client.Verify(context.Background(), email)

			require.NoError(t, err)
			assert.False(t, result.IsValid)
			assert.False(t, result.Format)
			assert.Equal(t, scoreInvalid, result.QualityScore)
			assert.Equal(t, "invalid_format", result.Reason)
		})
	}
}

func TestVerifyLocalDisposableDomain(t *testing.T) {
	client := newLocalClient()

	result, _, err := client.Verify(context.Background(), "someone@mailinator.com")

	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.True(t, result.IsDisposable)
	assert.True(t, result.Format)
	assert.Equal(t, scoreDisposable, result.QualityScore)
	assert.Equal(t, "disposable_domain", result.Reason)
}

func TestVerifyNormalizesEmail(t *testing.T) {
	client := newLocalClient()

	result, _, err := client.Verify(context.Background(), "  User@Example.COM  ")

	require.NoError(t, err)
	assert.Equal(t, "user@example.com", result.Email)
	assert.True(t, result.IsValid)
}

func TestVerifyRemote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/verify", r.URL.Path)
		assert.Equal(t, "user@example.com", r.URL.Query().Get("email"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"email": "user@example.com",
			"result": "deliverable",
			"score": 92,
			"disposable": false,
			"catchall": true,
			"format": true,
			"mx": true,
			"smtp": true
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", 10*time.Second, zap.NewNop())

	result, raw, err := client.Verify(context.Background(), "user@example.com")

	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.True(t, result.IsCatchall)
	assert.True(t, result.MX)
	assert.True(t, result.SMTP)
	assert.Equal(t, 92, result.QualityScore)
	assert.Contains(t, string(raw), "deliverable")
}

func TestVerifyRemoteUndeliverable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"email": "ghost@example.com",
			"result": "undeliverable",
			"score": 5,
			"format": true,
			"mx": false,
			"smtp": false,
			"reason": "mailbox_not_found"
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", 10*time.Second, zap.NewNop())

	result, _, err := client.Verify(context.Background(), "ghost@example.com")

	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Equal(t, 5, result.QualityScore)
	assert.Equal(t, "mailbox_not_found", result.Reason)
}

func TestVerifyRemoteAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": "rate limit exceeded"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", 10*time.Second, zap.NewNop())

	_, _, err := client.Verify(context.Background(), "user@example.com")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestVerifyRemoteServerUnavailable(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "test-key", time.Second, zap.NewNop())

	_, _, err := client.Verify(context.Background(), "user@example.com")

	require.Error(t, err)
}

func TestHealthCheck(t *testing.T) {
	t.Run("локальный режим всегда здоров", func(t *testing.T) {
		client := newLocalClient()
		assert.NoError(t, client.HealthCheck(context.Background()))
	})

	t.Run("внешний API доступен", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/health", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := NewClient(server.URL, "test-key", 10*time.Second, zap.NewNop())
		assert.NoError(t, client.HealthCheck(context.Background()))
	})

	t.Run("внешний API недоступен", func(t *testing.T) {
		client := NewClient("http://127.0.0.1:1", "test-key", time.Second, zap.NewNop())
		assert.Error(t, client.HealthCheck(context.Background()))
	})
}

func TestIsValidEmailFormat(t *testing.T) {
	assert.True(t, IsValidEmailFormat("user@example.com"))
	assert.True(t, IsValidEmailFormat("first.last+tag@sub.example.org"))
	assert.False(t, IsValidEmailFormat("user@@example.com"))
	assert.False(t, IsValidEmailFormat("plain text"))
}
