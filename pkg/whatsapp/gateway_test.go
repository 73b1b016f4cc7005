package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LojaZap/pkg/errors"
)

var testCreds = Credentials{SiteSlug: "loja-centro", CustomerID: "cust-1"}

func TestSendTextSuccess(t *testing.T) {
	var captured sendRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/send", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		json.NewEncoder(w).Encode(sendResult{Success: true, MessageID: "wamid.123"})
	}))
	defer server.Close()

	client := NewGatewayClient(server.URL, "secret", time.Second)
	resp, err := client.SendText(context.Background(), testCreds, "5511987654321", "Oi Maria")
	require.NoError(t, err)

	assert.Equal(t, "wamid.123", resp.MessageID)
	assert.Equal(t, "loja-centro", captured.SiteSlug)
	assert.Equal(t, "cust-1", captured.CustomerID)
	assert.Equal(t, "5511987654321", captured.Phone)
	assert.Equal(t, "Oi Maria", captured.Message)
}

func TestSendTextClientErrorIsNonRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(sendResult{Code: "INVALID_PHONE", Error: "phone malformed"})
	}))
	defer server.Close()

	client := NewGatewayClient(server.URL, "", time.Second)
	_, err := client.SendText(context.Background(), testCreds, "abc", "Oi")
	require.Error(t, err)
	assert.True(t, errors.IsNonRetryable(err))
}

func TestSendTextServerErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewGatewayClient(server.URL, "", time.Second)
	_, err := client.SendText(context.Background(), testCreds, "5511987654321", "Oi")
	require.Error(t, err)
	assert.False(t, errors.IsNonRetryable(err))
	assert.False(t, errors.IsSkip(err))
}

func TestSendTextRateLimitIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewGatewayClient(server.URL, "", time.Second)
	_, err := client.SendText(context.Background(), testCreds, "5511987654321", "Oi")
	require.Error(t, err)
	assert.False(t, errors.IsNonRetryable(err), "429 must stay retryable")
}

func TestSendTextGatewayBusinessFailure(t *testing.T) {
	tests := []struct {
		code         string
		nonRetryable bool
	}{
		{"SESSION_NOT_FOUND", true},
		{"INVALID_CREDENTIALS", true},
		{"NUMBER_NOT_ON_WHATSAPP", true},
		{"TENANT_BLOCKED", true},
		{"TEMPORARY_FAILURE", false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(sendResult{Success: false, Code: tt.code, Error: "nope"})
			}))
			defer server.Close()

			client := NewGatewayClient(server.URL, "", time.Second)
			_, err := client.SendText(context.Background(), testCreds, "5511987654321", "Oi")
			require.Error(t, err)
			assert.Equal(t, tt.nonRetryable, errors.IsNonRetryable(err))
		})
	}
}

func TestSendTextTimeoutIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := NewGatewayClient(server.URL, "", 50*time.Millisecond)
	_, err := client.SendText(context.Background(), testCreds, "5511987654321", "Oi")
	require.Error(t, err)
	assert.False(t, errors.IsNonRetryable(err))
}
