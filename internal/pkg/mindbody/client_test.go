package mindbody

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(server *httptest.Server) *Client {
	return &Client{
		APIBaseURL:     server.URL,
		WebhookBaseURL: server.URL,
		APIKey:         "test-api-key",
		SiteID:         "-99",
		HTTPClient:     server.Client(),
	}
}

func TestIssueToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/usertoken/issue", r.URL.Path)
		require.Equal(t, "test-api-key", r.Header.Get("Api-Key"))
		require.Equal(t, "-99", r.Header.Get("SiteId"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "owner", body["Username"])

		json.NewEncoder(w).Encode(map[string]any{
			"AccessToken": "tok-abc",
			"ExpiresIn":   3600,
		})
	}))
	defer server.Close()

	resp, err := testClient(server).IssueToken(context.Background(), "owner", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-abc", resp.AccessToken)
	assert.Equal(t, 3600, resp.ExpiresIn)
	assert.Equal(t, "Bearer", resp.TokenType, "missing TokenType defaults to Bearer")
}

func TestIssueTokenUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := testClient(server).IssueToken(context.Background(), "owner", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestIssueTokenEmptyAccessToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"AccessToken": "  ", "ExpiresIn": 3600})
	}))
	defer server.Close()

	_, err := testClient(server).IssueToken(context.Background(), "owner", "secret")
	assert.ErrorIs(t, err, ErrMissingAccessToken)
}

func TestIssueTokenRequiresAPIKeyAndSite(t *testing.T) {
	c := &Client{HTTPClient: http.DefaultClient}
	_, err := c.IssueToken(context.Background(), "owner", "secret")
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	c.APIKey = "test-api-key"
	_, err = c.IssueToken(context.Background(), "owner", "secret")
	assert.ErrorIs(t, err, ErrMissingSiteID)
}

func TestIssueTokenForbidden(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	_, err := testClient(server).IssueToken(context.Background(), "owner", "secret")
	assert.ErrorIs(t, err, ErrInsufficientPermissions)
}

func TestDoRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"AccessToken": "tok-after-retry", "TokenType": "Bearer", "ExpiresIn": 3600})
	}))
	defer server.Close()

	resp, err := testClient(server).IssueToken(context.Background(), "owner", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-after-retry", resp.AccessToken)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDoDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	_, err := testClient(server).ListSubscriptions(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.True(t, apiErr.IsClientError())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "4xx must not be retried")
}

func TestDoRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "42")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := testClient(server).ListSubscriptions(context.Background())
	var rateErr *RateLimitError
	require.ErrorAs(t, err, &rateErr)
	assert.Equal(t, 42, rateErr.RetryAfterSeconds)
}

func TestListSubscriptions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/subscriptions", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"Subscriptions": []map[string]any{
				{"SubscriptionId": "sub-1", "EventType": "client.created", "WebhookUrl": "https://hooks.test/a", "Active": true},
				{"SubscriptionId": "sub-2", "EventType": "sale.created", "WebhookUrl": "https://hooks.test/b", "Active": false},
			},
		})
	}))
	defer server.Close()

	subs, err := testClient(server).ListSubscriptions(context.Background())
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "sub-1", subs[0].ID)
	assert.Equal(t, "client.created", subs[0].EventType)
	assert.Equal(t, "https://hooks.test/a", subs[0].URL)
	assert.False(t, subs[1].Active)
}

func TestCreateSubscription(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "client.created", body["EventType"])

		json.NewEncoder(w).Encode(map[string]any{
			"SubscriptionId": "sub-9",
			"EventType":      body["EventType"],
			"WebhookUrl":     body["WebhookUrl"],
			"Active":         true,
		})
	}))
	defer server.Close()

	sub, err := testClient(server).CreateSubscription(context.Background(), "client.created", "https://hooks.test/a")
	require.NoError(t, err)
	assert.Equal(t, "sub-9", sub.ID)
	assert.Equal(t, "https://hooks.test/a", sub.URL)
}

func TestDeleteSubscriptionRequiresID(t *testing.T) {
	c := &Client{HTTPClient: http.DefaultClient}
	err := c.DeleteSubscription(context.Background(), "   ")
	assert.Error(t, err)
}

func TestRevokeTokenSendsBearerHeader(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer server.Close()

	require.NoError(t, testClient(server).RevokeToken(context.Background(), "tok-abc"))
	assert.Equal(t, "Bearer tok-abc", gotAuth)
}

func TestPing(t *testing.T) {
	var gotSig string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Mindbody-Signature")
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer server.Close()

	c := testClient(server)
	err := c.Ping(context.Background(), server.URL, []byte(`{"test":true}`), "X-Mindbody-Signature", "sha256=deadbeef")
	require.NoError(t, err)
	assert.Equal(t, "sha256=deadbeef", gotSig)
	assert.Equal(t, `{"test":true}`, string(gotBody))
}

func TestPingFailureStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	err := testClient(server).Ping(context.Background(), server.URL, []byte(`{}`), "X-Mindbody-Signature", "")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}
