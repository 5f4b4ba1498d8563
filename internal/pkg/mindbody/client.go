package mindbody

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fitstack/mindbridge/internal/pkg/env"
)

const (
	defaultAPIBaseURL     = "https://api.mindbodyonline.com/public/v6"
	defaultWebhookBaseURL = "https://mb-api.mindbodyonline.com/push/api/v1"

	// Server errors and network failures are retried; client errors are not.
	maxAttempts = 3
)

type Client struct {
	APIBaseURL     string
	WebhookBaseURL string
	APIKey         string
	SiteID         string

	HTTPClient *http.Client
}

// TokenResponse is the body of a successful usertoken/issue call.
type TokenResponse struct {
	AccessToken string `json:"AccessToken"`
	TokenType   string `json:"TokenType"`
	ExpiresIn   int    `json:"ExpiresIn"`
}

// Subscription is a provider-side webhook subscription record.
type Subscription struct {
	ID        string `json:"SubscriptionId"`
	EventType string `json:"EventType"`
	URL       string `json:"WebhookUrl"`
	Active    bool   `json:"Active"`
	CreatedAt string `json:"CreatedAt,omitempty"`
	UpdatedAt string `json:"UpdatedAt,omitempty"`
}

// NewClientFromEnv builds a client from MINDBODY_* settings with the
// configured connect and total request timeouts.
func NewClientFromEnv() *Client {
	connectTimeout := time.Duration(env.GetEnvInt("HTTP_CONNECT_TIMEOUT", 10)) * time.Second
	requestTimeout := time.Duration(env.GetEnvInt("HTTP_REQUEST_TIMEOUT", 30)) * time.Second

	return &Client{
		APIBaseURL:     strings.TrimRight(env.GetEnv("MINDBODY_API_BASE_URL", defaultAPIBaseURL), "/"),
		WebhookBaseURL: strings.TrimRight(env.GetEnv("MINDBODY_WEBHOOK_BASE_URL", defaultWebhookBaseURL), "/"),
		APIKey:         strings.TrimSpace(env.GetEnv("MINDBODY_API_KEY", "")),
		SiteID:         strings.TrimSpace(env.GetEnv("MINDBODY_SITE_ID", "")),
		HTTPClient: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: connectTimeout,
				}).DialContext,
			},
		},
	}
}

// IssueToken obtains a bearer token for the given principal. A 401 from
// the issuer maps to ErrInvalidCredentials rather than a generic APIError.
func (c *Client) IssueToken(ctx context.Context, username, password string) (*TokenResponse, error) {
	if c.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if c.SiteID == "" {
		return nil, ErrMissingSiteID
	}

	payload := map[string]string{
		"Username": username,
		"Password": password,
	}

	body, err := c.do(ctx, http.MethodPost, c.APIBaseURL+"/usertoken/issue", payload, nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			switch apiErr.StatusCode {
			case http.StatusUnauthorized:
				return nil, ErrInvalidCredentials
			case http.StatusForbidden:
				return nil, ErrInsufficientPermissions
			}
		}
		return nil, err
	}

	var out TokenResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("mindbody: decoding token response: %w", err)
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return nil, ErrMissingAccessToken
	}
	if out.TokenType == "" {
		out.TokenType = "Bearer"
	}
	return &out, nil
}

// RevokeToken invalidates a bearer token upstream.
func (c *Client) RevokeToken(ctx context.Context, accessToken string) error {
	token := strings.TrimSpace(accessToken)
	if token == "" {
		return errors.New("mindbody: access token is required")
	}
	extra := map[string]string{"Authorization": "Bearer " + token}
	_, err := c.do(ctx, http.MethodPost, c.APIBaseURL+"/usertoken/revoke", nil, extra)
	return err
}

// ListSubscriptions fetches the provider's current webhook subscriptions.
func (c *Client) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	body, err := c.do(ctx, http.MethodGet, c.WebhookBaseURL+"/subscriptions", nil, nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Subscriptions []Subscription `json:"Subscriptions"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("mindbody: decoding subscription list: %w", err)
	}
	return out.Subscriptions, nil
}

// CreateSubscription registers a webhook subscription for one event type.
func (c *Client) CreateSubscription(ctx context.Context, eventType, webhookURL string) (*Subscription, error) {
	payload := map[string]string{
		"EventType":  eventType,
		"WebhookUrl": webhookURL,
	}

	body, err := c.do(ctx, http.MethodPost, c.WebhookBaseURL+"/subscriptions", payload, nil)
	if err != nil {
		return nil, err
	}

	var out Subscription
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("mindbody: decoding subscription response: %w", err)
	}
	return &out, nil
}

// DeleteSubscription removes a subscription by its provider id.
func (c *Client) DeleteSubscription(ctx context.Context, subscriptionID string) error {
	id := strings.TrimSpace(subscriptionID)
	if id == "" {
		return errors.New("mindbody: subscription id is required")
	}
	_, err := c.do(ctx, http.MethodDelete, c.WebhookBaseURL+"/subscriptions/"+id, nil, nil)
	return err
}

// Ping delivers a synthetic signed payload to the given webhook URL to
// verify end-to-end reachability before subscribing.
func (c *Client) Ping(ctx context.Context, webhookURL string, signedBody []byte, signatureHeader, signature string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(signedBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(signatureHeader, signature)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return nil
}

// do issues one API request with base headers, retrying server errors and
// network failures up to maxAttempts.
func (c *Client) do(ctx context.Context, method, rawURL string, payload any, extraHeaders map[string]string) ([]byte, error) {
	var encoded []byte
	if payload != nil {
		var err error
		encoded, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt-1) * time.Second):
			}
		}

		var reqBody io.Reader
		if encoded != nil {
			reqBody = bytes.NewReader(encoded)
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Api-Key", c.APIKey)
		if c.SiteID != "" {
			req.Header.Set("SiteId", c.SiteID)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		for k, v := range extraHeaders {
			req.Header.Set(k, v)
		}

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return body, nil
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			retryAfter, _ := strconv.Atoi(strings.TrimSpace(resp.Header.Get("Retry-After")))
			return nil, &RateLimitError{
				APIError:          APIError{StatusCode: resp.StatusCode, Body: string(body)},
				RetryAfterSeconds: retryAfter,
			}
		}

		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(body)}
		if apiErr.IsClientError() {
			return nil, apiErr
		}
		lastErr = apiErr
	}

	return nil, lastErr
}
