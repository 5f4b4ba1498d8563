package middleware

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitstack/mindbridge/internal/pkg/webhook"
)

func signatureTestApp(cfg webhook.Config) *fiber.App {
	app := fiber.New()
	app.Post("/hook", SignatureMiddleware(cfg), func(c *fiber.Ctx) error {
		sig, _ := c.Locals(VerifiedSignatureKey).(string)
		return c.SendString("verified:" + sig)
	})
	return app
}

func TestSignatureMiddlewareAccepts(t *testing.T) {
	cfg := webhook.Config{Secret: "abc123", SignatureRequired: true}
	app := signatureTestApp(cfg)

	body := `{"x":1}`
	sig := webhook.ComputeSignature(cfg.Secret, []byte(body))

	req := httptest.NewRequest("POST", "/hook", strings.NewReader(body))
	req.Header.Set("X-Mindbody-Signature", sig)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	out, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "verified:"+sig, string(out), "verified signature must reach the handler via Locals")
}

func TestSignatureMiddlewareHeaderPrecedence(t *testing.T) {
	cfg := webhook.Config{Secret: "abc123", SignatureRequired: true}
	app := signatureTestApp(cfg)

	body := `{"x":1}`
	sig := webhook.ComputeSignature(cfg.Secret, []byte(body))

	// The primary header wins; a bogus value in a lower-priority candidate
	// is never consulted.
	req := httptest.NewRequest("POST", "/hook", strings.NewReader(body))
	req.Header.Set("X-Mindbody-Signature", sig)
	req.Header.Set("X-Signature", "sha256=bogus")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	// A fallback candidate alone also works.
	req = httptest.NewRequest("POST", "/hook", strings.NewReader(body))
	req.Header.Set("Signature", sig)

	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestSignatureMiddlewareRejects(t *testing.T) {
	cfg := webhook.Config{Secret: "abc123", SignatureRequired: true}
	app := signatureTestApp(cfg)

	body := `{"x":1}`
	sig := webhook.ComputeSignature(cfg.Secret, []byte(body))

	tests := []struct {
		name   string
		body   string
		header string
		value  string
	}{
		{"missing signature", body, "", ""},
		{"wrong signature", body, "X-Mindbody-Signature", "sha256=0000000000000000000000000000000000000000000000000000000000000000"},
		{"tampered body", `{"x":2}`, "X-Mindbody-Signature", sig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/hook", strings.NewReader(tt.body))
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

			// Every failure mode returns the same generic body.
			out, _ := io.ReadAll(resp.Body)
			assert.Contains(t, string(out), "webhook validation failed")
		})
	}
}

func TestSignatureMiddlewareSkippedWhenNotRequired(t *testing.T) {
	cfg := webhook.Config{Secret: "abc123", SignatureRequired: false}
	app := signatureTestApp(cfg)

	req := httptest.NewRequest("POST", "/hook", strings.NewReader(`{"x":1}`))
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
