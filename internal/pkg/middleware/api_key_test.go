package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitstack/mindbridge/internal/pkg/env"
)

func adminTestApp() *fiber.App {
	app := fiber.New()
	app.Get("/admin", AdminAPIKeyMiddleware(), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func TestAdminAPIKeyMiddleware(t *testing.T) {
	orig := env.Env
	t.Cleanup(func() { env.Env = orig })
	env.Env = map[string]string{"ADMIN_API_KEY": "super-secret"}

	app := adminTestApp()

	tests := []struct {
		name   string
		header string
		value  string
		status int
	}{
		{"valid X-API-Key", "X-API-Key", "super-secret", fiber.StatusOK},
		{"valid bearer token", "Authorization", "Bearer super-secret", fiber.StatusOK},
		{"wrong key", "X-API-Key", "nope", fiber.StatusUnauthorized},
		{"missing key", "", "", fiber.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/admin", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestAdminAPIKeyMiddlewareUnconfigured(t *testing.T) {
	orig := env.Env
	t.Cleanup(func() { env.Env = orig })
	env.Env = map[string]string{}

	app := adminTestApp()

	// Even a correct-looking key is refused when no key is configured.
	req := httptest.NewRequest("GET", "/admin", nil)
	req.Header.Set("X-API-Key", "anything")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}
