package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupAdminTestApp(t *testing.T) *fiber.App {
	t.Helper()
	t.Setenv("ADMIN_API_TOKEN", "test-admin-token")

	app := fiber.New()
	app.Use(AdminAuthMiddleware())
	app.Get("/admin-only", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"message": "ok"})
	})
	return app
}

func TestAdminAuthAcceptsBearerToken(t *testing.T) {
	app := setupAdminTestApp(t)

	req := httptest.NewRequest("GET", "/admin-only", nil)
	req.Header.Set("Authorization", "Bearer test-admin-token")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdminAuthAcceptsRawToken(t *testing.T) {
	app := setupAdminTestApp(t)

	req := httptest.NewRequest("GET", "/admin-only", nil)
	req.Header.Set("Authorization", "test-admin-token")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdminAuthRejectsMissingOrWrongToken(t *testing.T) {
	app := setupAdminTestApp(t)

	req := httptest.NewRequest("GET", "/admin-only", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest("GET", "/admin-only", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
