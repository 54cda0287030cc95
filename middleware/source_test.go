package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSourceTestApp() *fiber.App {
	app := fiber.New()
	app.Use(SourceContextMiddleware())
	app.Get("/ballot", func(c *fiber.Ctx) error {
		return c.SendString(c.Locals("vote_source").(string))
	})
	return app
}

func TestSourceContextDefaultsToDirect(t *testing.T) {
	app := setupSourceTestApp()

	resp, err := app.Test(httptest.NewRequest("GET", "/ballot", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "direct", string(body))
}

func TestSourceContextReadsQueryAndHeader(t *testing.T) {
	app := setupSourceTestApp()

	resp, err := app.Test(httptest.NewRequest("GET", "/ballot?src=booth-day-1", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "booth-day-1", string(body))

	req := httptest.NewRequest("GET", "/ballot", nil)
	req.Header.Set("X-Vote-Source", "session-qr")
	resp, err = app.Test(req)
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	assert.Equal(t, "session-qr", string(body))

	// Query wins over the header when both are present.
	req = httptest.NewRequest("GET", "/ballot?src=booth-day-1", nil)
	req.Header.Set("X-Vote-Source", "session-qr")
	resp, err = app.Test(req)
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	assert.Equal(t, "booth-day-1", string(body))
}
