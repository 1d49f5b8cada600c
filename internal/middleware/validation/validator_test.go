package validation

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp() *fiber.App {
	app := fiber.New()
	app.Use(Middleware(Config{MaxQueryLength: 100}))
	app.Post("/api/v1/query", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	app.Post("/api/v1/documents", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func postJSON(t *testing.T, app *fiber.App, path, body string) int {
	t.Helper()
	req := httptest.NewRequest("POST", path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestValidQueryPasses(t *testing.T) {
	app := newTestApp()

	code := postJSON(t, app, "/api/v1/query", `{"query": "how deep is safe"}`)

	assert.Equal(t, fiber.StatusOK, code)
}

func TestMissingQueryRejected(t *testing.T) {
	app := newTestApp()

	code := postJSON(t, app, "/api/v1/query", `{"query": "  "}`)

	assert.Equal(t, fiber.StatusBadRequest, code)
}

func TestOversizeQueryRejected(t *testing.T) {
	app := newTestApp()
	long := strings.Repeat("a", 101)

	code := postJSON(t, app, "/api/v1/query", `{"query": "`+long+`"}`)

	assert.Equal(t, fiber.StatusBadRequest, code)
}

func TestInjectionRejected(t *testing.T) {
	app := newTestApp()

	code := postJSON(t, app, "/api/v1/query", `{"query": "<script>alert(1)</script>"}`)

	assert.Equal(t, fiber.StatusBadRequest, code)
}

func TestUnsupportedContentTypeRejected(t *testing.T) {
	app := newTestApp()

	req := httptest.NewRequest("POST", "/api/v1/query", bytes.NewBufferString("query=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusUnsupportedMediaType, resp.StatusCode)
}

func TestDocumentPathTraversalRejected(t *testing.T) {
	app := newTestApp()

	code := postJSON(t, app, "/api/v1/documents", `{"path": "../../etc/passwd"}`)

	assert.Equal(t, fiber.StatusBadRequest, code)
}

func TestDocumentValidPathPasses(t *testing.T) {
	app := newTestApp()

	code := postJSON(t, app, "/api/v1/documents", `{"path": "safety/supervision.md"}`)

	assert.Equal(t, fiber.StatusOK, code)
}
