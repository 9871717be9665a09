package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"hostctl_backend/pkg/utils/jwt"
)

func newApp(handlers ...fiber.Handler) *fiber.App {
	app := fiber.New()
	handlers = append(handlers, func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })
	app.Get("/", handlers...)
	return app
}

func request(t *testing.T, app *fiber.App, headers map[string]string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestAuthMiddleware(t *testing.T) {
	jwt.Init("test-secret-0123456789", time.Hour)
	app := newApp(AuthMiddleware())

	assert.Equal(t, fiber.StatusUnauthorized, request(t, app, nil))
	assert.Equal(t, fiber.StatusUnauthorized, request(t, app, map[string]string{"Authorization": "Bearer nope"}))

	token, err := jwt.GenerateToken(1, "owner@example.com", "Acme", false)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, request(t, app, map[string]string{"Authorization": "Bearer " + token}))
}

func TestRequireAdmin(t *testing.T) {
	jwt.Init("test-secret-0123456789", time.Hour)
	app := newApp(AuthMiddleware(), RequireAdmin())

	user, err := jwt.GenerateToken(1, "owner@example.com", "Acme", false)
	require.NoError(t, err)
	admin, err := jwt.GenerateToken(2, "ops@example.com", "Ops", true)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusForbidden, request(t, app, map[string]string{"Authorization": "Bearer " + user}))
	assert.Equal(t, fiber.StatusNoContent, request(t, app, map[string]string{"Authorization": "Bearer " + admin}))
}

func TestAdminToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	app := newApp(AdminToken(string(hash)))

	assert.Equal(t, fiber.StatusUnauthorized, request(t, app, nil))
	assert.Equal(t, fiber.StatusUnauthorized, request(t, app, map[string]string{AdminTokenHeader: "wrong"}))
	assert.Equal(t, fiber.StatusNoContent, request(t, app, map[string]string{AdminTokenHeader: "s3cret"}))
	assert.Equal(t, fiber.StatusNoContent, request(t, app, map[string]string{"Authorization": "Bearer s3cret"}))

	closed := newApp(AdminToken(""))
	assert.Equal(t, fiber.StatusUnauthorized, request(t, closed, map[string]string{AdminTokenHeader: "s3cret"}))
}
