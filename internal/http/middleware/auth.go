package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"docgov/internal/auth"
)

// IdentityLocalKey is the Fiber locals key holding the caller's auth.Identity.
const IdentityLocalKey = "identity"

// Auth requires a valid "Authorization: Bearer <jwt>" header and stores the
// caller's identity in locals. Failures end the request with 401.
func Auth(a *auth.Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}

		id, err := a.Parse(strings.TrimSpace(token))
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid bearer token")
		}

		c.Locals(IdentityLocalKey, id)
		return c.Next()
	}
}

// IdentityFrom returns the identity stored by Auth.
func IdentityFrom(c *fiber.Ctx) (auth.Identity, bool) {
	id, ok := c.Locals(IdentityLocalKey).(auth.Identity)
	return id, ok
}
