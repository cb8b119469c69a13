package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/ScepterCode/project-nest-api/internal/authz"
	"github.com/ScepterCode/project-nest-api/internal/utils"
)

const callerLocal = "caller_context"

// WithCaller resolves the authenticated subject into a CallerContext on every
// request and stores it for downstream handlers. Resolution is never cached
// across requests: a role change takes effect on the next call.
func WithCaller(resolver *authz.Resolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(uint)

		caller, err := resolver.Resolve(c.UserContext(), userID)
		if err != nil {
			if errors.Is(err, authz.ErrUnauthenticated) {
				return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
			}
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to resolve caller")
		}

		c.Locals(callerLocal, caller)
		return c.Next()
	}
}

// CallerFromContext returns the resolved caller context for the request.
func CallerFromContext(c *fiber.Ctx) (authz.CallerContext, bool) {
	caller, ok := c.Locals(callerLocal).(authz.CallerContext)
	return caller, ok
}

// RequireMinRole ensures the resolved caller ranks at or above the given role.
func RequireMinRole(min authz.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, ok := CallerFromContext(c)
		if !ok {
			return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
		}
		if !caller.Principal.Role.AtLeast(min) {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		return c.Next()
	}
}
