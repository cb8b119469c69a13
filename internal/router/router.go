package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ScepterCode/project-nest-api/internal/authz"
	"github.com/ScepterCode/project-nest-api/internal/config"
	"github.com/ScepterCode/project-nest-api/internal/handler"
	"github.com/ScepterCode/project-nest-api/internal/middleware"
	"github.com/ScepterCode/project-nest-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	RosterHandler     *handler.RosterHandler
	AssignmentHandler *handler.AssignmentHandler
	DashboardHandler  *handler.DashboardHandler
	AuditHandler      *handler.AuditHandler
	JWTMiddleware     fiber.Handler
	CallerMiddleware  fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}
	callerMiddleware := deps.CallerMiddleware
	if callerMiddleware == nil {
		callerMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	protected := api.Group("", jwtMiddleware, callerMiddleware)

	if deps.RosterHandler != nil {
		classes := protected.Group("/classes")
		deps.RosterHandler.Register(classes)
	}

	if deps.AssignmentHandler != nil {
		departments := protected.Group("/departments")
		deps.AssignmentHandler.RegisterDepartments(departments)

		roles := protected.Group("/roles", middleware.RequireMinRole(authz.RoleDepartmentAdmin))
		deps.AssignmentHandler.RegisterRoles(roles)
	}

	if deps.DashboardHandler != nil {
		students := protected.Group("/students")
		deps.DashboardHandler.Register(students)
	}

	// Audit history is reserved for institution admins and above.
	if deps.AuditHandler != nil {
		audit := protected.Group("/audit", middleware.RequireMinRole(authz.RoleInstitutionAdmin))
		deps.AuditHandler.Register(audit)
	}
}
