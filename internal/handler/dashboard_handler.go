package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/ScepterCode/project-nest-api/internal/middleware"
	"github.com/ScepterCode/project-nest-api/internal/service"
	"github.com/ScepterCode/project-nest-api/internal/utils"
)

// DashboardHandler wires the student enrollment dashboard endpoint.
type DashboardHandler struct {
	service service.DashboardService
	logger  zerolog.Logger
}

// NewDashboardHandler constructs the handler.
func NewDashboardHandler(service service.DashboardService, logger zerolog.Logger) *DashboardHandler {
	return &DashboardHandler{
		service: service,
		logger:  logger.With().Str("component", "dashboard_handler").Logger(),
	}
}

// Register attaches dashboard routes to the student router group.
func (h *DashboardHandler) Register(router fiber.Router) {
	router.Get("/:studentId/dashboard", h.get)
}

func (h *DashboardHandler) get(c *fiber.Ctx) error {
	studentID, err := parseUintParam(c, "studentId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid student identifier")
	}

	caller, ok := middleware.CallerFromContext(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	dashboard, err := h.service.GetDashboard(c.UserContext(), caller, studentID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrStudentNotFound):
			return utils.SendError(c, fiber.StatusNotFound, "student not found")
		case errors.Is(err, service.ErrForbidden):
			return utils.SendError(c, fiber.StatusForbidden, "not permitted")
		default:
			requestLogger(h.logger, c).Error().Err(err).Msg("failed to build dashboard")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to build dashboard")
		}
	}

	return utils.SendSuccess(c, "dashboard retrieved", dashboard)
}
