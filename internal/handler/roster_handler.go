package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/ScepterCode/project-nest-api/internal/dto"
	"github.com/ScepterCode/project-nest-api/internal/middleware"
	"github.com/ScepterCode/project-nest-api/internal/service"
	"github.com/ScepterCode/project-nest-api/internal/utils"
)

// RosterHandler wires class roster endpoints.
type RosterHandler struct {
	service service.RosterService
	logger  zerolog.Logger
}

// NewRosterHandler constructs the handler.
func NewRosterHandler(service service.RosterService, logger zerolog.Logger) *RosterHandler {
	return &RosterHandler{
		service: service,
		logger:  logger.With().Str("component", "roster_handler").Logger(),
	}
}

// Register attaches roster routes to the class router group.
func (h *RosterHandler) Register(router fiber.Router) {
	router.Post("/:classId/students", h.add)
	router.Delete("/:classId/students/:studentId", h.remove)
}

func (h *RosterHandler) add(c *fiber.Ctx) error {
	classID, err := parseUintParam(c, "classId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid class identifier")
	}

	var payload dto.RosterAddRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	caller, ok := middleware.CallerFromContext(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	membership, err := h.service.AddStudent(c.UserContext(), caller, classID, payload)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrClassNotFound):
			return utils.SendError(c, fiber.StatusNotFound, "class not found")
		case errors.Is(err, service.ErrAlreadyEnrolled):
			return utils.SendError(c, fiber.StatusConflict, "student is already enrolled")
		case errors.Is(err, service.ErrForbidden):
			return utils.SendError(c, fiber.StatusForbidden, "not permitted")
		case isValidationError(err):
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		default:
			requestLogger(h.logger, c).Error().Err(err).Msg("failed to enroll student")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to enroll student")
		}
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "student enrolled", membership)
}

func (h *RosterHandler) remove(c *fiber.Ctx) error {
	classID, err := parseUintParam(c, "classId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid class identifier")
	}

	studentID, err := parseUintParam(c, "studentId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid student identifier")
	}

	var payload dto.RosterRemoveRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	caller, ok := middleware.CallerFromContext(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	membership, err := h.service.RemoveStudent(c.UserContext(), caller, classID, studentID, payload)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMissingReason):
			return utils.SendError(c, fiber.StatusBadRequest, "removal reason is required")
		case errors.Is(err, service.ErrClassNotFound):
			return utils.SendError(c, fiber.StatusNotFound, "class not found")
		case errors.Is(err, service.ErrNotEnrolled):
			return utils.SendError(c, fiber.StatusNotFound, "student is not enrolled")
		case errors.Is(err, service.ErrForbidden):
			return utils.SendError(c, fiber.StatusForbidden, "not permitted")
		case isValidationError(err):
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		default:
			requestLogger(h.logger, c).Error().Err(err).Msg("failed to remove student")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to remove student")
		}
	}

	return utils.SendSuccess(c, "student removed", membership)
}
