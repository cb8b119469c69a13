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

// AssignmentHandler wires teacher-assignment and role-change endpoints.
type AssignmentHandler struct {
	service service.AssignmentService
	logger  zerolog.Logger
}

// NewAssignmentHandler constructs the handler.
func NewAssignmentHandler(service service.AssignmentService, logger zerolog.Logger) *AssignmentHandler {
	return &AssignmentHandler{
		service: service,
		logger:  logger.With().Str("component", "assignment_handler").Logger(),
	}
}

// RegisterDepartments attaches teacher unassignment to the department group.
func (h *AssignmentHandler) RegisterDepartments(router fiber.Router) {
	router.Delete("/:departmentId/teachers/:teacherId", h.unassign)
}

// RegisterRoles attaches bulk role assignment to the roles group.
func (h *AssignmentHandler) RegisterRoles(router fiber.Router) {
	router.Post("/bulk", h.bulk)
}

func (h *AssignmentHandler) unassign(c *fiber.Ctx) error {
	departmentID, err := parseUintParam(c, "departmentId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid department identifier")
	}

	teacherID, err := parseUintParam(c, "teacherId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid teacher identifier")
	}

	caller, ok := middleware.CallerFromContext(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	if err := h.service.UnassignTeacher(c.UserContext(), caller, departmentID, teacherID); err != nil {
		switch {
		case errors.Is(err, service.ErrAssignmentNotFound):
			return utils.SendError(c, fiber.StatusNotFound, "assignment not found")
		case errors.Is(err, service.ErrCrossTenant):
			return utils.SendError(c, fiber.StatusForbidden, "target belongs to another institution")
		case errors.Is(err, service.ErrForbidden):
			return utils.SendError(c, fiber.StatusForbidden, "not permitted")
		default:
			requestLogger(h.logger, c).Error().Err(err).Msg("failed to unassign teacher")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to unassign teacher")
		}
	}

	return utils.SendSuccess(c, "teacher unassigned", fiber.Map{
		"department_id": departmentID,
		"teacher_id":    teacherID,
	})
}

func (h *AssignmentHandler) bulk(c *fiber.Ctx) error {
	var payload dto.RoleChangeBatchRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	caller, ok := middleware.CallerFromContext(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	response, err := h.service.ApplyBatch(c.UserContext(), caller, payload)
	if err != nil {
		if isValidationError(err) {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to process role batch")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to process role batch")
	}

	// Per-entry outcomes are in the body; the batch call itself succeeded.
	return utils.SendSuccess(c, "role batch processed", response)
}
