package handlers

import (
	"strings"

	"github.com/bundlehub/backend/internal/services"
	"github.com/bundlehub/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(value))
}

// serviceError translates a service error kind into the matching HTTP
// status. Unknown errors are masked as a generic 500.
func serviceError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	message := "internal error"

	switch services.KindOf(err) {
	case services.KindValidation:
		status = fiber.StatusBadRequest
		message = err.Error()
	case services.KindNotFound:
		status = fiber.StatusNotFound
		message = err.Error()
	case services.KindPermissionDenied:
		status = fiber.StatusForbidden
		message = err.Error()
	case services.KindConflict:
		status = fiber.StatusConflict
		message = err.Error()
	case services.KindState:
		status = fiber.StatusUnprocessableEntity
		message = err.Error()
	}

	return utils.Error(c, status, message)
}
