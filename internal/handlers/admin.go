package handlers

import (
	"strings"

	"github.com/bundlehub/backend/internal/middleware"
	"github.com/bundlehub/backend/internal/models"
	"github.com/bundlehub/backend/internal/services"
	"github.com/bundlehub/backend/pkg/logger"
	"github.com/bundlehub/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

// AdminHandler is mounted behind middleware.AdminOnly.
type AdminHandler struct {
	Users   *services.UserService
	Bundles *services.BundleService
	Cleanup *services.CleanupService
}

func NewAdminHandler(users *services.UserService, bundles *services.BundleService, cleanup *services.CleanupService) *AdminHandler {
	return &AdminHandler{Users: users, Bundles: bundles, Cleanup: cleanup}
}

func (h *AdminHandler) ListMainAccounts(c *fiber.Ctx) error {
	page, limit := utils.ParsePagination(c)

	accounts, total, err := h.Users.ListMainAccounts(page, limit)
	if err != nil {
		return serviceError(c, err)
	}
	return utils.Paginated(c, accounts, page, limit, total)
}

type createMainAccountRequest struct {
	Username string  `json:"username"`
	Password string  `json:"password"`
	Email    *string `json:"email"`
}

func (h *AdminHandler) CreateMainAccount(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	var req createMainAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	user, err := h.Users.CreateMainAccountByAdmin(strings.TrimSpace(req.Username), req.Password, req.Email)
	if err != nil {
		return serviceError(c, err)
	}

	logger.InfoWithUser(currentUser.ID.String(), "main_account_created", map[string]interface{}{
		"account_id": user.ID.String(),
		"username":   user.Username,
	})

	return utils.Success(c, fiber.StatusCreated, user)
}

func (h *AdminHandler) ToggleStatus(c *fiber.Ctx) error {
	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	user, err := h.Users.ToggleStatus(userID)
	if err != nil {
		return serviceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, user)
}

func (h *AdminHandler) ToggleStatusWithChildren(c *fiber.Ctx) error {
	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	affected, err := h.Users.ToggleStatusWithChildren(userID)
	if err != nil {
		return serviceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"affected": affected})
}

type promoteRoleRequest struct {
	Role string `json:"role"`
}

func (h *AdminHandler) PromoteRole(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	var req promoteRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	role := models.UserRole(strings.ToUpper(strings.TrimSpace(req.Role)))
	user, err := h.Users.PromoteRole(userID, role)
	if err != nil {
		return serviceError(c, err)
	}

	logger.InfoWithUser(currentUser.ID.String(), "role_changed", map[string]interface{}{
		"account_id": user.ID.String(),
		"role":       string(role),
	})

	return utils.Success(c, fiber.StatusOK, user)
}

func (h *AdminHandler) DeleteUser(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}
	if currentUser != nil && currentUser.ID == userID {
		return utils.Error(c, fiber.StatusBadRequest, "cannot delete your own account")
	}

	if c.QueryBool("cascade", false) {
		deleted, err := h.Users.DeleteUserWithChildren(userID)
		if err != nil {
			return serviceError(c, err)
		}
		return utils.Success(c, fiber.StatusOK, fiber.Map{"deleted": deleted})
	}

	if err := h.Users.DeleteUser(userID); err != nil {
		return serviceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"deleted": 1})
}

// ListUserBundles returns every live bundle a given account owns.
func (h *AdminHandler) ListUserBundles(c *fiber.Ctx) error {
	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	bundles, err := h.Bundles.ListAllByOwner(userID)
	if err != nil {
		return serviceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, bundles)
}

func (h *AdminHandler) CleanupPreview(c *fiber.Ctx) error {
	preview, err := h.Cleanup.Preview()
	if err != nil {
		return serviceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, preview)
}

func (h *AdminHandler) CleanupExecute(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	result, err := h.Cleanup.ExecuteCleanup(currentUser.ID)
	if err != nil {
		return serviceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, result)
}
