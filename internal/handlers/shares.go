package handlers

import (
	"strings"

	"github.com/bundlehub/backend/internal/middleware"
	"github.com/bundlehub/backend/internal/services"
	"github.com/bundlehub/backend/pkg/logger"
	"github.com/bundlehub/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type SharesHandler struct {
	Shares *services.ShareService
}

func NewSharesHandler(shares *services.ShareService) *SharesHandler {
	return &SharesHandler{Shares: shares}
}

func (h *SharesHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	bundleID, err := parseUUID(c.Params("bundleID"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid bundle id")
	}

	share, err := h.Shares.CreateShare(bundleID, currentUser.ID)
	if err != nil {
		return serviceError(c, err)
	}

	logger.InfoWithUser(currentUser.ID.String(), "share_created", map[string]interface{}{
		"share_id":  share.ID.String(),
		"bundle_id": bundleID.String(),
	})

	return utils.Success(c, fiber.StatusCreated, share)
}

func (h *SharesHandler) ListForBundle(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	bundleID, err := parseUUID(c.Params("bundleID"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid bundle id")
	}

	shares, err := h.Shares.ListSharesWithUserCount(bundleID, currentUser.ID)
	if err != nil {
		return serviceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, shares)
}

type redeemRequest struct {
	Token string `json:"token"`
}

// Redeem imports the shared bundle into the caller's list by token.
func (h *SharesHandler) Redeem(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req redeemRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	token := strings.TrimSpace(req.Token)
	if token == "" {
		return utils.Error(c, fiber.StatusBadRequest, "token is required")
	}

	if err := h.Shares.RedeemImport(token, currentUser.ID); err != nil {
		return serviceError(c, err)
	}

	logger.InfoWithUser(currentUser.ID.String(), "share_redeemed", nil)
	return utils.Success(c, fiber.StatusOK, fiber.Map{"imported": true})
}

func (h *SharesHandler) Revoke(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	shareID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid share id")
	}

	if err := h.Shares.RevokeShare(shareID, currentUser.ID); err != nil {
		return serviceError(c, err)
	}

	logger.InfoWithUser(currentUser.ID.String(), "share_revoked", map[string]interface{}{
		"share_id": shareID.String(),
	})
	return utils.Success(c, fiber.StatusOK, fiber.Map{"revoked": true})
}

func (h *SharesHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	shareID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid share id")
	}

	if err := h.Shares.DeleteShare(shareID, currentUser.ID); err != nil {
		return serviceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"deleted": true})
}

func (h *SharesHandler) Users(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	shareID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid share id")
	}

	users, err := h.Shares.ShareUsers(shareID, currentUser.ID)
	if err != nil {
		return serviceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, users)
}

func (h *SharesHandler) RemoveUser(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	shareID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid share id")
	}
	userID, err := parseUUID(c.Params("userID"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	if err := h.Shares.RemoveShareUser(shareID, userID, currentUser.ID); err != nil {
		return serviceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"removed": true})
}
