package handlers

import (
	"strings"

	"github.com/bundlehub/backend/internal/middleware"
	"github.com/bundlehub/backend/internal/services"
	"github.com/bundlehub/backend/pkg/logger"
	"github.com/bundlehub/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type BundlesHandler struct {
	Bundles *services.BundleService
	Access  *services.AccessService
}

func NewBundlesHandler(bundles *services.BundleService, access *services.AccessService) *BundlesHandler {
	return &BundlesHandler{Bundles: bundles, Access: access}
}

type createBundleRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Tags        *string `json:"tags"`
	Host        string  `json:"host"`
	Payload     string  `json:"payload"`
	ShareMode   string  `json:"shareMode"`
	GroupID     *string `json:"groupID"`
	ExpireDays  int     `json:"expireDays"`
}

func (h *BundlesHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req createBundleRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	input := services.CreateBundleInput{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Tags:        req.Tags,
		Host:        strings.TrimSpace(req.Host),
		Payload:     req.Payload,
		ShareMode:   req.ShareMode,
		ExpireDays:  req.ExpireDays,
	}
	if req.GroupID != nil && *req.GroupID != "" {
		groupID, err := parseUUID(*req.GroupID)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
		}
		input.GroupID = &groupID
	}

	bundle, err := h.Bundles.Create(currentUser.ID, input)
	if err != nil {
		return serviceError(c, err)
	}

	logger.InfoWithUser(currentUser.ID.String(), "bundle_created", map[string]interface{}{
		"bundle_id": bundle.ID.String(),
		"host":      bundle.Host,
	})

	return utils.Success(c, fiber.StatusCreated, bundle)
}

func (h *BundlesHandler) List(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	listings, err := h.Bundles.ListUserBundles(currentUser.ID)
	if err != nil {
		return serviceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, listings)
}

func (h *BundlesHandler) Get(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	bundleID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid bundle id")
	}

	bundle, err := h.Bundles.Get(bundleID)
	if err != nil {
		return serviceError(c, err)
	}
	if !h.Access.CanView(currentUser.ID, bundle) {
		return utils.Error(c, fiber.StatusForbidden, "access denied")
	}
	return utils.Success(c, fiber.StatusOK, bundle)
}

// Payload decrypts and returns the session data. Same visibility rule as
// Get; the ciphertext itself never leaves the server.
func (h *BundlesHandler) Payload(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	bundleID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid bundle id")
	}

	bundle, err := h.Bundles.Get(bundleID)
	if err != nil {
		return serviceError(c, err)
	}
	if !h.Access.CanView(currentUser.ID, bundle) {
		return utils.Error(c, fiber.StatusForbidden, "access denied")
	}

	plaintext, err := h.Bundles.Decrypt(bundle)
	if err != nil {
		return serviceError(c, err)
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"bundleID": bundle.ID,
		"payload":  plaintext,
	})
}

type updateBundleRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Tags        *string `json:"tags"`
	ShareMode   *string `json:"shareMode"`
	GroupID     *string `json:"groupID"`
	ClearGroup  bool    `json:"clearGroup"`
	ExpireDays  *int    `json:"expireDays"`
}

func (h *BundlesHandler) Update(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	bundleID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid bundle id")
	}

	var req updateBundleRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	input := services.UpdateBundleInput{
		Name:        req.Name,
		Description: req.Description,
		Tags:        req.Tags,
		ShareMode:   req.ShareMode,
		ClearGroup:  req.ClearGroup,
		ExpireDays:  req.ExpireDays,
	}
	if req.GroupID != nil && *req.GroupID != "" {
		groupID, err := parseUUID(*req.GroupID)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
		}
		input.GroupID = &groupID
	}

	bundle, err := h.Bundles.Update(currentUser.ID, bundleID, input)
	if err != nil {
		return serviceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, bundle)
}

func (h *BundlesHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	bundleID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid bundle id")
	}

	if err := h.Bundles.Delete(bundleID, currentUser.ID); err != nil {
		return serviceError(c, err)
	}

	logger.InfoWithUser(currentUser.ID.String(), "bundle_deleted", map[string]interface{}{
		"bundle_id": bundleID.String(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"deleted": true})
}

// Import adds a bundle to the caller's list by bundle id.
func (h *BundlesHandler) Import(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	bundleID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid bundle id")
	}

	if err := h.Bundles.Import(currentUser.ID, bundleID); err != nil {
		return serviceError(c, err)
	}

	logger.InfoWithUser(currentUser.ID.String(), "bundle_imported", map[string]interface{}{
		"bundle_id": bundleID.String(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"imported": true})
}

// RemoveFromList hides the caller's reference without touching the bundle.
func (h *BundlesHandler) RemoveFromList(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	bundleID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid bundle id")
	}

	if err := h.Bundles.RemoveReference(bundleID, currentUser.ID); err != nil {
		return serviceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"removed": true})
}

func parseOptionalUUID(value *string) (*uuid.UUID, error) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil, nil
	}
	id, err := parseUUID(*value)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
