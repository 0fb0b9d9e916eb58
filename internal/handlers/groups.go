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

type GroupsHandler struct {
	Groups  *services.GroupService
	Bundles *services.BundleService
}

func NewGroupsHandler(groups *services.GroupService, bundles *services.BundleService) *GroupsHandler {
	return &GroupsHandler{Groups: groups, Bundles: bundles}
}

type createGroupRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

func (h *GroupsHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req createGroupRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	group, err := h.Groups.CreateGroup(currentUser.ID, strings.TrimSpace(req.Name), req.Description)
	if err != nil {
		return serviceError(c, err)
	}

	logger.InfoWithUser(currentUser.ID.String(), "group_created", map[string]interface{}{
		"group_id":   group.ID.String(),
		"group_name": group.Name,
	})

	return utils.Success(c, fiber.StatusCreated, group)
}

func (h *GroupsHandler) List(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groups, err := h.Groups.GroupsOf(currentUser.ID)
	if err != nil {
		return serviceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, groups)
}

func (h *GroupsHandler) Get(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	isMember, err := h.Groups.IsMember(currentUser.ID, groupID)
	if err != nil {
		return serviceError(c, err)
	}
	if !isMember && !currentUser.IsGlobalAdmin() {
		return utils.Error(c, fiber.StatusForbidden, "group access denied")
	}

	group, err := h.Groups.Get(groupID)
	if err != nil {
		return serviceError(c, err)
	}

	memberCount, err := h.Groups.MemberCount(groupID)
	if err != nil {
		return serviceError(c, err)
	}
	bundleCount, err := h.Bundles.CountByGroup(groupID)
	if err != nil {
		return serviceError(c, err)
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"group":       group,
		"memberCount": memberCount,
		"bundleCount": bundleCount,
	})
}

func (h *GroupsHandler) Members(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	isMember, err := h.Groups.IsMember(currentUser.ID, groupID)
	if err != nil {
		return serviceError(c, err)
	}
	if !isMember && !currentUser.IsGlobalAdmin() {
		return utils.Error(c, fiber.StatusForbidden, "group access denied")
	}

	members, err := h.Groups.Members(groupID)
	if err != nil {
		return serviceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, members)
}

// ListBundles returns the group's bundle pool, visible to any member.
func (h *GroupsHandler) ListBundles(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	isMember, err := h.Groups.IsMember(currentUser.ID, groupID)
	if err != nil {
		return serviceError(c, err)
	}
	if !isMember && !currentUser.IsGlobalAdmin() {
		return utils.Error(c, fiber.StatusForbidden, "group access denied")
	}

	bundles, err := h.Bundles.ListGroupBundles(groupID)
	if err != nil {
		return serviceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, bundles)
}

type addMemberRequest struct {
	UserID string `json:"userID"`
	Role   string `json:"role"`
}

func (h *GroupsHandler) AddMember(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	var req addMemberRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	userID, err := parseUUID(req.UserID)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	role := models.GroupRoleMember
	if req.Role != "" {
		role = models.GroupMembershipRole(strings.ToUpper(strings.TrimSpace(req.Role)))
	}

	membership, err := h.Groups.AddMember(groupID, userID, role, currentUser.ID)
	if err != nil {
		return serviceError(c, err)
	}

	logger.InfoWithUser(currentUser.ID.String(), "group_member_added", map[string]interface{}{
		"group_id": groupID.String(),
		"user_id":  userID.String(),
		"role":     string(role),
	})

	return utils.Success(c, fiber.StatusCreated, membership)
}

func (h *GroupsHandler) RemoveMember(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}
	userID, err := parseUUID(c.Params("userID"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	if err := h.Groups.RemoveMember(groupID, userID, currentUser.ID); err != nil {
		return serviceError(c, err)
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"removed": true})
}

type updateGroupRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (h *GroupsHandler) Update(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	var req updateGroupRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.Groups.UpdateGroup(groupID, req.Name, req.Description, currentUser.ID); err != nil {
		return serviceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"updated": true})
}

func (h *GroupsHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	result, err := h.Groups.DeleteGroup(groupID, currentUser.ID)
	if err != nil {
		return serviceError(c, err)
	}

	logger.InfoWithUser(currentUser.ID.String(), "group_deleted", map[string]interface{}{
		"group_id":         groupID.String(),
		"affected_members": result.AffectedMembers,
		"affected_bundles": result.AffectedBundles,
	})

	return utils.Success(c, fiber.StatusOK, result)
}
