package services

import (
	"errors"
	"time"

	"github.com/bundlehub/backend/internal/models"
	"github.com/bundlehub/backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type GroupService struct {
	DB *gorm.DB

	now func() time.Time
}

func NewGroupService(db *gorm.DB) *GroupService {
	return &GroupService{DB: db, now: time.Now}
}

// CreateGroup creates the group, its OWNER membership, and promotes the
// owner to GROUP_OWNER (global admins keep their role), in one transaction.
func (s *GroupService) CreateGroup(ownerID uuid.UUID, name string, description *string) (*models.Group, error) {
	var existing int64
	if err := s.DB.Model(&models.Group{}).Where("name = ?", name).Count(&existing).Error; err != nil {
		return nil, internalError("checking group name", err)
	}
	if existing > 0 {
		return nil, conflictError("group name %q already exists", name)
	}

	group := models.Group{
		Name:        name,
		OwnerID:     ownerID,
		Description: description,
		Status:      models.GroupStatusActive,
		MaxMembers:  models.DefaultGroupMaxMembers,
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&group).Error; err != nil {
			return err
		}

		membership := models.GroupMembership{
			UserID:  ownerID,
			GroupID: group.ID,
			Role:    models.GroupRoleOwner,
		}
		if err := tx.Create(&membership).Error; err != nil {
			return err
		}

		return tx.Model(&models.User{}).
			Where("id = ? AND role != ?", ownerID, models.UserRoleGlobalAdmin).
			Update("role", models.UserRoleGroupOwner).Error
	})
	if err != nil {
		return nil, internalError("creating group", err)
	}

	logger.InfoWithUser(ownerID.String(), "group_created", map[string]interface{}{
		"group_id":   group.ID.String(),
		"group_name": group.Name,
	})
	return &group, nil
}

// AddMember adds a user to a group. The operator must be group OWNER/ADMIN
// or a global admin; the group must have space; the user must not already
// be a member.
func (s *GroupService) AddMember(groupID, userID uuid.UUID, role models.GroupMembershipRole, operatorID uuid.UUID) (*models.GroupMembership, error) {
	if !models.IsValidGroupRole(string(role)) {
		return nil, validationError("unknown group role %q", role)
	}

	ok, err := s.IsOwnerOrAdmin(operatorID, groupID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, permissionError("operator may not add members to this group")
	}

	var group models.Group
	if err := s.DB.First(&group, "id = ?", groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("group not found")
		}
		return nil, internalError("loading group", err)
	}

	isMember, err := s.IsMember(userID, groupID)
	if err != nil {
		return nil, err
	}
	if isMember {
		return nil, conflictError("user is already a member of this group")
	}

	count, err := s.MemberCount(groupID)
	if err != nil {
		return nil, err
	}
	if count >= int64(group.MaxMembers) {
		return nil, stateError("group is at its member limit (%d)", group.MaxMembers)
	}

	membership := models.GroupMembership{
		UserID:  userID,
		GroupID: groupID,
		Role:    role,
	}
	if err := s.DB.Create(&membership).Error; err != nil {
		return nil, internalError("creating membership", err)
	}
	return &membership, nil
}

// RemoveMember deletes a membership row. The OWNER membership is never
// removable through this path.
func (s *GroupService) RemoveMember(groupID, userID, operatorID uuid.UUID) error {
	ok, err := s.IsOwnerOrAdmin(operatorID, groupID)
	if err != nil {
		return err
	}
	if !ok {
		return permissionError("operator may not remove members from this group")
	}

	var membership models.GroupMembership
	err = s.DB.Where("user_id = ? AND group_id = ?", userID, groupID).First(&membership).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFoundError("user is not a member of this group")
		}
		return internalError("loading membership", err)
	}

	if membership.Role == models.GroupRoleOwner {
		return stateError("the group owner cannot be removed")
	}

	if err := s.DB.Delete(&models.GroupMembership{}, "id = ?", membership.ID).Error; err != nil {
		return internalError("deleting membership", err)
	}
	return nil
}

func (s *GroupService) IsMember(userID, groupID uuid.UUID) (bool, error) {
	var count int64
	err := s.DB.Model(&models.GroupMembership{}).
		Where("user_id = ? AND group_id = ?", userID, groupID).
		Count(&count).Error
	if err != nil {
		return false, internalError("counting memberships", err)
	}
	return count > 0, nil
}

// RoleOf returns the user's in-group role, or not-found if they are not a
// member.
func (s *GroupService) RoleOf(userID, groupID uuid.UUID) (models.GroupMembershipRole, error) {
	var membership models.GroupMembership
	err := s.DB.Where("user_id = ? AND group_id = ?", userID, groupID).First(&membership).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", notFoundError("user is not a member of this group")
		}
		return "", internalError("loading membership", err)
	}
	return membership.Role, nil
}

// IsOwnerOrAdmin reports whether the user may operate on the group's
// membership: group OWNER/ADMIN, or GLOBAL_ADMIN anywhere.
func (s *GroupService) IsOwnerOrAdmin(userID, groupID uuid.UUID) (bool, error) {
	var user models.User
	if err := s.DB.First(&user, "id = ?", userID).Error; err == nil && user.IsGlobalAdmin() {
		return true, nil
	}

	role, err := s.RoleOf(userID, groupID)
	if err != nil {
		if IsKind(err, KindNotFound) {
			return false, nil
		}
		return false, err
	}
	return role == models.GroupRoleOwner || role == models.GroupRoleAdmin, nil
}

func (s *GroupService) Get(groupID uuid.UUID) (*models.Group, error) {
	var group models.Group
	if err := s.DB.First(&group, "id = ?", groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("group not found")
		}
		return nil, internalError("loading group", err)
	}
	return &group, nil
}

// GroupsOf returns the active groups a user belongs to.
func (s *GroupService) GroupsOf(userID uuid.UUID) ([]models.Group, error) {
	var groups []models.Group
	err := s.DB.
		Joins("JOIN group_memberships ON group_memberships.group_id = groups.id").
		Where("group_memberships.user_id = ?", userID).
		Where("groups.status = ?", models.GroupStatusActive).
		Find(&groups).Error
	if err != nil {
		return nil, internalError("listing user groups", err)
	}
	return groups, nil
}

func (s *GroupService) GroupsOwnedBy(ownerID uuid.UUID) ([]models.Group, error) {
	var groups []models.Group
	err := s.DB.
		Where("owner_id = ? AND status = ?", ownerID, models.GroupStatusActive).
		Order("created_at DESC").
		Find(&groups).Error
	if err != nil {
		return nil, internalError("listing owned groups", err)
	}
	return groups, nil
}

func (s *GroupService) Members(groupID uuid.UUID) ([]models.GroupMembership, error) {
	var memberships []models.GroupMembership
	err := s.DB.Preload("User").Where("group_id = ?", groupID).Find(&memberships).Error
	if err != nil {
		return nil, internalError("listing members", err)
	}
	return memberships, nil
}

func (s *GroupService) MemberCount(groupID uuid.UUID) (int64, error) {
	var count int64
	err := s.DB.Model(&models.GroupMembership{}).Where("group_id = ?", groupID).Count(&count).Error
	if err != nil {
		return 0, internalError("counting members", err)
	}
	return count, nil
}

// UpdateGroup renames or re-describes a group. Group owner or global admin
// only.
func (s *GroupService) UpdateGroup(groupID uuid.UUID, name *string, description *string, operatorID uuid.UUID) error {
	allowed, err := s.canAdministerGroup(operatorID, groupID)
	if err != nil {
		return err
	}
	if !allowed {
		return permissionError("only the group owner may update the group")
	}

	updates := map[string]interface{}{}
	if name != nil && *name != "" {
		updates["name"] = *name
	}
	if description != nil {
		updates["description"] = *description
	}
	if len(updates) == 0 {
		return nil
	}

	result := s.DB.Model(&models.Group{}).Where("id = ?", groupID).Updates(updates)
	if result.Error != nil {
		return internalError("updating group", result.Error)
	}
	if result.RowsAffected == 0 {
		return notFoundError("group not found")
	}
	return nil
}

// DeleteGroupResult reports what a group deletion touched.
type DeleteGroupResult struct {
	AffectedMembers int64 `json:"affectedMembers"`
	AffectedBundles int64 `json:"affectedBundles"`
}

// DeleteGroup removes the group and its memberships and detaches its
// bundles: groupID is cleared and GROUP_ONLY bundles fall back to PRIVATE.
// Bundles are never deleted by this path; they still have an owner.
func (s *GroupService) DeleteGroup(groupID, operatorID uuid.UUID) (*DeleteGroupResult, error) {
	group, err := s.Get(groupID)
	if err != nil {
		return nil, err
	}

	allowed, err := s.canAdministerGroup(operatorID, groupID)
	if err != nil {
		return nil, err
	}
	if !allowed && group.OwnerID != operatorID {
		return nil, permissionError("only the group owner may delete the group")
	}

	var result DeleteGroupResult
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.GroupMembership{}).Where("group_id = ?", groupID).Count(&result.AffectedMembers).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Bundle{}).Where("group_id = ?", groupID).Count(&result.AffectedBundles).Error; err != nil {
			return err
		}

		if err := tx.Where("group_id = ?", groupID).Delete(&models.GroupMembership{}).Error; err != nil {
			return err
		}

		err := tx.Model(&models.Bundle{}).
			Where("group_id = ? AND share_mode = ?", groupID, models.ShareModeGroupOnly).
			Update("share_mode", models.ShareModePrivate).Error
		if err != nil {
			return err
		}
		err = tx.Model(&models.Bundle{}).
			Where("group_id = ?", groupID).
			Update("group_id", nil).Error
		if err != nil {
			return err
		}

		return tx.Delete(&models.Group{}, "id = ?", groupID).Error
	})
	if err != nil {
		return nil, internalError("deleting group", err)
	}

	logger.InfoWithUser(operatorID.String(), "group_deleted", map[string]interface{}{
		"group_id":         groupID.String(),
		"affected_members": result.AffectedMembers,
		"affected_bundles": result.AffectedBundles,
	})
	return &result, nil
}

// canAdministerGroup is the owner-or-global-admin check used by update and
// delete. Group ADMINs may manage members but not the group itself.
func (s *GroupService) canAdministerGroup(userID, groupID uuid.UUID) (bool, error) {
	var user models.User
	if err := s.DB.First(&user, "id = ?", userID).Error; err == nil && user.IsGlobalAdmin() {
		return true, nil
	}

	role, err := s.RoleOf(userID, groupID)
	if err != nil {
		if IsKind(err, KindNotFound) {
			return false, nil
		}
		return false, err
	}
	return role == models.GroupRoleOwner, nil
}
