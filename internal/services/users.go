package services

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bundlehub/backend/internal/models"
	"github.com/bundlehub/backend/pkg/logger"
	"github.com/bundlehub/backend/pkg/utils"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const minPasswordLength = 6

type UserService struct {
	DB      *gorm.DB
	Bundles *BundleService

	now func() time.Time
}

func NewUserService(db *gorm.DB, bundles *BundleService) *UserService {
	return &UserService{DB: db, Bundles: bundles, now: time.Now}
}

// Register creates a plain NORMAL_USER account.
func (s *UserService) Register(username, password string, email *string) (*models.User, error) {
	return s.register(s.DB, username, password, email, nil)
}

func (s *UserService) register(tx *gorm.DB, username, password string, email *string, parentID *uuid.UUID) (*models.User, error) {
	if username == "" {
		return nil, validationError("username is required")
	}
	if len(password) < minPasswordLength {
		return nil, validationError("password must be at least %d characters", minPasswordLength)
	}

	var existing int64
	if err := tx.Model(&models.User{}).Where("username = ?", username).Count(&existing).Error; err != nil {
		return nil, internalError("checking username", err)
	}
	if existing > 0 {
		return nil, conflictError("username %q already exists", username)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, internalError("hashing password", err)
	}

	user := models.User{
		Username:     username,
		PasswordHash: string(hash),
		Email:        email,
		DisplayName:  username,
		Role:         models.UserRoleNormal,
		Status:       models.UserStatusActive,
		ParentUserID: parentID,
	}
	if err := tx.Create(&user).Error; err != nil {
		return nil, internalError("creating user", err)
	}
	return &user, nil
}

// RegisterWithGroup registers a user who immediately owns a group, promoted
// to GROUP_OWNER, in one transaction.
func (s *UserService) RegisterWithGroup(username, password string, email *string, groupName string) (*models.User, error) {
	var user *models.User
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		user, err = s.register(tx, username, password, email, nil)
		if err != nil {
			return err
		}

		desc := username + "'s team"
		group := models.Group{
			Name:        groupName,
			OwnerID:     user.ID,
			Description: &desc,
			Status:      models.GroupStatusActive,
			MaxMembers:  models.DefaultGroupMaxMembers,
		}
		if err := tx.Create(&group).Error; err != nil {
			return internalError("creating group", err)
		}

		membership := models.GroupMembership{
			UserID:  user.ID,
			GroupID: group.ID,
			Role:    models.GroupRoleOwner,
		}
		if err := tx.Create(&membership).Error; err != nil {
			return internalError("creating membership", err)
		}

		user.Role = models.UserRoleGroupOwner
		return tx.Model(&models.User{}).
			Where("id = ?", user.ID).
			Update("role", models.UserRoleGroupOwner).Error
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// CreateMainAccountByAdmin provisions a main account with its default group.
func (s *UserService) CreateMainAccountByAdmin(username, password string, email *string) (*models.User, error) {
	return s.RegisterWithGroup(username, password, email, defaultGroupName(username))
}

func defaultGroupName(username string) string {
	return fmt.Sprintf("%s-default", username)
}

// CreateSubAccount creates a child account of parentID. The hierarchy is
// capped at one level: a parent that itself has a parent is rejected. When
// no group is given, the parent's default group is found or created and the
// sub-account joins it as MEMBER. Everything runs in one transaction.
func (s *UserService) CreateSubAccount(parentID uuid.UUID, username, password string, email *string, groupID *uuid.UUID) (*models.User, error) {
	var sub *models.User
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var parent models.User
		if err := tx.First(&parent, "id = ?", parentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundError("parent account not found")
			}
			return internalError("loading parent", err)
		}
		if parent.ParentUserID != nil {
			return validationError("a sub-account cannot have sub-accounts of its own")
		}

		targetGroupID := groupID
		if targetGroupID == nil {
			id, err := s.ensureDefaultGroup(tx, &parent)
			if err != nil {
				return err
			}
			targetGroupID = &id
		} else {
			var count int64
			if err := tx.Model(&models.Group{}).Where("id = ?", *targetGroupID).Count(&count).Error; err != nil {
				return internalError("checking group", err)
			}
			if count == 0 {
				return notFoundError("group not found")
			}
		}

		var err error
		sub, err = s.register(tx, username, password, email, &parentID)
		if err != nil {
			return err
		}

		membership := models.GroupMembership{
			UserID:  sub.ID,
			GroupID: *targetGroupID,
			Role:    models.GroupRoleMember,
		}
		return tx.Create(&membership).Error
	})
	if err != nil {
		return nil, err
	}

	logger.InfoWithUser(parentID.String(), "sub_account_created", map[string]interface{}{
		"sub_account_id": sub.ID.String(),
	})
	return sub, nil
}

// ensureDefaultGroup finds or creates the parent's default group and makes
// sure the parent holds its OWNER membership.
func (s *UserService) ensureDefaultGroup(tx *gorm.DB, parent *models.User) (uuid.UUID, error) {
	name := defaultGroupName(parent.Username)

	var group models.Group
	err := tx.Where("owner_id = ? AND name = ?", parent.ID, name).First(&group).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		desc := "default group"
		group = models.Group{
			Name:        name,
			OwnerID:     parent.ID,
			Description: &desc,
			Status:      models.GroupStatusActive,
			MaxMembers:  models.DefaultGroupMaxMembers,
		}
		if err := tx.Create(&group).Error; err != nil {
			return uuid.Nil, internalError("creating default group", err)
		}
	} else if err != nil {
		return uuid.Nil, internalError("loading default group", err)
	}

	var rel int64
	err = tx.Model(&models.GroupMembership{}).
		Where("user_id = ? AND group_id = ?", parent.ID, group.ID).
		Count(&rel).Error
	if err != nil {
		return uuid.Nil, internalError("checking parent membership", err)
	}
	if rel == 0 {
		membership := models.GroupMembership{
			UserID:  parent.ID,
			GroupID: group.ID,
			Role:    models.GroupRoleOwner,
		}
		if err := tx.Create(&membership).Error; err != nil {
			return uuid.Nil, internalError("creating parent membership", err)
		}
	}
	return group.ID, nil
}

// Authenticate verifies credentials. Disabled and banned accounts fail with
// a state error even when the password matches.
func (s *UserService) Authenticate(username, password string) (*models.User, error) {
	var user models.User
	if err := s.DB.Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("unknown username or wrong password")
		}
		return nil, internalError("loading user", err)
	}

	if !user.IsActive() {
		return nil, stateError("account is disabled")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, notFoundError("unknown username or wrong password")
	}
	return &user, nil
}

func (s *UserService) GetByID(userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.DB.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("user not found")
		}
		return nil, internalError("loading user", err)
	}
	return &user, nil
}

func (s *UserService) GetByUsername(username string) (*models.User, error) {
	var user models.User
	if err := s.DB.Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("user not found")
		}
		return nil, internalError("loading user", err)
	}
	return &user, nil
}

func (s *UserService) UpdatePassword(userID uuid.UUID, oldPassword, newPassword string) error {
	user, err := s.GetByID(userID)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)); err != nil {
		return permissionError("old password does not match")
	}
	if len(newPassword) < minPasswordLength {
		return validationError("password must be at least %d characters", minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return internalError("hashing password", err)
	}
	err = s.DB.Model(&models.User{}).Where("id = ?", userID).Update("password_hash", string(hash)).Error
	if err != nil {
		return internalError("updating password", err)
	}
	return nil
}

func (s *UserService) UpdateProfile(userID uuid.UUID, displayName *string, email *string) error {
	updates := map[string]interface{}{}
	if displayName != nil && *displayName != "" {
		updates["display_name"] = *displayName
	}
	if email != nil && *email != "" {
		updates["email"] = *email
	}
	if len(updates) == 0 {
		return nil
	}

	result := s.DB.Model(&models.User{}).Where("id = ?", userID).Updates(updates)
	if result.Error != nil {
		return internalError("updating profile", result.Error)
	}
	if result.RowsAffected == 0 {
		return notFoundError("user not found")
	}
	return nil
}

// ListMainAccounts returns every account that can own groups.
func (s *UserService) ListMainAccounts(page, limit int) ([]models.User, int64, error) {
	mainRoles := []models.UserRole{models.UserRoleGroupOwner, models.UserRoleGlobalAdmin}

	var total int64
	if err := s.DB.Model(&models.User{}).Where("role IN ?", mainRoles).Count(&total).Error; err != nil {
		return nil, 0, internalError("counting main accounts", err)
	}

	var users []models.User
	err := utils.ApplyPagination(s.DB.Where("role IN ?", mainRoles), page, limit).
		Order("created_at DESC").
		Find(&users).Error
	if err != nil {
		return nil, 0, internalError("listing main accounts", err)
	}
	return users, total, nil
}

// PromoteRole sets an account's role. Sub-accounts stay NORMAL_USER.
func (s *UserService) PromoteRole(userID uuid.UUID, role models.UserRole) (*models.User, error) {
	if !models.IsValidUserRole(role) {
		return nil, validationError("unknown role %q", role)
	}

	user, err := s.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if user.IsSubAccount() && role != models.UserRoleNormal {
		return nil, validationError("sub-accounts cannot hold elevated roles")
	}

	if err := s.DB.Model(&models.User{}).Where("id = ?", userID).Update("role", role).Error; err != nil {
		return nil, internalError("updating role", err)
	}
	user.Role = role
	return user, nil
}

// ToggleStatus flips a single account between ACTIVE and DISABLED.
func (s *UserService) ToggleStatus(userID uuid.UUID) (*models.User, error) {
	user, err := s.GetByID(userID)
	if err != nil {
		return nil, err
	}

	if user.Status == models.UserStatusBanned {
		return nil, stateError("banned accounts cannot be toggled")
	}

	next := models.UserStatusDisabled
	if user.Status != models.UserStatusActive {
		next = models.UserStatusActive
	}

	err = s.DB.Model(&models.User{}).Where("id = ?", userID).Update("status", next).Error
	if err != nil {
		return nil, internalError("updating status", err)
	}
	user.Status = next
	return user, nil
}

// ToggleStatusWithChildren flips the user and every sub-account between
// ACTIVE and DISABLED atomically and returns how many accounts changed.
// BANNED rows are left alone; a ban is not undone by a bulk toggle.
func (s *UserService) ToggleStatusWithChildren(userID uuid.UUID) (int64, error) {
	user, err := s.GetByID(userID)
	if err != nil {
		return 0, err
	}
	if user.Status == models.UserStatusBanned {
		return 0, stateError("banned accounts cannot be toggled")
	}

	next := models.UserStatusDisabled
	if user.Status != models.UserStatusActive {
		next = models.UserStatusActive
	}

	var affected int64
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.User{}).
			Where("id = ? OR parent_user_id = ?", userID, userID).
			Where("status != ?", models.UserStatusBanned).
			Update("status", next)
		if result.Error != nil {
			return result.Error
		}
		affected = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, internalError("toggling status", err)
	}
	return affected, nil
}

// DeleteUser hard-deletes one account and every membership, reference and
// share row pointing at it. Sub-accounts are not touched; use
// DeleteUserWithChildren for the full cascade.
func (s *UserService) DeleteUser(userID uuid.UUID) error {
	if _, err := s.GetByID(userID); err != nil {
		return err
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		return s.deleteUserRowsInTx(tx, userID)
	})
	if err != nil {
		return internalError("deleting user", err)
	}
	return nil
}

func (s *UserService) deleteUserRowsInTx(tx *gorm.DB, userID uuid.UUID) error {
	if err := tx.Where("user_id = ?", userID).Delete(&models.GroupMembership{}).Error; err != nil {
		return err
	}
	if err := tx.Where("user_id = ?", userID).Delete(&models.BundleReference{}).Error; err != nil {
		return err
	}
	if err := tx.Where("owner_id = ?", userID).Delete(&models.BundleShare{}).Error; err != nil {
		return err
	}
	return tx.Delete(&models.User{}, "id = ?", userID).Error
}

// DeleteUserWithChildren deletes every sub-account and then the user
// itself, cleaning each account's memberships, references and shares. The
// returned count covers all deleted user rows.
func (s *UserService) DeleteUserWithChildren(userID uuid.UUID) (int64, error) {
	if _, err := s.GetByID(userID); err != nil {
		return 0, err
	}

	var deleted int64
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var subs []models.User
		if err := tx.Where("parent_user_id = ?", userID).Find(&subs).Error; err != nil {
			return err
		}

		for _, sub := range subs {
			if err := s.deleteUserRowsInTx(tx, sub.ID); err != nil {
				return err
			}
			deleted++
		}

		if err := s.deleteUserRowsInTx(tx, userID); err != nil {
			return err
		}
		deleted++
		return nil
	})
	if err != nil {
		return 0, internalError("deleting user with children", err)
	}

	logger.Info("user_deleted_with_children", map[string]interface{}{
		"user_id": userID.String(),
		"deleted": deleted,
	})
	return deleted, nil
}

// DeleteSubAccountWithCascade destroys a sub-account and everything it
// owns: every bundle goes through the full bundle-delete cascade (shares
// marked DELETED, references removed), then memberships and the user row.
// Destructive rather than detaching, because a sub-account's resources have
// no independent owner to fall back to. Only the parent may do this.
func (s *UserService) DeleteSubAccountWithCascade(subAccountID, operatorID uuid.UUID) (int64, error) {
	sub, err := s.GetByID(subAccountID)
	if err != nil {
		return 0, err
	}
	if sub.ParentUserID == nil || *sub.ParentUserID != operatorID {
		return 0, permissionError("only the parent account may delete this sub-account")
	}

	var deletedBundles int64
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		var bundles []models.Bundle
		if err := tx.Where("owner_id = ?", subAccountID).Find(&bundles).Error; err != nil {
			return err
		}
		for i := range bundles {
			if err := s.Bundles.deleteInTx(tx, &bundles[i]); err != nil {
				return err
			}
			deletedBundles++
		}

		return s.deleteUserRowsInTx(tx, subAccountID)
	})
	if err != nil {
		var svcErr *Error
		if errors.As(err, &svcErr) {
			return 0, err
		}
		return 0, internalError("deleting sub-account", err)
	}

	logger.InfoWithUser(operatorID.String(), "sub_account_deleted", map[string]interface{}{
		"sub_account_id":  subAccountID.String(),
		"deleted_bundles": deletedBundles,
	})
	return deletedBundles, nil
}

func (s *UserService) SubAccountsOf(parentID uuid.UUID) ([]models.User, error) {
	var subs []models.User
	err := s.DB.
		Where("parent_user_id = ?", parentID).
		Order("created_at DESC").
		Find(&subs).Error
	if err != nil {
		return nil, internalError("listing sub-accounts", err)
	}
	return subs, nil
}

// SubAccountWithGroups is the parent-facing listing row.
type SubAccountWithGroups struct {
	User       models.User `json:"user"`
	GroupNames []string    `json:"groupNames"`
}

func (s *UserService) SubAccountsWithGroups(parentID uuid.UUID) ([]SubAccountWithGroups, error) {
	subs, err := s.SubAccountsOf(parentID)
	if err != nil {
		return nil, err
	}

	result := make([]SubAccountWithGroups, 0, len(subs))
	for _, sub := range subs {
		var names []string
		err := s.DB.Model(&models.Group{}).
			Joins("JOIN group_memberships ON group_memberships.group_id = groups.id").
			Where("group_memberships.user_id = ?", sub.ID).
			Pluck("groups.name", &names).Error
		if err != nil {
			return nil, internalError("listing sub-account groups", err)
		}
		sort.Strings(names)
		result = append(result, SubAccountWithGroups{User: sub, GroupNames: names})
	}
	return result, nil
}

// UpdateSubAccount lets the parent change a sub-account's password and
// regroup it. Regrouping replaces all of the sub-account's memberships with
// a single MEMBER membership in the new group.
func (s *UserService) UpdateSubAccount(subAccountID, operatorID uuid.UUID, password *string, groupID *uuid.UUID) error {
	sub, err := s.GetByID(subAccountID)
	if err != nil {
		return err
	}
	if sub.ParentUserID == nil || *sub.ParentUserID != operatorID {
		return permissionError("only the parent account may edit this sub-account")
	}

	if password != nil && len(*password) < minPasswordLength {
		return validationError("password must be at least %d characters", minPasswordLength)
	}
	if groupID != nil {
		var count int64
		if err := s.DB.Model(&models.Group{}).Where("id = ?", *groupID).Count(&count).Error; err != nil {
			return internalError("checking group", err)
		}
		if count == 0 {
			return notFoundError("group not found")
		}
	}

	return s.DB.Transaction(func(tx *gorm.DB) error {
		if password != nil {
			hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
			if err != nil {
				return internalError("hashing password", err)
			}
			err = tx.Model(&models.User{}).
				Where("id = ?", subAccountID).
				Update("password_hash", string(hash)).Error
			if err != nil {
				return internalError("updating password", err)
			}
		}

		if groupID != nil {
			if err := tx.Where("user_id = ?", subAccountID).Delete(&models.GroupMembership{}).Error; err != nil {
				return internalError("clearing memberships", err)
			}
			membership := models.GroupMembership{
				UserID:  subAccountID,
				GroupID: *groupID,
				Role:    models.GroupRoleMember,
			}
			if err := tx.Create(&membership).Error; err != nil {
				return internalError("creating membership", err)
			}
		}
		return nil
	})
}

// UserStats aggregates a main account's footprint: its own bundles plus
// every sub-account's, and the sub-account count.
type UserStats struct {
	UserID      uuid.UUID `json:"userID"`
	BundleCount int64     `json:"bundleCount"`
	MemberCount int64     `json:"memberCount"`
}

func (s *UserService) Stats(userID uuid.UUID) (*UserStats, error) {
	stats := UserStats{UserID: userID}

	var ownerIDs []uuid.UUID
	err := s.DB.Model(&models.User{}).
		Where("parent_user_id = ?", userID).
		Pluck("id", &ownerIDs).Error
	if err != nil {
		return nil, internalError("listing sub-accounts", err)
	}
	stats.MemberCount = int64(len(ownerIDs))

	ownerIDs = append(ownerIDs, userID)
	err = s.DB.Model(&models.Bundle{}).
		Where("owner_id IN ?", ownerIDs).
		Count(&stats.BundleCount).Error
	if err != nil {
		return nil, internalError("counting bundles", err)
	}
	return &stats, nil
}
