package services

import (
	"github.com/bundlehub/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AccessService is the pure decision engine for bundle visibility. It never
// mutates state; callers that grant access (import paths) do their own writes.
type AccessService struct {
	DB *gorm.DB
}

func NewAccessService(db *gorm.DB) *AccessService {
	return &AccessService{DB: db}
}

// CanView decides whether a user may read a bundle. First match wins:
// owner, visible reference, PUBLIC mode, GROUP_ONLY with membership.
func (a *AccessService) CanView(userID uuid.UUID, bundle *models.Bundle) bool {
	return a.canView(a.DB, userID, bundle)
}

func (a *AccessService) canView(tx *gorm.DB, userID uuid.UUID, bundle *models.Bundle) bool {
	if bundle.OwnerID == userID {
		return true
	}

	var refCount int64
	tx.Model(&models.BundleReference{}).
		Where("user_id = ? AND bundle_id = ? AND is_visible = ?", userID, bundle.ID, true).
		Count(&refCount)
	if refCount > 0 {
		return true
	}

	switch bundle.ShareMode {
	case models.ShareModePublic:
		return true
	case models.ShareModeGroupOnly:
		return bundle.GroupID != nil && a.isMember(tx, userID, *bundle.GroupID)
	default:
		return false
	}
}

// CanImport mirrors CanView, except PRIVATE bundles are importable by anyone
// who presents the bundle id. Knowing the id is the capability.
func (a *AccessService) CanImport(userID uuid.UUID, bundle *models.Bundle) bool {
	return a.canImport(a.DB, userID, bundle)
}

func (a *AccessService) canImport(tx *gorm.DB, userID uuid.UUID, bundle *models.Bundle) bool {
	if bundle.ShareMode == models.ShareModePrivate {
		return true
	}
	return a.canView(tx, userID, bundle)
}

func (a *AccessService) isMember(tx *gorm.DB, userID, groupID uuid.UUID) bool {
	var count int64
	tx.Model(&models.GroupMembership{}).
		Where("user_id = ? AND group_id = ?", userID, groupID).
		Count(&count)
	return count > 0
}
