package services

import (
	"time"

	"github.com/bundlehub/backend/internal/models"
	"github.com/bundlehub/backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SystemOperatorID marks cleanup runs triggered by the scheduler rather
// than an admin request.
var SystemOperatorID = uuid.Nil

// CleanupService finds and removes rows that escaped the normal delete
// cascades: bundles whose owner or group is gone, sub-accounts whose parent
// is gone, groups whose owner is gone, and bundles past their expiry. It scans and
// repairs only those four classes; dangling references and share rows are
// cleaned up when their bundle goes, not here.
type CleanupService struct {
	DB      *gorm.DB
	Bundles *BundleService

	now func() time.Time
}

func NewCleanupService(db *gorm.DB, bundles *BundleService) *CleanupService {
	return &CleanupService{DB: db, Bundles: bundles, now: time.Now}
}

func (s *CleanupService) FindOrphanedBundles() ([]models.Bundle, error) {
	var bundles []models.Bundle
	err := orphanedBundleQuery(s.DB).Find(&bundles).Error
	if err != nil {
		return nil, internalError("scanning orphaned bundles", err)
	}
	return bundles, nil
}

// orphanedBundles matches bundles whose owner is gone or whose group
// affiliation points at a deleted group.
func orphanedBundleQuery(tx *gorm.DB) *gorm.DB {
	return tx.Model(&models.Bundle{}).Where(
		tx.Where("owner_id NOT IN (?)", tx.Model(&models.User{}).Select("id")).
			Or("group_id IS NOT NULL AND group_id NOT IN (?)", tx.Model(&models.Group{}).Select("id")),
	)
}

func (s *CleanupService) FindOrphanedUsers() ([]models.User, error) {
	var users []models.User
	err := s.DB.
		Where("parent_user_id IS NOT NULL").
		Where("parent_user_id NOT IN (?)", s.DB.Model(&models.User{}).Select("id")).
		Find(&users).Error
	if err != nil {
		return nil, internalError("scanning orphaned users", err)
	}
	return users, nil
}

func (s *CleanupService) FindOrphanedGroups() ([]models.Group, error) {
	var groups []models.Group
	err := s.DB.
		Where("owner_id NOT IN (?)", s.DB.Model(&models.User{}).Select("id")).
		Find(&groups).Error
	if err != nil {
		return nil, internalError("scanning orphaned groups", err)
	}
	return groups, nil
}

func (s *CleanupService) FindExpiredBundles() ([]models.Bundle, error) {
	var bundles []models.Bundle
	err := s.DB.Where("expire_at <= ?", s.now()).Find(&bundles).Error
	if err != nil {
		return nil, internalError("scanning expired bundles", err)
	}
	return bundles, nil
}

// CleanupPreview reports what ExecuteCleanup would remove, without touching
// anything.
type CleanupPreview struct {
	OrphanedBundles int `json:"orphanedBundles"`
	OrphanedUsers   int `json:"orphanedUsers"`
	OrphanedGroups  int `json:"orphanedGroups"`
	ExpiredBundles  int `json:"expiredBundles"`
}

func (p CleanupPreview) Total() int {
	return p.OrphanedBundles + p.OrphanedUsers + p.OrphanedGroups + p.ExpiredBundles
}

func (s *CleanupService) Preview() (*CleanupPreview, error) {
	bundles, err := s.FindOrphanedBundles()
	if err != nil {
		return nil, err
	}
	users, err := s.FindOrphanedUsers()
	if err != nil {
		return nil, err
	}
	groups, err := s.FindOrphanedGroups()
	if err != nil {
		return nil, err
	}
	expired, err := s.FindExpiredBundles()
	if err != nil {
		return nil, err
	}
	return &CleanupPreview{
		OrphanedBundles: len(bundles),
		OrphanedUsers:   len(users),
		OrphanedGroups:  len(groups),
		ExpiredBundles:  len(expired),
	}, nil
}

// CleanupResult counts what one ExecuteCleanup run actually removed.
type CleanupResult struct {
	DeletedBundles int `json:"deletedBundles"`
	DeletedUsers   int `json:"deletedUsers"`
	DeletedGroups  int `json:"deletedGroups"`
	ExpiredPurged  int `json:"expiredPurged"`
}

// ExecuteCleanup removes every orphan in one transaction. Orphaned and
// expired bundles go through the full bundle-delete cascade so their share
// and reference rows disappear with them. Orphaned groups detach the same
// way a group delete does.
func (s *CleanupService) ExecuteCleanup(operatorID uuid.UUID) (*CleanupResult, error) {
	result := CleanupResult{}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var bundles []models.Bundle
		if err := orphanedBundleQuery(tx).Find(&bundles).Error; err != nil {
			return err
		}
		for i := range bundles {
			if err := s.Bundles.deleteInTx(tx, &bundles[i]); err != nil {
				return err
			}
			result.DeletedBundles++
		}

		var expired []models.Bundle
		if err := tx.Where("expire_at <= ?", s.now()).Find(&expired).Error; err != nil {
			return err
		}
		for i := range expired {
			if err := s.Bundles.deleteInTx(tx, &expired[i]); err != nil {
				return err
			}
			result.ExpiredPurged++
		}

		var users []models.User
		if err := tx.
			Where("parent_user_id IS NOT NULL").
			Where("parent_user_id NOT IN (?)", tx.Model(&models.User{}).Select("id")).
			Find(&users).Error; err != nil {
			return err
		}
		for _, u := range users {
			if err := tx.Where("user_id = ?", u.ID).Delete(&models.GroupMembership{}).Error; err != nil {
				return err
			}
			if err := tx.Where("user_id = ?", u.ID).Delete(&models.BundleReference{}).Error; err != nil {
				return err
			}
			if err := tx.Delete(&models.User{}, "id = ?", u.ID).Error; err != nil {
				return err
			}
			result.DeletedUsers++
		}

		var groups []models.Group
		if err := tx.
			Where("owner_id NOT IN (?)", tx.Model(&models.User{}).Select("id")).
			Find(&groups).Error; err != nil {
			return err
		}
		for _, g := range groups {
			if err := tx.Where("group_id = ?", g.ID).Delete(&models.GroupMembership{}).Error; err != nil {
				return err
			}
			err := tx.Model(&models.Bundle{}).
				Where("group_id = ? AND share_mode = ?", g.ID, models.ShareModeGroupOnly).
				Update("share_mode", models.ShareModePrivate).Error
			if err != nil {
				return err
			}
			err = tx.Model(&models.Bundle{}).
				Where("group_id = ?", g.ID).
				Update("group_id", nil).Error
			if err != nil {
				return err
			}
			if err := tx.Delete(&models.Group{}, "id = ?", g.ID).Error; err != nil {
				return err
			}
			result.DeletedGroups++
		}
		return nil
	})
	if err != nil {
		return nil, internalError("executing cleanup", err)
	}

	logger.InfoWithUser(operatorID.String(), "cleanup_executed", map[string]interface{}{
		"deleted_bundles": result.DeletedBundles,
		"deleted_users":   result.DeletedUsers,
		"deleted_groups":  result.DeletedGroups,
		"expired_purged":  result.ExpiredPurged,
	})
	return &result, nil
}
