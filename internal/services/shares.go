package services

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/bundlehub/backend/internal/models"
	"github.com/bundlehub/backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// shareTokenBytes sizes the random token. 32 bytes of entropy keeps tokens
// outside brute-force range; tokens are never derived from bundle ids.
const shareTokenBytes = 32

type ShareService struct {
	DB      *gorm.DB
	Bundles *BundleService

	now func() time.Time
}

func NewShareService(db *gorm.DB, bundles *BundleService) *ShareService {
	return &ShareService{DB: db, Bundles: bundles, now: time.Now}
}

func generateShareToken() (string, error) {
	raw := make([]byte, shareTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating share token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// CreateShare mints an ACTIVE capability token for a bundle. Owner only.
func (s *ShareService) CreateShare(bundleID, ownerID uuid.UUID) (*models.BundleShare, error) {
	bundle, err := s.Bundles.Get(bundleID)
	if err != nil {
		return nil, err
	}
	if bundle.OwnerID != ownerID {
		return nil, permissionError("only the bundle owner may create shares")
	}

	token, err := generateShareToken()
	if err != nil {
		return nil, internalError("generating token", err)
	}

	share := models.BundleShare{
		BundleID:  bundleID,
		OwnerID:   ownerID,
		Token:     token,
		Status:    models.ShareStatusActive,
		UsedCount: 0,
	}
	if err := s.DB.Create(&share).Error; err != nil {
		return nil, internalError("creating share", err)
	}

	logger.InfoWithUser(ownerID.String(), "share_created", map[string]interface{}{
		"share_id":  share.ID.String(),
		"bundle_id": bundleID.String(),
	})
	return &share, nil
}

// ShareWithUserCount pairs a share with the number of distinct users whose
// tagged reference is still visible, which can lag behind UsedCount after
// removals and re-imports.
type ShareWithUserCount struct {
	models.BundleShare
	ActualUserCount int64 `json:"actualUserCount"`
}

func (s *ShareService) ListSharesWithUserCount(bundleID, ownerID uuid.UUID) ([]ShareWithUserCount, error) {
	bundle, err := s.Bundles.Get(bundleID)
	if err != nil {
		return nil, err
	}
	if bundle.OwnerID != ownerID {
		return nil, permissionError("only the bundle owner may list shares")
	}

	var shares []models.BundleShare
	err = s.DB.Where("bundle_id = ?", bundleID).Order("created_at DESC").Find(&shares).Error
	if err != nil {
		return nil, internalError("listing shares", err)
	}

	result := make([]ShareWithUserCount, 0, len(shares))
	for _, share := range shares {
		var count int64
		err := s.DB.Model(&models.BundleReference{}).
			Distinct("user_id").
			Where("bundle_id = ? AND reference_type = ? AND share_id = ? AND is_visible = ?",
				bundleID, models.ReferenceTypeImported, share.ID, true).
			Count(&count).Error
		if err != nil {
			return nil, internalError("counting share users", err)
		}
		result = append(result, ShareWithUserCount{BundleShare: share, ActualUserCount: count})
	}
	return result, nil
}

// RedeemImport trades a token for a visible IMPORTED reference tagged with
// the share. The share row is locked for the duration of the transaction and
// usedCount is incremented in SQL, so concurrent redemptions of the same
// token cannot lose updates.
func (s *ShareService) RedeemImport(token string, userID uuid.UUID) error {
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var share models.BundleShare
		err := lockForUpdate(tx).First(&share, "token = ?", token).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundError("share token not found")
			}
			return internalError("loading share", err)
		}

		if !share.IsActive() {
			return stateError("share is no longer active")
		}

		bundle, err := s.Bundles.get(tx, share.BundleID)
		if err != nil {
			return err
		}

		if err := s.Bundles.upsertImportedReference(tx, userID, bundle.ID, &share.ID); err != nil {
			return internalError("recording import", err)
		}

		return tx.Model(&models.BundleShare{}).
			Where("id = ?", share.ID).
			Updates(map[string]interface{}{
				"used_count":   gorm.Expr("used_count + 1"),
				"last_used_at": s.now(),
			}).Error
	})
	if err != nil {
		return err
	}

	logger.InfoWithUser(userID.String(), "share_redeemed", nil)
	return nil
}

// RevokeShare terminally deactivates a share and hides every reference that
// came through it. The share row stays for audit.
func (s *ShareService) RevokeShare(shareID, ownerID uuid.UUID) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		share, err := s.loadOwnedShare(tx, shareID, ownerID)
		if err != nil {
			return err
		}

		err = tx.Model(&models.BundleShare{}).
			Where("id = ?", share.ID).
			Updates(map[string]interface{}{
				"status":     models.ShareStatusRevoked,
				"revoked_at": s.now(),
			}).Error
		if err != nil {
			return internalError("revoking share", err)
		}

		return s.hideTaggedReferences(tx, share)
	})
}

// DeleteShare hard-deletes the share row but only hides the tagged
// references, mirroring RevokeShare's effect on importers. The asymmetry
// with the operation's name is deliberate: reference rows are kept as an
// audit trail of who imported through the share.
func (s *ShareService) DeleteShare(shareID, ownerID uuid.UUID) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		share, err := s.loadOwnedShare(tx, shareID, ownerID)
		if err != nil {
			return err
		}

		if err := s.hideTaggedReferences(tx, share); err != nil {
			return err
		}

		if err := tx.Delete(&models.BundleShare{}, "id = ?", share.ID).Error; err != nil {
			return internalError("deleting share", err)
		}
		return nil
	})
}

// RemoveShareUser hides one user's tagged reference and hands back their
// slot in usedCount, floored at zero.
func (s *ShareService) RemoveShareUser(shareID, userID, ownerID uuid.UUID) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		share, err := s.loadOwnedShare(tx, shareID, ownerID)
		if err != nil {
			return err
		}

		// Only a still-visible reference holds a usedCount slot; removing
		// an already-hidden user must not hand the slot back twice.
		var refs []models.BundleReference
		err = tx.Where("user_id = ? AND bundle_id = ? AND share_id = ? AND reference_type = ? AND is_visible = ?",
			userID, share.BundleID, share.ID, models.ReferenceTypeImported, true).
			Find(&refs).Error
		if err != nil {
			return internalError("loading references", err)
		}
		if len(refs) == 0 {
			return notFoundError("user did not import through this share")
		}

		for _, ref := range refs {
			err := tx.Model(&models.BundleReference{}).
				Where("id = ?", ref.ID).
				Update("is_visible", false).Error
			if err != nil {
				return internalError("hiding reference", err)
			}
		}

		return tx.Model(&models.BundleShare{}).
			Where("id = ? AND used_count > 0", share.ID).
			Update("used_count", gorm.Expr("used_count - 1")).Error
	})
}

// ShareUser is one importer of a share, resolved to a username when the
// account still exists.
type ShareUser struct {
	UserID     uuid.UUID  `json:"userID"`
	Username   string     `json:"username"`
	ImportedAt *time.Time `json:"importedAt,omitempty"`
	IsVisible  bool       `json:"isVisible"`
}

func (s *ShareService) ShareUsers(shareID, ownerID uuid.UUID) ([]ShareUser, error) {
	share, err := s.loadOwnedShare(s.DB, shareID, ownerID)
	if err != nil {
		return nil, err
	}

	var refs []models.BundleReference
	err = s.DB.Where("bundle_id = ? AND share_id = ? AND reference_type = ?",
		share.BundleID, share.ID, models.ReferenceTypeImported).
		Find(&refs).Error
	if err != nil {
		return nil, internalError("listing share references", err)
	}

	users := make([]ShareUser, 0, len(refs))
	for _, ref := range refs {
		entry := ShareUser{
			UserID:     ref.UserID,
			Username:   ref.UserID.String(),
			ImportedAt: ref.ImportedAt,
			IsVisible:  ref.IsVisible,
		}
		var user models.User
		if err := s.DB.Select("username").First(&user, "id = ?", ref.UserID).Error; err == nil {
			entry.Username = user.Username
		}
		users = append(users, entry)
	}
	return users, nil
}

func (s *ShareService) loadOwnedShare(tx *gorm.DB, shareID, ownerID uuid.UUID) (*models.BundleShare, error) {
	var share models.BundleShare
	if err := tx.First(&share, "id = ?", shareID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("share not found")
		}
		return nil, internalError("loading share", err)
	}
	if share.OwnerID != ownerID {
		return nil, permissionError("only the share owner may manage it")
	}
	return &share, nil
}

func (s *ShareService) hideTaggedReferences(tx *gorm.DB, share *models.BundleShare) error {
	err := tx.Model(&models.BundleReference{}).
		Where("bundle_id = ? AND share_id = ? AND reference_type = ?",
			share.BundleID, share.ID, models.ReferenceTypeImported).
		Update("is_visible", false).Error
	if err != nil {
		return internalError("hiding tagged references", err)
	}
	return nil
}
