package services

import (
	"errors"
	"time"

	"github.com/bundlehub/backend/internal/models"
	"github.com/bundlehub/backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	MinExpireDays = 1
	MaxExpireDays = 365
)

type BundleService struct {
	DB     *gorm.DB
	Crypto *CryptoService
	Access *AccessService

	now func() time.Time
}

func NewBundleService(db *gorm.DB, crypto *CryptoService, access *AccessService) *BundleService {
	return &BundleService{DB: db, Crypto: crypto, Access: access, now: time.Now}
}

type CreateBundleInput struct {
	GroupID     *uuid.UUID
	ShareMode   string
	Name        string
	Description *string
	Tags        *string
	Host        string
	Payload     string
	ExpireDays  int
}

// Create persists a bundle and its OWNER reference in one transaction. Every
// bundle has exactly one OWNER reference from the moment it exists.
func (s *BundleService) Create(ownerID uuid.UUID, in CreateBundleInput) (*models.Bundle, error) {
	if in.ExpireDays < MinExpireDays || in.ExpireDays > MaxExpireDays {
		return nil, validationError("expireDays must be between %d and %d", MinExpireDays, MaxExpireDays)
	}

	mode := models.ShareModeGroupOnly
	if in.ShareMode != "" {
		if !models.IsValidShareMode(in.ShareMode) {
			return nil, validationError("unknown share mode %q", in.ShareMode)
		}
		mode = models.ShareMode(in.ShareMode)
	}

	ciphertext, err := s.Crypto.Encrypt(in.Payload)
	if err != nil {
		return nil, internalError("encrypting payload", err)
	}

	createdAt := s.now()
	bundle := models.Bundle{
		OwnerID:     ownerID,
		GroupID:     in.GroupID,
		ShareMode:   mode,
		Name:        in.Name,
		Description: in.Description,
		Tags:        in.Tags,
		Host:        in.Host,
		Payload:     ciphertext,
		ExpireAt:    createdAt.Add(time.Duration(in.ExpireDays) * 24 * time.Hour),
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&bundle).Error; err != nil {
			return err
		}
		ref := models.BundleReference{
			UserID:    ownerID,
			BundleID:  bundle.ID,
			Type:      models.ReferenceTypeOwner,
			IsVisible: true,
		}
		return tx.Create(&ref).Error
	})
	if err != nil {
		return nil, internalError("creating bundle", err)
	}

	logger.InfoWithUser(ownerID.String(), "bundle_created", map[string]interface{}{
		"bundle_id":  bundle.ID.String(),
		"share_mode": string(mode),
	})

	return &bundle, nil
}

// Get returns the bundle, or a not-found error when the row is absent or
// past its expiry. Expiry is a read-time check, not a backing deletion.
func (s *BundleService) Get(id uuid.UUID) (*models.Bundle, error) {
	return s.get(s.DB, id)
}

func (s *BundleService) get(tx *gorm.DB, id uuid.UUID) (*models.Bundle, error) {
	var bundle models.Bundle
	if err := tx.First(&bundle, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("bundle not found")
		}
		return nil, internalError("loading bundle", err)
	}
	if !bundle.Live(s.now()) {
		return nil, notFoundError("bundle not found")
	}
	return &bundle, nil
}

// Decrypt returns the plaintext payload of a bundle the caller already
// passed access checks for.
func (s *BundleService) Decrypt(bundle *models.Bundle) (string, error) {
	plain, err := s.Crypto.Decrypt(bundle.Payload)
	if err != nil {
		return "", internalError("decrypting payload", err)
	}
	return plain, nil
}

// ListingSource describes how a user came to see a bundle in a listing.
type ListingSource string

const (
	SourceOwner       ListingSource = "OWNER"
	SourceImported    ListingSource = "IMPORTED"
	SourcePublic      ListingSource = "PUBLIC"
	SourceGroupShared ListingSource = "GROUP_SHARED"
)

// BundleListing is a bundle together with how the user came to see it.
type BundleListing struct {
	Bundle models.Bundle `json:"bundle"`
	Source ListingSource `json:"source"`
}

// ListUserBundles returns every live bundle the user can see, deduplicated
// by id. Ownership wins over import, import over public, public over
// group-shared when the same bundle is reachable several ways.
func (s *BundleService) ListUserBundles(userID uuid.UUID) ([]BundleListing, error) {
	now := s.now()
	seen := make(map[uuid.UUID]struct{})
	var listings []BundleListing

	add := func(bundles []models.Bundle, source ListingSource) {
		for _, b := range bundles {
			if _, ok := seen[b.ID]; ok {
				continue
			}
			seen[b.ID] = struct{}{}
			listings = append(listings, BundleListing{Bundle: b, Source: source})
		}
	}

	var owned []models.Bundle
	if err := s.DB.Where("owner_id = ? AND expire_at > ?", userID, now).Find(&owned).Error; err != nil {
		return nil, internalError("listing owned bundles", err)
	}
	add(owned, SourceOwner)

	var imported []models.Bundle
	err := s.DB.
		Joins("JOIN bundle_references ON bundle_references.bundle_id = bundles.id").
		Where("bundle_references.user_id = ?", userID).
		Where("bundle_references.reference_type = ?", models.ReferenceTypeImported).
		Where("bundle_references.is_visible = ?", true).
		Where("bundles.expire_at > ?", now).
		Find(&imported).Error
	if err != nil {
		return nil, internalError("listing imported bundles", err)
	}
	add(imported, SourceImported)

	var public []models.Bundle
	err = s.DB.
		Where("share_mode = ? AND expire_at > ? AND owner_id != ?", models.ShareModePublic, now, userID).
		Find(&public).Error
	if err != nil {
		return nil, internalError("listing public bundles", err)
	}
	add(public, SourcePublic)

	var groupShared []models.Bundle
	err = s.DB.
		Joins("JOIN group_memberships ON group_memberships.group_id = bundles.group_id").
		Where("group_memberships.user_id = ?", userID).
		Where("bundles.share_mode = ?", models.ShareModeGroupOnly).
		Where("bundles.expire_at > ?", now).
		Where("bundles.owner_id != ?", userID).
		Find(&groupShared).Error
	if err != nil {
		return nil, internalError("listing group bundles", err)
	}
	add(groupShared, SourceGroupShared)

	return listings, nil
}

// ListGroupBundles returns the live bundles affiliated with a group.
func (s *BundleService) ListGroupBundles(groupID uuid.UUID) ([]models.Bundle, error) {
	var bundles []models.Bundle
	err := s.DB.
		Where("group_id = ? AND expire_at > ?", groupID, s.now()).
		Order("created_at DESC").
		Find(&bundles).Error
	if err != nil {
		return nil, internalError("listing group bundles", err)
	}
	return bundles, nil
}

// ListAllByOwner is the admin view: every live bundle a user owns,
// regardless of share mode.
func (s *BundleService) ListAllByOwner(ownerID uuid.UUID) ([]models.Bundle, error) {
	var bundles []models.Bundle
	err := s.DB.
		Where("owner_id = ? AND expire_at > ?", ownerID, s.now()).
		Order("created_at DESC").
		Find(&bundles).Error
	if err != nil {
		return nil, internalError("listing bundles by owner", err)
	}
	return bundles, nil
}

func (s *BundleService) CountByGroup(groupID uuid.UUID) (int64, error) {
	var count int64
	err := s.DB.Model(&models.Bundle{}).
		Where("group_id = ? AND expire_at > ?", groupID, s.now()).
		Count(&count).Error
	if err != nil {
		return 0, internalError("counting group bundles", err)
	}
	return count, nil
}

type UpdateBundleInput struct {
	Name        *string
	Description *string
	Tags        *string
	ShareMode   *string
	GroupID     *uuid.UUID
	ClearGroup  bool
	ExpireDays  *int
}

// Update applies only changed fields; only the owner may update.
func (s *BundleService) Update(userID, bundleID uuid.UUID, in UpdateBundleInput) (*models.Bundle, error) {
	bundle, err := s.Get(bundleID)
	if err != nil {
		return nil, err
	}
	if bundle.OwnerID != userID {
		return nil, permissionError("only the owner may update a bundle")
	}

	updates := map[string]interface{}{}

	if in.Name != nil && *in.Name != "" && *in.Name != bundle.Name {
		updates["name"] = *in.Name
	}
	if in.Description != nil {
		updates["description"] = *in.Description
	}
	if in.Tags != nil {
		updates["tags"] = *in.Tags
	}
	if in.ShareMode != nil && *in.ShareMode != "" {
		if !models.IsValidShareMode(*in.ShareMode) {
			return nil, validationError("share mode must be PRIVATE, GROUP_ONLY or PUBLIC")
		}
		if models.ShareMode(*in.ShareMode) != bundle.ShareMode {
			updates["share_mode"] = *in.ShareMode
		}
	}
	if in.ClearGroup {
		updates["group_id"] = nil
	} else if in.GroupID != nil {
		updates["group_id"] = *in.GroupID
	}
	if in.ExpireDays != nil {
		if *in.ExpireDays < MinExpireDays || *in.ExpireDays > MaxExpireDays {
			return nil, validationError("expireDays must be between %d and %d", MinExpireDays, MaxExpireDays)
		}
		updates["expire_at"] = s.now().Add(time.Duration(*in.ExpireDays) * 24 * time.Hour)
	}

	if len(updates) == 0 {
		return bundle, nil
	}

	if err := s.DB.Model(&models.Bundle{}).Where("id = ?", bundleID).Updates(updates).Error; err != nil {
		return nil, internalError("updating bundle", err)
	}
	return s.Get(bundleID)
}

// Delete removes a bundle and everything pointing at it, as one transaction:
// active shares transition to DELETED, imported references are hidden and
// then all reference rows and the bundle row are hard-deleted. On commit no
// reference or share row may still point at the bundle.
func (s *BundleService) Delete(bundleID, userID uuid.UUID) error {
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var bundle models.Bundle
		err := lockForUpdate(tx).First(&bundle, "id = ?", bundleID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundError("bundle not found")
			}
			return internalError("loading bundle", err)
		}
		if bundle.OwnerID != userID {
			return permissionError("only the owner may delete a bundle")
		}
		return s.deleteInTx(tx, &bundle)
	})
	if err != nil {
		return err
	}

	logger.InfoWithUser(userID.String(), "bundle_deleted", map[string]interface{}{
		"bundle_id": bundleID.String(),
	})
	return nil
}

// deleteInTx runs the cascade inside an already-open transaction. Shared
// with the sub-account destructive cascade, which must not re-check
// ownership because the operator there is the parent, not the owner.
func (s *BundleService) deleteInTx(tx *gorm.DB, bundle *models.Bundle) error {
	err := tx.Model(&models.BundleShare{}).
		Where("bundle_id = ? AND status = ?", bundle.ID, models.ShareStatusActive).
		Updates(map[string]interface{}{"status": models.ShareStatusDeleted}).Error
	if err != nil {
		return internalError("marking shares deleted", err)
	}

	err = tx.Model(&models.BundleReference{}).
		Where("bundle_id = ? AND reference_type = ?", bundle.ID, models.ReferenceTypeImported).
		Update("is_visible", false).Error
	if err != nil {
		return internalError("hiding imported references", err)
	}

	if err := tx.Where("bundle_id = ?", bundle.ID).Delete(&models.BundleReference{}).Error; err != nil {
		return internalError("deleting references", err)
	}

	if err := tx.Delete(&models.Bundle{}, "id = ?", bundle.ID).Error; err != nil {
		return internalError("deleting bundle", err)
	}
	return nil
}

// Import grants the caller a visible IMPORTED reference. The operation is
// idempotent: an existing (user, bundle) reference is un-hidden in place
// rather than duplicated. The bundle row is locked so a concurrent delete
// serializes against the import.
func (s *BundleService) Import(userID, bundleID uuid.UUID) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var bundle models.Bundle
		err := lockForUpdate(tx).First(&bundle, "id = ?", bundleID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundError("bundle not found")
			}
			return internalError("loading bundle", err)
		}
		if !bundle.Live(s.now()) {
			return notFoundError("bundle not found")
		}

		if !s.Access.canImport(tx, userID, &bundle) {
			return permissionError("bundle is not importable by this user")
		}

		return s.upsertImportedReference(tx, userID, bundleID, nil)
	})
}

// upsertImportedReference is the idempotent-import step shared by direct
// import and token redemption. shareID tags the reference with the share
// it came through, when there is one.
func (s *BundleService) upsertImportedReference(tx *gorm.DB, userID, bundleID uuid.UUID, shareID *uuid.UUID) error {
	var existing models.BundleReference
	err := tx.Where("user_id = ? AND bundle_id = ?", userID, bundleID).First(&existing).Error
	switch {
	case err == nil:
		updates := map[string]interface{}{"is_visible": true}
		if shareID != nil {
			updates["share_id"] = *shareID
		}
		return tx.Model(&models.BundleReference{}).
			Where("id = ?", existing.ID).
			Updates(updates).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		importedAt := s.now()
		ref := models.BundleReference{
			UserID:     userID,
			BundleID:   bundleID,
			Type:       models.ReferenceTypeImported,
			IsVisible:  true,
			ImportedAt: &importedAt,
			ShareID:    shareID,
		}
		return tx.Create(&ref).Error
	default:
		return internalError("loading reference", err)
	}
}

// RemoveReference hides the caller's reference to a bundle. The row stays;
// a later import makes it visible again.
func (s *BundleService) RemoveReference(bundleID, userID uuid.UUID) error {
	var ref models.BundleReference
	err := s.DB.Where("user_id = ? AND bundle_id = ?", userID, bundleID).First(&ref).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFoundError("no reference to this bundle")
		}
		return internalError("loading reference", err)
	}

	err = s.DB.Model(&models.BundleReference{}).
		Where("id = ?", ref.ID).
		Update("is_visible", false).Error
	if err != nil {
		return internalError("hiding reference", err)
	}
	return nil
}

// HasReference reports whether the user holds a visible reference.
func (s *BundleService) HasReference(userID, bundleID uuid.UUID) (bool, error) {
	var count int64
	err := s.DB.Model(&models.BundleReference{}).
		Where("user_id = ? AND bundle_id = ? AND is_visible = ?", userID, bundleID, true).
		Count(&count).Error
	if err != nil {
		return false, internalError("counting references", err)
	}
	return count > 0, nil
}
