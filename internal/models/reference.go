package models

import (
	"time"

	"github.com/google/uuid"
)

type ReferenceType string

const (
	ReferenceTypeOwner       ReferenceType = "OWNER"
	ReferenceTypeImported    ReferenceType = "IMPORTED"
	ReferenceTypeGroupShared ReferenceType = "GROUP_SHARED"
)

// BundleReference is the per-user visibility record over a bundle. At most
// one row exists per (user, bundle); re-import un-hides the existing row
// instead of inserting a duplicate.
type BundleReference struct {
	BaseModel
	UserID     uuid.UUID     `json:"userID" gorm:"type:uuid;not null;index;uniqueIndex:idx_user_bundle"`
	BundleID   uuid.UUID     `json:"bundleID" gorm:"type:uuid;not null;index;uniqueIndex:idx_user_bundle"`
	Type       ReferenceType `json:"type" gorm:"column:reference_type;type:varchar(20);not null"`
	IsVisible  bool          `json:"isVisible" gorm:"not null;default:true"`
	ImportedAt *time.Time    `json:"importedAt,omitempty"`
	ShareID    *uuid.UUID    `json:"shareID,omitempty" gorm:"type:uuid;index"`

	User   User   `json:"user,omitempty" gorm:"foreignKey:UserID;references:ID"`
	Bundle Bundle `json:"bundle,omitempty" gorm:"foreignKey:BundleID;references:ID"`
}

func (BundleReference) TableName() string {
	return "bundle_references"
}
