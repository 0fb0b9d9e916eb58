package models

import (
	"time"

	"github.com/google/uuid"
)

type ShareStatus string

const (
	ShareStatusActive  ShareStatus = "ACTIVE"
	ShareStatusRevoked ShareStatus = "REVOKED"
	ShareStatusDeleted ShareStatus = "DELETED"
)

// BundleShare is a revocable capability token granting import rights to a
// bundle independent of group membership. REVOKED and DELETED are terminal.
type BundleShare struct {
	BaseModel
	BundleID   uuid.UUID   `json:"bundleID" gorm:"type:uuid;not null;index"`
	OwnerID    uuid.UUID   `json:"ownerID" gorm:"type:uuid;not null;index"`
	Token      string      `json:"token" gorm:"type:varchar(64);uniqueIndex;not null"`
	Status     ShareStatus `json:"status" gorm:"type:varchar(20);not null;default:'ACTIVE'"`
	UsedCount  int         `json:"usedCount" gorm:"not null;default:0"`
	LastUsedAt *time.Time  `json:"lastUsedAt,omitempty"`
	RevokedAt  *time.Time  `json:"revokedAt,omitempty"`

	Bundle Bundle `json:"bundle,omitempty" gorm:"foreignKey:BundleID;references:ID"`
	Owner  User   `json:"owner,omitempty" gorm:"foreignKey:OwnerID;references:ID"`
}

func (BundleShare) TableName() string {
	return "bundle_shares"
}

func (s *BundleShare) IsActive() bool {
	return s.Status == ShareStatusActive
}
