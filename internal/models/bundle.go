package models

import (
	"time"

	"github.com/google/uuid"
)

type ShareMode string

const (
	// ShareModePrivate is capability-based: anyone holding the bundle id or
	// an active share token may import. It is not literally private.
	ShareModePrivate ShareMode = "PRIVATE"
	// ShareModeGroupOnly restricts access to members of the bundle's group.
	ShareModeGroupOnly ShareMode = "GROUP_ONLY"
	// ShareModePublic grants access to every authenticated user.
	ShareModePublic ShareMode = "PUBLIC"
)

// Bundle is the shareable unit of encrypted session data. Payload is opaque
// ciphertext; the backend never inspects it.
type Bundle struct {
	BaseModel
	OwnerID     uuid.UUID  `json:"ownerID" gorm:"type:uuid;not null;index"`
	GroupID     *uuid.UUID `json:"groupID,omitempty" gorm:"type:uuid;index"`
	ShareMode   ShareMode  `json:"shareMode" gorm:"type:varchar(20);not null;default:'GROUP_ONLY';index"`
	Name        string     `json:"name" gorm:"type:varchar(255);not null"`
	Description *string    `json:"description,omitempty" gorm:"type:text"`
	Tags        *string    `json:"tags,omitempty" gorm:"type:text"`
	Host        string     `json:"host" gorm:"type:varchar(255)"`
	Payload     string     `json:"-" gorm:"type:text;not null"`
	ExpireAt    time.Time  `json:"expireAt" gorm:"not null;index"`

	Owner      User              `json:"owner,omitempty" gorm:"foreignKey:OwnerID;references:ID"`
	References []BundleReference `json:"-" gorm:"foreignKey:BundleID"`
	Shares     []BundleShare     `json:"-" gorm:"foreignKey:BundleID"`
}

// Live reports whether the bundle is visible to reads. Expired rows stay in
// storage but must behave as absent.
func (b *Bundle) Live(now time.Time) bool {
	return now.Before(b.ExpireAt)
}

func IsValidShareMode(value string) bool {
	switch ShareMode(value) {
	case ShareModePrivate, ShareModeGroupOnly, ShareModePublic:
		return true
	default:
		return false
	}
}
