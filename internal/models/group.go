package models

import "github.com/google/uuid"

type GroupStatus string

const (
	GroupStatusActive   GroupStatus = "ACTIVE"
	GroupStatusDisabled GroupStatus = "DISABLED"
)

const DefaultGroupMaxMembers = 100

type Group struct {
	BaseModel
	Name        string            `json:"name" gorm:"type:varchar(100);uniqueIndex;not null"`
	OwnerID     uuid.UUID         `json:"ownerID" gorm:"type:uuid;not null;index"`
	Description *string           `json:"description,omitempty" gorm:"type:text"`
	Status      GroupStatus       `json:"status" gorm:"type:varchar(20);not null;default:'ACTIVE'"`
	MaxMembers  int               `json:"maxMembers" gorm:"not null;default:100"`
	Memberships []GroupMembership `json:"-" gorm:"foreignKey:GroupID"`
}
