package models

import "github.com/google/uuid"

type GroupMembershipRole string

const (
	GroupRoleOwner  GroupMembershipRole = "OWNER"
	GroupRoleAdmin  GroupMembershipRole = "ADMIN"
	GroupRoleMember GroupMembershipRole = "MEMBER"
)

type GroupMembership struct {
	BaseModel
	UserID  uuid.UUID           `json:"userID" gorm:"type:uuid;not null;index;uniqueIndex:idx_user_group"`
	GroupID uuid.UUID           `json:"groupID" gorm:"type:uuid;not null;index;uniqueIndex:idx_user_group"`
	Role    GroupMembershipRole `json:"role" gorm:"type:varchar(20);not null;default:'MEMBER'"`
	User    User                `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Group   Group               `json:"group,omitempty" gorm:"foreignKey:GroupID"`
}

func (m *GroupMembership) IsOwnerOrAdmin() bool {
	return m.Role == GroupRoleOwner || m.Role == GroupRoleAdmin
}

func IsValidGroupRole(value string) bool {
	switch GroupMembershipRole(value) {
	case GroupRoleOwner, GroupRoleAdmin, GroupRoleMember:
		return true
	default:
		return false
	}
}
