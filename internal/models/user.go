package models

import "github.com/google/uuid"

type UserRole string

const (
	UserRoleGlobalAdmin UserRole = "GLOBAL_ADMIN"
	UserRoleGroupOwner  UserRole = "GROUP_OWNER"
	UserRoleNormal      UserRole = "NORMAL_USER"
)

type UserStatus string

const (
	UserStatusActive   UserStatus = "ACTIVE"
	UserStatusDisabled UserStatus = "DISABLED"
	UserStatusBanned   UserStatus = "BANNED"
)

// User is an account holder. ParentUserID forms exactly one level of
// hierarchy: a sub-account's parent must itself have no parent.
type User struct {
	BaseModel
	Username         string            `json:"username" gorm:"type:varchar(100);uniqueIndex;not null"`
	PasswordHash     string            `json:"-" gorm:"type:text;not null"`
	Email            *string           `json:"email,omitempty" gorm:"type:varchar(255)"`
	DisplayName      string            `json:"displayName" gorm:"type:varchar(100);not null"`
	Role             UserRole          `json:"role" gorm:"type:varchar(20);not null;default:'NORMAL_USER';index"`
	Status           UserStatus        `json:"status" gorm:"type:varchar(20);not null;default:'ACTIVE'"`
	ParentUserID     *uuid.UUID        `json:"parentUserID,omitempty" gorm:"type:uuid;index"`
	GroupMemberships []GroupMembership `json:"-" gorm:"foreignKey:UserID"`
	Bundles          []Bundle          `json:"-" gorm:"foreignKey:OwnerID"`
}

func IsValidUserRole(role UserRole) bool {
	switch role {
	case UserRoleGlobalAdmin, UserRoleGroupOwner, UserRoleNormal:
		return true
	}
	return false
}

func (u *User) IsGlobalAdmin() bool {
	return u.Role == UserRoleGlobalAdmin
}

func (u *User) IsActive() bool {
	return u.Status == UserStatusActive
}

func (u *User) IsSubAccount() bool {
	return u.ParentUserID != nil
}
