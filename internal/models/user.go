package models

import (
	"strings"
	"time"
)

type UserRole string

const (
	RoleStudent  UserRole = "student"
	RoleLecturer UserRole = "lecturer"
	RoleAdmin    UserRole = "admin"
)

func (r UserRole) IsValid() bool {
	switch r {
	case RoleStudent, RoleLecturer, RoleAdmin:
		return true
	}
	return false
}

type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
)

func (s UserStatus) IsValid() bool {
	return s == UserStatusActive || s == UserStatusSuspended
}

type User struct {
	ID     string     `json:"id" gorm:"primaryKey;size:255"`
	Email  string     `json:"email" gorm:"uniqueIndex;not null;size:255"`
	Name   string     `json:"name" gorm:"not null;size:100"`
	Role   UserRole   `json:"role" gorm:"index;not null;size:20"`
	Status UserStatus `json:"status" gorm:"not null;size:20;default:active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) IsActive() bool {
	return u.Status == UserStatusActive
}

// NormalizeEmail is applied to every email before it is stored or looked up.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Actor is the authenticated caller of a core operation.
type Actor struct {
	ID   string   `json:"id"`
	Role UserRole `json:"role"`
}

func (a Actor) IsAdmin() bool    { return a.Role == RoleAdmin }
func (a Actor) IsLecturer() bool { return a.Role == RoleLecturer }
func (a Actor) IsStudent() bool  { return a.Role == RoleStudent }
