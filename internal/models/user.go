package models

import "time"

type UserRole string

const (
	RoleAdmin            UserRole = "admin"
	RoleQCEngineer       UserRole = "qc_engineer"
	RoleProductionLeader UserRole = "production_leader"
	RoleQCOperator       UserRole = "qc_operator"
	RoleViewer           UserRole = "viewer"
)

func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleQCEngineer, RoleProductionLeader, RoleQCOperator, RoleViewer:
		return true
	}
	return false
}

type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"uniqueIndex;size:50;not null" json:"username"`
	Email        string    `gorm:"uniqueIndex;size:100;not null" json:"email"`
	FullName     string    `gorm:"size:100" json:"full_name"`
	Role         UserRole  `gorm:"type:varchar(20);not null;default:viewer" json:"role"`
	IsActive     bool      `gorm:"not null" json:"is_active"`
	IsSuperuser  bool      `gorm:"not null;default:false" json:"is_superuser"`
	PasswordHash string    `gorm:"not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasRole reports whether the user's role is one of roles.
func (u *User) HasRole(roles ...UserRole) bool {
	if u == nil {
		return false
	}
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}
