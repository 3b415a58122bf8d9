package model

import "time"

// Roles.  RoleOperator is carried by User.IsOperator and is never stored on a
// Membership; the remaining roles bind a user to one tenant.
const (
	RoleOperator   = "operator"
	RoleDispatcher = "dispatcher" // runs the company: fleet, loads, documents, settings
	RoleOwner      = "owner"      // truck owner client, read-only
	RoleDriver     = "driver"     // read-only
)

// Membership binds a non-operator user to its tenant.  UserID is unique so
// a user can never belong to two companies.
type Membership struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	UserID    uint64    `gorm:"not null;uniqueIndex" json:"user_id"`
	TenantID  uint64    `gorm:"not null;index" json:"tenant_id"`
	Role      string    `gorm:"size:20;not null" json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsMemberRole reports whether role may be stored on a Membership.
func IsMemberRole(role string) bool {
	switch role {
	case RoleDispatcher, RoleOwner, RoleDriver:
		return true
	}
	return false
}
