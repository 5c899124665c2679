package models

import (
	"strings"
	"time"
)

// UserRole represents the role of a user in the system.
type UserRole string

const (
	// RoleUser is a regular user with limited permissions.
	RoleUser UserRole = "USER"
	// RoleAdmin is an administrator with full permissions.
	RoleAdmin UserRole = "ADMIN"
)

// IsValid checks if the role is a valid UserRole.
func (r UserRole) IsValid() bool {
	return r == RoleUser || r == RoleAdmin
}

// PrivateTagPrefix prefixes the per-user tag created at registration.
const PrivateTagPrefix = "PRIVATE_"

// DefaultTagID is the universal-scope tag every user implicitly carries.
const DefaultTagID = "DEFAULT"

// User represents an account that can upload, search and chat.
//
// Assigned organization tags are stored as an ordered comma-separated list;
// the primary tag is the default scope applied to uploads that do not name
// one explicitly.
type User struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username      string    `gorm:"uniqueIndex;not null;size:255" json:"username"`
	PasswordHash  string    `gorm:"not null" json:"-"`
	Role          string    `gorm:"default:USER;size:50" json:"role"`
	OrgTags       string    `gorm:"size:1024" json:"org_tags"`
	PrimaryOrgTag string    `gorm:"size:255" json:"primary_org_tag"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for User.
func (User) TableName() string {
	return "users"
}

// IsAdmin reports whether the user carries the ADMIN role.
func (u *User) IsAdmin() bool {
	return UserRole(u.Role) == RoleAdmin
}

// AssignedTags returns the ordered assigned tag list, empty entries dropped.
func (u *User) AssignedTags() []string {
	if u.OrgTags == "" {
		return nil
	}
	parts := strings.Split(u.OrgTags, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}

// SetAssignedTags replaces the assigned tag list preserving order.
func (u *User) SetAssignedTags(tags []string) {
	u.OrgTags = strings.Join(tags, ",")
}

// HasAssignedTag reports whether tagID appears literally in the assigned set.
// Comparison is byte-exact; tag ids are case-sensitive.
func (u *User) HasAssignedTag(tagID string) bool {
	for _, t := range u.AssignedTags() {
		if t == tagID {
			return true
		}
	}
	return false
}

// PrivateTagID returns the well-known private tag id for a login name.
func PrivateTagID(username string) string {
	return PrivateTagPrefix + username
}
