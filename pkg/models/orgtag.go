package models

import "time"

// OrganizationTag is a node in the tag forest that scopes document
// visibility. A tag carries only its parent id; descendants are computed by
// query so the cycle check stays a bounded walk.
type OrganizationTag struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	TagID       string    `gorm:"uniqueIndex;not null;size:255" json:"tag_id"`
	Name        string    `gorm:"not null;size:255" json:"name"`
	Description string    `gorm:"size:1024" json:"description,omitempty"`
	ParentTagID *string   `gorm:"size:255;index" json:"parent_tag_id,omitempty"`
	CreatedBy   string    `gorm:"size:255" json:"created_by"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for OrganizationTag.
func (OrganizationTag) TableName() string {
	return "organization_tags"
}

// IsPrivate reports whether this is a per-user private tag.
func (t *OrganizationTag) IsPrivate() bool {
	return len(t.TagID) > len(PrivateTagPrefix) && t.TagID[:len(PrivateTagPrefix)] == PrivateTagPrefix
}
