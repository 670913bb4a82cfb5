// internal/domain/user/entity.go
package user

import (
	"time"

	"gorm.io/gorm"
)

// User is the slice of the account model the checkout and coupon flows need:
// an email to notify, a name to address, and an organization link.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	OrgID     *uint          `gorm:"index" json:"org_id,omitempty"`
	Email     string         `gorm:"uniqueIndex;not null;size:255" json:"email"`
	FirstName string         `gorm:"size:100" json:"first_name"`
	LastName  string         `gorm:"size:100" json:"last_name"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Group is a named set of users inside an organization; coupon batches
// target a group.
type Group struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	OrgID     uint      `gorm:"not null;index" json:"org_id"`
	Name      string    `gorm:"not null;size:255" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GroupMember links a user into a group.
type GroupMember struct {
	ID      uint `gorm:"primaryKey" json:"id"`
	GroupID uint `gorm:"not null;index" json:"group_id"`
	UserID  uint `gorm:"not null;index" json:"user_id"`
}

// TableName overrides
func (User) TableName() string        { return "users" }
func (Group) TableName() string       { return "user_groups" }
func (GroupMember) TableName() string { return "user_group_members" }
