// internal/domain/coupon/entity.go
package coupon

import (
	"time"

	"gorm.io/gorm"
)

// BatchPaymentStatus tracks whether a distribution batch has been funded.
type BatchPaymentStatus string

const (
	BatchPaymentPending BatchPaymentStatus = "pending"
	BatchPaymentPaid    BatchPaymentStatus = "paid"
	BatchPaymentFailed  BatchPaymentStatus = "failed"
)

// Batch is a funded coupon distribution: an admin pays once and every member
// of the target group receives an individual coupon for the batch amount.
type Batch struct {
	ID              uint               `gorm:"primaryKey" json:"id"`
	OrgID           uint               `gorm:"not null;index" json:"org_id"`
	GroupID         uint               `gorm:"not null;index" json:"group_id"`
	Name            string             `gorm:"not null;size:255" json:"name"`
	Description     string             `gorm:"type:text" json:"description"`
	Amount          float64            `gorm:"not null" json:"amount"`
	PaymentStatus   BatchPaymentStatus `gorm:"not null;default:'pending';index" json:"payment_status"`
	PaymentIntentID string             `gorm:"uniqueIndex;not null;size:255" json:"payment_intent_id"`
	CreatedBy       uint               `gorm:"not null" json:"created_by"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
	DeletedAt       gorm.DeletedAt     `gorm:"index" json:"-"`

	Coupons []Coupon `gorm:"foreignKey:CouponBatchID" json:"coupons,omitempty"`
}

// Coupon is one user's voucher from a batch.
type Coupon struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	OrgID         uint           `gorm:"not null;index" json:"org_id"`
	UserID        uint           `gorm:"not null;index" json:"user_id"`
	CouponBatchID uint           `gorm:"not null;index" json:"coupon_batch_id"`
	GroupID       uint           `gorm:"not null" json:"group_id"`
	Amount        float64        `gorm:"not null" json:"amount"`
	CouponCode    string         `gorm:"uniqueIndex;not null;size:14" json:"coupon_code"`
	IsUsed        bool           `gorm:"not null;default:false" json:"is_used"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName overrides
func (Batch) TableName() string  { return "coupon_batches" }
func (Coupon) TableName() string { return "coupons" }
