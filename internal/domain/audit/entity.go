// internal/domain/audit/entity.go
package audit

import "time"

// Transaction types
const (
	TypePayment            = "PAYMENT"
	TypeCouponDistribution = "COUPON_DISTRIBUTION"
)

// Transaction statuses
const (
	StatusInitiated = "initiated"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Transaction is an append-only audit record of a meaningful state change.
// Rows are written once per event; the only in-place update is the webhook
// reconciler flipping a payment row from initiated to its terminal status.
type Transaction struct {
	ID              uint     `gorm:"primaryKey" json:"id"`
	Type            string   `gorm:"not null;size:50;index" json:"type"`
	Status          string   `gorm:"not null;size:20" json:"status"`
	OrgID           uint     `gorm:"not null;index" json:"org_id"`
	CouponBatchID   *uint    `gorm:"index" json:"coupon_batch_id,omitempty"`
	CreatedBy       uint     `gorm:"not null;index" json:"created_by"`
	PaymentIntentID string   `gorm:"size:255;index" json:"payment_intent_id,omitempty"`
	Amount          *float64 `json:"amount,omitempty"`
	Currency        string   `gorm:"size:3;default:'usd'" json:"currency"`
	Description     string   `gorm:"type:text" json:"description,omitempty"`
	ErrorMessage    string   `gorm:"type:text" json:"error_message,omitempty"`
	Metadata        string   `gorm:"type:text" json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName overrides the table name
func (Transaction) TableName() string {
	return "transactions"
}
