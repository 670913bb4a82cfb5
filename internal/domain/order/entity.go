// internal/domain/order/entity.go
package order

import "time"

// OrderStatus represents the order status
type OrderStatus string

const (
	OrderStatusPending OrderStatus = "PENDING"
	OrderStatusPaid    OrderStatus = "PAID"
	OrderStatusFailed  OrderStatus = "FAILED"
)

// Order represents a checkout attempt pinned to an external payment intent.
// Status transitions are one-directional: PENDING to PAID or PENDING to
// FAILED, never back.
type Order struct {
	ID              uint        `gorm:"primaryKey" json:"id"`
	OrgID           uint        `gorm:"not null;index" json:"org_id"`
	OrderedBy       uint        `gorm:"not null;index" json:"ordered_by"`
	Subtotal        float64     `gorm:"not null" json:"subtotal"`
	ShippingAmount  float64     `gorm:"not null;default:0" json:"shipping_amount"`
	TotalPrice      float64     `gorm:"not null" json:"total_price"`
	Currency        string      `gorm:"size:3;default:'USD'" json:"currency"`
	Status          OrderStatus `gorm:"not null;default:'PENDING';index" json:"status"`
	PaymentIntentID string      `gorm:"uniqueIndex;not null;size:255" json:"payment_intent_id"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`

	Items []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE;" json:"items,omitempty"`
}

// OrderItem snapshots one cart line at checkout time so later price changes
// do not affect what the customer was charged.
type OrderItem struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	OrderID          uint      `gorm:"not null;index" json:"order_id"`
	ProductVariantID uint      `gorm:"not null;index" json:"product_variant_id"`
	Quantity         int       `gorm:"not null" json:"quantity"`
	UnitPrice        float64   `gorm:"not null" json:"unit_price"`
	TotalPrice       float64   `gorm:"not null" json:"total_price"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName overrides
func (Order) TableName() string     { return "orders" }
func (OrderItem) TableName() string { return "order_items" }

// IsTerminal reports whether the order has reached a final state.
func (o *Order) IsTerminal() bool {
	return o.Status == OrderStatusPaid || o.Status == OrderStatusFailed
}
