// internal/domain/cart/entity.go
package cart

import "time"

// Cart belongs to either a user or an anonymous session, never both.
// At most one cart exists per user and per session token.
type Cart struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    *uint     `gorm:"uniqueIndex" json:"user_id,omitempty"`
	SessionID *string   `gorm:"uniqueIndex;size:64" json:"session_id,omitempty"`
	OrgID     *uint     `gorm:"index" json:"org_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Items []CartItem `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE;" json:"items,omitempty"`
}

// CartItem references a product variant with a quantity and an optional
// customization snapshot captured at add time. Two items are the same line
// iff they share the variant and the customization key (both absent counts
// as equal), so merges increment quantity instead of inserting.
type CartItem struct {
	ID                    uint      `gorm:"primaryKey" json:"id"`
	CartID                uint      `gorm:"not null;index" json:"cart_id"`
	ProductVariantID      uint      `gorm:"not null;index" json:"product_variant_id"`
	Quantity              int       `gorm:"not null;default:1" json:"quantity"`
	CustomizationKey      *string   `gorm:"size:64;index" json:"customization_key,omitempty"`
	CustomizationSnapshot *string   `gorm:"type:text" json:"customization_snapshot,omitempty"`
	PreviewImageURL       *string   `gorm:"size:1024" json:"preview_image_url,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// TableName overrides
func (Cart) TableName() string     { return "carts" }
func (CartItem) TableName() string { return "cart_items" }

// PricedLine is a cart item joined to current variant and product pricing.
type PricedLine struct {
	CartItemID            uint    `json:"cart_item_id"`
	ProductVariantID      uint    `json:"product_variant_id"`
	Quantity              int     `json:"quantity"`
	BasePrice             float64 `json:"base_price"`
	VariantPrice          float64 `json:"variant_price"`
	ProductID             uint    `json:"product_id"`
	ProductName           string  `json:"product_name"`
	ProductSlug           string  `json:"product_slug"`
	SKU                   string  `json:"sku"`
	Color                 string  `json:"color"`
	Size                  string  `json:"size"`
	CustomizationSnapshot *string `json:"customization_snapshot,omitempty"`
	PreviewImageURL       *string `json:"preview_image_url,omitempty"`
}

// UnitPrice is the per-unit price of the line: base price plus variant surcharge.
func (l PricedLine) UnitPrice() float64 {
	return l.BasePrice + l.VariantPrice
}
