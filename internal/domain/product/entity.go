// internal/domain/product/entity.go
package product

import (
	"time"

	"gorm.io/gorm"
)

// Product represents a catalog product. The checkout core only reads base
// pricing from it; catalog management lives elsewhere.
type Product struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	OrgID     *uint          `gorm:"index" json:"org_id,omitempty"`
	Name      string         `gorm:"not null;size:255" json:"name"`
	Slug      string         `gorm:"uniqueIndex;size:255" json:"slug"`
	BasePrice float64        `gorm:"not null;default:0" json:"base_price"`
	IsActive  bool           `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Variants []ProductVariant `gorm:"foreignKey:ProductID" json:"variants,omitempty"`
}

// ProductVariant represents a purchasable variation (color/size) of a product.
// Its price is a surcharge on top of the product's base price.
type ProductVariant struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ProductID uint      `gorm:"not null;index" json:"product_id"`
	SKU       string    `gorm:"size:100;index" json:"sku"`
	Color     string    `gorm:"size:50" json:"color"`
	Size      string    `gorm:"size:50" json:"size"`
	Price     float64   `gorm:"not null;default:0" json:"price"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName overrides
func (Product) TableName() string        { return "products" }
func (ProductVariant) TableName() string { return "product_variants" }
