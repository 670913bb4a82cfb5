// internal/domain/cart/service.go
package cart

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/your-org/merchstore-backend/internal/domain/identity"
	"github.com/your-org/merchstore-backend/internal/pkg/apperror"
	"gorm.io/gorm"
)

// Service handles cart business logic
type Service struct {
	db  *gorm.DB
	log *logrus.Logger
}

// NewService creates a new cart service
func NewService(db *gorm.DB, log *logrus.Logger) *Service {
	return &Service{db: db, log: log}
}

// AddItemInput represents an add-to-cart request. The customization fields
// are only present for personalized products.
type AddItemInput struct {
	ProductVariantID uint `json:"product_variant_id" binding:"required"`
	Quantity         int  `json:"quantity" binding:"required,min=1"`

	CustomProductID       *uint  `json:"custom_product_id,omitempty"`
	CustomURL             string `json:"custom_url,omitempty"`
	LogoVariantIDs        []uint `json:"logo_variant_ids,omitempty"`
	ProductVariantImageID *uint  `json:"product_variant_image_id,omitempty"`
}

// customizationSnapshot is what gets frozen into the cart row so later
// catalog edits do not alter an already-configured item.
type customizationSnapshot struct {
	CustomProductID       uint   `json:"custom_product_id"`
	LogoVariantIDs        []uint `json:"logo_variant_ids"`
	ProductVariantImageID *uint  `json:"product_variant_image_id,omitempty"`
}

// CartTotals represents calculated cart totals
type CartTotals struct {
	ItemCount     int     `json:"item_count"`
	TotalQuantity int     `json:"total_quantity"`
	Subtotal      float64 `json:"subtotal"`
}

// CartResponse represents a cart with priced line items
type CartResponse struct {
	CartID uint         `json:"cart_id"`
	Items  []PricedLine `json:"items"`
	Totals CartTotals   `json:"totals"`
}

// GetOrCreateCart resolves the cart for an identity, creating one lazily.
// Runs on the caller's transaction handle.
func (s *Service) GetOrCreateCart(tx *gorm.DB, id identity.Identity) (*Cart, error) {
	if id.IsAnonymous() {
		return nil, apperror.Validation("user or session identity required")
	}

	var existing Cart
	var err error
	if id.IsAuthenticated() {
		err = tx.Where("user_id = ?", *id.UserID).First(&existing).Error
	} else {
		err = tx.Where("session_id = ?", id.SessionToken).First(&existing).Error
	}
	if err == nil {
		return &existing, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("failed to look up cart: %w", err)
	}

	newCart := Cart{OrgID: id.OrgID}
	if id.IsAuthenticated() {
		newCart.UserID = id.UserID
	} else {
		token := id.SessionToken
		newCart.SessionID = &token
	}
	if err := tx.Create(&newCart).Error; err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}
	return &newCart, nil
}

// AddItem adds an item to the identity's cart inside one transaction.
// An identical line (same variant, same customization) is incremented
// instead of duplicated.
func (s *Service) AddItem(id identity.Identity, input *AddItemInput) error {
	if input.ProductVariantID == 0 {
		return apperror.Validation("product_variant_id is required")
	}
	if input.Quantity < 1 {
		return apperror.Validation("quantity must be at least 1")
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		c, err := s.GetOrCreateCart(tx, id)
		if err != nil {
			return err
		}

		var customizationKey *string
		var snapshotJSON *string
		var previewURL *string

		if input.CustomProductID != nil {
			key := strconv.FormatUint(uint64(*input.CustomProductID), 10)
			customizationKey = &key

			logoIDs := input.LogoVariantIDs
			if logoIDs == nil {
				logoIDs = []uint{}
			}
			raw, err := json.Marshal(customizationSnapshot{
				CustomProductID:       *input.CustomProductID,
				LogoVariantIDs:        logoIDs,
				ProductVariantImageID: input.ProductVariantImageID,
			})
			if err != nil {
				return fmt.Errorf("failed to serialize customization snapshot: %w", err)
			}
			snapshot := string(raw)
			snapshotJSON = &snapshot
			if input.CustomURL != "" {
				url := input.CustomURL
				previewURL = &url
			}
		}

		existing, err := findMatchingItem(tx, c.ID, input.ProductVariantID, customizationKey)
		if err != nil {
			return err
		}
		if existing != nil {
			return tx.Model(&CartItem{}).Where("id = ?", existing.ID).
				Update("quantity", gorm.Expr("quantity + ?", input.Quantity)).Error
		}

		item := CartItem{
			CartID:                c.ID,
			ProductVariantID:      input.ProductVariantID,
			Quantity:              input.Quantity,
			CustomizationKey:      customizationKey,
			CustomizationSnapshot: snapshotJSON,
			PreviewImageURL:       previewURL,
		}
		return tx.Create(&item).Error
	})
}

// findMatchingItem looks up the line that is "identical" to the incoming one:
// same variant, and either both without customization or the same key.
func findMatchingItem(tx *gorm.DB, cartID, variantID uint, customizationKey *string) (*CartItem, error) {
	query := tx.Where("cart_id = ? AND product_variant_id = ?", cartID, variantID)
	if customizationKey != nil {
		query = query.Where("customization_key = ?", *customizationKey)
	} else {
		query = query.Where("customization_key IS NULL")
	}

	var item CartItem
	err := query.First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up cart item: %w", err)
	}
	return &item, nil
}

// GetCart retrieves the identity's cart with priced line items.
func (s *Service) GetCart(id identity.Identity) (*CartResponse, error) {
	if id.IsAnonymous() {
		return nil, apperror.Validation("user or session identity required")
	}

	var c Cart
	var err error
	if id.IsAuthenticated() {
		err = s.db.Where("user_id = ?", *id.UserID).First(&c).Error
	} else {
		err = s.db.Where("session_id = ?", id.SessionToken).First(&c).Error
	}
	if err == gorm.ErrRecordNotFound {
		// No cart yet is an empty cart, not an error
		return &CartResponse{Items: []PricedLine{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve cart: %w", err)
	}

	lines, err := s.loadPricedLines(s.db, c.ID)
	if err != nil {
		return nil, err
	}

	return &CartResponse{
		CartID: c.ID,
		Items:  lines,
		Totals: calculateTotals(lines),
	}, nil
}

// PricedLinesForUser loads the user's cart joined to current prices.
// Checkout uses this to compute the charge total.
func (s *Service) PricedLinesForUser(tx *gorm.DB, userID uint) ([]PricedLine, error) {
	var c Cart
	err := tx.Where("user_id = ?", userID).First(&c).Error
	if err == gorm.ErrRecordNotFound {
		return []PricedLine{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve cart: %w", err)
	}
	return s.loadPricedLines(tx, c.ID)
}

func (s *Service) loadPricedLines(tx *gorm.DB, cartID uint) ([]PricedLine, error) {
	var lines []PricedLine
	err := tx.Table("cart_items").
		Select(`cart_items.id AS cart_item_id,
			cart_items.quantity,
			cart_items.customization_snapshot,
			cart_items.preview_image_url,
			product_variants.id AS product_variant_id,
			product_variants.price AS variant_price,
			product_variants.sku,
			product_variants.color,
			product_variants.size,
			products.id AS product_id,
			products.base_price,
			products.name AS product_name,
			products.slug AS product_slug`).
		Joins("JOIN product_variants ON product_variants.id = cart_items.product_variant_id").
		Joins("JOIN products ON products.id = product_variants.product_id").
		Where("cart_items.cart_id = ? AND products.deleted_at IS NULL", cartID).
		Order("cart_items.created_at DESC").
		Scan(&lines).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load cart lines: %w", err)
	}
	return lines, nil
}

// UpdateItemQuantity sets the quantity of a cart line. The update is scoped
// by the owning identity so one caller cannot touch another's rows.
func (s *Service) UpdateItemQuantity(id identity.Identity, itemID uint, quantity int) error {
	if quantity < 1 {
		return apperror.Validation("quantity must be at least 1")
	}
	return s.mutateOwnedItem(id, itemID, func(scope *gorm.DB) *gorm.DB {
		return scope.Update("quantity", quantity)
	})
}

// RemoveItem deletes a cart line, scoped by the owning identity.
func (s *Service) RemoveItem(id identity.Identity, itemID uint) error {
	if id.IsAnonymous() {
		return apperror.Validation("user or session identity required")
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		c, err := s.ownedCart(tx, id)
		if err != nil {
			return err
		}
		result := tx.Where("id = ? AND cart_id = ?", itemID, c.ID).Delete(&CartItem{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return apperror.NotFound("cart item not found")
		}
		return nil
	})
}

func (s *Service) mutateOwnedItem(id identity.Identity, itemID uint, mutate func(scope *gorm.DB) *gorm.DB) error {
	if id.IsAnonymous() {
		return apperror.Validation("user or session identity required")
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		c, err := s.ownedCart(tx, id)
		if err != nil {
			return err
		}
		result := mutate(tx.Model(&CartItem{}).Where("id = ?", itemID).Where("cart_id = ?", c.ID))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return apperror.NotFound("cart item not found")
		}
		return nil
	})
}

func (s *Service) ownedCart(tx *gorm.DB, id identity.Identity) (*Cart, error) {
	var c Cart
	var err error
	if id.IsAuthenticated() {
		err = tx.Where("user_id = ?", *id.UserID).First(&c).Error
	} else {
		err = tx.Where("session_id = ?", id.SessionToken).First(&c).Error
	}
	if err == gorm.ErrRecordNotFound {
		return nil, apperror.NotFound("cart item not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up cart: %w", err)
	}
	return &c, nil
}

// MergeGuestCart folds a guest cart into the user's cart after login.
// The whole merge runs in a single transaction so a retry after partial
// failure cannot double-count quantities.
func (s *Service) MergeGuestCart(sessionToken string, userID uint, orgID *uint) error {
	if sessionToken == "" {
		return nil
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		var guestCart Cart
		err := tx.Where("session_id = ?", sessionToken).First(&guestCart).Error
		if err == gorm.ErrRecordNotFound {
			return nil // nothing to merge
		}
		if err != nil {
			return fmt.Errorf("failed to look up guest cart: %w", err)
		}

		var userCart Cart
		err = tx.Where("user_id = ?", userID).First(&userCart).Error
		if err == gorm.ErrRecordNotFound {
			// User has no cart yet: re-parent the guest cart in place
			return tx.Model(&Cart{}).Where("id = ?", guestCart.ID).
				Updates(map[string]interface{}{
					"user_id":    userID,
					"session_id": nil,
					"org_id":     orgID,
				}).Error
		}
		if err != nil {
			return fmt.Errorf("failed to look up user cart: %w", err)
		}

		var guestItems []CartItem
		if err := tx.Where("cart_id = ?", guestCart.ID).Find(&guestItems).Error; err != nil {
			return fmt.Errorf("failed to load guest cart items: %w", err)
		}

		for _, item := range guestItems {
			existing, err := findMatchingItem(tx, userCart.ID, item.ProductVariantID, item.CustomizationKey)
			if err != nil {
				return err
			}
			if existing != nil {
				if err := tx.Model(&CartItem{}).Where("id = ?", existing.ID).
					Update("quantity", gorm.Expr("quantity + ?", item.Quantity)).Error; err != nil {
					return err
				}
				if err := tx.Delete(&CartItem{}, item.ID).Error; err != nil {
					return err
				}
			} else {
				if err := tx.Model(&CartItem{}).Where("id = ?", item.ID).
					Update("cart_id", userCart.ID).Error; err != nil {
					return err
				}
			}
		}

		return tx.Delete(&Cart{}, guestCart.ID).Error
	})
}

// ClearCartForUser deletes all cart rows for a user. The webhook reconciler
// calls this on its own transaction after an order is paid.
func (s *Service) ClearCartForUser(tx *gorm.DB, userID uint) error {
	var c Cart
	err := tx.Where("user_id = ?", userID).First(&c).Error
	if err == gorm.ErrRecordNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up cart: %w", err)
	}
	if err := tx.Where("cart_id = ?", c.ID).Delete(&CartItem{}).Error; err != nil {
		return fmt.Errorf("failed to clear cart items: %w", err)
	}
	return nil
}

func calculateTotals(lines []PricedLine) CartTotals {
	var totals CartTotals
	totals.ItemCount = len(lines)
	for _, line := range lines {
		totals.TotalQuantity += line.Quantity
		totals.Subtotal += line.UnitPrice() * float64(line.Quantity)
	}
	return totals
}
