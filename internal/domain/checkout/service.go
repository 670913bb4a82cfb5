// internal/domain/checkout/service.go
package checkout

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/your-org/merchstore-backend/internal/config"
	"github.com/your-org/merchstore-backend/internal/domain/audit"
	"github.com/your-org/merchstore-backend/internal/domain/cart"
	"github.com/your-org/merchstore-backend/internal/domain/identity"
	"github.com/your-org/merchstore-backend/internal/domain/order"
	"github.com/your-org/merchstore-backend/internal/domain/payment"
	"github.com/your-org/merchstore-backend/internal/pkg/apperror"
	"gorm.io/gorm"
)

// Service orchestrates checkout: it turns a cart into a provider payment
// intent plus a local PENDING order, atomically.
type Service struct {
	db          *gorm.DB
	provider    payment.Provider
	cartService *cart.Service
	auditLog    *audit.Logger
	config      *config.Config
	log         *logrus.Logger
}

// NewService creates a new checkout service
func NewService(db *gorm.DB, provider payment.Provider, cartService *cart.Service, auditLog *audit.Logger, cfg *config.Config, log *logrus.Logger) *Service {
	return &Service{
		db:          db,
		provider:    provider,
		cartService: cartService,
		auditLog:    auditLog,
		config:      cfg,
		log:         log,
	}
}

// CreateIntentResult is what the checkout endpoint returns to the client.
type CreateIntentResult struct {
	ClientSecret string  `json:"clientSecret"`
	OrderID      uint    `json:"orderId"`
	Total        float64 `json:"total"`
	Subtotal     float64 `json:"subtotal"`
	Shipping     float64 `json:"shipping"`
}

// Pricing is the computed charge breakdown for a cart.
type Pricing struct {
	Subtotal float64
	Shipping float64
	Total    float64
}

// AmountMinorUnits converts the total to the provider's integer minor units.
func (p Pricing) AmountMinorUnits() int64 {
	return int64(math.Round(p.Total * 100))
}

// CreatePaymentIntent runs the checkout flow for an authenticated identity:
// price the cart, reuse a still-open pending intent if one exists, otherwise
// create a new intent under a deterministic idempotency key and persist the
// PENDING order with its line items and audit row in one transaction.
func (s *Service) CreatePaymentIntent(ctx context.Context, id identity.Identity) (*CreateIntentResult, error) {
	if !id.IsAuthenticated() {
		return nil, apperror.Authorization("authentication required")
	}
	if id.OrgID == nil {
		return nil, apperror.Validation("your account is not linked to an organisation")
	}
	userID := *id.UserID
	orgID := *id.OrgID

	lines, err := s.cartService.PricedLinesForUser(s.db, userID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, apperror.Validation("your cart is empty")
	}

	pricing := s.computePricing(lines)

	// A retrying user with an unchanged cart should get their open intent
	// back, not a duplicate.
	if result, ok := s.reusePendingOrder(ctx, userID); ok {
		return result, nil
	}

	idempotencyKey := IdempotencyKey(userID, lines)

	intent, err := s.provider.CreateIntent(ctx, payment.CreateIntentParams{
		AmountMinorUnits: pricing.AmountMinorUnits(),
		Currency:         s.config.Payment.Currency,
		Metadata: map[string]string{
			"type":    payment.IntentTypeOrder,
			"user_id": strconv.FormatUint(uint64(userID), 10),
			"org_id":  strconv.FormatUint(uint64(orgID), 10),
		},
	}, idempotencyKey)
	if err != nil {
		return nil, err
	}

	var orderID uint
	err = s.db.Transaction(func(tx *gorm.DB) error {
		newOrder := order.Order{
			OrgID:           orgID,
			OrderedBy:       userID,
			Subtotal:        pricing.Subtotal,
			ShippingAmount:  pricing.Shipping,
			TotalPrice:      pricing.Total,
			Currency:        "USD",
			Status:          order.OrderStatusPending,
			PaymentIntentID: intent.ID,
		}
		if err := tx.Create(&newOrder).Error; err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}
		orderID = newOrder.ID

		items := make([]order.OrderItem, 0, len(lines))
		for _, line := range lines {
			unitPrice := line.UnitPrice()
			items = append(items, order.OrderItem{
				OrderID:          newOrder.ID,
				ProductVariantID: line.ProductVariantID,
				Quantity:         line.Quantity,
				UnitPrice:        unitPrice,
				TotalPrice:       round2(unitPrice * float64(line.Quantity)),
			})
		}
		if err := tx.Create(&items).Error; err != nil {
			return fmt.Errorf("failed to create order items: %w", err)
		}

		total := pricing.Total
		s.auditLog.LogTx(tx, audit.Entry{
			Type:            audit.TypePayment,
			Status:          audit.StatusInitiated,
			OrgID:           orgID,
			CreatedBy:       userID,
			PaymentIntentID: intent.ID,
			Amount:          &total,
			Description:     fmt.Sprintf("Order #%d payment initiated", newOrder.ID),
			Metadata: map[string]interface{}{
				"order_id":   newOrder.ID,
				"item_count": len(lines),
			},
		})
		return nil
	})
	if err != nil {
		// The remote intent is orphaned but harmless: the idempotency key
		// makes a retry land on the same one.
		return nil, err
	}

	return &CreateIntentResult{
		ClientSecret: intent.ClientSecret,
		OrderID:      orderID,
		Total:        pricing.Total,
		Subtotal:     pricing.Subtotal,
		Shipping:     pricing.Shipping,
	}, nil
}

// reusePendingOrder checks whether the user's most recent PENDING order
// still has an open intent at the provider. If retrieval fails the caller
// just creates a fresh intent.
func (s *Service) reusePendingOrder(ctx context.Context, userID uint) (*CreateIntentResult, bool) {
	var existing order.Order
	err := s.db.Where("ordered_by = ? AND status = ?", userID, order.OrderStatusPending).
		Order("created_at DESC").
		First(&existing).Error
	if err != nil {
		return nil, false
	}

	intent, err := s.provider.RetrieveIntent(ctx, existing.PaymentIntentID)
	if err != nil {
		s.log.WithError(err).WithField("payment_intent_id", existing.PaymentIntentID).
			Warn("Could not retrieve existing payment intent, creating new one")
		return nil, false
	}
	if !intent.IsReusable() {
		return nil, false
	}

	return &CreateIntentResult{
		ClientSecret: intent.ClientSecret,
		OrderID:      existing.ID,
		Total:        existing.TotalPrice,
		Subtotal:     existing.Subtotal,
		Shipping:     round2(existing.TotalPrice - existing.Subtotal),
	}, true
}

func (s *Service) computePricing(lines []cart.PricedLine) Pricing {
	var subtotal float64
	for _, line := range lines {
		subtotal += line.UnitPrice() * float64(line.Quantity)
	}
	subtotal = round2(subtotal)

	shipping := s.config.Payment.FlatShippingFee
	if subtotal >= s.config.Payment.FreeShippingThreshold {
		shipping = 0
	}

	return Pricing{
		Subtotal: subtotal,
		Shipping: shipping,
		Total:    round2(subtotal + shipping),
	}
}

// IdempotencyKey derives a deterministic key from the user and cart
// contents. The same cart always maps to the same key, so concurrent
// identical checkout attempts collapse onto one remote intent; any quantity
// or item change produces a new key.
func IdempotencyKey(userID uint, lines []cart.PricedLine) string {
	return fmt.Sprintf("pi_%d_%s", userID,
		base64.StdEncoding.EncodeToString([]byte(CartFingerprint(lines))))
}

// CartFingerprint is the sorted "variant:quantity" encoding of a cart.
func CartFingerprint(lines []cart.PricedLine) string {
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		parts = append(parts, fmt.Sprintf("%d:%d", line.ProductVariantID, line.Quantity))
	}
	sort.Strings(parts)
	return strings.Join(parts, "|")
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
