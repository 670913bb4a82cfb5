// internal/domain/webhook/reconciler.go
package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/your-org/merchstore-backend/internal/config"
	"github.com/your-org/merchstore-backend/internal/domain/audit"
	"github.com/your-org/merchstore-backend/internal/domain/cart"
	"github.com/your-org/merchstore-backend/internal/domain/coupon"
	"github.com/your-org/merchstore-backend/internal/domain/order"
	"github.com/your-org/merchstore-backend/internal/domain/payment"
	"gorm.io/gorm"
)

// seenEventTTL bounds how long processed event ids are remembered.
const seenEventTTL = 24 * time.Hour

// Reconciler consumes provider webhook deliveries and converges local order
// and coupon batch state onto the provider's. Every handler is idempotent:
// the provider retries deliveries and may send duplicates.
type Reconciler struct {
	db            *gorm.DB
	cartService   *cart.Service
	couponService *coupon.Service
	auditLog      *audit.Logger
	redis         *redis.Client
	config        *config.Config
	log           *logrus.Logger
}

// NewReconciler creates a new webhook reconciler
func NewReconciler(db *gorm.DB, cartService *cart.Service, couponService *coupon.Service, auditLog *audit.Logger, redisClient *redis.Client, cfg *config.Config, log *logrus.Logger) *Reconciler {
	return &Reconciler{
		db:            db,
		cartService:   cartService,
		couponService: couponService,
		auditLog:      auditLog,
		redis:         redisClient,
		config:        cfg,
		log:           log,
	}
}

// HandleEvent verifies and dispatches one webhook delivery. The raw body is
// needed because the signature covers the exact bytes on the wire.
func (r *Reconciler) HandleEvent(ctx context.Context, rawBody []byte, sigHeader string) error {
	event, err := payment.ConstructEvent(rawBody, sigHeader, r.config.Payment.WebhookSecret, payment.DefaultSignatureTolerance)
	if err != nil {
		return err
	}

	if r.alreadySeen(ctx, event.ID) {
		r.log.WithField("event_id", event.ID).Debug("Skipping duplicate webhook event")
		return nil
	}

	intent := &event.Data.Object
	intentType := intent.Metadata["type"]

	r.log.WithFields(logrus.Fields{
		"event_id":   event.ID,
		"event_type": event.Type,
		"intent_id":  intent.ID,
		"type":       intentType,
	}).Info("Processing webhook event")

	if err := r.dispatch(event.Type, intentType, intent); err != nil {
		return err
	}

	// Only a fully processed event is remembered. A delivery that errored
	// stays unmarked so the provider's retry gets processed, not skipped.
	r.markSeen(ctx, event.ID)
	return nil
}

func (r *Reconciler) dispatch(eventType, intentType string, intent *payment.Intent) error {
	switch eventType {
	case payment.EventPaymentSucceeded:
		switch intentType {
		case payment.IntentTypeOrder:
			return r.handleOrderSucceeded(intent)
		case payment.IntentTypeCoupon:
			return r.handleCouponSucceeded(intent)
		}
	case payment.EventPaymentFailed, payment.EventPaymentCanceled:
		switch intentType {
		case payment.IntentTypeOrder:
			return r.handleOrderFailed(intent)
		case payment.IntentTypeCoupon:
			return r.couponService.MarkBatchFailed(intent.ID, failureMessage(intent))
		}
	}

	// Unrecognized events are acknowledged, not errored, so the provider
	// does not retry them forever.
	r.log.WithField("event_type", eventType).Debug("Ignoring unhandled webhook event")
	return nil
}

// alreadySeen reports whether the event id was fully processed before. Redis
// being down degrades to processing duplicates, which the handlers tolerate
// anyway.
func (r *Reconciler) alreadySeen(ctx context.Context, eventID string) bool {
	if r.redis == nil || eventID == "" {
		return false
	}
	hit, err := r.redis.Exists(ctx, seenEventKey(eventID)).Result()
	if err != nil {
		r.log.WithError(err).Warn("Webhook dedupe cache unavailable")
		return false
	}
	return hit > 0
}

// markSeen records the event id after successful processing. Best effort: a
// write failure just means a later duplicate gets reprocessed.
func (r *Reconciler) markSeen(ctx context.Context, eventID string) {
	if r.redis == nil || eventID == "" {
		return
	}
	if err := r.redis.Set(ctx, seenEventKey(eventID), 1, seenEventTTL).Err(); err != nil {
		r.log.WithError(err).Warn("Could not record processed webhook event")
	}
}

func seenEventKey(eventID string) string {
	return "webhook:event:" + eventID
}

// handleOrderSucceeded marks the order PAID, flips its audit row, and clears
// the buyer's cart, all in one transaction. An already-paid order is a no-op
// and an unknown intent is silently skipped.
func (r *Reconciler) handleOrderSucceeded(intent *payment.Intent) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var o order.Order
		err := tx.Where("payment_intent_id = ?", intent.ID).First(&o).Error
		if err == gorm.ErrRecordNotFound {
			r.log.WithField("intent_id", intent.ID).
				Warn("Webhook for unknown order payment intent")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to look up order: %w", err)
		}
		if o.Status == order.OrderStatusPaid {
			return nil
		}

		err = tx.Model(&order.Order{}).Where("id = ?", o.ID).
			Update("status", order.OrderStatusPaid).Error
		if err != nil {
			return fmt.Errorf("failed to mark order paid: %w", err)
		}

		r.auditLog.MarkPaymentSucceeded(tx, intent.ID)

		if err := r.cartService.ClearCartForUser(tx, o.OrderedBy); err != nil {
			return err
		}

		r.log.WithFields(logrus.Fields{
			"order_id": o.ID,
			"user_id":  o.OrderedBy,
		}).Info("Order paid")
		return nil
	})
}

// handleOrderFailed marks the order FAILED and records the provider's error
// message. A PAID order is never demoted: a late failure event for a
// completed payment is a replay artifact, not a state change. Re-applying
// FAILED to an already-failed order is harmless.
func (r *Reconciler) handleOrderFailed(intent *payment.Intent) error {
	message := failureMessage(intent)
	return r.db.Transaction(func(tx *gorm.DB) error {
		var o order.Order
		err := tx.Where("payment_intent_id = ?", intent.ID).First(&o).Error
		if err == gorm.ErrRecordNotFound {
			r.log.WithField("intent_id", intent.ID).
				Warn("Webhook for unknown order payment intent")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to look up order: %w", err)
		}
		if o.Status == order.OrderStatusPaid {
			return nil
		}

		err = tx.Model(&order.Order{}).Where("id = ?", o.ID).
			Update("status", order.OrderStatusFailed).Error
		if err != nil {
			return fmt.Errorf("failed to mark order failed: %w", err)
		}

		r.auditLog.MarkPaymentFailed(tx, intent.ID, message)

		r.log.WithFields(logrus.Fields{
			"order_id": o.ID,
			"reason":   message,
		}).Info("Order payment failed")
		return nil
	})
}

// handleCouponSucceeded flips the batch to paid and, only if this delivery
// did the flip, distributes coupons to the group. Distribution runs after the
// status commit so a crash between the two is recovered by the periodic
// reconciliation sweep, not by double-minting.
func (r *Reconciler) handleCouponSucceeded(intent *payment.Intent) error {
	var batch *coupon.Batch
	var flipped bool
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var err error
		batch, flipped, err = r.couponService.MarkBatchPaid(tx, intent.ID)
		return err
	})
	if err != nil {
		return err
	}
	if batch == nil {
		r.log.WithField("intent_id", intent.ID).
			Warn("Webhook for unknown coupon payment intent")
		return nil
	}
	if !flipped {
		return nil
	}

	amount := minorUnitsToAmount(intent.Amount)
	r.auditLog.Log(audit.Entry{
		Type:            audit.TypePayment,
		Status:          audit.StatusSucceeded,
		OrgID:           batch.OrgID,
		CouponBatchID:   &batch.ID,
		CreatedBy:       batch.CreatedBy,
		PaymentIntentID: intent.ID,
		Amount:          &amount,
		Currency:        intent.Currency,
		Description:     fmt.Sprintf("Coupon batch %q payment succeeded", batch.Name),
	})

	return r.couponService.DistributeToGroup(batch)
}

func failureMessage(intent *payment.Intent) string {
	if intent.LastPaymentError != nil && intent.LastPaymentError.Message != "" {
		return intent.LastPaymentError.Message
	}
	return "Payment was not completed"
}

func minorUnitsToAmount(minor int64) float64 {
	return float64(minor) / 100
}
