// internal/domain/coupon/service.go
package coupon

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/merchstore-backend/internal/config"
	"github.com/your-org/merchstore-backend/internal/domain/audit"
	"github.com/your-org/merchstore-backend/internal/domain/identity"
	"github.com/your-org/merchstore-backend/internal/domain/payment"
	"github.com/your-org/merchstore-backend/internal/domain/user"
	"github.com/your-org/merchstore-backend/internal/pkg/apperror"
	"github.com/your-org/merchstore-backend/internal/pkg/notify"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Concurrent notification sends per distribution.
const notifyConcurrency = 8

// Service handles coupon batch funding and distribution.
type Service struct {
	db        *gorm.DB
	provider  payment.Provider
	auditLog  *audit.Logger
	publisher notify.Publisher
	config    *config.Config
	log       *logrus.Logger
}

// NewService creates a new coupon service
func NewService(db *gorm.DB, provider payment.Provider, auditLog *audit.Logger, publisher notify.Publisher, cfg *config.Config, log *logrus.Logger) *Service {
	return &Service{
		db:        db,
		provider:  provider,
		auditLog:  auditLog,
		publisher: publisher,
		config:    cfg,
		log:       log,
	}
}

// InitiateBatchInput describes a new coupon distribution to fund.
type InitiateBatchInput struct {
	GroupID     uint    `json:"group_id" binding:"required"`
	Name        string  `json:"name" binding:"required"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount" binding:"required,gt=0"`
}

// InitiateBatchResult is returned to the admin so the frontend can confirm
// the payment.
type InitiateBatchResult struct {
	ClientSecret string  `json:"clientSecret"`
	BatchID      uint    `json:"batchId"`
	Total        float64 `json:"total"`
	UserCount    int     `json:"userCount"`
}

// InitiateBatchPayment creates a payment intent covering the per-user amount
// for every member of the target group and records the batch as pending.
// Coupons are only created once the payment succeeds.
func (s *Service) InitiateBatchPayment(ctx context.Context, id identity.Identity, input *InitiateBatchInput) (*InitiateBatchResult, error) {
	if !id.IsAuthenticated() {
		return nil, apperror.Authorization("authentication required")
	}
	if id.OrgID == nil {
		return nil, apperror.Validation("your account is not linked to an organisation")
	}
	userID := *id.UserID
	orgID := *id.OrgID

	if input.Amount <= 0 {
		return nil, apperror.Validation("amount must be greater than zero")
	}

	var group user.Group
	err := s.db.Where("id = ? AND org_id = ?", input.GroupID, orgID).First(&group).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apperror.NotFound("group not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up group: %w", err)
	}

	var memberCount int64
	err = s.db.Model(&user.GroupMember{}).Where("group_id = ?", group.ID).Count(&memberCount).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count group members: %w", err)
	}
	if memberCount == 0 {
		return nil, apperror.Validation("no users in group")
	}

	total := round2(input.Amount * float64(memberCount))

	intent, err := s.provider.CreateIntent(ctx, payment.CreateIntentParams{
		AmountMinorUnits: int64(math.Round(total * 100)),
		Currency:         s.config.Payment.Currency,
		Metadata: map[string]string{
			"type":     payment.IntentTypeCoupon,
			"user_id":  strconv.FormatUint(uint64(userID), 10),
			"org_id":   strconv.FormatUint(uint64(orgID), 10),
			"group_id": strconv.FormatUint(uint64(group.ID), 10),
		},
	}, "")
	if err != nil {
		return nil, err
	}

	batch := Batch{
		OrgID:           orgID,
		GroupID:         group.ID,
		Name:            input.Name,
		Description:     input.Description,
		Amount:          input.Amount,
		PaymentStatus:   BatchPaymentPending,
		PaymentIntentID: intent.ID,
		CreatedBy:       userID,
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&batch).Error; err != nil {
			return fmt.Errorf("failed to create coupon batch: %w", err)
		}
		s.auditLog.LogTx(tx, audit.Entry{
			Type:            audit.TypePayment,
			Status:          audit.StatusInitiated,
			OrgID:           orgID,
			CouponBatchID:   &batch.ID,
			CreatedBy:       userID,
			PaymentIntentID: intent.ID,
			Amount:          &total,
			Description:     fmt.Sprintf("Coupon batch %q payment initiated", batch.Name),
			Metadata: map[string]interface{}{
				"group_id":   group.ID,
				"user_count": memberCount,
			},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &InitiateBatchResult{
		ClientSecret: intent.ClientSecret,
		BatchID:      batch.ID,
		Total:        total,
		UserCount:    int(memberCount),
	}, nil
}

// ListBatches returns the organisation's batches, newest first.
func (s *Service) ListBatches(id identity.Identity) ([]Batch, error) {
	if !id.IsAuthenticated() || id.OrgID == nil {
		return nil, apperror.Authorization("organisation account required")
	}
	var batches []Batch
	err := s.db.Where("org_id = ?", *id.OrgID).
		Order("created_at DESC").
		Find(&batches).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list coupon batches: %w", err)
	}
	return batches, nil
}

// UserCoupon is a coupon row joined to its batch's display name, the shape
// the wallet endpoint returns.
type UserCoupon struct {
	ID         uint      `json:"id"`
	CouponCode string    `json:"coupon_code"`
	Amount     float64   `json:"amount"`
	BatchName  string    `json:"batch_name"`
	CreatedAt  time.Time `json:"created_at"`
}

// CouponsForUser returns the caller's unused coupons, newest first, each
// carrying the name of the batch it came from.
func (s *Service) CouponsForUser(id identity.Identity) ([]UserCoupon, error) {
	if !id.IsAuthenticated() {
		return nil, apperror.Authorization("authentication required")
	}
	var coupons []UserCoupon
	err := s.db.Table("coupons").
		Select("coupons.id, coupons.coupon_code, coupons.amount, coupon_batches.name AS batch_name, coupons.created_at").
		Joins("JOIN coupon_batches ON coupon_batches.id = coupons.coupon_batch_id").
		Where("coupons.user_id = ? AND coupons.is_used = ? AND coupons.deleted_at IS NULL", *id.UserID, false).
		Order("coupons.created_at DESC").
		Scan(&coupons).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list coupons: %w", err)
	}
	return coupons, nil
}

// MarkBatchPaid flips a pending batch to paid on the given transaction.
// Returns false if the batch was not pending, so replayed webhooks become
// no-ops instead of double distributions.
func (s *Service) MarkBatchPaid(tx *gorm.DB, paymentIntentID string) (*Batch, bool, error) {
	var batch Batch
	err := tx.Where("payment_intent_id = ?", paymentIntentID).First(&batch).Error
	if err == gorm.ErrRecordNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up coupon batch: %w", err)
	}
	if batch.PaymentStatus != BatchPaymentPending {
		return &batch, false, nil
	}

	err = tx.Model(&Batch{}).Where("id = ?", batch.ID).
		Update("payment_status", BatchPaymentPaid).Error
	if err != nil {
		return nil, false, fmt.Errorf("failed to mark batch paid: %w", err)
	}
	batch.PaymentStatus = BatchPaymentPaid
	return &batch, true, nil
}

// MarkBatchFailed flips a batch to failed and records the failure in the
// audit trail.
func (s *Service) MarkBatchFailed(paymentIntentID, errorMessage string) error {
	var batch Batch
	err := s.db.Where("payment_intent_id = ?", paymentIntentID).First(&batch).Error
	if err == gorm.ErrRecordNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up coupon batch: %w", err)
	}

	err = s.db.Model(&Batch{}).Where("id = ?", batch.ID).
		Update("payment_status", BatchPaymentFailed).Error
	if err != nil {
		return fmt.Errorf("failed to mark batch failed: %w", err)
	}

	s.auditLog.Log(audit.Entry{
		Type:            audit.TypeCouponDistribution,
		Status:          audit.StatusFailed,
		OrgID:           batch.OrgID,
		CouponBatchID:   &batch.ID,
		CreatedBy:       batch.CreatedBy,
		PaymentIntentID: paymentIntentID,
		Description:     fmt.Sprintf("Coupon batch %q payment failed", batch.Name),
		ErrorMessage:    errorMessage,
	})
	return nil
}

// DistributeToGroup creates one coupon per group member for a paid batch.
// All coupon rows land in one transaction; notification sends happen after
// commit and never affect the result.
func (s *Service) DistributeToGroup(batch *Batch) error {
	var members []user.User
	err := s.db.Table("users").
		Select("users.id, users.email, users.first_name, users.last_name").
		Joins("JOIN user_group_members ON user_group_members.user_id = users.id").
		Where("user_group_members.group_id = ? AND users.deleted_at IS NULL", batch.GroupID).
		Scan(&members).Error
	if err != nil {
		return fmt.Errorf("failed to load group members: %w", err)
	}

	if len(members) == 0 {
		s.auditLog.Log(audit.Entry{
			Type:          audit.TypeCouponDistribution,
			Status:        audit.StatusFailed,
			OrgID:         batch.OrgID,
			CouponBatchID: &batch.ID,
			CreatedBy:     batch.CreatedBy,
			Description:   fmt.Sprintf("Coupon batch %q has no recipients", batch.Name),
			ErrorMessage:  "no users in group",
		})
		return apperror.Validation("no users in group")
	}

	var created []Coupon
	err = s.db.Transaction(func(tx *gorm.DB) error {
		// Replayed webhook deliveries must not mint a second coupon set.
		var existing int64
		if err := tx.Model(&Coupon{}).Where("coupon_batch_id = ?", batch.ID).Count(&existing).Error; err != nil {
			return fmt.Errorf("failed to check existing coupons: %w", err)
		}
		if existing > 0 {
			return nil
		}

		codes, err := GenerateUniqueCodes(tx, len(members))
		if err != nil {
			return err
		}

		coupons := make([]Coupon, 0, len(members))
		for i, member := range members {
			coupons = append(coupons, Coupon{
				OrgID:         batch.OrgID,
				UserID:        member.ID,
				CouponBatchID: batch.ID,
				GroupID:       batch.GroupID,
				Amount:        batch.Amount,
				CouponCode:    codes[i],
			})
		}
		if err := tx.Create(&coupons).Error; err != nil {
			return fmt.Errorf("failed to create coupons: %w", err)
		}
		created = coupons

		total := round2(batch.Amount * float64(len(members)))
		s.auditLog.LogTx(tx, audit.Entry{
			Type:            audit.TypeCouponDistribution,
			Status:          audit.StatusSucceeded,
			OrgID:           batch.OrgID,
			CouponBatchID:   &batch.ID,
			CreatedBy:       batch.CreatedBy,
			PaymentIntentID: batch.PaymentIntentID,
			Amount:          &total,
			Description:     fmt.Sprintf("Distributed %d coupons for batch %q", len(members), batch.Name),
			Metadata: map[string]interface{}{
				"group_id":     batch.GroupID,
				"coupon_count": len(members),
			},
		})
		return nil
	})
	if err != nil {
		return err
	}
	if len(created) == 0 {
		return nil
	}

	s.notifyRecipients(batch, members, created)
	return nil
}

// notifyRecipients publishes one message per coupon. Failures are logged and
// dropped: the coupons are already committed.
func (s *Service) notifyRecipients(batch *Batch, members []user.User, coupons []Coupon) {
	byUser := make(map[uint]user.User, len(members))
	for _, member := range members {
		byUser[member.ID] = member
	}

	var g errgroup.Group
	g.SetLimit(notifyConcurrency)
	for _, c := range coupons {
		member, ok := byUser[c.UserID]
		if !ok {
			continue
		}
		coupon := c
		g.Go(func() error {
			err := s.publisher.PublishCouponIssued(notify.CouponIssued{
				Email:      member.Email,
				FirstName:  member.FirstName,
				CouponCode: coupon.CouponCode,
				Amount:     coupon.Amount,
				BatchName:  batch.Name,
				OrgID:      batch.OrgID,
			})
			if err != nil {
				s.log.WithError(err).WithFields(logrus.Fields{
					"batch_id": batch.ID,
					"user_id":  coupon.UserID,
				}).Error("Failed to publish coupon notification")
			}
			return nil
		})
	}
	g.Wait()
}

// ReconcilePendingDistributions covers the two ways a distribution can stall.
// Pending batches are re-checked against the provider: one whose intent
// succeeded remotely gets marked paid and distributed, a canceled one gets
// marked failed. Paid batches with no coupons — a crash between the status
// flip and the mint — get distribution re-driven.
func (s *Service) ReconcilePendingDistributions(ctx context.Context) error {
	var pending []Batch
	err := s.db.Where("payment_status = ?", BatchPaymentPending).Find(&pending).Error
	if err != nil {
		return fmt.Errorf("failed to load pending batches: %w", err)
	}

	for _, batch := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		intent, err := s.provider.RetrieveIntent(ctx, batch.PaymentIntentID)
		if err != nil {
			s.log.WithError(err).WithField("batch_id", batch.ID).
				Warn("Could not retrieve intent during reconciliation")
			continue
		}

		switch intent.Status {
		case payment.StatusSucceeded:
			var paid *Batch
			var flipped bool
			err := s.db.Transaction(func(tx *gorm.DB) error {
				var txErr error
				paid, flipped, txErr = s.MarkBatchPaid(tx, batch.PaymentIntentID)
				return txErr
			})
			if err != nil {
				s.log.WithError(err).WithField("batch_id", batch.ID).
					Error("Failed to mark batch paid during reconciliation")
				continue
			}
			if flipped {
				if err := s.DistributeToGroup(paid); err != nil {
					s.log.WithError(err).WithField("batch_id", batch.ID).
						Error("Failed to distribute batch during reconciliation")
				}
			}
		case payment.StatusCanceled:
			if err := s.MarkBatchFailed(batch.PaymentIntentID, "payment canceled"); err != nil {
				s.log.WithError(err).WithField("batch_id", batch.ID).
					Error("Failed to mark batch failed during reconciliation")
			}
		}
	}

	var undistributed []Batch
	err = s.db.
		Where("payment_status = ?", BatchPaymentPaid).
		Where("NOT EXISTS (SELECT 1 FROM coupons WHERE coupons.coupon_batch_id = coupon_batches.id)").
		Find(&undistributed).Error
	if err != nil {
		return fmt.Errorf("failed to load undistributed batches: %w", err)
	}

	for i := range undistributed {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		batch := &undistributed[i]
		if err := s.DistributeToGroup(batch); err != nil {
			s.log.WithError(err).WithField("batch_id", batch.ID).
				Error("Failed to re-distribute paid batch during reconciliation")
		}
	}
	return nil
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
