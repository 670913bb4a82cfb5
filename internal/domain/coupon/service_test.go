package coupon

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/merchstore-backend/internal/config"
	"github.com/your-org/merchstore-backend/internal/domain/audit"
	"github.com/your-org/merchstore-backend/internal/domain/identity"
	"github.com/your-org/merchstore-backend/internal/domain/payment"
	"github.com/your-org/merchstore-backend/internal/domain/user"
	"github.com/your-org/merchstore-backend/internal/pkg/apperror"
	"github.com/your-org/merchstore-backend/internal/pkg/notify"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeProvider struct {
	created   []payment.CreateIntentParams
	retrieved map[string]*payment.Intent
}

func (f *fakeProvider) CreateIntent(_ context.Context, params payment.CreateIntentParams, _ string) (*payment.Intent, error) {
	f.created = append(f.created, params)
	return &payment.Intent{
		ID:           "pi_batch_1",
		ClientSecret: "pi_batch_1_secret",
		Status:       payment.StatusRequiresPaymentMethod,
		Amount:       params.AmountMinorUnits,
		Currency:     params.Currency,
		Metadata:     params.Metadata,
	}, nil
}

func (f *fakeProvider) RetrieveIntent(_ context.Context, id string) (*payment.Intent, error) {
	if intent, ok := f.retrieved[id]; ok {
		return intent, nil
	}
	return nil, apperror.Provider("intent not found", nil)
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []notify.CouponIssued
}

func (p *recordingPublisher) PublishCouponIssued(msg notify.CouponIssued) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func newTestService(t *testing.T) (*Service, *gorm.DB, *fakeProvider, *recordingPublisher) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&user.User{}, &user.Group{}, &user.GroupMember{},
		&Batch{}, &Coupon{},
		&audit.Transaction{},
	))

	log := logrus.New()
	log.SetOutput(io.Discard)

	cfg := &config.Config{}
	cfg.Payment.Currency = "usd"

	provider := &fakeProvider{retrieved: map[string]*payment.Intent{}}
	publisher := &recordingPublisher{}
	auditLog := audit.NewLogger(db, log)
	return NewService(db, provider, auditLog, publisher, cfg, log), db, provider, publisher
}

func seedGroup(t *testing.T, db *gorm.DB, orgID uint, memberCount int) uint {
	t.Helper()
	group := user.Group{OrgID: orgID, Name: "engineering"}
	require.NoError(t, db.Create(&group).Error)
	for i := 0; i < memberCount; i++ {
		u := user.User{
			OrgID:     &orgID,
			Email:     string(rune('a'+i)) + "@example.com",
			FirstName: "User",
		}
		require.NoError(t, db.Create(&u).Error)
		require.NoError(t, db.Create(&user.GroupMember{GroupID: group.ID, UserID: u.ID}).Error)
	}
	return group.ID
}

func adminID(userID, orgID uint) identity.Identity {
	return identity.Authenticated(userID, &orgID)
}

func TestInitiateBatchPaymentChargesPerMember(t *testing.T) {
	svc, db, provider, _ := newTestService(t)
	groupID := seedGroup(t, db, 10, 3)

	result, err := svc.InitiateBatchPayment(context.Background(), adminID(1, 10), &InitiateBatchInput{
		GroupID: groupID,
		Name:    "Q3 reward",
		Amount:  25,
	})
	require.NoError(t, err)

	assert.InDelta(t, 75.0, result.Total, 0.001)
	assert.Equal(t, 3, result.UserCount)
	require.Len(t, provider.created, 1)
	assert.Equal(t, int64(7500), provider.created[0].AmountMinorUnits)
	assert.Equal(t, payment.IntentTypeCoupon, provider.created[0].Metadata["type"])

	var batch Batch
	require.NoError(t, db.First(&batch).Error)
	assert.Equal(t, BatchPaymentPending, batch.PaymentStatus)
	assert.Equal(t, "pi_batch_1", batch.PaymentIntentID)
	assert.InDelta(t, 25.0, batch.Amount, 0.001)

	var auditRow audit.Transaction
	require.NoError(t, db.First(&auditRow).Error)
	assert.Equal(t, audit.StatusInitiated, auditRow.Status)
}

func TestInitiateBatchPaymentEmptyGroup(t *testing.T) {
	svc, db, provider, _ := newTestService(t)
	groupID := seedGroup(t, db, 10, 0)

	_, err := svc.InitiateBatchPayment(context.Background(), adminID(1, 10), &InitiateBatchInput{
		GroupID: groupID,
		Name:    "empty",
		Amount:  25,
	})
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
	assert.Empty(t, provider.created)
}

func TestInitiateBatchPaymentUnknownGroup(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.InitiateBatchPayment(context.Background(), adminID(1, 10), &InitiateBatchInput{
		GroupID: 999,
		Name:    "missing",
		Amount:  25,
	})
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}

func seedPaidBatch(t *testing.T, db *gorm.DB, orgID, groupID uint, amount float64) *Batch {
	t.Helper()
	batch := Batch{
		OrgID:           orgID,
		GroupID:         groupID,
		Name:            "Q3 reward",
		Amount:          amount,
		PaymentStatus:   BatchPaymentPaid,
		PaymentIntentID: "pi_batch_1",
		CreatedBy:       1,
	}
	require.NoError(t, db.Create(&batch).Error)
	return &batch
}

func TestDistributeToGroupMintsOneCouponPerMember(t *testing.T) {
	svc, db, _, publisher := newTestService(t)
	groupID := seedGroup(t, db, 10, 4)
	batch := seedPaidBatch(t, db, 10, groupID, 25)

	require.NoError(t, svc.DistributeToGroup(batch))

	var coupons []Coupon
	require.NoError(t, db.Find(&coupons).Error)
	require.Len(t, coupons, 4)

	users := map[uint]bool{}
	codes := map[string]bool{}
	for _, c := range coupons {
		assert.InDelta(t, 25.0, c.Amount, 0.001)
		assert.False(t, c.IsUsed)
		assert.False(t, users[c.UserID], "user %d received two coupons", c.UserID)
		assert.False(t, codes[c.CouponCode], "duplicate code %s", c.CouponCode)
		users[c.UserID] = true
		codes[c.CouponCode] = true
	}

	assert.Len(t, publisher.messages, 4)

	var auditRow audit.Transaction
	require.NoError(t, db.Where("type = ?", audit.TypeCouponDistribution).First(&auditRow).Error)
	assert.Equal(t, audit.StatusSucceeded, auditRow.Status)
}

func TestDistributeToGroupReplayDoesNotDoubleMint(t *testing.T) {
	svc, db, _, publisher := newTestService(t)
	groupID := seedGroup(t, db, 10, 3)
	batch := seedPaidBatch(t, db, 10, groupID, 25)

	require.NoError(t, svc.DistributeToGroup(batch))
	require.NoError(t, svc.DistributeToGroup(batch))

	var count int64
	require.NoError(t, db.Model(&Coupon{}).Count(&count).Error)
	assert.Equal(t, int64(3), count)
	assert.Len(t, publisher.messages, 3, "replay must not re-notify")
}

func TestDistributeToGroupNoUsers(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	groupID := seedGroup(t, db, 10, 0)
	batch := seedPaidBatch(t, db, 10, groupID, 25)

	err := svc.DistributeToGroup(batch)
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))

	var auditRow audit.Transaction
	require.NoError(t, db.Where("type = ?", audit.TypeCouponDistribution).First(&auditRow).Error)
	assert.Equal(t, audit.StatusFailed, auditRow.Status)
}

func TestMarkBatchPaidOnlyFlipsPending(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	groupID := seedGroup(t, db, 10, 1)
	batch := Batch{
		OrgID: 10, GroupID: groupID, Name: "b", Amount: 5,
		PaymentStatus: BatchPaymentPending, PaymentIntentID: "pi_x", CreatedBy: 1,
	}
	require.NoError(t, db.Create(&batch).Error)

	flippedBatch, flipped, err := svc.MarkBatchPaid(db, "pi_x")
	require.NoError(t, err)
	assert.True(t, flipped)
	assert.Equal(t, BatchPaymentPaid, flippedBatch.PaymentStatus)

	_, flipped, err = svc.MarkBatchPaid(db, "pi_x")
	require.NoError(t, err)
	assert.False(t, flipped, "second flip must be a no-op")

	unknown, flipped, err := svc.MarkBatchPaid(db, "pi_unknown")
	require.NoError(t, err)
	assert.Nil(t, unknown)
	assert.False(t, flipped)
}

func TestReconcilePendingDistributions(t *testing.T) {
	svc, db, provider, publisher := newTestService(t)
	groupID := seedGroup(t, db, 10, 2)

	succeeded := Batch{
		OrgID: 10, GroupID: groupID, Name: "won", Amount: 25,
		PaymentStatus: BatchPaymentPending, PaymentIntentID: "pi_won", CreatedBy: 1,
	}
	canceled := Batch{
		OrgID: 10, GroupID: groupID, Name: "lost", Amount: 25,
		PaymentStatus: BatchPaymentPending, PaymentIntentID: "pi_lost", CreatedBy: 1,
	}
	require.NoError(t, db.Create(&succeeded).Error)
	require.NoError(t, db.Create(&canceled).Error)

	provider.retrieved["pi_won"] = &payment.Intent{ID: "pi_won", Status: payment.StatusSucceeded}
	provider.retrieved["pi_lost"] = &payment.Intent{ID: "pi_lost", Status: payment.StatusCanceled}

	require.NoError(t, svc.ReconcilePendingDistributions(context.Background()))

	var reloadedWon Batch
	require.NoError(t, db.First(&reloadedWon, succeeded.ID).Error)
	assert.Equal(t, BatchPaymentPaid, reloadedWon.PaymentStatus)

	var reloadedLost Batch
	require.NoError(t, db.First(&reloadedLost, canceled.ID).Error)
	assert.Equal(t, BatchPaymentFailed, reloadedLost.PaymentStatus)

	var couponCount int64
	require.NoError(t, db.Model(&Coupon{}).Count(&couponCount).Error)
	assert.Equal(t, int64(2), couponCount)
	assert.Len(t, publisher.messages, 2)
}

func TestReconcileRedistributesPaidBatchWithoutCoupons(t *testing.T) {
	svc, db, _, publisher := newTestService(t)
	groupID := seedGroup(t, db, 10, 3)

	// Paid but never minted: a crash after the status flip leaves exactly
	// this shape behind.
	seedPaidBatch(t, db, 10, groupID, 25)

	require.NoError(t, svc.ReconcilePendingDistributions(context.Background()))

	var couponCount int64
	require.NoError(t, db.Model(&Coupon{}).Count(&couponCount).Error)
	assert.Equal(t, int64(3), couponCount)
	assert.Len(t, publisher.messages, 3)

	// A second sweep must not mint again.
	require.NoError(t, svc.ReconcilePendingDistributions(context.Background()))
	require.NoError(t, db.Model(&Coupon{}).Count(&couponCount).Error)
	assert.Equal(t, int64(3), couponCount)
}

func TestCouponsForUserListsUnusedOwnOnly(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	batch := Batch{
		OrgID: 10, GroupID: 1, Name: "Q3 reward", Amount: 5,
		PaymentStatus: BatchPaymentPaid, PaymentIntentID: "pi_batch_1", CreatedBy: 1,
	}
	require.NoError(t, db.Create(&batch).Error)

	require.NoError(t, db.Create(&Coupon{OrgID: 10, UserID: 1, CouponBatchID: batch.ID, GroupID: 1, Amount: 5, CouponCode: "AAAA-BBBB-CCCC"}).Error)
	require.NoError(t, db.Create(&Coupon{OrgID: 10, UserID: 1, CouponBatchID: batch.ID, GroupID: 1, Amount: 5, CouponCode: "GGGG-HHHH-IIII", IsUsed: true}).Error)
	require.NoError(t, db.Create(&Coupon{OrgID: 10, UserID: 2, CouponBatchID: batch.ID, GroupID: 1, Amount: 5, CouponCode: "DDDD-EEEE-FFFF"}).Error)

	coupons, err := svc.CouponsForUser(identity.Authenticated(1, nil))
	require.NoError(t, err)
	require.Len(t, coupons, 1)
	assert.Equal(t, "AAAA-BBBB-CCCC", coupons[0].CouponCode)
	assert.Equal(t, "Q3 reward", coupons[0].BatchName)
	assert.InDelta(t, 5.0, coupons[0].Amount, 0.001)
}
