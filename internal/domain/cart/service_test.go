package cart

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/merchstore-backend/internal/domain/identity"
	"github.com/your-org/merchstore-backend/internal/domain/product"
	"github.com/your-org/merchstore-backend/internal/pkg/apperror"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&product.Product{}, &product.ProductVariant{},
		&Cart{}, &CartItem{},
	))
	return db
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewService(db, log), db
}

func seedVariant(t *testing.T, db *gorm.DB, basePrice, variantPrice float64) uint {
	t.Helper()
	p := product.Product{Name: "Hoodie", Slug: "hoodie", BasePrice: basePrice, IsActive: true}
	require.NoError(t, db.Create(&p).Error)
	v := product.ProductVariant{ProductID: p.ID, SKU: "HD-1", Color: "black", Size: "M", Price: variantPrice, IsActive: true}
	require.NoError(t, db.Create(&v).Error)
	return v.ID
}

func TestAddItemIncrementsExistingLine(t *testing.T) {
	svc, db := newTestService(t)
	variantID := seedVariant(t, db, 20, 5)
	id := identity.Guest("sess-1")

	require.NoError(t, svc.AddItem(id, &AddItemInput{ProductVariantID: variantID, Quantity: 2}))
	require.NoError(t, svc.AddItem(id, &AddItemInput{ProductVariantID: variantID, Quantity: 3}))

	var items []CartItem
	require.NoError(t, db.Find(&items).Error)
	require.Len(t, items, 1)
	assert.Equal(t, 5, items[0].Quantity)
}

func TestAddItemKeepsCustomizedLinesSeparate(t *testing.T) {
	svc, db := newTestService(t)
	variantID := seedVariant(t, db, 20, 5)
	id := identity.Guest("sess-1")
	customID := uint(7)

	require.NoError(t, svc.AddItem(id, &AddItemInput{ProductVariantID: variantID, Quantity: 1}))
	require.NoError(t, svc.AddItem(id, &AddItemInput{
		ProductVariantID: variantID,
		Quantity:         1,
		CustomProductID:  &customID,
		LogoVariantIDs:   []uint{3},
	}))

	var count int64
	require.NoError(t, db.Model(&CartItem{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestAddItemRejectsInvalidInput(t *testing.T) {
	svc, db := newTestService(t)
	variantID := seedVariant(t, db, 20, 0)
	id := identity.Guest("sess-1")

	err := svc.AddItem(id, &AddItemInput{ProductVariantID: variantID, Quantity: 0})
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))

	err = svc.AddItem(identity.Anonymous(), &AddItemInput{ProductVariantID: variantID, Quantity: 1})
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
}

func TestGetCartEmptyWhenNoCartExists(t *testing.T) {
	svc, _ := newTestService(t)

	resp, err := svc.GetCart(identity.Guest("sess-none"))
	require.NoError(t, err)
	assert.Empty(t, resp.Items)
	assert.Equal(t, 0, resp.Totals.TotalQuantity)
}

func TestGetCartComputesTotals(t *testing.T) {
	svc, db := newTestService(t)
	variantID := seedVariant(t, db, 20, 5)
	id := identity.Guest("sess-1")
	require.NoError(t, svc.AddItem(id, &AddItemInput{ProductVariantID: variantID, Quantity: 3}))

	resp, err := svc.GetCart(id)
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, 3, resp.Totals.TotalQuantity)
	assert.InDelta(t, 75.0, resp.Totals.Subtotal, 0.001)
}

func TestUpdateItemQuantityScopedToOwner(t *testing.T) {
	svc, db := newTestService(t)
	variantID := seedVariant(t, db, 20, 0)
	owner := identity.Guest("sess-owner")
	other := identity.Guest("sess-other")

	require.NoError(t, svc.AddItem(owner, &AddItemInput{ProductVariantID: variantID, Quantity: 1}))
	require.NoError(t, svc.AddItem(other, &AddItemInput{ProductVariantID: variantID, Quantity: 1}))

	var ownerItem CartItem
	require.NoError(t, db.Joins("JOIN carts ON carts.id = cart_items.cart_id").
		Where("carts.session_id = ?", "sess-owner").First(&ownerItem).Error)

	err := svc.UpdateItemQuantity(other, ownerItem.ID, 9)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))

	require.NoError(t, svc.UpdateItemQuantity(owner, ownerItem.ID, 9))
	var reloaded CartItem
	require.NoError(t, db.First(&reloaded, ownerItem.ID).Error)
	assert.Equal(t, 9, reloaded.Quantity)
}

func TestRemoveItemNotFoundForMissingLine(t *testing.T) {
	svc, db := newTestService(t)
	variantID := seedVariant(t, db, 20, 0)
	id := identity.Guest("sess-1")
	require.NoError(t, svc.AddItem(id, &AddItemInput{ProductVariantID: variantID, Quantity: 1}))

	err := svc.RemoveItem(id, 999)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))

	var item CartItem
	require.NoError(t, db.First(&item).Error)
	require.NoError(t, svc.RemoveItem(id, item.ID))

	var count int64
	require.NoError(t, db.Model(&CartItem{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestMergeGuestCartConservesQuantities(t *testing.T) {
	svc, db := newTestService(t)
	variantA := seedVariant(t, db, 20, 0)

	p := product.Product{Name: "Tee", Slug: "tee", BasePrice: 10, IsActive: true}
	require.NoError(t, db.Create(&p).Error)
	vb := product.ProductVariant{ProductID: p.ID, SKU: "TE-1", Price: 0, IsActive: true}
	require.NoError(t, db.Create(&vb).Error)
	variantB := vb.ID

	guest := identity.Guest("sess-guest")
	userID := uint(42)
	authed := identity.Authenticated(userID, nil)

	// Guest: 2x A, 1x B. User: 3x A.
	require.NoError(t, svc.AddItem(guest, &AddItemInput{ProductVariantID: variantA, Quantity: 2}))
	require.NoError(t, svc.AddItem(guest, &AddItemInput{ProductVariantID: variantB, Quantity: 1}))
	require.NoError(t, svc.AddItem(authed, &AddItemInput{ProductVariantID: variantA, Quantity: 3}))

	require.NoError(t, svc.MergeGuestCart("sess-guest", userID, nil))

	var userCart Cart
	require.NoError(t, db.Where("user_id = ?", userID).First(&userCart).Error)

	var items []CartItem
	require.NoError(t, db.Where("cart_id = ?", userCart.ID).Find(&items).Error)
	quantities := map[uint]int{}
	for _, item := range items {
		quantities[item.ProductVariantID] += item.Quantity
	}
	assert.Equal(t, 5, quantities[variantA])
	assert.Equal(t, 1, quantities[variantB])

	// Guest cart is gone
	var guestCount int64
	require.NoError(t, db.Model(&Cart{}).Where("session_id = ?", "sess-guest").Count(&guestCount).Error)
	assert.Equal(t, int64(0), guestCount)
}

func TestMergeGuestCartReparentsWhenUserHasNoCart(t *testing.T) {
	svc, db := newTestService(t)
	variantID := seedVariant(t, db, 20, 0)
	guest := identity.Guest("sess-guest")
	orgID := uint(3)

	require.NoError(t, svc.AddItem(guest, &AddItemInput{ProductVariantID: variantID, Quantity: 4}))
	require.NoError(t, svc.MergeGuestCart("sess-guest", 42, &orgID))

	var c Cart
	require.NoError(t, db.Where("user_id = ?", 42).First(&c).Error)
	assert.Nil(t, c.SessionID)
	require.NotNil(t, c.OrgID)
	assert.Equal(t, orgID, *c.OrgID)

	var item CartItem
	require.NoError(t, db.Where("cart_id = ?", c.ID).First(&item).Error)
	assert.Equal(t, 4, item.Quantity)
}

func TestMergeGuestCartNoGuestCartIsNoOp(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.MergeGuestCart("sess-missing", 42, nil))
	require.NoError(t, svc.MergeGuestCart("", 42, nil))
}

func TestClearCartForUserRemovesItems(t *testing.T) {
	svc, db := newTestService(t)
	variantID := seedVariant(t, db, 20, 0)
	authed := identity.Authenticated(42, nil)
	require.NoError(t, svc.AddItem(authed, &AddItemInput{ProductVariantID: variantID, Quantity: 2}))

	require.NoError(t, svc.ClearCartForUser(db, 42))

	var count int64
	require.NoError(t, db.Model(&CartItem{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)

	// Clearing an absent cart is fine
	require.NoError(t, svc.ClearCartForUser(db, 777))
}
