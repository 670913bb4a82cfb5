package coupon

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var codePattern = regexp.MustCompile(`^[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`)

func newCodesTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Coupon{}))
	return db
}

func TestGenerateUniqueCodesFormat(t *testing.T) {
	db := newCodesTestDB(t)

	codes, err := GenerateUniqueCodes(db, 50)
	require.NoError(t, err)
	require.Len(t, codes, 50)

	seen := map[string]bool{}
	for _, code := range codes {
		assert.Regexp(t, codePattern, code)
		assert.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}
}

func TestGenerateUniqueCodesAvoidsStoredCodes(t *testing.T) {
	db := newCodesTestDB(t)

	existing, err := GenerateUniqueCodes(db, 20)
	require.NoError(t, err)
	for _, code := range existing {
		require.NoError(t, db.Create(&Coupon{
			OrgID: 1, UserID: 1, CouponBatchID: 1, GroupID: 1,
			Amount: 10, CouponCode: code,
		}).Error)
	}

	codes, err := GenerateUniqueCodes(db, 20)
	require.NoError(t, err)

	stored := map[string]bool{}
	for _, code := range existing {
		stored[code] = true
	}
	for _, code := range codes {
		assert.False(t, stored[code], "generated code %s collides with stored code", code)
	}
}

func TestGenerateUniqueCodesRegeneratesCollisions(t *testing.T) {
	db := newCodesTestDB(t)
	require.NoError(t, db.Create(&Coupon{
		OrgID: 1, UserID: 1, CouponBatchID: 1, GroupID: 1,
		Amount: 10, CouponCode: "TAKE-NNNN-0001",
	}).Error)

	// Generator first hands out the stored code, then fresh ones.
	sequence := []string{"TAKE-NNNN-0001", "FRSH-NNNN-0001", "FRSH-NNNN-0002"}
	next := 0
	gen := func() (string, error) {
		code := sequence[next]
		next++
		return code, nil
	}

	codes, err := generateUniqueCodes(db, 2, gen)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"FRSH-NNNN-0001", "FRSH-NNNN-0002"}, codes)
}

func TestGenerateUniqueCodesGivesUpAfterBoundedPasses(t *testing.T) {
	db := newCodesTestDB(t)
	require.NoError(t, db.Create(&Coupon{
		OrgID: 1, UserID: 1, CouponBatchID: 1, GroupID: 1,
		Amount: 10, CouponCode: "TAKE-NNNN-0001",
	}).Error)

	// A generator that alternates between the stored code and one fresh code
	// can never satisfy a request for two codes.
	flip := false
	gen := func() (string, error) {
		flip = !flip
		if flip {
			return "TAKE-NNNN-0001", nil
		}
		return "FRSH-NNNN-0001", nil
	}

	_, err := generateUniqueCodes(db, 2, gen)
	require.Error(t, err)
}

func TestGenerateUniqueCodesZeroCount(t *testing.T) {
	db := newCodesTestDB(t)
	codes, err := GenerateUniqueCodes(db, 0)
	require.NoError(t, err)
	assert.Empty(t, codes)
}
