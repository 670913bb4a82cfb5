// internal/domain/coupon/codes.go
package coupon

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"gorm.io/gorm"
)

const (
	codeAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeGroupSize  = 4
	codeGroupCount = 3
	maxCodePasses  = 10
	// Fresh-code draws allowed per needed code before giving up. Bounds the
	// whole generation even if the entropy source keeps repeating itself.
	drawsPerCode = 100
)

// randomCode produces one code in XXXX-XXXX-XXXX form.
func randomCode() (string, error) {
	groups := make([]string, codeGroupCount)
	max := big.NewInt(int64(len(codeAlphabet)))
	for g := 0; g < codeGroupCount; g++ {
		var sb strings.Builder
		for i := 0; i < codeGroupSize; i++ {
			n, err := rand.Int(rand.Reader, max)
			if err != nil {
				return "", fmt.Errorf("failed to read random bytes: %w", err)
			}
			sb.WriteByte(codeAlphabet[n.Int64()])
		}
		groups[g] = sb.String()
	}
	return strings.Join(groups, "-"), nil
}

// GenerateUniqueCodes produces count codes unique among themselves and
// against already-stored coupons. Each pass regenerates only the colliding
// codes and rechecks the database, so one query per pass regardless of count.
func GenerateUniqueCodes(tx *gorm.DB, count int) ([]string, error) {
	return generateUniqueCodes(tx, count, randomCode)
}

func generateUniqueCodes(tx *gorm.DB, count int, nextCode func() (string, error)) ([]string, error) {
	seen := make(map[string]bool, count)
	draws := 0
	fresh := func() (string, error) {
		for draws < count*drawsPerCode {
			draws++
			code, err := nextCode()
			if err != nil {
				return "", err
			}
			if seen[code] {
				continue
			}
			seen[code] = true
			return code, nil
		}
		return "", fmt.Errorf("exhausted %d draws generating %d unique coupon codes", draws, count)
	}

	codes := make([]string, 0, count)
	for len(codes) < count {
		code, err := fresh()
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}

	for pass := 0; pass < maxCodePasses; pass++ {
		var taken []string
		err := tx.Model(&Coupon{}).
			Where("coupon_code IN ?", codes).
			Pluck("coupon_code", &taken).Error
		if err != nil {
			return nil, fmt.Errorf("failed to check coupon code collisions: %w", err)
		}
		if len(taken) == 0 {
			return codes, nil
		}

		collided := make(map[string]bool, len(taken))
		for _, code := range taken {
			collided[code] = true
		}
		for i, code := range codes {
			if !collided[code] {
				continue
			}
			replacement, err := fresh()
			if err != nil {
				return nil, err
			}
			codes[i] = replacement
		}
	}

	return nil, fmt.Errorf("could not generate %d unique coupon codes after %d passes", count, maxCodePasses)
}
