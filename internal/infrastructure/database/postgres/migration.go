// internal/infrastructure/database/postgres/migration.go
package postgres

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/your-org/merchstore-backend/internal/domain/audit"
	"github.com/your-org/merchstore-backend/internal/domain/cart"
	"github.com/your-org/merchstore-backend/internal/domain/coupon"
	"github.com/your-org/merchstore-backend/internal/domain/order"
	"github.com/your-org/merchstore-backend/internal/domain/product"
	"github.com/your-org/merchstore-backend/internal/domain/user"
	"gorm.io/gorm"
)

// Migration handles database migrations
type Migration struct {
	db  *gorm.DB
	log *logrus.Logger
}

// NewMigration creates a new migration instance
func NewMigration(db *gorm.DB, log *logrus.Logger) *Migration {
	return &Migration{
		db:  db,
		log: log,
	}
}

// Models returns every model to migrate, in dependency order.
func Models() []interface{} {
	return []interface{}{
		// User domain - base tables
		&user.User{},
		&user.Group{},
		&user.GroupMember{},

		// Product domain
		&product.Product{},
		&product.ProductVariant{},

		// Cart domain
		&cart.Cart{},
		&cart.CartItem{},

		// Order domain
		&order.Order{},
		&order.OrderItem{},

		// Coupon domain
		&coupon.Batch{},
		&coupon.Coupon{},

		// Audit trail
		&audit.Transaction{},
	}
}

// RunAutoMigrations runs GORM auto-migrations for all models
func (m *Migration) RunAutoMigrations() error {
	m.log.Info("Running database auto-migrations")

	for _, model := range Models() {
		if err := m.db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", model, err)
		}
	}

	m.log.Info("Database auto-migrations completed")
	return nil
}

// CreateIndexes creates additional indexes not expressed in the model tags
func (m *Migration) CreateIndexes() error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_cart_items_cart_variant ON cart_items (cart_id, product_variant_id)",
		"CREATE INDEX IF NOT EXISTS idx_orders_user_status ON orders (ordered_by, status)",
		"CREATE INDEX IF NOT EXISTS idx_transactions_intent_type ON transactions (payment_intent_id, type)",
		"CREATE INDEX IF NOT EXISTS idx_coupons_batch_user ON coupons (coupon_batch_id, user_id)",
	}

	for _, stmt := range indexes {
		if err := m.db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}
