package handlers

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/merchstore-backend/internal/config"
	"github.com/your-org/merchstore-backend/internal/domain/cart"
	"github.com/your-org/merchstore-backend/internal/domain/identity"
	"github.com/your-org/merchstore-backend/internal/domain/product"
	"github.com/your-org/merchstore-backend/internal/interfaces/http/middleware"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newCartRouter(t *testing.T) (*gin.Engine, *cart.Service, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&product.Product{}, &product.ProductVariant{},
		&cart.Cart{}, &cart.CartItem{},
	))

	log := logrus.New()
	log.SetOutput(io.Discard)

	cartService := cart.NewService(db, log)
	cartHandler := NewCartHandler(cartService)

	engine := gin.New()
	engine.Use(middleware.Identity(&config.Config{}))
	engine.GET("/cart", cartHandler.GetCart)
	engine.POST("/cart/items", cartHandler.AddToCart)
	return engine, cartService, db
}

func TestCartHandlerAddsAndListsThroughSharedService(t *testing.T) {
	engine, cartService, db := newCartRouter(t)

	p := product.Product{Name: "Hoodie", Slug: "hoodie", BasePrice: 29}
	require.NoError(t, db.Create(&p).Error)
	variant := product.ProductVariant{ProductID: p.ID, SKU: "HOOD-M", Size: "M"}
	require.NoError(t, db.Create(&variant).Error)

	body := `{"product_variant_id": ` + strconv.FormatUint(uint64(variant.ID), 10) + `, "quantity": 2}`
	req := httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Session-Id", "sess-1")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set("X-Session-Id", "sess-1")
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_quantity":2`)

	// The handler operates on the same service instance it was given.
	resp, err := cartService.GetCart(identity.Guest("sess-1"))
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, 2, resp.Items[0].Quantity)
}

func TestCartHandlerRejectsInvalidItemPayload(t *testing.T) {
	engine, _, _ := newCartRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(`{"quantity": 0}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Session-Id", "sess-1")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
