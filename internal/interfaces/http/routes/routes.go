// internal/interfaces/http/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/your-org/merchstore-backend/internal/config"
	"github.com/your-org/merchstore-backend/internal/domain/audit"
	"github.com/your-org/merchstore-backend/internal/domain/cart"
	"github.com/your-org/merchstore-backend/internal/domain/checkout"
	"github.com/your-org/merchstore-backend/internal/domain/coupon"
	"github.com/your-org/merchstore-backend/internal/domain/payment"
	"github.com/your-org/merchstore-backend/internal/domain/webhook"
	"github.com/your-org/merchstore-backend/internal/interfaces/http/handlers"
	"github.com/your-org/merchstore-backend/internal/interfaces/http/middleware"
	"github.com/your-org/merchstore-backend/internal/pkg/notify"
	"gorm.io/gorm"
)

// Deps carries the shared infrastructure every route group draws on.
type Deps struct {
	DB        *gorm.DB
	Redis     *redis.Client
	Config    *config.Config
	Log       *logrus.Logger
	Provider  payment.Provider
	Publisher notify.Publisher
}

// SetupRoutes wires all API routes onto the group.
func SetupRoutes(rg *gin.RouterGroup, deps Deps) {
	auditLog := audit.NewLogger(deps.DB, deps.Log)
	cartService := cart.NewService(deps.DB, deps.Log)
	checkoutService := checkout.NewService(deps.DB, deps.Provider, cartService, auditLog, deps.Config, deps.Log)
	couponService := coupon.NewService(deps.DB, deps.Provider, auditLog, deps.Publisher, deps.Config, deps.Log)
	reconciler := webhook.NewReconciler(deps.DB, cartService, couponService, auditLog, deps.Redis, deps.Config, deps.Log)

	setupCartRoutes(rg, cartService)
	setupCheckoutRoutes(rg, deps, checkoutService)
	setupWebhookRoutes(rg, deps, reconciler)
	setupCouponRoutes(rg, deps, couponService)
}

// setupCartRoutes sets up cart routes. Guest sessions are allowed; fully
// anonymous requests are not.
func setupCartRoutes(rg *gin.RouterGroup, cartService *cart.Service) {
	cartHandler := handlers.NewCartHandler(cartService)

	cartGroup := rg.Group("/cart")
	cartGroup.Use(middleware.RequireIdentity())
	{
		cartGroup.GET("", cartHandler.GetCart)
		cartGroup.POST("/items", cartHandler.AddToCart)
		cartGroup.PUT("/items/:id", cartHandler.UpdateCartItem)
		cartGroup.DELETE("/items/:id", cartHandler.RemoveCartItem)
		cartGroup.POST("/merge", cartHandler.MergeCart)
	}
}

// setupCheckoutRoutes sets up checkout routes
func setupCheckoutRoutes(rg *gin.RouterGroup, deps Deps, checkoutService *checkout.Service) {
	checkoutHandler := handlers.NewCheckoutHandler(checkoutService)

	checkoutGroup := rg.Group("/checkout")
	checkoutGroup.Use(middleware.RequireAuth())
	{
		checkoutGroup.POST("/create-intent", checkoutHandler.CreatePaymentIntent)
	}
}

// setupWebhookRoutes sets up provider webhook routes. No auth middleware:
// the signature check is the authentication.
func setupWebhookRoutes(rg *gin.RouterGroup, deps Deps, reconciler *webhook.Reconciler) {
	webhookHandler := handlers.NewWebhookHandler(reconciler, deps.Log)

	webhookGroup := rg.Group("/webhooks")
	{
		webhookGroup.POST("/payment", webhookHandler.HandlePaymentWebhook)
	}
}

// setupCouponRoutes sets up coupon batch and coupon routes
func setupCouponRoutes(rg *gin.RouterGroup, deps Deps, couponService *coupon.Service) {
	couponHandler := handlers.NewCouponHandler(couponService)

	couponGroup := rg.Group("/coupons")
	couponGroup.Use(middleware.RequireAuth())
	{
		couponGroup.POST("/initiate-payment", couponHandler.InitiateBatchPayment)
		couponGroup.GET("/batches", couponHandler.ListBatches)
		couponGroup.GET("/mine", couponHandler.MyCoupons)
	}
}
