// internal/interfaces/http/handlers/coupon.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/merchstore-backend/internal/domain/coupon"
	"github.com/your-org/merchstore-backend/internal/interfaces/http/middleware"
)

// CouponHandler handles coupon batch and coupon endpoints
type CouponHandler struct {
	couponService *coupon.Service
}

// NewCouponHandler creates a new coupon handler
func NewCouponHandler(couponService *coupon.Service) *CouponHandler {
	return &CouponHandler{
		couponService: couponService,
	}
}

// InitiateBatchPayment handles POST /coupons/initiate-payment
func (h *CouponHandler) InitiateBatchPayment(c *gin.Context) {
	id := middleware.GetIdentityFromContext(c)

	var req coupon.InitiateBatchInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	result, err := h.couponService.InitiateBatchPayment(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":      true,
		"clientSecret": result.ClientSecret,
		"batchId":      result.BatchID,
		"total":        result.Total,
		"userCount":    result.UserCount,
	})
}

// ListBatches handles GET /coupons/batches
func (h *CouponHandler) ListBatches(c *gin.Context) {
	id := middleware.GetIdentityFromContext(c)

	batches, err := h.couponService.ListBatches(id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Coupon batches retrieved successfully",
		"data":    batches,
	})
}

// MyCoupons handles GET /coupons/mine
func (h *CouponHandler) MyCoupons(c *gin.Context) {
	id := middleware.GetIdentityFromContext(c)

	coupons, err := h.couponService.CouponsForUser(id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Coupons retrieved successfully",
		"data":    coupons,
	})
}
