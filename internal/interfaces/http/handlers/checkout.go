// internal/interfaces/http/handlers/checkout.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/merchstore-backend/internal/domain/checkout"
	"github.com/your-org/merchstore-backend/internal/interfaces/http/middleware"
)

// CheckoutHandler handles checkout endpoints
type CheckoutHandler struct {
	checkoutService *checkout.Service
}

// NewCheckoutHandler creates a new checkout handler
func NewCheckoutHandler(checkoutService *checkout.Service) *CheckoutHandler {
	return &CheckoutHandler{
		checkoutService: checkoutService,
	}
}

// CreatePaymentIntent handles POST /checkout/create-intent
func (h *CheckoutHandler) CreatePaymentIntent(c *gin.Context) {
	id := middleware.GetIdentityFromContext(c)

	result, err := h.checkoutService.CreatePaymentIntent(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":      true,
		"clientSecret": result.ClientSecret,
		"orderId":      result.OrderID,
		"total":        result.Total,
		"subtotal":     result.Subtotal,
		"shipping":     result.Shipping,
	})
}
