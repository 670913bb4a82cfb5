// internal/interfaces/http/handlers/webhook.go
package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/your-org/merchstore-backend/internal/domain/webhook"
	"github.com/your-org/merchstore-backend/internal/pkg/apperror"
)

// Signature header sent by the payment provider.
const signatureHeader = "Stripe-Signature"

// WebhookHandler handles payment provider webhook deliveries
type WebhookHandler struct {
	reconciler *webhook.Reconciler
	log        *logrus.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(reconciler *webhook.Reconciler, log *logrus.Logger) *WebhookHandler {
	return &WebhookHandler{
		reconciler: reconciler,
		log:        log,
	}
}

// HandlePaymentWebhook handles POST /webhooks/payment. The body is read raw
// because the signature covers the exact bytes the provider sent.
func (h *WebhookHandler) HandlePaymentWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to read request body",
		})
		return
	}

	err = h.reconciler.HandleEvent(c.Request.Context(), body, c.GetHeader(signatureHeader))
	if err != nil {
		if apperror.KindOf(err) == apperror.KindSignature {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid signature",
			})
			return
		}
		// Processing errors return 500 so the provider retries the delivery.
		h.log.WithError(err).Error("Webhook processing failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Webhook processing failed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
