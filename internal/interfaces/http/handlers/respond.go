// internal/interfaces/http/handlers/respond.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/your-org/merchstore-backend/internal/pkg/apperror"
)

// respondError maps a service error onto an HTTP response. Tagged errors
// carry their own status; anything untagged is a 500 with a generic message
// so internals never leak to clients.
func respondError(c *gin.Context, err error) {
	c.JSON(apperror.HTTPStatus(err), gin.H{
		"error": apperror.ClientMessage(err),
	})
}
