// internal/interfaces/http/middleware/auth.go
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/merchstore-backend/internal/config"
	"github.com/your-org/merchstore-backend/internal/domain/identity"
	"github.com/your-org/merchstore-backend/internal/pkg/auth"
)

const (
	identityKey     = "identity"
	sessionIDHeader = "X-Session-Id"
)

// Identity resolves who is calling: a valid bearer token yields an
// authenticated identity, an X-Session-Id header yields a guest identity,
// neither yields an anonymous one. It never rejects; route guards decide
// what level of identity they need.
func Identity(cfg *config.Config) gin.HandlerFunc {
	jwtManager := auth.NewJWTManager(cfg)

	return func(c *gin.Context) {
		if tokenString := auth.ExtractTokenFromHeader(c.GetHeader("Authorization")); tokenString != "" {
			if claims, err := jwtManager.ValidateAccessToken(tokenString); err == nil {
				c.Set(identityKey, identity.Authenticated(claims.UserID, claims.OrgID))
				c.Next()
				return
			}
		}

		if sessionID := c.GetHeader(sessionIDHeader); sessionID != "" {
			c.Set(identityKey, identity.Guest(sessionID))
			c.Next()
			return
		}

		c.Set(identityKey, identity.Anonymous())
		c.Next()
	}
}

// RequireAuth rejects requests without an authenticated identity.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := GetIdentityFromContext(c)
		if !id.IsAuthenticated() {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireIdentity rejects fully anonymous requests. Guest sessions pass.
func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := GetIdentityFromContext(c)
		if id.IsAnonymous() {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication or session required",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetIdentityFromContext extracts the resolved identity from gin context
func GetIdentityFromContext(c *gin.Context) identity.Identity {
	value, exists := c.Get(identityKey)
	if !exists {
		return identity.Anonymous()
	}
	id, ok := value.(identity.Identity)
	if !ok {
		return identity.Anonymous()
	}
	return id
}
