package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/eventorizon/backend/internal/auth"
	"github.com/eventorizon/backend/pkg/response"
)

const (
	// ContextUserID is the key for user ID in gin context.
	ContextUserID = "user_id"
	// ContextUserRole is the key for user role in gin context.
	ContextUserRole = "user_role"
	// ContextUserEmail is the key for user email in gin context.
	ContextUserEmail = "user_email"
	// ContextUserName is the key for the user's display name in gin context.
	ContextUserName = "user_name"
)

// JWT returns a middleware that validates JWT and sets user claims in context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(strings.TrimSpace(parts[1]))
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserRole, claims.Role)
		c.Set(ContextUserEmail, claims.Email)
		c.Set(ContextUserName, claims.Name)
		c.Next()
	}
}

// Principal is the authenticated caller.
type Principal struct {
	UserID uuid.UUID
	Role   string
	Email  string
	Name   string
}

// CurrentUser returns the caller set by JWT. ok is false on unauthenticated routes.
func CurrentUser(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return Principal{}, false
	}
	id, ok := v.(uuid.UUID)
	if !ok {
		return Principal{}, false
	}
	return Principal{
		UserID: id,
		Role:   c.GetString(ContextUserRole),
		Email:  c.GetString(ContextUserEmail),
		Name:   c.GetString(ContextUserName),
	}, true
}
