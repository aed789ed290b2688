package middleware

import (
	"log"

	"github.com/gin-gonic/gin"
)

// UserAuth validates user JWT tokens and injects the userId into the context.
func UserAuth(secret string) gin.HandlerFunc {
	return AuthGuard(secret)
}

// OptionalUser injects the userId when a valid token is present and lets the
// request through untouched otherwise.
func OptionalUser(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.Next()
			return
		}

		id, err := parseBearer(c.GetHeader("Authorization"), secret)
		if err != nil {
			log.Println("[AUTH] [WARN] ignoring invalid optional token:", err)
			c.Next()
			return
		}

		c.Set(ContextUserID, id.UserID)
		c.Set(ContextRole, id.Role)
		c.Next()
	}
}
