package middleware

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	ContextUserID = "userId"
	ContextRole   = "role"
)

var errMissingToken = errors.New("missing token")

type identity struct {
	UserID primitive.ObjectID
	Role   string
}

func parseBearer(header, secret string) (identity, error) {
	raw := strings.TrimSpace(header)
	if raw == "" {
		return identity{}, errMissingToken
	}

	parts := strings.Split(raw, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return identity{}, errors.New("invalid token format")
	}

	token, err := jwt.Parse(parts[1], func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return identity{}, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return identity{}, errors.New("invalid token claims")
	}

	userIDValue, ok := claims["userId"].(string)
	if !ok || strings.TrimSpace(userIDValue) == "" {
		return identity{}, errors.New("userId claim missing")
	}

	userID, err := primitive.ObjectIDFromHex(userIDValue)
	if err != nil {
		return identity{}, errors.New("invalid userId claim")
	}

	role, _ := claims["role"].(string)
	return identity{UserID: userID, Role: role}, nil
}

// AuthGuard requires a valid bearer token and, when roles are given, one of
// those roles.
func AuthGuard(secret string, allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseBearer(c.GetHeader("Authorization"), secret)
		if err != nil {
			log.Println("[AUTH] [ERROR] token validation failed:", err)
			message := "unauthorized"
			if errors.Is(err, errMissingToken) {
				message = "missing token"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": message})
			return
		}

		if len(allowedRoles) > 0 {
			match := false
			for _, r := range allowedRoles {
				if id.Role == r {
					match = true
					break
				}
			}
			if !match {
				log.Printf("[AUTH] [ERROR] role %q not allowed", id.Role)
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
				return
			}
		}

		c.Set(ContextUserID, id.UserID)
		c.Set(ContextRole, id.Role)
		c.Next()
	}
}

// AdminAuth restricts a route to admin tokens.
func AdminAuth(secret string) gin.HandlerFunc {
	return AuthGuard(secret, "admin")
}

// UserID returns the authenticated user id set by AuthGuard or UserAuth.
func UserID(c *gin.Context) (primitive.ObjectID, bool) {
	value, ok := c.Get(ContextUserID)
	if !ok {
		return primitive.NilObjectID, false
	}
	id, ok := value.(primitive.ObjectID)
	return id, ok
}

func Role(c *gin.Context) string {
	return c.GetString(ContextRole)
}
