package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) {
		id, _ := UserID(c)
		c.JSON(http.StatusOK, gin.H{"userId": id.Hex(), "role": Role(c)})
	})
	r.GET("/", handlers...)
	return r
}

func do(r http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAuthGuard(t *testing.T) {
	userID := primitive.NewObjectID()
	valid := signToken(t, testSecret, jwt.MapClaims{
		"userId": userID.Hex(),
		"role":   "customer",
		"exp":    time.Now().Add(time.Hour).Unix(),
	})
	expired := signToken(t, testSecret, jwt.MapClaims{
		"userId": userID.Hex(),
		"exp":    time.Now().Add(-time.Hour).Unix(),
	})
	foreign := signToken(t, "other-secret", jwt.MapClaims{"userId": userID.Hex()})
	noUser := signToken(t, testSecret, jwt.MapClaims{"role": "admin"})

	r := newRouter(AuthGuard(testSecret))

	rec := do(r, "Bearer "+valid)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), userID.Hex())

	for name, header := range map[string]string{
		"missing":  "",
		"format":   "Token " + valid,
		"expired":  "Bearer " + expired,
		"foreign":  "Bearer " + foreign,
		"no user":  "Bearer " + noUser,
		"garbage":  "Bearer abc.def.ghi",
		"no space": "Bearer" + valid,
	} {
		assert.Equal(t, http.StatusUnauthorized, do(r, header).Code, name)
	}
}

func TestAuthGuardRoles(t *testing.T) {
	customer := signToken(t, testSecret, jwt.MapClaims{"userId": primitive.NewObjectID().Hex(), "role": "customer"})
	admin := signToken(t, testSecret, jwt.MapClaims{"userId": primitive.NewObjectID().Hex(), "role": "admin"})

	r := newRouter(AdminAuth(testSecret))

	assert.Equal(t, http.StatusForbidden, do(r, "Bearer "+customer).Code)
	assert.Equal(t, http.StatusOK, do(r, "Bearer "+admin).Code)
}

func TestOptionalUser(t *testing.T) {
	userID := primitive.NewObjectID()
	valid := signToken(t, testSecret, jwt.MapClaims{"userId": userID.Hex()})

	r := newRouter(OptionalUser(testSecret))

	assert.Contains(t, do(r, "Bearer "+valid).Body.String(), userID.Hex())

	rec := do(r, "Bearer nonsense")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), primitive.NilObjectID.Hex())
}

func TestRateLimiterPerClient(t *testing.T) {
	l := NewRateLimiter(0.0001, 2, time.Minute)

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "clients have separate buckets")
}

func TestRateLimiterSweep(t *testing.T) {
	now := time.Now()
	l := NewRateLimiter(1, 1, time.Minute)
	l.now = func() time.Time { return now }

	l.Allow("old")
	now = now.Add(2 * time.Minute)
	l.Allow("fresh")

	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 1, l.Len())
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimit(NewRateLimiter(0.0001, 1, time.Minute), "too many requests"))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	assert.Equal(t, http.StatusNoContent, do(r, "").Code)
	rec := do(r, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "too many requests")
}
