package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"foodbackend/internal/middleware"
	"foodbackend/internal/models"
	"foodbackend/internal/orders"
	"foodbackend/internal/payment"
)

// Deps carries everything the HTTP layer is built from. Nil limiters turn
// rate limiting off.
type Deps struct {
	Users    UserStore
	Ratings  RatingStore
	Orders   *orders.Service
	Ledger   *orders.Ledger
	Gateway  payment.Gateway
	Verifier *payment.Verifier
	Ping     Pinger

	JWTSecret   string
	TokenTTL    time.Duration
	CORSOrigins []string
	StartedAt   time.Time

	APILimiter     *middleware.RateLimiter
	PaymentLimiter *middleware.RateLimiter
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	r.Use(middleware.CORS(d.CORSOrigins))

	r.GET("/", Home())
	r.GET("/health", Health(d.Ping, d.StartedAt))

	api := r.Group("/api")
	if d.APILimiter != nil {
		api.Use(middleware.RateLimit(d.APILimiter, "Too many requests from this IP, please try again later."))
	}

	userAuth := middleware.UserAuth(d.JWTSecret)
	staffAuth := middleware.AuthGuard(d.JWTSecret, models.RoleAdmin, models.RoleRestaurantOwner)

	auth := api.Group("/auth")
	{
		auth.POST("/register", Register(d.Users, d.JWTSecret, d.TokenTTL))
		auth.POST("/login", Login(d.Users, d.JWTSecret, d.TokenTTL))
		auth.GET("/me", userAuth, GetMe(d.Users))
	}

	users := api.Group("/users/me")
	users.Use(userAuth)
	{
		users.PUT("", UpdateProfile(d.Users))
		users.GET("/addresses", GetUserAddresses(d.Users))
		users.POST("/addresses", CreateUserAddress(d.Users))
		users.PUT("/addresses/:id", UpdateUserAddress(d.Users))
		users.DELETE("/addresses/:id", DeleteUserAddress(d.Users))
	}

	ordersGroup := api.Group("/orders")
	ordersGroup.Use(userAuth)
	{
		ordersGroup.POST("", CreateOrder(d.Orders))
		ordersGroup.GET("/my-orders", GetMyOrders(d.Orders))
		ordersGroup.GET("/:id", GetOrder(d.Orders))
		ordersGroup.PUT("/:id/status", staffAuth, UpdateOrderStatus(d.Orders))
		ordersGroup.DELETE("/:id", CancelOrder(d.Orders))
	}

	pay := api.Group("/payment")
	if d.PaymentLimiter != nil {
		pay.Use(middleware.RateLimit(d.PaymentLimiter, "Too many payment requests, please try again later."))
	}
	{
		// Webhooks are authenticated by their signature, not a bearer token.
		pay.POST("/webhook", PaymentWebhook(d.Verifier, d.Ledger))
		pay.POST("/create-order", userAuth, CreatePaymentOrder(d.Gateway, d.Ledger))
		pay.POST("/verify", userAuth, VerifyPayment(d.Verifier, d.Ledger))
		pay.GET("/status/:paymentId", userAuth, PaymentStatus(d.Gateway))
		pay.POST("/refund", middleware.AdminAuth(d.JWTSecret), RefundPayment(d.Gateway, d.Ledger))
	}

	ratings := api.Group("/ratings")
	{
		ratings.POST("", userAuth, CreateRating(d.Ratings))
		ratings.GET("/average", GetRatingAverage(d.Ratings))
		ratings.GET("/restaurant/:id", middleware.OptionalUser(d.JWTSecret), GetRestaurantRatings(d.Ratings))
	}
}
