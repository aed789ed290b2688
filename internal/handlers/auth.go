package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"

	"foodbackend/internal/apperr"
	"foodbackend/internal/database"
	"foodbackend/internal/models"
)

// UserStore is the account storage the auth and profile handlers need.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (models.User, error)
	UpdateProfile(ctx context.Context, id primitive.ObjectID, displayName, phoneNumber *string) (models.User, error)
	SaveAddresses(ctx context.Context, id primitive.ObjectID, addresses []models.Address) (models.User, error)
}

type RegisterRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=6"`
	DisplayName string `json:"displayName" binding:"required"`
	PhoneNumber string `json:"phoneNumber"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func Register(users UserStore, jwtSecret string, tokenTTL time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /auth/register"
		defer handlePanic(c, route)

		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, route, err)
			return
		}

		email := strings.ToLower(strings.TrimSpace(req.Email))
		name := strings.TrimSpace(req.DisplayName)
		if name == "" {
			respondWithError(c, http.StatusBadRequest, route, "displayName is required")
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			log.Println("[AUTH] [ERROR] register password hash failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "password hash failed")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		now := time.Now().UTC()
		user := models.User{
			Email:        email,
			PasswordHash: string(hash),
			DisplayName:  name,
			PhoneNumber:  strings.TrimSpace(req.PhoneNumber),
			Role:         models.RoleCustomer,
			Addresses:    []models.Address{},
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := users.Create(ctx, &user); err != nil {
			if errors.Is(err, database.ErrEmailTaken) {
				respondError(c, route, apperr.Conflict("email already registered"))
				return
			}
			log.Println("[AUTH] [ERROR] register insert failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		token, err := issueToken(user, jwtSecret, tokenTTL)
		if err != nil {
			log.Println("[AUTH] [ERROR] register token generation failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "token generation failed")
			return
		}

		log.Println("[AUTH] [INFO] user registered:", email)
		c.JSON(http.StatusCreated, gin.H{"token": token, "user": user})
	}
}

func Login(users UserStore, jwtSecret string, tokenTTL time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /auth/login"
		defer handlePanic(c, route)

		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, route, err)
			return
		}

		email := strings.ToLower(strings.TrimSpace(req.Email))

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		user, err := users.FindByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, database.ErrUserNotFound) {
				log.Println("[AUTH] [ERROR] login invalid credentials")
				respondError(c, route, apperr.Unauthorized("invalid credentials"))
				return
			}
			log.Println("[AUTH] [ERROR] login user lookup failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
			log.Println("[AUTH] [ERROR] login invalid credentials")
			respondError(c, route, apperr.Unauthorized("invalid credentials"))
			return
		}

		token, err := issueToken(user, jwtSecret, tokenTTL)
		if err != nil {
			log.Println("[AUTH] [ERROR] login token generation failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "token generation failed")
			return
		}

		log.Println("[AUTH] [INFO] user login succeeded:", user.Email)
		c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
	}
}

func GetMe(users UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /auth/me"
		defer handlePanic(c, route)

		userID, ok := currentUser(c, route)
		if !ok {
			return
		}

		user, found := loadUser(c, route, users, userID)
		if !found {
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

func loadUser(c *gin.Context, route string, users UserStore, userID primitive.ObjectID) (models.User, bool) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	user, err := users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			respondWithError(c, http.StatusNotFound, route, "user not found")
			return models.User{}, false
		}
		log.Printf("[%s] user lookup failed: %v", route, err)
		respondWithError(c, http.StatusInternalServerError, route, "db error")
		return models.User{}, false
	}
	return user, true
}

func issueToken(user models.User, secret string, ttl time.Duration) (string, error) {
	role := user.Role
	if role == "" {
		role = models.RoleCustomer
	}
	claims := jwt.MapClaims{
		"userId": user.ID.Hex(),
		"email":  user.Email,
		"role":   role,
		"exp":    time.Now().Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
