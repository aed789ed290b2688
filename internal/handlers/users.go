package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"foodbackend/internal/database"
	"foodbackend/internal/models"
)

type profileRequest struct {
	DisplayName *string `json:"displayName" binding:"omitempty,min=1,max=100"`
	PhoneNumber *string `json:"phoneNumber" binding:"omitempty,max=20"`
}

type addressRequest struct {
	Label       string              `json:"label"`
	Address     string              `json:"address" binding:"required"`
	Coordinates *coordinatesRequest `json:"coordinates"`
	IsDefault   bool                `json:"isDefault"`
}

func UpdateProfile(users UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /users/me"
		defer handlePanic(c, route)

		userID, ok := currentUser(c, route)
		if !ok {
			return
		}

		var req profileRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, route, err)
			return
		}
		if req.DisplayName == nil && req.PhoneNumber == nil {
			respondWithError(c, http.StatusBadRequest, route, "nothing to update")
			return
		}
		trimPtr(req.DisplayName)
		trimPtr(req.PhoneNumber)

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		user, err := users.UpdateProfile(ctx, userID, req.DisplayName, req.PhoneNumber)
		if err != nil {
			respondUserError(c, route, err)
			return
		}

		log.Println("[USER] [INFO] profile updated:", userID.Hex())
		c.JSON(http.StatusOK, user)
	}
}

func trimPtr(s *string) {
	if s != nil {
		*s = strings.TrimSpace(*s)
	}
}

func GetUserAddresses(users UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /users/me/addresses"
		defer handlePanic(c, route)

		userID, ok := currentUser(c, route)
		if !ok {
			return
		}

		user, found := loadUser(c, route, users, userID)
		if !found {
			return
		}
		addresses := user.Addresses
		if addresses == nil {
			addresses = []models.Address{}
		}
		c.JSON(http.StatusOK, gin.H{"addresses": addresses})
	}
}

func CreateUserAddress(users UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /users/me/addresses"
		defer handlePanic(c, route)

		userID, ok := currentUser(c, route)
		if !ok {
			return
		}

		var req addressRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, route, err)
			return
		}

		user, found := loadUser(c, route, users, userID)
		if !found {
			return
		}

		address := req.toAddress(uuid.NewString())
		// The first address becomes the default.
		if len(user.Addresses) == 0 {
			address.IsDefault = true
		}
		if address.IsDefault {
			clearDefault(user.Addresses)
		}

		if !saveAddresses(c, route, users, userID, append(user.Addresses, address)) {
			return
		}

		log.Println("[ADDRESS] [INFO] address created:", address.ID)
		c.JSON(http.StatusCreated, gin.H{"address": address})
	}
}

func UpdateUserAddress(users UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /users/me/addresses/:id"
		defer handlePanic(c, route)

		userID, ok := currentUser(c, route)
		if !ok {
			return
		}

		var req addressRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, route, err)
			return
		}

		user, found := loadUser(c, route, users, userID)
		if !found {
			return
		}

		addressID := strings.TrimSpace(c.Param("id"))
		idx := findAddress(user.Addresses, addressID)
		if idx < 0 {
			respondWithError(c, http.StatusNotFound, route, "address not found")
			return
		}

		updated := req.toAddress(addressID)
		if updated.IsDefault {
			clearDefault(user.Addresses)
		} else if user.Addresses[idx].IsDefault {
			// Unsetting the default is done by choosing another address.
			updated.IsDefault = true
		}
		user.Addresses[idx] = updated

		if !saveAddresses(c, route, users, userID, user.Addresses) {
			return
		}

		log.Println("[ADDRESS] [INFO] address updated:", addressID)
		c.JSON(http.StatusOK, gin.H{"address": updated})
	}
}

func DeleteUserAddress(users UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /users/me/addresses/:id"
		defer handlePanic(c, route)

		userID, ok := currentUser(c, route)
		if !ok {
			return
		}

		user, found := loadUser(c, route, users, userID)
		if !found {
			return
		}

		addressID := strings.TrimSpace(c.Param("id"))
		idx := findAddress(user.Addresses, addressID)
		if idx < 0 {
			respondWithError(c, http.StatusNotFound, route, "address not found")
			return
		}

		wasDefault := user.Addresses[idx].IsDefault
		remaining := append(user.Addresses[:idx:idx], user.Addresses[idx+1:]...)
		if wasDefault && len(remaining) > 0 {
			remaining[0].IsDefault = true
		}

		if !saveAddresses(c, route, users, userID, remaining) {
			return
		}

		log.Println("[ADDRESS] [INFO] address deleted:", addressID)
		c.JSON(http.StatusOK, gin.H{"addresses": remaining})
	}
}

func (r addressRequest) toAddress(id string) models.Address {
	address := models.Address{
		ID:        id,
		Label:     strings.TrimSpace(r.Label),
		Address:   strings.TrimSpace(r.Address),
		IsDefault: r.IsDefault,
	}
	if r.Coordinates != nil {
		address.Coordinates = &models.Coordinates{Lat: r.Coordinates.Lat, Lng: r.Coordinates.Lng}
	}
	return address
}

func findAddress(addresses []models.Address, id string) int {
	for i := range addresses {
		if addresses[i].ID == id {
			return i
		}
	}
	return -1
}

func clearDefault(addresses []models.Address) {
	for i := range addresses {
		addresses[i].IsDefault = false
	}
}

func saveAddresses(c *gin.Context, route string, users UserStore, userID primitive.ObjectID, addresses []models.Address) bool {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if _, err := users.SaveAddresses(ctx, userID, addresses); err != nil {
		respondUserError(c, route, err)
		return false
	}
	return true
}

func respondUserError(c *gin.Context, route string, err error) {
	if errors.Is(err, database.ErrUserNotFound) {
		respondWithError(c, http.StatusNotFound, route, "user not found")
		return
	}
	log.Printf("[%s] user update failed: %v", route, err)
	respondWithError(c, http.StatusInternalServerError, route, "db error")
}
