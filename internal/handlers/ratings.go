package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"foodbackend/internal/database"
	"foodbackend/internal/middleware"
	"foodbackend/internal/models"
)

type RatingStore interface {
	Create(ctx context.Context, rating *models.Rating) error
	Summary(ctx context.Context, restaurantID, menuItemID *primitive.ObjectID) (database.RatingSummary, error)
	ListByRestaurant(ctx context.Context, restaurantID primitive.ObjectID) ([]models.Rating, error)
}

type createRatingRequest struct {
	Restaurant string `json:"restaurant" binding:"omitempty,objectid"`
	MenuItem   string `json:"menuItem" binding:"omitempty,objectid"`
	Order      string `json:"order" binding:"omitempty,objectid"`
	Rating     int    `json:"rating" binding:"required,min=1,max=5"`
	Comment    string `json:"comment" binding:"max=1000"`
}

func CreateRating(ratings RatingStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /ratings"
		defer handlePanic(c, route)

		userID, ok := currentUser(c, route)
		if !ok {
			return
		}

		var req createRatingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, route, err)
			return
		}
		if req.Restaurant == "" && req.MenuItem == "" {
			respondWithError(c, http.StatusBadRequest, route, "restaurant or menuItem is required")
			return
		}

		rating := models.Rating{
			UserID:       userID,
			RestaurantID: optionalObjectID(req.Restaurant),
			MenuItemID:   optionalObjectID(req.MenuItem),
			OrderID:      optionalObjectID(req.Order),
			Rating:       req.Rating,
			Comment:      strings.TrimSpace(req.Comment),
			CreatedAt:    time.Now().UTC(),
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		if err := ratings.Create(ctx, &rating); err != nil {
			if errors.Is(err, database.ErrTargetNotFound) {
				respondWithError(c, http.StatusBadRequest, route, "rated restaurant or menu item not found")
				return
			}
			log.Println("[RATING] [ERROR] create rating failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		log.Printf("[RATING] [INFO] rating %d stored by %s", rating.Rating, userID.Hex())
		c.JSON(http.StatusCreated, rating)
	}
}

// optionalObjectID expects a value that already passed the objectid tag.
func optionalObjectID(hex string) *primitive.ObjectID {
	if hex == "" {
		return nil
	}
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return nil
	}
	return &id
}

func GetRatingAverage(ratings RatingStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /ratings/average"
		defer handlePanic(c, route)

		var restaurantID, menuItemID *primitive.ObjectID
		for param, target := range map[string]**primitive.ObjectID{
			"restaurant": &restaurantID,
			"menuItem":   &menuItemID,
		} {
			raw := strings.TrimSpace(c.Query(param))
			if raw == "" {
				continue
			}
			id, err := primitive.ObjectIDFromHex(raw)
			if err != nil {
				respondWithError(c, http.StatusBadRequest, route, "invalid "+param)
				return
			}
			*target = &id
		}

		summary, err := ratings.Summary(c.Request.Context(), restaurantID, menuItemID)
		if err != nil {
			log.Println("[RATING] [ERROR] rating summary failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		c.JSON(http.StatusOK, summary)
	}
}

func GetRestaurantRatings(ratings RatingStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /ratings/restaurant/:id"
		defer handlePanic(c, route)

		restaurantID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid id")
			return
		}

		list, err := ratings.ListByRestaurant(c.Request.Context(), restaurantID)
		if err != nil {
			log.Println("[RATING] [ERROR] list ratings failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		// ?mine=true narrows the list to the signed-in caller's ratings.
		if c.Query("mine") == "true" {
			userID, ok := middleware.UserID(c)
			if !ok {
				respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
				return
			}
			mine := make([]models.Rating, 0)
			for _, rating := range list {
				if rating.UserID == userID {
					mine = append(mine, rating)
				}
			}
			list = mine
		}

		c.JSON(http.StatusOK, list)
	}
}
