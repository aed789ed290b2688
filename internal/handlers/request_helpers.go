package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"foodbackend/internal/apperr"
	"foodbackend/internal/middleware"
	"foodbackend/internal/models"
)

func handlePanic(c *gin.Context, route string) {
	if r := recover(); r != nil {
		log.Printf("[%s] panic recovered: %v", route, r)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func respondWithError(c *gin.Context, status int, route string, message string) {
	log.Printf("[%s] returning error %d: %s", route, status, message)
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

// respondError translates a classified error into its response. Internal
// detail is only exposed while gin runs in debug mode.
func respondError(c *gin.Context, route string, err error) {
	appErr := apperr.As(err)
	status := appErr.Kind.HTTPStatus()

	body := gin.H{"error": appErr.Message}
	if len(appErr.Fields) > 0 {
		body["fields"] = appErr.Fields
	}

	if appErr.Kind == apperr.KindInternal {
		log.Printf("[%s] returning error %d: %v", route, status, err)
		body["error"] = "internal server error"
		if gin.IsDebugging() {
			body["detail"] = err.Error()
			if len(appErr.Stack) > 0 {
				body["stack"] = string(appErr.Stack)
			}
		}
	} else {
		log.Printf("[%s] returning error %d: %s", route, status, appErr.Error())
	}

	c.AbortWithStatusJSON(status, body)
}

func respondValidationError(c *gin.Context, route string, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		details := make([]string, 0, len(validationErrors))
		fields := make([]string, 0, len(validationErrors))
		for _, fieldError := range validationErrors {
			field := lowerCamel(fieldError.Field())
			fields = append(fields, field)
			switch fieldError.Tag() {
			case "required":
				details = append(details, fmt.Sprintf("%s is required", field))
			case "objectid":
				details = append(details, fmt.Sprintf("%s must be a valid id", field))
			case "min", "max", "gt", "gte", "lte", "oneof":
				details = append(details, fmt.Sprintf("%s is out of range", field))
			default:
				details = append(details, fmt.Sprintf("%s is invalid", field))
			}
		}
		log.Printf("[%s] returning error %d: validation failed %v", route, http.StatusBadRequest, fields)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":   "validation failed",
			"fields":  fields,
			"details": details,
		})
		return
	}

	respondWithError(c, http.StatusBadRequest, route, "invalid body")
}

func lowerCamel(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}

func currentUser(c *gin.Context, route string) (primitive.ObjectID, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		log.Printf("[%s] userId missing in context", route)
		respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
		return primitive.NilObjectID, false
	}
	return userID, true
}

func isStaff(c *gin.Context) bool {
	role := middleware.Role(c)
	return role == models.RoleAdmin || role == models.RoleRestaurantOwner
}
