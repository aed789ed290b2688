package handlers

import (
	"log"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var registerOnce sync.Once

// RegisterValidators adds the custom binding tags used by request DTOs.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			log.Println("[VALIDATION] [WARN] unexpected validator engine, custom tags not registered")
			return
		}
		if err := v.RegisterValidation("objectid", validateObjectID); err != nil {
			log.Println("[VALIDATION] [ERROR] register objectid:", err)
		}
	})
}

func validateObjectID(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	return primitive.IsValidObjectID(value)
}
