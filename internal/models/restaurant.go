package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultDeliveryTime is used when a restaurant has no delivery window set.
const DefaultDeliveryTime = "30-45 mins"

type Restaurant struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name         string             `bson:"name" json:"name"`
	Address      string             `bson:"address" json:"address"`
	CuisineType  StringList         `bson:"cuisineType" json:"cuisineType"`
	Rating       float64            `bson:"rating" json:"rating"`
	NumReviews   int                `bson:"numReviews" json:"numReviews"`
	DeliveryTime string             `bson:"deliveryTime" json:"deliveryTime"`
	IsActive     bool               `bson:"isActive" json:"isActive"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
}

// Rating is a 1-5 review of a restaurant, a menu item, or both.
type Rating struct {
	ID           primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	UserID       primitive.ObjectID  `bson:"user" json:"user"`
	RestaurantID *primitive.ObjectID `bson:"restaurant,omitempty" json:"restaurant,omitempty"`
	MenuItemID   *primitive.ObjectID `bson:"menuItem,omitempty" json:"menuItem,omitempty"`
	OrderID      *primitive.ObjectID `bson:"order,omitempty" json:"order,omitempty"`
	Rating       int                 `bson:"rating" json:"rating"`
	Comment      string              `bson:"comment,omitempty" json:"comment,omitempty"`
	CreatedAt    time.Time           `bson:"createdAt" json:"createdAt"`
}
