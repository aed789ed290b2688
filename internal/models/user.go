package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	RoleCustomer        = "customer"
	RoleAdmin           = "admin"
	RoleRestaurantOwner = "restaurant_owner"
)

// Address represents a saved delivery address for a user.
type Address struct {
	ID          string       `bson:"id" json:"id"`
	Label       string       `bson:"label" json:"label"`
	Address     string       `bson:"address" json:"address"`
	Coordinates *Coordinates `bson:"coordinates,omitempty" json:"coordinates,omitempty"`
	IsDefault   bool         `bson:"isDefault" json:"isDefault"`
}

// User represents the application user account. PhoneNumber and Email are the
// notification targets for the user's orders.
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email        string             `bson:"email" json:"email"`
	PasswordHash string             `bson:"passwordHash" json:"-"`
	DisplayName  string             `bson:"displayName" json:"displayName"`
	PhoneNumber  string             `bson:"phoneNumber,omitempty" json:"phoneNumber,omitempty"`
	Role         string             `bson:"role" json:"role"`
	Addresses    []Address          `bson:"addresses" json:"addresses"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt" json:"updatedAt"`
}
