package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type OrderStatus string

const (
	StatusPending        OrderStatus = "pending"
	StatusConfirmed      OrderStatus = "confirmed"
	StatusPreparing      OrderStatus = "preparing"
	StatusOutForDelivery OrderStatus = "out_for_delivery"
	StatusDelivered      OrderStatus = "delivered"
	StatusCancelled      OrderStatus = "cancelled"
)

// OrderStatuses lists every delivery status in lifecycle order.
var OrderStatuses = []OrderStatus{
	StatusPending,
	StatusConfirmed,
	StatusPreparing,
	StatusOutForDelivery,
	StatusDelivered,
	StatusCancelled,
}

func (s OrderStatus) Valid() bool {
	for _, status := range OrderStatuses {
		if s == status {
			return true
		}
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentCard   PaymentMethod = "card"
	PaymentOnline PaymentMethod = "online"
	PaymentUPI    PaymentMethod = "upi"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentOnline, PaymentUPI:
		return true
	}
	return false
}

type Coordinates struct {
	Lat float64 `bson:"lat" json:"lat"`
	Lng float64 `bson:"lng" json:"lng"`
}

type DeliveryAddress struct {
	Address     string       `bson:"address" json:"address"`
	Coordinates *Coordinates `bson:"coordinates,omitempty" json:"coordinates,omitempty"`
}

// OrderItem snapshots a menu item's name and price at the time of ordering.
type OrderItem struct {
	MenuItemID primitive.ObjectID `bson:"menuItem" json:"menuItem"`
	Name       string             `bson:"name" json:"name"`
	Quantity   int                `bson:"quantity" json:"quantity"`
	Price      float64            `bson:"price" json:"price"`
}

// Order defines the persisted order document. PaymentStatus, PaymentID and
// RazorpayOrderID form the payment ledger and are only written through
// orders.Ledger.
type Order struct {
	ID                  primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OrderNumber         string             `bson:"orderNumber" json:"orderNumber"`
	UserID              primitive.ObjectID `bson:"user" json:"user"`
	RestaurantID        primitive.ObjectID `bson:"restaurant" json:"restaurant"`
	Items               []OrderItem        `bson:"items" json:"items"`
	TotalPrice          float64            `bson:"totalPrice" json:"totalPrice"`
	DeliveryAddress     DeliveryAddress    `bson:"deliveryAddress" json:"deliveryAddress"`
	Status              OrderStatus        `bson:"status" json:"status"`
	PaymentMethod       PaymentMethod      `bson:"paymentMethod" json:"paymentMethod"`
	PaymentStatus       PaymentStatus      `bson:"paymentStatus" json:"paymentStatus"`
	PaymentID           *string            `bson:"paymentId" json:"paymentId"`
	RazorpayOrderID     *string            `bson:"razorpayOrderId" json:"razorpayOrderId"`
	DeliveryTime        string             `bson:"deliveryTime" json:"deliveryTime"`
	SpecialInstructions string             `bson:"specialInstructions,omitempty" json:"specialInstructions,omitempty"`
	CreatedAt           time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt           time.Time          `bson:"updatedAt" json:"updatedAt"`
}
