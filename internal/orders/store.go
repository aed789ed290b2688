// Package orders owns the order lifecycle: creation, delivery status changes
// and the payment ledger. Persistence sits behind Store so every transition
// can be expressed as one conditional write.
package orders

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"foodbackend/internal/apperr"
	"foodbackend/internal/models"
)

var (
	ErrNotFound             = errors.New("order not found")
	ErrDuplicateOrderNumber = errors.New("duplicate order number")
	ErrRestaurantNotFound   = errors.New("restaurant not found")
	// ErrGatewayOrderLinked is returned when a write would link a gateway
	// order that another order already holds.
	ErrGatewayOrderLinked = errors.New("gateway order linked to another order")
)

// Store persists orders. The conditional methods apply their update only when
// the document is in one of the expected states; they return the current
// document with changed=false when it is not, and ErrNotFound when the order
// does not exist.
type Store interface {
	Insert(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id primitive.ObjectID) (models.Order, error)
	FindByUser(ctx context.Context, userID primitive.ObjectID, limit int64) ([]models.Order, error)
	FindByPaymentID(ctx context.Context, paymentID string) (models.Order, error)
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (models.Order, error)

	CompareAndSetStatus(ctx context.Context, id primitive.ObjectID, from, to models.OrderStatus) (models.Order, bool, error)
	SetPaymentStatus(ctx context.Context, id primitive.ObjectID, from []models.PaymentStatus, to models.PaymentStatus, change PaymentChange) (models.Order, bool, error)
	// AttachPaymentID records the gateway payment id on a paid order that has none.
	AttachPaymentID(ctx context.Context, id primitive.ObjectID, change PaymentChange) (models.Order, bool, error)
	SetGatewayOrderID(ctx context.Context, id primitive.ObjectID, gatewayOrderID string) (models.Order, error)
}

// PaymentChange carries the optional parts of a payment write.
type PaymentChange struct {
	// PaymentID is recorded on the order when set.
	PaymentID *string
	// GatewayOrderID, when set, restricts the write to orders linked to that
	// gateway order or not linked at all. Unlinked orders get linked to it.
	GatewayOrderID string
}

// MatchesGatewayOrder reports whether the order may be settled by a payment
// made against gatewayOrderID.
func MatchesGatewayOrder(order models.Order, gatewayOrderID string) bool {
	return gatewayOrderID == "" || order.RazorpayOrderID == nil || *order.RazorpayOrderID == gatewayOrderID
}

// Catalog resolves the restaurant and menu items an order refers to.
type Catalog interface {
	Restaurant(ctx context.Context, id primitive.ObjectID) (models.Restaurant, error)
	MenuItems(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.MenuItem, error)
}

func ParseID(raw string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(strings.TrimSpace(raw))
	if err != nil {
		return primitive.NilObjectID, apperr.Validation("invalid order id", "id")
	}
	return id, nil
}

func storeError(err error) error {
	if errors.Is(err, ErrNotFound) {
		return apperr.NotFound("order not found")
	}
	if errors.Is(err, ErrGatewayOrderLinked) {
		return errGatewayMismatch()
	}
	return apperr.Internal("order store failure", err)
}
