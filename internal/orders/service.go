package orders

import (
	"context"
	"crypto/rand"
	"errors"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"foodbackend/internal/apperr"
	"foodbackend/internal/models"
	"foodbackend/internal/notification"
)

const (
	orderNumberAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	orderNumberLength   = 8
	maxNumberAttempts   = 5
	defaultListLimit    = 10
)

type ItemInput struct {
	MenuItemID primitive.ObjectID
	Quantity   int
}

type CreateInput struct {
	UserID              primitive.ObjectID
	RestaurantID        primitive.ObjectID
	Items               []ItemInput
	DeliveryAddress     models.DeliveryAddress
	PaymentMethod       models.PaymentMethod
	SpecialInstructions string
}

type Service struct {
	store     Store
	catalog   Catalog
	machine   StateMachine
	publisher notification.Publisher
	now       func() time.Time
}

func NewService(store Store, catalog Catalog, machine StateMachine, publisher notification.Publisher) *Service {
	return &Service{
		store:     store,
		catalog:   catalog,
		machine:   machine,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create prices the order from the menu, stores it as pending and publishes
// the order-placed event. Client supplied names and prices are ignored.
func (s *Service) Create(ctx context.Context, in CreateInput) (models.Order, error) {
	if len(in.Items) == 0 {
		return models.Order{}, apperr.Validation("at least one item is required", "items")
	}
	if in.PaymentMethod == "" {
		in.PaymentMethod = models.PaymentCash
	}
	if !in.PaymentMethod.Valid() {
		return models.Order{}, apperr.Validation("invalid payment method", "paymentMethod")
	}
	if strings.TrimSpace(in.DeliveryAddress.Address) == "" {
		return models.Order{}, apperr.Validation("delivery address is required", "deliveryAddress")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	restaurant, err := s.catalog.Restaurant(ctx, in.RestaurantID)
	if errors.Is(err, ErrRestaurantNotFound) {
		return models.Order{}, apperr.Validation("restaurant not found", "restaurant")
	}
	if err != nil {
		return models.Order{}, apperr.Internal("restaurant lookup failed", err)
	}
	if !restaurant.IsActive {
		return models.Order{}, apperr.Validation("restaurant is not accepting orders", "restaurant")
	}

	items, total, err := s.priceItems(ctx, in.RestaurantID, in.Items)
	if err != nil {
		return models.Order{}, err
	}

	deliveryTime := restaurant.DeliveryTime
	if deliveryTime == "" {
		deliveryTime = models.DefaultDeliveryTime
	}

	paymentStatus := models.PaymentPaid
	if in.PaymentMethod == models.PaymentCash {
		paymentStatus = models.PaymentPending
	}

	now := s.now()
	order := models.Order{
		UserID:              in.UserID,
		RestaurantID:        in.RestaurantID,
		Items:               items,
		TotalPrice:          total,
		DeliveryAddress:     in.DeliveryAddress,
		Status:              models.StatusPending,
		PaymentMethod:       in.PaymentMethod,
		PaymentStatus:       paymentStatus,
		DeliveryTime:        deliveryTime,
		SpecialInstructions: strings.TrimSpace(in.SpecialInstructions),
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := s.insertWithNumber(ctx, &order); err != nil {
		return models.Order{}, err
	}

	log.Printf("[ORDER] [INFO] order %s created for user %s total=%.2f", order.OrderNumber, order.UserID.Hex(), order.TotalPrice)
	publishEvent(ctx, s.publisher, notification.OrderPlaced(order))
	return order, nil
}

func (s *Service) priceItems(ctx context.Context, restaurantID primitive.ObjectID, in []ItemInput) ([]models.OrderItem, float64, error) {
	ids := make([]primitive.ObjectID, 0, len(in))
	for _, item := range in {
		if item.Quantity < 1 {
			return nil, 0, apperr.Validation("quantity must be at least 1", "items.quantity")
		}
		ids = append(ids, item.MenuItemID)
	}

	menu, err := s.catalog.MenuItems(ctx, ids)
	if err != nil {
		return nil, 0, apperr.Internal("menu lookup failed", err)
	}

	items := make([]models.OrderItem, 0, len(in))
	total := decimal.Zero
	for _, item := range in {
		menuItem, ok := menu[item.MenuItemID]
		if !ok || menuItem.RestaurantID != restaurantID {
			return nil, 0, apperr.Validation("menu item "+item.MenuItemID.Hex()+" not found for restaurant", "items.menuItem")
		}
		if !menuItem.Available {
			return nil, 0, apperr.Validation("menu item "+menuItem.Name+" is not available", "items.menuItem")
		}

		items = append(items, models.OrderItem{
			MenuItemID: menuItem.ID,
			Name:       menuItem.Name,
			Quantity:   item.Quantity,
			Price:      menuItem.Price,
		})
		total = total.Add(decimal.NewFromFloat(menuItem.Price).Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	return items, total.Round(2).InexactFloat64(), nil
}

func (s *Service) insertWithNumber(ctx context.Context, order *models.Order) error {
	for attempt := 1; attempt <= maxNumberAttempts; attempt++ {
		number, err := NewOrderNumber()
		if err != nil {
			return apperr.Internal("order number generation failed", err)
		}
		order.OrderNumber = number

		err = s.store.Insert(ctx, order)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrDuplicateOrderNumber) {
			return apperr.Internal("order insert failed", err)
		}
		log.Printf("[ORDER] [WARN] order number %s already taken (attempt %d)", number, attempt)
	}
	return apperr.Internal("could not allocate a unique order number", ErrDuplicateOrderNumber)
}

// NewOrderNumber returns "#" followed by eight uppercase alphanumerics.
func NewOrderNumber() (string, error) {
	var b strings.Builder
	b.Grow(orderNumberLength + 1)
	b.WriteByte('#')

	max := big.NewInt(int64(len(orderNumberAlphabet)))
	for i := 0; i < orderNumberLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(orderNumberAlphabet[n.Int64()])
	}
	return b.String(), nil
}

func (s *Service) Get(ctx context.Context, orderID string) (models.Order, error) {
	id, err := ParseID(orderID)
	if err != nil {
		return models.Order{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	order, err := s.store.FindByID(ctx, id)
	if err != nil {
		return models.Order{}, storeError(err)
	}
	return order, nil
}

// ListForUser returns the user's orders, newest first.
func (s *Service) ListForUser(ctx context.Context, userID primitive.ObjectID, limit int64) ([]models.Order, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	orders, err := s.store.FindByUser(ctx, userID, limit)
	if err != nil {
		return nil, apperr.Internal("order list failed", err)
	}
	return orders, nil
}

// SetStatus moves an order to a new delivery status. Requesting the current
// status is a no-op; the returned bool reports whether anything changed.
func (s *Service) SetStatus(ctx context.Context, orderID string, status models.OrderStatus) (models.Order, bool, error) {
	if !status.Valid() {
		return models.Order{}, false, apperr.Validation("invalid status", "status")
	}
	id, err := ParseID(orderID)
	if err != nil {
		return models.Order{}, false, err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	current, err := s.store.FindByID(ctx, id)
	if err != nil {
		return models.Order{}, false, storeError(err)
	}
	if current.Status == status {
		return current, false, nil
	}
	if !s.machine.CanTransition(current.Status, status) {
		return current, false, apperr.InvalidTransition(string(current.Status), string(status))
	}

	order, changed, err := s.store.CompareAndSetStatus(ctx, id, current.Status, status)
	if err != nil {
		return models.Order{}, false, storeError(err)
	}
	if !changed {
		// Someone else moved the order between the read and the write.
		if order.Status == status {
			return order, false, nil
		}
		return order, false, apperr.InvalidTransition(string(order.Status), string(status))
	}

	log.Printf("[ORDER] [INFO] order %s status %s -> %s", order.OrderNumber, current.Status, status)
	publishEvent(ctx, s.publisher, notification.StatusChanged(order))
	return order, true, nil
}

// Cancel cancels an order on behalf of a user. Customers may only cancel
// their own orders.
func (s *Service) Cancel(ctx context.Context, orderID string, actor primitive.ObjectID, privileged bool) (models.Order, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return models.Order{}, err
	}
	if !privileged && order.UserID != actor {
		return models.Order{}, apperr.Forbidden("order belongs to another user")
	}

	order, _, err = s.SetStatus(ctx, orderID, models.StatusCancelled)
	return order, err
}
