// Package testutil holds in-memory stand-ins for the Mongo repositories and
// external providers, used by package tests.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"foodbackend/internal/models"
	"foodbackend/internal/orders"
)

// OrderStore is an orders.Store guarded by a single mutex, which gives every
// conditional method the same atomicity as a FindOneAndUpdate.
type OrderStore struct {
	mu     sync.Mutex
	orders map[primitive.ObjectID]models.Order
	// TakenNumbers makes Insert fail with a duplicate error for these numbers.
	TakenNumbers map[string]bool
}

func NewOrderStore() *OrderStore {
	return &OrderStore{
		orders:       make(map[primitive.ObjectID]models.Order),
		TakenNumbers: make(map[string]bool),
	}
}

func (s *OrderStore) Insert(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.TakenNumbers[order.OrderNumber] {
		return orders.ErrDuplicateOrderNumber
	}
	for _, existing := range s.orders {
		if existing.OrderNumber == order.OrderNumber {
			return orders.ErrDuplicateOrderNumber
		}
	}
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	s.orders[order.ID] = cloneOrder(*order)
	return nil
}

// Put stores an order as-is, for seeding.
func (s *OrderStore) Put(order models.Order) models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	s.orders[order.ID] = cloneOrder(order)
	return order
}

func (s *OrderStore) FindByID(_ context.Context, id primitive.ObjectID) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return models.Order{}, orders.ErrNotFound
	}
	return cloneOrder(order), nil
}

func (s *OrderStore) FindByUser(_ context.Context, userID primitive.ObjectID, limit int64) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Order, 0)
	for _, order := range s.orders {
		if order.UserID == userID {
			out = append(out, cloneOrder(order))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *OrderStore) FindByPaymentID(_ context.Context, paymentID string) (models.Order, error) {
	return s.findWhere(func(o models.Order) bool { return o.PaymentID != nil && *o.PaymentID == paymentID })
}

func (s *OrderStore) FindByGatewayOrderID(_ context.Context, gatewayOrderID string) (models.Order, error) {
	return s.findWhere(func(o models.Order) bool { return o.RazorpayOrderID != nil && *o.RazorpayOrderID == gatewayOrderID })
}

func (s *OrderStore) findWhere(match func(models.Order) bool) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, order := range s.orders {
		if match(order) {
			return cloneOrder(order), nil
		}
	}
	return models.Order{}, orders.ErrNotFound
}

func (s *OrderStore) CompareAndSetStatus(_ context.Context, id primitive.ObjectID, from, to models.OrderStatus) (models.Order, bool, error) {
	return s.update(id, func(o *models.Order) (bool, error) {
		if o.Status != from {
			return false, nil
		}
		o.Status = to
		return true, nil
	})
}

func (s *OrderStore) SetPaymentStatus(_ context.Context, id primitive.ObjectID, from []models.PaymentStatus, to models.PaymentStatus, change orders.PaymentChange) (models.Order, bool, error) {
	return s.update(id, func(o *models.Order) (bool, error) {
		if !orders.MatchesGatewayOrder(*o, change.GatewayOrderID) {
			return false, nil
		}
		for _, status := range from {
			if o.PaymentStatus == status {
				o.PaymentStatus = to
				return true, s.applyPaymentChange(o, change)
			}
		}
		return false, nil
	})
}

func (s *OrderStore) AttachPaymentID(_ context.Context, id primitive.ObjectID, change orders.PaymentChange) (models.Order, bool, error) {
	return s.update(id, func(o *models.Order) (bool, error) {
		if o.PaymentStatus != models.PaymentPaid || o.PaymentID != nil || change.PaymentID == nil {
			return false, nil
		}
		if !orders.MatchesGatewayOrder(*o, change.GatewayOrderID) {
			return false, nil
		}
		return true, s.applyPaymentChange(o, change)
	})
}

// applyPaymentChange runs with s.mu held.
func (s *OrderStore) applyPaymentChange(o *models.Order, change orders.PaymentChange) error {
	if change.GatewayOrderID != "" && o.RazorpayOrderID == nil {
		if err := s.checkUniqueGatewayOrder(o.ID, change.GatewayOrderID); err != nil {
			return err
		}
		gid := change.GatewayOrderID
		o.RazorpayOrderID = &gid
	}
	if change.PaymentID != nil {
		pid := *change.PaymentID
		o.PaymentID = &pid
	}
	return nil
}

func (s *OrderStore) SetGatewayOrderID(_ context.Context, id primitive.ObjectID, gatewayOrderID string) (models.Order, error) {
	order, _, err := s.update(id, func(o *models.Order) (bool, error) {
		if err := s.checkUniqueGatewayOrder(o.ID, gatewayOrderID); err != nil {
			return false, err
		}
		o.RazorpayOrderID = &gatewayOrderID
		return true, nil
	})
	return order, err
}

// checkUniqueGatewayOrder mirrors the unique razorpayOrderId index.
func (s *OrderStore) checkUniqueGatewayOrder(id primitive.ObjectID, gatewayOrderID string) error {
	for otherID, other := range s.orders {
		if otherID != id && other.RazorpayOrderID != nil && *other.RazorpayOrderID == gatewayOrderID {
			return orders.ErrGatewayOrderLinked
		}
	}
	return nil
}

func (s *OrderStore) update(id primitive.ObjectID, apply func(*models.Order) (bool, error)) (models.Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return models.Order{}, false, orders.ErrNotFound
	}
	changed, err := apply(&order)
	if err != nil {
		return models.Order{}, false, err
	}
	if !changed {
		return cloneOrder(order), false, nil
	}
	order.UpdatedAt = time.Now().UTC()
	s.orders[id] = order
	return cloneOrder(order), true, nil
}

func cloneOrder(o models.Order) models.Order {
	o.Items = append([]models.OrderItem(nil), o.Items...)
	if o.PaymentID != nil {
		v := *o.PaymentID
		o.PaymentID = &v
	}
	if o.RazorpayOrderID != nil {
		v := *o.RazorpayOrderID
		o.RazorpayOrderID = &v
	}
	return o
}

// Catalog is an in-memory orders.Catalog.
type Catalog struct {
	mu          sync.Mutex
	restaurants map[primitive.ObjectID]models.Restaurant
	menu        map[primitive.ObjectID]models.MenuItem
}

func NewCatalog() *Catalog {
	return &Catalog{
		restaurants: make(map[primitive.ObjectID]models.Restaurant),
		menu:        make(map[primitive.ObjectID]models.MenuItem),
	}
}

// AddRestaurant seeds an active restaurant with the given menu items.
func (c *Catalog) AddRestaurant(name string, items ...models.MenuItem) (models.Restaurant, []models.MenuItem) {
	c.mu.Lock()
	defer c.mu.Unlock()

	restaurant := models.Restaurant{
		ID:           primitive.NewObjectID(),
		Name:         name,
		IsActive:     true,
		DeliveryTime: models.DefaultDeliveryTime,
	}
	c.restaurants[restaurant.ID] = restaurant

	seeded := make([]models.MenuItem, 0, len(items))
	for _, item := range items {
		if item.ID.IsZero() {
			item.ID = primitive.NewObjectID()
		}
		item.RestaurantID = restaurant.ID
		c.menu[item.ID] = item
		seeded = append(seeded, item)
	}
	return restaurant, seeded
}

func (c *Catalog) Restaurant(_ context.Context, id primitive.ObjectID) (models.Restaurant, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	restaurant, ok := c.restaurants[id]
	if !ok {
		return models.Restaurant{}, orders.ErrRestaurantNotFound
	}
	return restaurant, nil
}

func (c *Catalog) MenuItems(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.MenuItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[primitive.ObjectID]models.MenuItem, len(ids))
	for _, id := range ids {
		if item, ok := c.menu[id]; ok {
			out[id] = item
		}
	}
	return out, nil
}
