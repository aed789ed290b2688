package notification

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"foodbackend/internal/models"
)

type Kind string

const (
	KindOrderPlaced     Kind = "order.placed"
	KindStatusChanged   Kind = "order.status_changed"
	KindPaymentCaptured Kind = "payment.captured"
	KindPaymentFailed   Kind = "payment.failed"
	KindPaymentRefunded Kind = "payment.refunded"
)

// StatusMessages holds the fixed customer-facing text for each status change.
var StatusMessages = map[models.OrderStatus]string{
	models.StatusConfirmed:      "Your order has been confirmed!",
	models.StatusPreparing:      "Your order is being prepared.",
	models.StatusOutForDelivery: "Your order is out for delivery!",
	models.StatusDelivered:      "Your order has been delivered. Enjoy your meal!",
	models.StatusCancelled:      "Your order has been cancelled.",
}

type EventItem struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// Event is a post-commit notification about one order. It is not persisted
// by the API; the publisher decides how it travels to the dispatcher.
type Event struct {
	ID              string             `json:"id"`
	Kind            Kind               `json:"kind"`
	OrderID         string             `json:"orderId"`
	OrderNumber     string             `json:"orderNumber"`
	UserID          string             `json:"userId"`
	Status          models.OrderStatus `json:"status,omitempty"`
	Message         string             `json:"message"`
	TotalPrice      float64            `json:"totalPrice"`
	PaymentMethod   string             `json:"paymentMethod"`
	DeliveryTime    string             `json:"deliveryTime"`
	DeliveryAddress string             `json:"deliveryAddress"`
	Items           []EventItem        `json:"items,omitempty"`
	OccurredAt      time.Time          `json:"occurredAt"`
}

func newEvent(kind Kind, order models.Order) Event {
	items := make([]EventItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, EventItem{Name: item.Name, Quantity: item.Quantity, Price: item.Price})
	}
	return Event{
		ID:              uuid.NewString(),
		Kind:            kind,
		OrderID:         order.ID.Hex(),
		OrderNumber:     order.OrderNumber,
		UserID:          order.UserID.Hex(),
		Status:          order.Status,
		TotalPrice:      order.TotalPrice,
		PaymentMethod:   string(order.PaymentMethod),
		DeliveryTime:    order.DeliveryTime,
		DeliveryAddress: order.DeliveryAddress.Address,
		Items:           items,
		OccurredAt:      time.Now().UTC(),
	}
}

func OrderPlaced(order models.Order) Event {
	e := newEvent(KindOrderPlaced, order)
	e.Message = fmt.Sprintf("Your order %s has been placed successfully! Total: ₹%s. We'll notify you when it's on the way.",
		order.OrderNumber, formatAmount(order.TotalPrice))
	return e
}

func StatusChanged(order models.Order) Event {
	e := newEvent(KindStatusChanged, order)
	e.Message = StatusMessages[order.Status]
	if e.Message == "" {
		e.Message = fmt.Sprintf("Your order status is now %s.", order.Status)
	}
	return e
}

func PaymentCaptured(order models.Order) Event {
	e := newEvent(KindPaymentCaptured, order)
	e.Message = fmt.Sprintf("Payment received! Your order %s is confirmed. Total: ₹%s. Estimated delivery: %s.",
		order.OrderNumber, formatAmount(order.TotalPrice), order.DeliveryTime)
	return e
}

func PaymentFailed(order models.Order) Event {
	e := newEvent(KindPaymentFailed, order)
	e.Message = fmt.Sprintf("Payment for your order %s could not be completed. Please try again.", order.OrderNumber)
	return e
}

func PaymentRefunded(order models.Order) Event {
	e := newEvent(KindPaymentRefunded, order)
	e.Message = fmt.Sprintf("Your payment for order %s has been refunded.", order.OrderNumber)
	return e
}

func (e Event) Subject() string {
	switch e.Kind {
	case KindOrderPlaced:
		return "Order Confirmation - " + e.OrderNumber
	case KindStatusChanged:
		return fmt.Sprintf("Order %s - Status Update", e.OrderNumber)
	case KindPaymentCaptured:
		return "Payment Received - " + e.OrderNumber
	case KindPaymentFailed:
		return "Payment Failed - " + e.OrderNumber
	case KindPaymentRefunded:
		return "Refund Processed - " + e.OrderNumber
	}
	return "Order " + e.OrderNumber
}

func (e Event) SMSText() string {
	if e.Kind == KindStatusChanged {
		return fmt.Sprintf("Order %s: %s", e.OrderNumber, e.Message)
	}
	return e.Message
}

func (e Event) EmailText(name string) string {
	if strings.TrimSpace(name) == "" {
		name = "Customer"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", name)

	if e.Kind != KindOrderPlaced {
		b.WriteString(e.SMSText())
		b.WriteString("\n\nBest regards,\nFood Ordering Team\n")
		return b.String()
	}

	b.WriteString("Your order has been placed successfully!\n\n")
	fmt.Fprintf(&b, "Order Number: %s\n", e.OrderNumber)
	fmt.Fprintf(&b, "Total Amount: ₹%s\n", formatAmount(e.TotalPrice))
	fmt.Fprintf(&b, "Payment Method: %s\n", e.PaymentMethod)
	fmt.Fprintf(&b, "Estimated Delivery: %s\n\n", e.DeliveryTime)
	b.WriteString("Items:\n")
	for _, item := range e.Items {
		lineTotal := decimal.NewFromFloat(item.Price).Mul(decimal.NewFromInt(int64(item.Quantity)))
		fmt.Fprintf(&b, "- %s x %d = ₹%s\n", item.Name, item.Quantity, lineTotal.StringFixed(2))
	}
	fmt.Fprintf(&b, "\nDelivery Address:\n%s\n\n", e.DeliveryAddress)
	b.WriteString("Thank you for ordering with us!\n\nBest regards,\nFood Ordering Team\n")
	return b.String()
}

func formatAmount(amount float64) string {
	return decimal.NewFromFloat(amount).StringFixed(2)
}
