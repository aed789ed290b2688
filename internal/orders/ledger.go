package orders

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"foodbackend/internal/apperr"
	"foodbackend/internal/models"
	"foodbackend/internal/notification"
)

// Ledger applies payment status transitions to orders:
//
//	pending -> paid | failed
//	failed  -> paid
//	paid    -> refunded
//
// Each transition is a single conditional write, so a client verification
// racing a gateway webhook converges on one effective change and one event.
type Ledger struct {
	store     Store
	publisher notification.Publisher
}

func NewLedger(store Store, publisher notification.Publisher) *Ledger {
	return &Ledger{store: store, publisher: publisher}
}

// MarkPaid settles an order with a verified payment. gatewayOrderID is the
// gateway order the payment was made against; an order linked to another
// gateway order is left untouched and reported as a mismatch.
func (l *Ledger) MarkPaid(ctx context.Context, orderID, gatewayOrderID, paymentID string) (models.Order, error) {
	id, err := ParseID(orderID)
	if err != nil {
		return models.Order{}, err
	}
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return models.Order{}, apperr.Validation("payment id is required", "paymentId")
	}
	change := PaymentChange{PaymentID: &paymentID, GatewayOrderID: strings.TrimSpace(gatewayOrderID)}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := l.checkGatewayOwner(ctx, id, change.GatewayOrderID); err != nil {
		return models.Order{}, err
	}

	order, changed, err := l.store.SetPaymentStatus(ctx, id,
		[]models.PaymentStatus{models.PaymentPending, models.PaymentFailed},
		models.PaymentPaid, change)
	if err != nil {
		return models.Order{}, storeError(err)
	}
	if changed {
		log.Printf("[PAYMENT] [INFO] order %s marked paid with payment %s", order.OrderNumber, paymentID)
		l.publish(ctx, notification.PaymentCaptured(order))
		return order, nil
	}
	if !MatchesGatewayOrder(order, change.GatewayOrderID) {
		return order, gatewayMismatch(order, change.GatewayOrderID)
	}

	if order.PaymentStatus == models.PaymentPaid {
		if order.PaymentID == nil {
			// Non-cash orders start out paid; the first capture records the payment id.
			attached, ok, err := l.store.AttachPaymentID(ctx, id, change)
			if err != nil {
				return models.Order{}, storeError(err)
			}
			if ok {
				log.Printf("[PAYMENT] [INFO] payment %s recorded on order %s", paymentID, attached.OrderNumber)
				l.publish(ctx, notification.PaymentCaptured(attached))
				return attached, nil
			}
			if !MatchesGatewayOrder(attached, change.GatewayOrderID) {
				return attached, gatewayMismatch(attached, change.GatewayOrderID)
			}
			return attached, nil
		}
		if *order.PaymentID != paymentID {
			log.Printf("[PAYMENT] [WARN] order %s already paid by %s, ignoring payment %s", order.OrderNumber, *order.PaymentID, paymentID)
		}
		return order, nil
	}
	// refunded orders cannot be paid again
	return order, apperr.InvalidTransition(string(order.PaymentStatus), string(models.PaymentPaid))
}

// MarkFailed records a failed payment attempt. Settled orders are left alone,
// and so are orders linked to a different gateway order.
func (l *Ledger) MarkFailed(ctx context.Context, orderID, gatewayOrderID string) (models.Order, error) {
	id, err := ParseID(orderID)
	if err != nil {
		return models.Order{}, err
	}
	change := PaymentChange{GatewayOrderID: strings.TrimSpace(gatewayOrderID)}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := l.checkGatewayOwner(ctx, id, change.GatewayOrderID); err != nil {
		return models.Order{}, err
	}

	order, changed, err := l.store.SetPaymentStatus(ctx, id,
		[]models.PaymentStatus{models.PaymentPending},
		models.PaymentFailed, change)
	if err != nil {
		return models.Order{}, storeError(err)
	}
	if changed {
		log.Printf("[PAYMENT] [INFO] order %s marked failed", order.OrderNumber)
		l.publish(ctx, notification.PaymentFailed(order))
		return order, nil
	}
	if !MatchesGatewayOrder(order, change.GatewayOrderID) {
		return order, gatewayMismatch(order, change.GatewayOrderID)
	}

	if order.PaymentStatus != models.PaymentFailed {
		log.Printf("[PAYMENT] [WARN] ignoring failure for order %s in payment status %s", order.OrderNumber, order.PaymentStatus)
	}
	return order, nil
}

// checkGatewayOwner rejects a gateway order already linked to another order.
// The unique razorpayOrderId index backs this up when two writes race.
func (l *Ledger) checkGatewayOwner(ctx context.Context, id primitive.ObjectID, gatewayOrderID string) error {
	if gatewayOrderID == "" {
		return nil
	}
	owner, err := l.store.FindByGatewayOrderID(ctx, gatewayOrderID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return storeError(err)
	}
	if owner.ID != id {
		log.Printf("[PAYMENT] [WARN] gateway order %s belongs to order %s, not %s", gatewayOrderID, owner.OrderNumber, id.Hex())
		return errGatewayMismatch()
	}
	return nil
}

func gatewayMismatch(order models.Order, gatewayOrderID string) error {
	log.Printf("[PAYMENT] [WARN] order %s is linked to gateway order %s, rejecting payment for %s",
		order.OrderNumber, *order.RazorpayOrderID, gatewayOrderID)
	return errGatewayMismatch()
}

func errGatewayMismatch() error {
	return apperr.Validation("payment does not belong to this order", "razorpay_order_id")
}

func (l *Ledger) MarkRefunded(ctx context.Context, orderID string) (models.Order, error) {
	id, err := ParseID(orderID)
	if err != nil {
		return models.Order{}, err
	}
	return l.markRefunded(ctx, id)
}

// MarkRefundedByPayment resolves the order through its recorded payment id.
func (l *Ledger) MarkRefundedByPayment(ctx context.Context, paymentID string) (models.Order, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	order, err := l.store.FindByPaymentID(lookupCtx, strings.TrimSpace(paymentID))
	cancel()
	if err != nil {
		return models.Order{}, storeError(err)
	}
	return l.markRefunded(ctx, order.ID)
}

func (l *Ledger) markRefunded(ctx context.Context, id primitive.ObjectID) (models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	order, changed, err := l.store.SetPaymentStatus(ctx, id,
		[]models.PaymentStatus{models.PaymentPaid},
		models.PaymentRefunded, PaymentChange{})
	if err != nil {
		return models.Order{}, storeError(err)
	}
	if changed {
		log.Printf("[PAYMENT] [INFO] order %s marked refunded", order.OrderNumber)
		l.publish(ctx, notification.PaymentRefunded(order))
		return order, nil
	}
	if order.PaymentStatus == models.PaymentRefunded {
		return order, nil
	}
	return order, apperr.InvalidTransition(string(order.PaymentStatus), string(models.PaymentRefunded))
}

// LinkGatewayOrder stores the gateway order id created for an order so later
// webhooks can be matched to it.
func (l *Ledger) LinkGatewayOrder(ctx context.Context, orderID, gatewayOrderID string) (models.Order, error) {
	id, err := ParseID(orderID)
	if err != nil {
		return models.Order{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	order, err := l.store.SetGatewayOrderID(ctx, id, gatewayOrderID)
	if err != nil {
		return models.Order{}, storeError(err)
	}
	return order, nil
}

// OrderForGatewayOrder finds the order linked to a gateway order id.
func (l *Ledger) OrderForGatewayOrder(ctx context.Context, gatewayOrderID string) (models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	order, err := l.store.FindByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		return models.Order{}, storeError(err)
	}
	return order, nil
}

func (l *Ledger) publish(ctx context.Context, event notification.Event) {
	publishEvent(ctx, l.publisher, event)
}

// publishEvent runs after the write has committed; a failure is logged and
// never undoes the transition.
func publishEvent(ctx context.Context, publisher notification.Publisher, event notification.Event) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		log.Printf("[NOTIFY] [ERROR] publish %s for order %s failed: %v", event.Kind, event.OrderNumber, err)
	}
}
