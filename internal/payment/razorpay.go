package payment

import (
	"context"
	"fmt"
	"log"
	"time"

	razorpay "github.com/razorpay/razorpay-go"
)

const defaultGatewayTimeout = 10 * time.Second

type razorpayGateway struct {
	client  *razorpay.Client
	keyID   string
	timeout time.Duration
}

func newRazorpayGateway(keyID, keySecret string, timeout time.Duration) *razorpayGateway {
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	return &razorpayGateway{
		client:  razorpay.NewClient(keyID, keySecret),
		keyID:   keyID,
		timeout: timeout,
	}
}

func (g *razorpayGateway) KeyID() string { return g.keyID }

func (g *razorpayGateway) CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (GatewayOrder, error) {
	data := map[string]interface{}{
		"amount":   amount,
		"currency": currency,
		"receipt":  receipt,
		"notes":    stringMapToAny(notes),
	}

	body, err := g.call(ctx, "orders.create", func() (map[string]interface{}, error) {
		return g.client.Order.Create(data, nil)
	})
	if err != nil {
		return GatewayOrder{}, err
	}
	return parseGatewayOrder(body), nil
}

func (g *razorpayGateway) FetchPayment(ctx context.Context, paymentID string) (Payment, error) {
	body, err := g.call(ctx, "payments.fetch", func() (map[string]interface{}, error) {
		return g.client.Payment.Fetch(paymentID, nil, nil)
	})
	if err != nil {
		return Payment{}, err
	}
	return parsePayment(body), nil
}

func (g *razorpayGateway) Refund(ctx context.Context, paymentID string, amount int64, notes map[string]string) (Refund, error) {
	if amount <= 0 {
		captured, err := g.FetchPayment(ctx, paymentID)
		if err != nil {
			return Refund{}, err
		}
		amount = captured.Amount
	}

	data := map[string]interface{}{"notes": stringMapToAny(notes)}
	body, err := g.call(ctx, "payments.refund", func() (map[string]interface{}, error) {
		return g.client.Payment.Refund(paymentID, int(amount), data, nil)
	})
	if err != nil {
		return Refund{}, err
	}
	return parseRefund(body), nil
}

// call runs a blocking SDK request and gives up once the per-call timeout or
// the caller's context expires.
func (g *razorpayGateway) call(ctx context.Context, op string, fn func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type result struct {
		body map[string]interface{}
		err  error
	}
	done := make(chan result, 1)
	go func() {
		body, err := fn()
		done <- result{body: body, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			log.Printf("[PAYMENT] [ERROR] razorpay %s failed: %v", op, res.err)
			return nil, fmt.Errorf("razorpay %s: %w", op, res.err)
		}
		return res.body, nil
	case <-ctx.Done():
		log.Printf("[PAYMENT] [ERROR] razorpay %s timed out: %v", op, ctx.Err())
		return nil, fmt.Errorf("razorpay %s: %w", op, ctx.Err())
	}
}

func parseGatewayOrder(body map[string]interface{}) GatewayOrder {
	return GatewayOrder{
		ID:       stringField(body, "id"),
		Amount:   int64Field(body, "amount"),
		Currency: stringField(body, "currency"),
		Receipt:  stringField(body, "receipt"),
		Status:   stringField(body, "status"),
	}
}

func parsePayment(body map[string]interface{}) Payment {
	return Payment{
		ID:        stringField(body, "id"),
		OrderID:   stringField(body, "order_id"),
		Amount:    int64Field(body, "amount"),
		Currency:  stringField(body, "currency"),
		Status:    stringField(body, "status"),
		Method:    stringField(body, "method"),
		Email:     stringField(body, "email"),
		Contact:   stringField(body, "contact"),
		Notes:     notesField(body, "notes"),
		CreatedAt: int64Field(body, "created_at"),
	}
}

func parseRefund(body map[string]interface{}) Refund {
	return Refund{
		ID:        stringField(body, "id"),
		PaymentID: stringField(body, "payment_id"),
		Amount:    int64Field(body, "amount"),
		Status:    stringField(body, "status"),
	}
}

func stringField(body map[string]interface{}, key string) string {
	if value, ok := body[key].(string); ok {
		return value
	}
	return ""
}

// int64Field reads a JSON number, which the SDK decodes as float64.
func int64Field(body map[string]interface{}, key string) int64 {
	switch value := body[key].(type) {
	case float64:
		return int64(value)
	case int64:
		return value
	case int:
		return int64(value)
	}
	return 0
}

// notesField tolerates the gateway returning notes as an empty JSON array.
func notesField(body map[string]interface{}, key string) map[string]string {
	raw, ok := body[key].(map[string]interface{})
	if !ok {
		return nil
	}
	notes := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			notes[k] = s
		}
	}
	return notes
}

func stringMapToAny(in map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
