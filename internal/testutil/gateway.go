package testutil

import (
	"context"
	"fmt"
	"sync"

	"foodbackend/internal/payment"
)

// Gateway is a scripted payment.Gateway that counts its calls.
type Gateway struct {
	mu       sync.Mutex
	calls    int
	Payments map[string]payment.Payment
	Err      error
	Key      string
}

func NewGateway() *Gateway {
	return &Gateway{Payments: make(map[string]payment.Payment), Key: "rzp_test_key"}
}

func (g *Gateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *Gateway) begin() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.Err
}

func (g *Gateway) CreateOrder(_ context.Context, amount int64, currency, receipt string, _ map[string]string) (payment.GatewayOrder, error) {
	if err := g.begin(); err != nil {
		return payment.GatewayOrder{}, err
	}
	return payment.GatewayOrder{
		ID:       fmt.Sprintf("order_fake_%d", g.Calls()),
		Amount:   amount,
		Currency: currency,
		Receipt:  receipt,
		Status:   "created",
	}, nil
}

func (g *Gateway) FetchPayment(_ context.Context, paymentID string) (payment.Payment, error) {
	if err := g.begin(); err != nil {
		return payment.Payment{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.Payments[paymentID]
	if !ok {
		return payment.Payment{}, fmt.Errorf("payment %s not found", paymentID)
	}
	return p, nil
}

func (g *Gateway) Refund(_ context.Context, paymentID string, amount int64, _ map[string]string) (payment.Refund, error) {
	if err := g.begin(); err != nil {
		return payment.Refund{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if amount == 0 {
		amount = g.Payments[paymentID].Amount
	}
	return payment.Refund{
		ID:        "rfnd_" + paymentID,
		PaymentID: paymentID,
		Amount:    amount,
		Status:    "processed",
	}, nil
}

func (g *Gateway) KeyID() string { return g.Key }
