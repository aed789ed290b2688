package payment

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrGatewayUnavailable is returned by every Gateway call when no gateway
// credentials are configured.
var ErrGatewayUnavailable = errors.New("payment gateway not configured")

type GatewayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status,omitempty"`
}

type Payment struct {
	ID        string            `json:"id"`
	OrderID   string            `json:"order_id,omitempty"`
	Amount    int64             `json:"amount"`
	Currency  string            `json:"currency"`
	Status    string            `json:"status"`
	Method    string            `json:"method"`
	Email     string            `json:"email,omitempty"`
	Contact   string            `json:"contact,omitempty"`
	Notes     map[string]string `json:"notes,omitempty"`
	CreatedAt int64             `json:"created_at"`
}

type Refund struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
}

// Gateway is the narrow contract the API needs from the payment provider.
// All amounts are in minor units.
type Gateway interface {
	CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (GatewayOrder, error)
	FetchPayment(ctx context.Context, paymentID string) (Payment, error)
	// Refund refunds amount, or the full captured amount when amount is 0.
	Refund(ctx context.Context, paymentID string, amount int64, notes map[string]string) (Refund, error)
	// KeyID is the public key handed to checkout clients.
	KeyID() string
}

// NewGateway returns a Razorpay-backed gateway, or one that always fails with
// ErrGatewayUnavailable when the credentials are incomplete.
func NewGateway(keyID, keySecret string, timeout time.Duration) Gateway {
	keyID = strings.TrimSpace(keyID)
	keySecret = strings.TrimSpace(keySecret)
	if keyID == "" || keySecret == "" {
		return unavailableGateway{}
	}
	return newRazorpayGateway(keyID, keySecret, timeout)
}

type unavailableGateway struct{}

func (unavailableGateway) CreateOrder(context.Context, int64, string, string, map[string]string) (GatewayOrder, error) {
	return GatewayOrder{}, ErrGatewayUnavailable
}

func (unavailableGateway) FetchPayment(context.Context, string) (Payment, error) {
	return Payment{}, ErrGatewayUnavailable
}

func (unavailableGateway) Refund(context.Context, string, int64, map[string]string) (Refund, error) {
	return Refund{}, ErrGatewayUnavailable
}

func (unavailableGateway) KeyID() string { return "" }
