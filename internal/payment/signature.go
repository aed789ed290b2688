package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// TestOrderPrefix marks synthetic gateway orders issued while the gateway is
// not configured.
const TestOrderPrefix = "order_test_"

// ErrNotConfigured means the secret needed to check a signature is missing.
// It is not a verification failure and callers must branch on it.
var ErrNotConfigured = errors.New("payment verification not configured")

// Sign returns the hex HMAC-SHA256 of payload keyed with secret.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// PaymentPayload is the string the gateway signs for a checkout callback.
func PaymentPayload(gatewayOrderID, gatewayPaymentID string) []byte {
	return []byte(gatewayOrderID + "|" + gatewayPaymentID)
}

// VerifySignature checks a checkout signature. Empty inputs never verify.
func VerifySignature(gatewayOrderID, gatewayPaymentID, signature, secret string) bool {
	if secret == "" || gatewayOrderID == "" || gatewayPaymentID == "" || signature == "" {
		return false
	}
	expected := Sign(secret, PaymentPayload(gatewayOrderID, gatewayPaymentID))
	return hmac.Equal([]byte(expected), []byte(strings.TrimSpace(signature)))
}

type Verification struct {
	Valid    bool
	TestMode bool
}

// Verifier validates checkout callbacks with the key secret and webhook
// deliveries with the webhook secret.
type Verifier struct {
	keySecret     string
	webhookSecret string
	testMode      bool
}

func NewVerifier(keySecret, webhookSecret string, testMode bool) *Verifier {
	return &Verifier{
		keySecret:     strings.TrimSpace(keySecret),
		webhookSecret: strings.TrimSpace(webhookSecret),
		testMode:      testMode,
	}
}

// TestModeActive is true only when test mode was switched on explicitly and
// no key secret is configured.
func (v *Verifier) TestModeActive() bool {
	return v.testMode && v.keySecret == ""
}

func (v *Verifier) IsTestOrder(gatewayOrderID string) bool {
	return v.TestModeActive() && strings.HasPrefix(gatewayOrderID, TestOrderPrefix)
}

func (v *Verifier) VerifyPayment(gatewayOrderID, gatewayPaymentID, signature string) (Verification, error) {
	if v.IsTestOrder(gatewayOrderID) {
		return Verification{Valid: true, TestMode: true}, nil
	}
	if v.keySecret == "" {
		return Verification{}, ErrNotConfigured
	}
	return Verification{Valid: VerifySignature(gatewayOrderID, gatewayPaymentID, signature, v.keySecret)}, nil
}

// VerifyWebhook checks the signature header against the raw request body.
func (v *Verifier) VerifyWebhook(body []byte, signature string) (bool, error) {
	if v.webhookSecret == "" {
		return false, ErrNotConfigured
	}
	signature = strings.TrimSpace(signature)
	if signature == "" || len(body) == 0 {
		return false, nil
	}
	expected := Sign(v.webhookSecret, body)
	return hmac.Equal([]byte(expected), []byte(signature)), nil
}
