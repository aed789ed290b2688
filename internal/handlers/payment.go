package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"foodbackend/internal/apperr"
	"foodbackend/internal/models"
	"foodbackend/internal/orders"
	"foodbackend/internal/payment"
)

const (
	testModeKeyID   = "rzp_test_placeholder"
	defaultCurrency = "INR"
	signatureHeader = "X-Razorpay-Signature"
)

/* =========================
   REQUEST DTOs
========================= */

type createPaymentOrderRequest struct {
	Amount   float64           `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes"`
	OrderID  string            `json:"orderId" binding:"omitempty,objectid"`
}

type verifyPaymentRequest struct {
	GatewayOrderID   string `json:"razorpay_order_id"`
	GatewayPaymentID string `json:"razorpay_payment_id"`
	Signature        string `json:"razorpay_signature"`
	OrderID          string `json:"orderId" binding:"omitempty,objectid"`
}

type refundRequest struct {
	PaymentID string  `json:"paymentId" binding:"required"`
	Amount    float64 `json:"amount" binding:"gte=0"`
	Reason    string  `json:"reason"`
}

type webhookEntity struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"order_id"`
	PaymentID string          `json:"payment_id"`
	Notes     json.RawMessage `json:"notes"`
}

type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity webhookEntity `json:"entity"`
		} `json:"payment"`
		Refund struct {
			Entity webhookEntity `json:"entity"`
		} `json:"refund"`
	} `json:"payload"`
}

// orderID reads notes.orderId; the gateway sends notes as an empty array
// when none were set.
func (e webhookEntity) orderID() string {
	var notes map[string]interface{}
	if err := json.Unmarshal(e.Notes, &notes); err != nil {
		return ""
	}
	id, _ := notes["orderId"].(string)
	return strings.TrimSpace(id)
}

/* =========================
   CREATE GATEWAY ORDER
========================= */

func CreatePaymentOrder(gw payment.Gateway, ledger *orders.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /payment/create-order"
		defer handlePanic(c, route)

		var req createPaymentOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, route, err)
			return
		}
		// Amounts below one minor unit round to zero and are rejected too.
		amount := payment.ToMinorUnits(req.Amount)
		if amount <= 0 {
			log.Printf("[%s] returning error %d: invalid amount %v", route, http.StatusBadRequest, req.Amount)
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid amount"})
			return
		}

		currency := strings.ToUpper(strings.TrimSpace(req.Currency))
		if currency == "" {
			currency = defaultCurrency
		}
		receipt := strings.TrimSpace(req.Receipt)
		if receipt == "" {
			receipt = fmt.Sprintf("receipt_%d", time.Now().UnixMilli())
		}
		notes := req.Notes
		if notes == nil {
			notes = map[string]string{}
		}
		if req.OrderID != "" {
			notes["orderId"] = req.OrderID
		}

		if gw.KeyID() == "" {
			gatewayOrder := payment.GatewayOrder{
				ID:       fmt.Sprintf("%s%d", payment.TestOrderPrefix, time.Now().UnixMilli()),
				Amount:   amount,
				Currency: currency,
				Receipt:  receipt,
			}
			linkGatewayOrder(c, ledger, req.OrderID, gatewayOrder.ID)

			log.Println("[PAYMENT] [WARN] gateway not configured, issued test order", gatewayOrder.ID)
			c.JSON(http.StatusOK, gin.H{
				"success":  true,
				"testMode": true,
				"order":    gatewayOrder,
				"key":      testModeKeyID,
				"message":  "Test mode - Razorpay not configured",
			})
			return
		}

		gatewayOrder, err := gw.CreateOrder(c.Request.Context(), amount, currency, receipt, notes)
		if err != nil {
			respondError(c, route, gatewayError("failed to create payment order", err))
			return
		}
		linkGatewayOrder(c, ledger, req.OrderID, gatewayOrder.ID)

		log.Printf("[PAYMENT] [INFO] gateway order %s created for %d %s", gatewayOrder.ID, gatewayOrder.Amount, gatewayOrder.Currency)
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"order":   gatewayOrder,
			"key":     gw.KeyID(),
		})
	}
}

func linkGatewayOrder(c *gin.Context, ledger *orders.Ledger, orderID, gatewayOrderID string) {
	if orderID == "" {
		return
	}
	if _, err := ledger.LinkGatewayOrder(c.Request.Context(), orderID, gatewayOrderID); err != nil {
		log.Printf("[PAYMENT] [WARN] could not link gateway order %s to order %s: %v", gatewayOrderID, orderID, err)
	}
}

func gatewayError(message string, err error) error {
	if errors.Is(err, payment.ErrGatewayUnavailable) {
		return apperr.GatewayUnavailable("Payment gateway not configured")
	}
	return apperr.Gateway(message, err)
}

/* =========================
   VERIFY CHECKOUT
========================= */

func VerifyPayment(verifier *payment.Verifier, ledger *orders.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /payment/verify"
		defer handlePanic(c, route)

		var req verifyPaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, route, err)
			return
		}

		result, err := verifier.VerifyPayment(req.GatewayOrderID, req.GatewayPaymentID, req.Signature)
		if errors.Is(err, payment.ErrNotConfigured) {
			respondPaymentError(c, route, apperr.GatewayUnavailable("Payment verification not configured"))
			return
		}
		if err != nil || !result.Valid {
			log.Printf("[PAYMENT] [WARN] signature mismatch for gateway order %s", req.GatewayOrderID)
			respondPaymentError(c, route, apperr.SignatureMismatch("Payment verification failed"))
			return
		}

		paymentID := strings.TrimSpace(req.GatewayPaymentID)
		if paymentID == "" && result.TestMode {
			paymentID = fmt.Sprintf("test_payment_%d", time.Now().UnixMilli())
		}

		order, found, err := settlePayment(c, ledger, req.OrderID, req.GatewayOrderID, paymentID)
		if err != nil {
			respondError(c, route, err)
			return
		}

		response := gin.H{"success": true, "message": "Payment verified successfully"}
		if result.TestMode {
			response["testMode"] = true
			response["message"] = "Test payment verified"
		}
		if found {
			response["order"] = order
		}
		c.JSON(http.StatusOK, response)
	}
}

// settlePayment marks the order paid, resolving it by our id first and by
// the linked gateway order otherwise. found is false when neither matches.
// An order linked to a different gateway order is rejected by the ledger.
func settlePayment(c *gin.Context, ledger *orders.Ledger, orderID, gatewayOrderID, paymentID string) (models.Order, bool, error) {
	if orderID == "" && gatewayOrderID != "" {
		linked, err := ledger.OrderForGatewayOrder(c.Request.Context(), gatewayOrderID)
		if err == nil {
			orderID = linked.ID.Hex()
		} else if !errors.Is(err, apperr.ErrNotFound) {
			return models.Order{}, false, err
		}
	}
	if orderID == "" {
		log.Printf("[PAYMENT] [WARN] payment %s verified without a matching order", paymentID)
		return models.Order{}, false, nil
	}

	order, err := ledger.MarkPaid(c.Request.Context(), orderID, gatewayOrderID, paymentID)
	if err != nil {
		return models.Order{}, false, err
	}
	return order, true, nil
}

/* =========================
   WEBHOOK
========================= */

func PaymentWebhook(verifier *payment.Verifier, ledger *orders.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /payment/webhook"
		defer handlePanic(c, route)

		body, err := c.GetRawData()
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid body")
			return
		}

		ok, err := verifier.VerifyWebhook(body, c.GetHeader(signatureHeader))
		if errors.Is(err, payment.ErrNotConfigured) {
			log.Println("[PAYMENT] [WARN] webhook secret not configured, ignoring delivery")
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}
		if err != nil || !ok {
			respondError(c, route, apperr.SignatureMismatch("Invalid signature"))
			return
		}

		var event webhookEvent
		if err := json.Unmarshal(body, &event); err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid payload")
			return
		}

		if err := applyWebhook(c, ledger, event); err != nil {
			if apperr.KindOf(err) == apperr.KindInternal {
				// 5xx makes the gateway redeliver later.
				respondError(c, route, err)
				return
			}
			log.Printf("[PAYMENT] [WARN] webhook %s not applied: %v", event.Event, err)
		}

		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}

func applyWebhook(c *gin.Context, ledger *orders.Ledger, event webhookEvent) error {
	entity := event.Payload.Payment.Entity

	switch event.Event {
	case "payment.captured":
		log.Println("[PAYMENT] [INFO] webhook payment captured:", entity.ID)
		_, _, err := settlePayment(c, ledger, entity.orderID(), entity.OrderID, entity.ID)
		return err

	case "payment.failed":
		log.Println("[PAYMENT] [INFO] webhook payment failed:", entity.ID)
		orderID := entity.orderID()
		if orderID == "" && entity.OrderID != "" {
			linked, err := ledger.OrderForGatewayOrder(c.Request.Context(), entity.OrderID)
			if err != nil {
				return err
			}
			orderID = linked.ID.Hex()
		}
		if orderID == "" {
			log.Println("[PAYMENT] [WARN] failed payment has no matching order:", entity.ID)
			return nil
		}
		_, err := ledger.MarkFailed(c.Request.Context(), orderID, entity.OrderID)
		return err

	case "refund.processed":
		refund := event.Payload.Refund.Entity
		log.Printf("[PAYMENT] [INFO] webhook refund processed: %s for payment %s", refund.ID, refund.PaymentID)
		return nil

	default:
		log.Println("[PAYMENT] [INFO] unhandled webhook event:", event.Event)
		return nil
	}
}

/* =========================
   STATUS & REFUND
========================= */

func PaymentStatus(gw payment.Gateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /payment/status/:paymentId"
		defer handlePanic(c, route)

		p, err := gw.FetchPayment(c.Request.Context(), strings.TrimSpace(c.Param("paymentId")))
		if err != nil {
			respondPaymentError(c, route, gatewayError("failed to fetch payment status", err))
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"payment": gin.H{
				"id":         p.ID,
				"amount":     payment.FromMinorUnits(p.Amount),
				"currency":   p.Currency,
				"status":     p.Status,
				"method":     p.Method,
				"email":      p.Email,
				"contact":    p.Contact,
				"created_at": p.CreatedAt,
			},
		})
	}
}

func RefundPayment(gw payment.Gateway, ledger *orders.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /payment/refund"
		defer handlePanic(c, route)

		var req refundRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, route, err)
			return
		}

		reason := strings.TrimSpace(req.Reason)
		if reason == "" {
			reason = "Customer requested refund"
		}

		// A zero amount asks the gateway for a full refund, so a partial amount
		// must survive the conversion to minor units.
		amount := payment.ToMinorUnits(req.Amount)
		if req.Amount > 0 && amount <= 0 {
			log.Printf("[%s] returning error %d: invalid refund amount %v", route, http.StatusBadRequest, req.Amount)
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid amount"})
			return
		}

		paymentID := strings.TrimSpace(req.PaymentID)
		refund, err := gw.Refund(c.Request.Context(), paymentID, amount, map[string]string{"reason": reason})
		if err != nil {
			respondPaymentError(c, route, gatewayError("refund failed", err))
			return
		}
		log.Printf("[PAYMENT] [INFO] refund %s issued for payment %s", refund.ID, paymentID)

		if amount == 0 {
			if _, err := ledger.MarkRefundedByPayment(c.Request.Context(), paymentID); err != nil {
				log.Printf("[PAYMENT] [WARN] refund %s not recorded on an order: %v", refund.ID, err)
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"refund": gin.H{
				"id":         refund.ID,
				"amount":     payment.FromMinorUnits(refund.Amount),
				"status":     refund.Status,
				"payment_id": refund.PaymentID,
			},
		})
	}
}

// respondPaymentError keeps the success/message shape payment clients expect.
func respondPaymentError(c *gin.Context, route string, err error) {
	appErr := apperr.As(err)
	status := appErr.Kind.HTTPStatus()
	log.Printf("[%s] returning error %d: %v", route, status, err)

	body := gin.H{"success": false, "message": appErr.Message}
	if gin.IsDebugging() && appErr.Err != nil {
		body["error"] = appErr.Err.Error()
	}
	c.AbortWithStatusJSON(status, body)
}
