package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"foodbackend/internal/models"
	"foodbackend/internal/orders"
	"foodbackend/internal/payment"
	"foodbackend/internal/testutil"
)

const testJWTSecret = "handler-test-secret"

type apiOptions struct {
	gatewayKey    string
	keySecret     string
	webhookSecret string
	testMode      bool
	pingErr       error
}

type apiFixture struct {
	router     *gin.Engine
	store      *testutil.OrderStore
	catalog    *testutil.Catalog
	publisher  *testutil.Publisher
	gateway    *testutil.Gateway
	users      *testutil.UserStore
	ratings    *testutil.RatingStore
	ledger     *orders.Ledger
	restaurant models.Restaurant
	menu       []models.MenuItem
	customer   models.User
	admin      models.User
}

func newAPI(t *testing.T, opts apiOptions) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	RegisterValidators()

	f := &apiFixture{
		store:     testutil.NewOrderStore(),
		catalog:   testutil.NewCatalog(),
		publisher: &testutil.Publisher{},
		gateway:   testutil.NewGateway(),
		users:     testutil.NewUserStore(),
		ratings:   testutil.NewRatingStore(),
	}
	f.gateway.Key = opts.gatewayKey
	f.restaurant, f.menu = f.catalog.AddRestaurant("Spice Route",
		models.MenuItem{Name: "Paneer Tikka", Price: 150.25, Available: true},
		models.MenuItem{Name: "Jeera Rice", Price: 120, Available: true},
	)

	f.customer = models.User{ID: primitive.NewObjectID(), Email: "asha@example.com", DisplayName: "Asha", Role: models.RoleCustomer}
	f.admin = models.User{ID: primitive.NewObjectID(), Email: "ops@example.com", DisplayName: "Ops", Role: models.RoleAdmin}
	require.NoError(t, f.users.Create(context.Background(), &f.customer))
	require.NoError(t, f.users.Create(context.Background(), &f.admin))

	f.ledger = orders.NewLedger(f.store, f.publisher)
	svc := orders.NewService(f.store, f.catalog, orders.NewStateMachine(orders.PolicyForward), f.publisher)

	f.router = gin.New()
	RegisterRoutes(f.router, Deps{
		Users:     f.users,
		Ratings:   f.ratings,
		Orders:    svc,
		Ledger:    f.ledger,
		Gateway:   f.gateway,
		Verifier:  payment.NewVerifier(opts.keySecret, opts.webhookSecret, opts.testMode),
		Ping:      func(context.Context) error { return opts.pingErr },
		JWTSecret: testJWTSecret,
		TokenTTL:  time.Hour,
		StartedAt: time.Now(),
	})
	return f
}

func (f *apiFixture) token(t *testing.T, user models.User) string {
	t.Helper()
	token, err := issueToken(user, testJWTSecret, time.Hour)
	require.NoError(t, err)
	return token
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	switch b := body.(type) {
	case nil:
	case []byte:
		payload = b
	default:
		var err error
		payload, err = json.Marshal(b)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *apiFixture) seedOrder(status models.OrderStatus, paymentStatus models.PaymentStatus, paymentID *string) models.Order {
	return f.store.Put(models.Order{
		OrderNumber:   "#SEED0001",
		UserID:        f.customer.ID,
		RestaurantID:  f.restaurant.ID,
		TotalPrice:    450.5,
		Status:        status,
		PaymentMethod: models.PaymentCash,
		PaymentStatus: paymentStatus,
		PaymentID:     paymentID,
		DeliveryTime:  models.DefaultDeliveryTime,
		CreatedAt:     time.Now().UTC(),
	})
}

func (f *apiFixture) storedOrder(t *testing.T, id primitive.ObjectID) models.Order {
	t.Helper()
	order, err := f.store.FindByID(context.Background(), id)
	require.NoError(t, err)
	return order
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func strPtr(s string) *string { return &s }

/* =========================
   ORDERS
========================= */

func TestCashOrderDeliveredEndToEnd(t *testing.T) {
	f := newAPI(t, apiOptions{})

	w := f.do(t, http.MethodPost, "/api/orders", f.token(t, f.customer), gin.H{
		"restaurant":      f.restaurant.ID.Hex(),
		"items":           []gin.H{{"menuItem": f.menu[0].ID.Hex(), "quantity": 2}, {"menuItem": f.menu[1].ID.Hex(), "quantity": 1}},
		"deliveryAddress": gin.H{"address": "12 MG Road, Bengaluru"},
		"paymentMethod":   "cash",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created models.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, models.StatusPending, created.Status)
	assert.Equal(t, models.PaymentPending, created.PaymentStatus)
	assert.InDelta(t, 420.5, created.TotalPrice, 0.001)
	assert.Len(t, f.publisher.Events(), 1)

	f.publisher.Reset()
	w = f.do(t, http.MethodPut, "/api/orders/"+created.ID.Hex()+"/status", f.token(t, f.admin), gin.H{"status": "delivered"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var delivered models.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &delivered))
	assert.Equal(t, models.StatusDelivered, delivered.Status)

	events := f.publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "Your order has been delivered. Enjoy your meal!", events[0].Message)
}

func TestUpdateOrderStatusErrors(t *testing.T) {
	f := newAPI(t, apiOptions{})
	order := f.seedOrder(models.StatusPreparing, models.PaymentPending, nil)
	adminToken := f.token(t, f.admin)

	tests := []struct {
		name   string
		path   string
		token  string
		body   interface{}
		status int
	}{
		{"unknown order", "/api/orders/" + primitive.NewObjectID().Hex() + "/status", adminToken, gin.H{"status": "confirmed"}, http.StatusNotFound},
		{"malformed id", "/api/orders/not-an-id/status", adminToken, gin.H{"status": "confirmed"}, http.StatusBadRequest},
		{"unknown status", "/api/orders/" + order.ID.Hex() + "/status", adminToken, gin.H{"status": "shipped"}, http.StatusBadRequest},
		{"missing status", "/api/orders/" + order.ID.Hex() + "/status", adminToken, gin.H{}, http.StatusBadRequest},
		{"backwards", "/api/orders/" + order.ID.Hex() + "/status", adminToken, gin.H{"status": "confirmed"}, http.StatusConflict},
		{"customer", "/api/orders/" + order.ID.Hex() + "/status", f.token(t, f.customer), gin.H{"status": "delivered"}, http.StatusForbidden},
		{"anonymous", "/api/orders/" + order.ID.Hex() + "/status", "", gin.H{"status": "delivered"}, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodPut, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
	assert.Empty(t, f.publisher.Events())
}

func TestUpdateOrderStatusSameStatusIsNoop(t *testing.T) {
	f := newAPI(t, apiOptions{})
	order := f.seedOrder(models.StatusConfirmed, models.PaymentPending, nil)

	w := f.do(t, http.MethodPut, "/api/orders/"+order.ID.Hex()+"/status", f.token(t, f.admin), gin.H{"status": "confirmed"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, f.publisher.Events())
}

func TestCreateOrderUsesTokenUserAndMenuPrices(t *testing.T) {
	f := newAPI(t, apiOptions{})
	body := gin.H{
		"restaurant":      f.restaurant.ID.Hex(),
		"items":           []gin.H{{"menuItem": f.menu[0].ID.Hex(), "quantity": 1}},
		"deliveryAddress": gin.H{"address": "12 MG Road, Bengaluru"},
		"userId":          f.admin.ID.Hex(),
		"totalPrice":      1,
	}

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPost, "/api/orders", "", body).Code)

	w := f.do(t, http.MethodPost, "/api/orders", f.token(t, f.customer), body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created models.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, f.customer.ID, created.UserID)
	assert.InDelta(t, f.menu[0].Price, created.TotalPrice, 0.001)
}

func TestCreateOrderValidation(t *testing.T) {
	f := newAPI(t, apiOptions{})
	token := f.token(t, f.customer)

	w := f.do(t, http.MethodPost, "/api/orders", token, gin.H{
		"restaurant":      "nope",
		"deliveryAddress": gin.H{"address": "x"},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, "validation failed", body["error"])
	assert.ElementsMatch(t, []interface{}{"restaurant", "items"}, body["fields"])

	w = f.do(t, http.MethodPost, "/api/orders", token, gin.H{
		"restaurant":      primitive.NewObjectID().Hex(),
		"items":           []gin.H{{"menuItem": f.menu[0].ID.Hex(), "quantity": 1}},
		"deliveryAddress": gin.H{"address": "x"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, f.publisher.Events())
}

func TestGetOrderHidesOtherUsersOrders(t *testing.T) {
	f := newAPI(t, apiOptions{})
	order := f.seedOrder(models.StatusPending, models.PaymentPending, nil)

	stranger := models.User{ID: primitive.NewObjectID(), Email: "x@example.com", Role: models.RoleCustomer}

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/orders/"+order.ID.Hex(), f.token(t, f.customer), nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/orders/"+order.ID.Hex(), f.token(t, f.admin), nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/orders/"+order.ID.Hex(), f.token(t, stranger), nil).Code)
}

func TestMyOrdersAndCancel(t *testing.T) {
	f := newAPI(t, apiOptions{})
	order := f.seedOrder(models.StatusPending, models.PaymentPending, nil)
	token := f.token(t, f.customer)

	w := f.do(t, http.MethodGet, "/api/orders/my-orders", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, order.ID, list[0].ID)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/orders/my-orders?limit=0", token, nil).Code)

	w = f.do(t, http.MethodDelete, "/api/orders/"+order.ID.Hex(), token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.StatusCancelled, f.storedOrder(t, order.ID).Status)

	// Cancelled orders are kept; cancelling again changes nothing.
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodDelete, "/api/orders/"+order.ID.Hex(), token, nil).Code)
	assert.Len(t, f.publisher.Events(), 1)
}

/* =========================
   PAYMENT
========================= */

func TestCreatePaymentOrderWithoutGatewayReturnsTestOrder(t *testing.T) {
	f := newAPI(t, apiOptions{})

	w := f.do(t, http.MethodPost, "/api/payment/create-order", f.token(t, f.customer), gin.H{"amount": 450.5})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["testMode"])
	assert.Equal(t, testModeKeyID, body["key"])

	order := body["order"].(map[string]interface{})
	assert.Regexp(t, `^order_test_\d+$`, order["id"])
	assert.Equal(t, float64(45050), order["amount"])
	assert.Equal(t, "INR", order["currency"])
	assert.Zero(t, f.gateway.Calls())
}

func TestCreatePaymentOrderRejectsNonPositiveAmount(t *testing.T) {
	f := newAPI(t, apiOptions{gatewayKey: "rzp_test_key"})

	for _, amount := range []float64{0, -10, 0.004} {
		w := f.do(t, http.MethodPost, "/api/payment/create-order", f.token(t, f.customer), gin.H{"amount": amount})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, false, decode(t, w)["success"])
	}
	assert.Zero(t, f.gateway.Calls())
}

func TestCreatePaymentOrderLinksOrder(t *testing.T) {
	f := newAPI(t, apiOptions{gatewayKey: "rzp_test_key"})
	order := f.seedOrder(models.StatusPending, models.PaymentPending, nil)

	w := f.do(t, http.MethodPost, "/api/payment/create-order", f.token(t, f.customer), gin.H{
		"amount":  450.5,
		"orderId": order.ID.Hex(),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "rzp_test_key", decode(t, w)["key"])
	assert.Equal(t, 1, f.gateway.Calls())

	stored := f.storedOrder(t, order.ID)
	require.NotNil(t, stored.RazorpayOrderID)
	assert.Equal(t, "order_fake_1", *stored.RazorpayOrderID)
}

func TestCreatePaymentOrderGatewayFailure(t *testing.T) {
	f := newAPI(t, apiOptions{gatewayKey: "rzp_test_key"})
	f.gateway.Err = errors.New("connection reset")

	w := f.do(t, http.MethodPost, "/api/payment/create-order", f.token(t, f.customer), gin.H{"amount": 100})
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestVerifyPayment(t *testing.T) {
	f := newAPI(t, apiOptions{keySecret: "key-secret"})
	order := f.seedOrder(models.StatusPending, models.PaymentPending, nil)
	signature := payment.Sign("key-secret", payment.PaymentPayload("order_A", "pay_A"))
	last := "0"
	if signature[len(signature)-1] == '0' {
		last = "1"
	}

	w := f.do(t, http.MethodPost, "/api/payment/verify", f.token(t, f.customer), gin.H{
		"razorpay_order_id":   "order_A",
		"razorpay_payment_id": "pay_A",
		"razorpay_signature":  signature[:len(signature)-1] + last,
		"orderId":             order.ID.Hex(),
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, decode(t, w)["success"])
	assert.Equal(t, models.PaymentPending, f.storedOrder(t, order.ID).PaymentStatus)

	w = f.do(t, http.MethodPost, "/api/payment/verify", f.token(t, f.customer), gin.H{
		"razorpay_order_id":   "order_A",
		"razorpay_payment_id": "pay_A",
		"razorpay_signature":  signature,
		"orderId":             order.ID.Hex(),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, decode(t, w)["success"])

	stored := f.storedOrder(t, order.ID)
	assert.Equal(t, models.PaymentPaid, stored.PaymentStatus)
	require.NotNil(t, stored.PaymentID)
	assert.Equal(t, "pay_A", *stored.PaymentID)
	assert.Len(t, f.publisher.Events(), 1)
}

func TestVerifyPaymentFindsLinkedOrder(t *testing.T) {
	f := newAPI(t, apiOptions{keySecret: "key-secret"})
	order := f.seedOrder(models.StatusPending, models.PaymentPending, nil)
	_, err := f.ledger.LinkGatewayOrder(context.Background(), order.ID.Hex(), "order_B")
	require.NoError(t, err)

	w := f.do(t, http.MethodPost, "/api/payment/verify", f.token(t, f.customer), gin.H{
		"razorpay_order_id":   "order_B",
		"razorpay_payment_id": "pay_B",
		"razorpay_signature":  payment.Sign("key-secret", payment.PaymentPayload("order_B", "pay_B")),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.PaymentPaid, f.storedOrder(t, order.ID).PaymentStatus)
}

func TestVerifyPaymentNotConfigured(t *testing.T) {
	f := newAPI(t, apiOptions{})

	w := f.do(t, http.MethodPost, "/api/payment/verify", f.token(t, f.customer), gin.H{
		"razorpay_order_id":   "order_test_1",
		"razorpay_payment_id": "pay_1",
		"razorpay_signature":  "abc",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Payment verification not configured", body["message"])
}

func TestVerifyPaymentTestMode(t *testing.T) {
	f := newAPI(t, apiOptions{testMode: true})
	order := f.seedOrder(models.StatusPending, models.PaymentPending, nil)

	w := f.do(t, http.MethodPost, "/api/payment/verify", f.token(t, f.customer), gin.H{
		"razorpay_order_id": "order_test_1700000000000",
		"orderId":           order.ID.Hex(),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, decode(t, w)["testMode"])

	stored := f.storedOrder(t, order.ID)
	assert.Equal(t, models.PaymentPaid, stored.PaymentStatus)
	require.NotNil(t, stored.PaymentID)
	assert.Regexp(t, `^test_payment_\d+$`, *stored.PaymentID)
}

func TestVerifyPaymentRejectsGatewayOrderOfAnotherOrder(t *testing.T) {
	f := newAPI(t, apiOptions{keySecret: "key-secret"})
	cheap := f.seedOrder(models.StatusPending, models.PaymentPending, nil)
	dear := f.seedOrder(models.StatusPending, models.PaymentPending, nil)
	linkedElsewhere := f.seedOrder(models.StatusPending, models.PaymentPending, nil)
	_, err := f.ledger.LinkGatewayOrder(context.Background(), cheap.ID.Hex(), "order_cheap")
	require.NoError(t, err)
	_, err = f.ledger.LinkGatewayOrder(context.Background(), linkedElsewhere.ID.Hex(), "order_other")
	require.NoError(t, err)

	signature := payment.Sign("key-secret", payment.PaymentPayload("order_cheap", "pay_cheap"))
	for _, target := range []models.Order{dear, linkedElsewhere} {
		w := f.do(t, http.MethodPost, "/api/payment/verify", f.token(t, f.customer), gin.H{
			"razorpay_order_id":   "order_cheap",
			"razorpay_payment_id": "pay_cheap",
			"razorpay_signature":  signature,
			"orderId":             target.ID.Hex(),
		})
		assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		assert.Equal(t, models.PaymentPending, f.storedOrder(t, target.ID).PaymentStatus)
	}

	assert.Equal(t, models.PaymentPending, f.storedOrder(t, cheap.ID).PaymentStatus)
	assert.Nil(t, f.storedOrder(t, dear.ID).RazorpayOrderID)
	assert.Empty(t, f.publisher.Events())

	w := f.do(t, http.MethodPost, "/api/payment/verify", f.token(t, f.customer), gin.H{
		"razorpay_order_id":   "order_cheap",
		"razorpay_payment_id": "pay_cheap",
		"razorpay_signature":  signature,
		"orderId":             cheap.ID.Hex(),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.PaymentPaid, f.storedOrder(t, cheap.ID).PaymentStatus)
}

func webhookBody(t *testing.T, event, paymentID, gatewayOrderID string, notes interface{}) []byte {
	t.Helper()
	body, err := json.Marshal(gin.H{
		"event": event,
		"payload": gin.H{
			"payment": gin.H{"entity": gin.H{
				"id":       paymentID,
				"order_id": gatewayOrderID,
				"notes":    notes,
			}},
		},
	})
	require.NoError(t, err)
	return body
}

func (f *apiFixture) webhook(t *testing.T, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/payment/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signatureHeader, signature)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestWebhookRedeliveryIsIdempotent(t *testing.T) {
	f := newAPI(t, apiOptions{webhookSecret: "hook-secret"})
	order := f.seedOrder(models.StatusPending, models.PaymentPending, nil)

	body := webhookBody(t, "payment.captured", "pay_W", "order_W", gin.H{"orderId": order.ID.Hex()})
	signature := payment.Sign("hook-secret", body)

	for i := 0; i < 2; i++ {
		w := f.webhook(t, body, signature)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, true, decode(t, w)["received"])
	}

	stored := f.storedOrder(t, order.ID)
	assert.Equal(t, models.PaymentPaid, stored.PaymentStatus)
	require.NotNil(t, stored.PaymentID)
	assert.Equal(t, "pay_W", *stored.PaymentID)
	assert.Len(t, f.publisher.Events(), 1)
}

func TestWebhookFallsBackToGatewayOrder(t *testing.T) {
	f := newAPI(t, apiOptions{webhookSecret: "hook-secret"})
	order := f.seedOrder(models.StatusPending, models.PaymentPending, nil)
	_, err := f.ledger.LinkGatewayOrder(context.Background(), order.ID.Hex(), "order_G")
	require.NoError(t, err)

	// The gateway sends notes as an empty array when none were set.
	body := webhookBody(t, "payment.captured", "pay_G", "order_G", []string{})
	w := f.webhook(t, body, payment.Sign("hook-secret", body))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.PaymentPaid, f.storedOrder(t, order.ID).PaymentStatus)
}

func TestWebhookPaymentFailed(t *testing.T) {
	f := newAPI(t, apiOptions{webhookSecret: "hook-secret"})
	order := f.seedOrder(models.StatusPending, models.PaymentPending, nil)

	body := webhookBody(t, "payment.failed", "pay_F", "order_F", gin.H{"orderId": order.ID.Hex()})
	w := f.webhook(t, body, payment.Sign("hook-secret", body))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.PaymentFailed, f.storedOrder(t, order.ID).PaymentStatus)
}

func TestWebhookIgnoresNotesForAnotherGatewayOrder(t *testing.T) {
	f := newAPI(t, apiOptions{webhookSecret: "hook-secret"})
	cheap := f.seedOrder(models.StatusPending, models.PaymentPending, nil)
	dear := f.seedOrder(models.StatusPending, models.PaymentPending, nil)
	_, err := f.ledger.LinkGatewayOrder(context.Background(), cheap.ID.Hex(), "order_cheap")
	require.NoError(t, err)

	for _, event := range []string{"payment.captured", "payment.failed"} {
		body := webhookBody(t, event, "pay_cheap", "order_cheap", gin.H{"orderId": dear.ID.Hex()})
		w := f.webhook(t, body, payment.Sign("hook-secret", body))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	assert.Equal(t, models.PaymentPending, f.storedOrder(t, dear.ID).PaymentStatus)
	assert.Equal(t, models.PaymentPending, f.storedOrder(t, cheap.ID).PaymentStatus)
	assert.Empty(t, f.publisher.Events())
}

func TestWebhookSignatureHandling(t *testing.T) {
	body := webhookBody(t, "payment.captured", "pay_X", "order_X", gin.H{})

	t.Run("invalid signature", func(t *testing.T) {
		f := newAPI(t, apiOptions{webhookSecret: "hook-secret"})
		w := f.webhook(t, body, payment.Sign("other-secret", body))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing signature", func(t *testing.T) {
		f := newAPI(t, apiOptions{webhookSecret: "hook-secret"})
		w := f.webhook(t, body, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("secret not configured", func(t *testing.T) {
		f := newAPI(t, apiOptions{})
		w := f.webhook(t, body, "anything")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, true, decode(t, w)["received"])
	})

	t.Run("unknown event", func(t *testing.T) {
		f := newAPI(t, apiOptions{webhookSecret: "hook-secret"})
		other := webhookBody(t, "order.paid", "pay_X", "order_X", gin.H{})
		w := f.webhook(t, other, payment.Sign("hook-secret", other))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, f.publisher.Events())
	})
}

func TestPaymentStatus(t *testing.T) {
	t.Run("gateway not configured", func(t *testing.T) {
		f := newAPI(t, apiOptions{})
		f.gateway.Err = payment.ErrGatewayUnavailable

		w := f.do(t, http.MethodGet, "/api/payment/status/pay_1", f.token(t, f.customer), nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, false, decode(t, w)["success"])
	})

	t.Run("converts amount to major units", func(t *testing.T) {
		f := newAPI(t, apiOptions{gatewayKey: "rzp_test_key"})
		f.gateway.Payments["pay_1"] = payment.Payment{ID: "pay_1", Amount: 45050, Currency: "INR", Status: "captured", Method: "upi"}

		w := f.do(t, http.MethodGet, "/api/payment/status/pay_1", f.token(t, f.customer), nil)
		require.Equal(t, http.StatusOK, w.Code)
		p := decode(t, w)["payment"].(map[string]interface{})
		assert.Equal(t, 450.5, p["amount"])
		assert.Equal(t, "captured", p["status"])
	})
}

func TestRefundPayment(t *testing.T) {
	t.Run("gateway not configured", func(t *testing.T) {
		f := newAPI(t, apiOptions{})
		f.gateway.Err = payment.ErrGatewayUnavailable

		w := f.do(t, http.MethodPost, "/api/payment/refund", f.token(t, f.admin), gin.H{"paymentId": "pay_1"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("gateway failure", func(t *testing.T) {
		f := newAPI(t, apiOptions{gatewayKey: "rzp_test_key"})
		f.gateway.Err = errors.New("upstream timeout")

		w := f.do(t, http.MethodPost, "/api/payment/refund", f.token(t, f.admin), gin.H{"paymentId": "pay_1"})
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})

	t.Run("customers cannot refund", func(t *testing.T) {
		f := newAPI(t, apiOptions{gatewayKey: "rzp_test_key"})
		w := f.do(t, http.MethodPost, "/api/payment/refund", f.token(t, f.customer), gin.H{"paymentId": "pay_1"})
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Zero(t, f.gateway.Calls())
	})

	t.Run("amount below one paisa", func(t *testing.T) {
		f := newAPI(t, apiOptions{gatewayKey: "rzp_test_key"})
		order := f.seedOrder(models.StatusDelivered, models.PaymentPaid, strPtr("pay_S"))

		w := f.do(t, http.MethodPost, "/api/payment/refund", f.token(t, f.admin), gin.H{"paymentId": "pay_S", "amount": 0.004})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Zero(t, f.gateway.Calls())
		assert.Equal(t, models.PaymentPaid, f.storedOrder(t, order.ID).PaymentStatus)
	})

	t.Run("full refund marks the order", func(t *testing.T) {
		f := newAPI(t, apiOptions{gatewayKey: "rzp_test_key"})
		f.gateway.Payments["pay_R"] = payment.Payment{ID: "pay_R", Amount: 45050}
		order := f.seedOrder(models.StatusDelivered, models.PaymentPaid, strPtr("pay_R"))

		w := f.do(t, http.MethodPost, "/api/payment/refund", f.token(t, f.admin), gin.H{"paymentId": "pay_R"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		refund := decode(t, w)["refund"].(map[string]interface{})
		assert.Equal(t, "rfnd_pay_R", refund["id"])
		assert.Equal(t, 450.5, refund["amount"])
		assert.Equal(t, models.PaymentRefunded, f.storedOrder(t, order.ID).PaymentStatus)
	})

	t.Run("partial refund leaves the order paid", func(t *testing.T) {
		f := newAPI(t, apiOptions{gatewayKey: "rzp_test_key"})
		order := f.seedOrder(models.StatusDelivered, models.PaymentPaid, strPtr("pay_P"))

		w := f.do(t, http.MethodPost, "/api/payment/refund", f.token(t, f.admin), gin.H{"paymentId": "pay_P", "amount": 100})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, models.PaymentPaid, f.storedOrder(t, order.ID).PaymentStatus)
	})
}

/* =========================
   AUTH & USERS
========================= */

func TestRegisterAndLogin(t *testing.T) {
	f := newAPI(t, apiOptions{})

	w := f.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
		"email":       "Ravi@Example.com",
		"password":    "s3cret-pass",
		"displayName": "Ravi",
		"phoneNumber": "+919800000000",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.NotEmpty(t, body["token"])
	user := body["user"].(map[string]interface{})
	assert.Equal(t, "ravi@example.com", user["email"])
	assert.Equal(t, models.RoleCustomer, user["role"])
	assert.NotContains(t, user, "passwordHash")

	w = f.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
		"email": "ravi@example.com", "password": "another-pass", "displayName": "Ravi",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "ravi@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "nobody@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": " RAVI@example.com", "password": "s3cret-pass"})
	require.Equal(t, http.StatusOK, w.Code)
	token, _ := decode(t, w)["token"].(string)
	require.NotEmpty(t, token)

	w = f.do(t, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Ravi", decode(t, w)["displayName"])
}

func TestRegisterValidation(t *testing.T) {
	f := newAPI(t, apiOptions{})

	w := f.do(t, http.MethodPost, "/api/auth/register", "", gin.H{"email": "not-an-email", "password": "123"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.ElementsMatch(t, []interface{}{"email", "password", "displayName"}, decode(t, w)["fields"])
}

func TestUpdateProfile(t *testing.T) {
	f := newAPI(t, apiOptions{})
	token := f.token(t, f.customer)

	w := f.do(t, http.MethodPut, "/api/users/me", token, gin.H{"phoneNumber": " +919811111111 "})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "+919811111111", body["phoneNumber"])
	assert.Equal(t, "Asha", body["displayName"])

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, "/api/users/me", token, gin.H{}).Code)
}

func TestAddressLifecycle(t *testing.T) {
	f := newAPI(t, apiOptions{})
	token := f.token(t, f.customer)

	create := func(label string, isDefault bool) string {
		w := f.do(t, http.MethodPost, "/api/users/me/addresses", token, gin.H{
			"label": label, "address": label + " street", "isDefault": isDefault,
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		return decode(t, w)["address"].(map[string]interface{})["id"].(string)
	}

	home := create("Home", false)
	work := create("Work", true)

	user, err := f.users.FindByID(context.Background(), f.customer.ID)
	require.NoError(t, err)
	require.Len(t, user.Addresses, 2)
	assert.False(t, user.Addresses[0].IsDefault)
	assert.True(t, user.Addresses[1].IsDefault)

	w := f.do(t, http.MethodPut, "/api/users/me/addresses/"+home, token, gin.H{"label": "Home", "address": "New home street"})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodDelete, "/api/users/me/addresses/"+work, token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	user, err = f.users.FindByID(context.Background(), f.customer.ID)
	require.NoError(t, err)
	require.Len(t, user.Addresses, 1)
	assert.Equal(t, home, user.Addresses[0].ID)
	assert.Equal(t, "New home street", user.Addresses[0].Address)
	assert.True(t, user.Addresses[0].IsDefault)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/api/users/me/addresses/"+work, token, nil).Code)
}

/* =========================
   RATINGS & HEALTH
========================= */

func TestRatings(t *testing.T) {
	f := newAPI(t, apiOptions{})
	f.ratings.AddTarget(f.restaurant.ID)
	token := f.token(t, f.customer)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/ratings", token, gin.H{"restaurant": f.restaurant.ID.Hex(), "rating": 6}).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/ratings", token, gin.H{"rating": 4}).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/ratings", token, gin.H{"restaurant": primitive.NewObjectID().Hex(), "rating": 4}).Code)

	for _, score := range []int{5, 4, 4} {
		w := f.do(t, http.MethodPost, "/api/ratings", token, gin.H{"restaurant": f.restaurant.ID.Hex(), "rating": score})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w := f.do(t, http.MethodGet, "/api/ratings/average?restaurant="+f.restaurant.ID.Hex(), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, 4.3, body["average"])
	assert.Equal(t, float64(3), body["total"])

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/ratings/average?menuItem=zzz", "", nil).Code)

	w = f.do(t, http.MethodGet, "/api/ratings/restaurant/"+f.restaurant.ID.Hex(), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.Rating
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 3)

	mineURL := "/api/ratings/restaurant/" + f.restaurant.ID.Hex() + "?mine=true"
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, mineURL, "", nil).Code)

	w = f.do(t, http.MethodGet, mineURL, f.token(t, f.admin), nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Empty(t, list)

	w = f.do(t, http.MethodGet, mineURL, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 3)
}

func TestHealth(t *testing.T) {
	f := newAPI(t, apiOptions{})
	w := f.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "connected", decode(t, w)["database"])

	f = newAPI(t, apiOptions{pingErr: errors.New("no reachable servers")})
	w = f.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "disconnected", decode(t, w)["database"])

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/", "", nil).Code)
}
