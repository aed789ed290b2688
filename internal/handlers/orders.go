package handlers

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"foodbackend/internal/apperr"
	"foodbackend/internal/models"
	"foodbackend/internal/orders"
)

/* =========================
   REQUEST DTOs
========================= */

type createOrderItemRequest struct {
	MenuItemID string `json:"menuItem" binding:"required,objectid"`
	Quantity   int    `json:"quantity" binding:"required,min=1"`
}

type coordinatesRequest struct {
	Lat float64 `json:"lat" binding:"gte=-90,lte=90"`
	Lng float64 `json:"lng" binding:"gte=-180,lte=180"`
}

type deliveryAddressRequest struct {
	Address     string              `json:"address" binding:"required"`
	Coordinates *coordinatesRequest `json:"coordinates"`
}

type createOrderRequest struct {
	Restaurant          string                   `json:"restaurant" binding:"required,objectid"`
	Items               []createOrderItemRequest `json:"items" binding:"required,min=1,dive"`
	DeliveryAddress     deliveryAddressRequest   `json:"deliveryAddress" binding:"required"`
	PaymentMethod       string                   `json:"paymentMethod" binding:"omitempty,oneof=cash card online upi"`
	SpecialInstructions string                   `json:"specialInstructions" binding:"max=500"`
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

/* =========================
   CREATE ORDER
========================= */

func CreateOrder(svc *orders.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /orders"
		defer handlePanic(c, route)

		userID, ok := currentUser(c, route)
		if !ok {
			return
		}

		var req createOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, route, err)
			return
		}

		in, err := buildCreateInput(userID, req)
		if err != nil {
			respondError(c, route, err)
			return
		}

		order, err := svc.Create(c.Request.Context(), in)
		if err != nil {
			respondError(c, route, err)
			return
		}

		c.JSON(http.StatusCreated, order)
	}
}

func buildCreateInput(userID primitive.ObjectID, req createOrderRequest) (orders.CreateInput, error) {
	restaurantID, err := primitive.ObjectIDFromHex(req.Restaurant)
	if err != nil {
		return orders.CreateInput{}, apperr.Validation("invalid restaurant", "restaurant")
	}

	items := make([]orders.ItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		menuItemID, err := primitive.ObjectIDFromHex(item.MenuItemID)
		if err != nil {
			return orders.CreateInput{}, apperr.Validation("invalid menuItem", "items.menuItem")
		}
		items = append(items, orders.ItemInput{MenuItemID: menuItemID, Quantity: item.Quantity})
	}

	address := models.DeliveryAddress{Address: strings.TrimSpace(req.DeliveryAddress.Address)}
	if req.DeliveryAddress.Coordinates != nil {
		address.Coordinates = &models.Coordinates{
			Lat: req.DeliveryAddress.Coordinates.Lat,
			Lng: req.DeliveryAddress.Coordinates.Lng,
		}
	}

	return orders.CreateInput{
		UserID:              userID,
		RestaurantID:        restaurantID,
		Items:               items,
		DeliveryAddress:     address,
		PaymentMethod:       models.PaymentMethod(req.PaymentMethod),
		SpecialInstructions: req.SpecialInstructions,
	}, nil
}

/* =========================
   READ ORDERS
========================= */

func GetMyOrders(svc *orders.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /orders/my-orders"
		defer handlePanic(c, route)

		userID, ok := currentUser(c, route)
		if !ok {
			return
		}

		limit, err := parseLimitParam(c.Query("limit"), 10)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		list, err := svc.ListForUser(c.Request.Context(), userID, limit)
		if err != nil {
			respondError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, list)
	}
}

func GetOrder(svc *orders.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /orders/:id"
		defer handlePanic(c, route)

		userID, ok := currentUser(c, route)
		if !ok {
			return
		}

		order, err := svc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, route, err)
			return
		}
		if order.UserID != userID && !isStaff(c) {
			// Do not reveal other users' orders.
			respondError(c, route, apperr.NotFound("order not found"))
			return
		}

		c.JSON(http.StatusOK, order)
	}
}

/* =========================
   STATUS
========================= */

func UpdateOrderStatus(svc *orders.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /orders/:id/status"
		defer handlePanic(c, route)

		var req updateStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, route, err)
			return
		}

		order, changed, err := svc.SetStatus(c.Request.Context(), c.Param("id"), models.OrderStatus(strings.TrimSpace(req.Status)))
		if err != nil {
			respondError(c, route, err)
			return
		}
		if !changed {
			log.Printf("[ORDER] [INFO] order %s already %s, nothing to do", order.OrderNumber, order.Status)
		}

		c.JSON(http.StatusOK, order)
	}
}

// CancelOrder replaces hard deletion: the order is moved to cancelled and
// kept for the payment ledger.
func CancelOrder(svc *orders.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /orders/:id"
		defer handlePanic(c, route)

		userID, ok := currentUser(c, route)
		if !ok {
			return
		}

		order, err := svc.Cancel(c.Request.Context(), c.Param("id"), userID, isStaff(c))
		if err != nil {
			respondError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "order cancelled", "order": order})
	}
}
