package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"shoestore/internal/middleware"
	"shoestore/internal/models"
	"shoestore/internal/orders"
)

type orderItemRequest struct {
	ProductID   string   `json:"productId" binding:"required"`
	VariantID   string   `json:"variantId" binding:"required"`
	ProductName string   `json:"productName" binding:"required"`
	SKU         string   `json:"sku" binding:"required"`
	Color       string   `json:"color" binding:"required"`
	Size        float64  `json:"size" binding:"required,gt=0"`
	Price       *float64 `json:"price" binding:"required,gte=0"`
	Quantity    int      `json:"quantity" binding:"required,gte=1"`
	Subtotal    float64  `json:"subtotal" binding:"gte=0"`
	Image       string   `json:"image"`
}

type orderCustomerRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required,email"`
	Phone string `json:"phone" binding:"required"`
}

type shippingAddressRequest struct {
	RecipientName string `json:"recipientName" binding:"required"`
	Phone         string `json:"phone" binding:"required"`
	Address       string `json:"address" binding:"required"`
	Ward          string `json:"ward" binding:"required"`
	District      string `json:"district" binding:"required"`
	City          string `json:"city" binding:"required"`
}

type createOrderRequest struct {
	UserID                string                 `json:"userId"`
	Customer              orderCustomerRequest   `json:"customer" binding:"required"`
	ShippingAddress       shippingAddressRequest `json:"shippingAddress" binding:"required"`
	Items                 []orderItemRequest     `json:"items" binding:"required,min=1,dive"`
	Subtotal              *float64               `json:"subtotal" binding:"required"`
	ShippingFee           float64                `json:"shippingFee" binding:"gte=0"`
	Discount              float64                `json:"discount" binding:"gte=0"`
	VoucherCode           string                 `json:"voucherCode"`
	LoyaltyPointsUsed     int                    `json:"loyaltyPointsUsed" binding:"gte=0"`
	LoyaltyPointsDiscount float64                `json:"loyaltyPointsDiscount" binding:"gte=0"`
	TotalAmount           *float64               `json:"totalAmount" binding:"required"`
	PaymentMethod         string                 `json:"paymentMethod" binding:"required,oneof=cod momo zalopay banking"`
	Note                  string                 `json:"note"`
}

type cancelOrderRequest struct {
	CancelReason string `json:"cancelReason"`
}

// CreateOrder places an order for a signed-in customer or a guest.
func CreateOrder(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /orders"
		logger := env.log()
		defer handlePanic(c, logger, route)

		var req createOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, logger, route, err)
			return
		}

		in, err := buildCreateInput(req)
		if err != nil {
			respondServiceError(c, logger, route, err)
			return
		}

		// the token, when present, decides whose order this is
		if caller := middleware.UserIDFrom(c); caller != nil {
			in.UserID = caller
		} else if in.UserID != nil && in.LoyaltyPointsUsed > 0 {
			respondWithError(c, logger, http.StatusForbidden, route, "FORBIDDEN", "sign in to spend loyalty points")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), env.timeout())
		defer cancel()

		order, err := env.Orders.Create(ctx, in)
		if err != nil {
			respondServiceError(c, logger, route, err)
			return
		}

		respond(c, http.StatusOK, gin.H{
			"message": "Order created successfully",
			"order":   order,
		})
	}
}

func buildCreateInput(req createOrderRequest) (orders.CreateOrderInput, error) {
	items := make([]models.OrderItem, 0, len(req.Items))
	for i, item := range req.Items {
		productID, err := primitive.ObjectIDFromHex(item.ProductID)
		if err != nil {
			return orders.CreateOrderInput{}, fmt.Errorf("%w: invalid items[%d].productId", orders.ErrValidation, i)
		}
		variantID, err := primitive.ObjectIDFromHex(item.VariantID)
		if err != nil {
			return orders.CreateOrderInput{}, fmt.Errorf("%w: invalid items[%d].variantId", orders.ErrValidation, i)
		}
		items = append(items, models.OrderItem{
			ProductID:   productID,
			VariantID:   variantID,
			ProductName: item.ProductName,
			SKU:         item.SKU,
			Color:       strings.TrimSpace(item.Color),
			Size:        item.Size,
			Price:       *item.Price,
			Quantity:    item.Quantity,
			Subtotal:    item.Subtotal,
			Image:       strings.TrimSpace(item.Image),
		})
	}

	in := orders.CreateOrderInput{
		Customer:              models.OrderCustomer(req.Customer),
		ShippingAddress:       models.ShippingAddress(req.ShippingAddress),
		Items:                 items,
		Subtotal:              *req.Subtotal,
		ShippingFee:           req.ShippingFee,
		Discount:              req.Discount,
		VoucherCode:           req.VoucherCode,
		LoyaltyPointsUsed:     req.LoyaltyPointsUsed,
		LoyaltyPointsDiscount: req.LoyaltyPointsDiscount,
		TotalAmount:           *req.TotalAmount,
		PaymentMethod:         req.PaymentMethod,
		Note:                  req.Note,
	}
	if raw := strings.TrimSpace(req.UserID); raw != "" {
		userID, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			return orders.CreateOrderInput{}, fmt.Errorf("%w: invalid userId", orders.ErrValidation)
		}
		in.UserID = &userID
	}
	return in, nil
}

func GetOrder(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /orders/:id"
		logger := env.log()
		defer handlePanic(c, logger, route)

		id, ok := parseObjectID(c, logger, route, "id")
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), env.timeout())
		defer cancel()

		order, err := env.Orders.Get(ctx, id)
		if err != nil {
			respondServiceError(c, logger, route, err)
			return
		}
		respond(c, http.StatusOK, gin.H{"order": order})
	}
}

func GetOrderByNumber(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /orders/number/:orderNumber"
		logger := env.log()
		defer handlePanic(c, logger, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), env.timeout())
		defer cancel()

		order, err := env.Orders.GetByNumber(ctx, c.Param("orderNumber"))
		if err != nil {
			respondServiceError(c, logger, route, err)
			return
		}
		respond(c, http.StatusOK, gin.H{"order": order})
	}
}

// GetMyOrders lists the caller's orders, newest first.
func GetMyOrders(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /orders/my_orders"
		logger := env.log()
		defer handlePanic(c, logger, route)

		userID := middleware.UserIDFrom(c)
		if userID == nil {
			respondWithError(c, logger, http.StatusUnauthorized, route, "UNAUTHORIZED", "unauthorized")
			return
		}
		listOrders(c, env, route, orders.ListFilter{UserID: userID, Status: c.Query("status")})
	}
}

// CancelOrder lets a customer cancel their own pending or confirmed order.
// Admins may cancel any order through the same route.
func CancelOrder(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /orders/:id/cancel"
		logger := env.log()
		defer handlePanic(c, logger, route)

		id, ok := parseObjectID(c, logger, route, "id")
		if !ok {
			return
		}

		var req cancelOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			respondValidationError(c, logger, route, err)
			return
		}

		in := orders.CancelInput{OrderID: id, Reason: req.CancelReason}
		if p, ok := middleware.PrincipalFrom(c); ok {
			caller := p.UserID
			if p.Role == models.RoleAdmin {
				in.ActorID = &caller
			} else {
				in.RequesterID = &caller
			}
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), env.timeout())
		defer cancel()

		order, err := env.Orders.Cancel(ctx, in)
		if err != nil {
			respondServiceError(c, logger, route, err)
			return
		}
		respond(c, http.StatusOK, gin.H{
			"message": "Order cancelled successfully",
			"order":   order,
		})
	}
}

func listOrders(c *gin.Context, env *Env, route string, filter orders.ListFilter) {
	logger := env.log()

	page, limit, err := parsePaginationParams(c.Query("page"), c.Query("limit"))
	if err != nil {
		respondWithError(c, logger, http.StatusBadRequest, route, "VALIDATION_ERROR", err.Error())
		return
	}
	filter.Page, filter.Limit = page, limit

	ctx, cancel := context.WithTimeout(c.Request.Context(), env.timeout())
	defer cancel()

	list, total, applied, err := env.Orders.List(ctx, filter)
	if err != nil {
		respondServiceError(c, logger, route, err)
		return
	}
	respond(c, http.StatusOK, gin.H{
		"orders":     list,
		"pagination": newPagination(applied.Page, applied.Limit, total),
	})
}
