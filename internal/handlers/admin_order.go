package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"shoestore/internal/middleware"
	"shoestore/internal/orders"
)

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Note   string `json:"note"`
}

type updatePaymentStatusRequest struct {
	PaymentStatus string `json:"paymentStatus" binding:"required"`
}

type updateShippingRequest struct {
	Carrier               string     `json:"carrier"`
	TrackingNumber        string     `json:"trackingNumber"`
	EstimatedDeliveryDate *time.Time `json:"estimatedDeliveryDate"`
}

// GetAllOrders lists orders for the back office with filters, search and sorting.
func GetAllOrders(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /admin/orders"
		logger := env.log()
		defer handlePanic(c, logger, route)

		from, err := parseDateParam(c.Query("startDate"), false)
		if err != nil {
			respondWithError(c, logger, http.StatusBadRequest, route, "VALIDATION_ERROR", "invalid startDate")
			return
		}
		to, err := parseDateParam(c.Query("endDate"), true)
		if err != nil {
			respondWithError(c, logger, http.StatusBadRequest, route, "VALIDATION_ERROR", "invalid endDate")
			return
		}

		listOrders(c, env, route, orders.ListFilter{
			Status:        c.Query("status"),
			PaymentStatus: c.Query("paymentStatus"),
			PaymentMethod: c.Query("paymentMethod"),
			Search:        c.Query("search"),
			From:          from,
			To:            to,
			SortBy:        c.Query("sortBy"),
			Ascending:     strings.EqualFold(c.Query("order"), "asc"),
		})
	}
}

func GetUserOrders(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /admin/orders/user/:userId"
		logger := env.log()
		defer handlePanic(c, logger, route)

		userID, ok := parseObjectID(c, logger, route, "userId")
		if !ok {
			return
		}
		listOrders(c, env, route, orders.ListFilter{UserID: &userID, Status: c.Query("status")})
	}
}

func UpdateOrderStatus(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /admin/orders/:id/status"
		logger := env.log()
		defer handlePanic(c, logger, route)

		id, ok := parseObjectID(c, logger, route, "id")
		if !ok {
			return
		}
		var req updateStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, logger, route, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), env.timeout())
		defer cancel()

		order, err := env.Orders.UpdateStatus(ctx, id, req.Status, req.Note, middleware.UserIDFrom(c))
		if err != nil {
			respondServiceError(c, logger, route, err)
			return
		}
		respond(c, http.StatusOK, gin.H{
			"message": "Order status updated successfully",
			"order":   order,
		})
	}
}

func UpdatePaymentStatus(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /admin/orders/:id/payment-status"
		logger := env.log()
		defer handlePanic(c, logger, route)

		id, ok := parseObjectID(c, logger, route, "id")
		if !ok {
			return
		}
		var req updatePaymentStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, logger, route, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), env.timeout())
		defer cancel()

		order, err := env.Orders.UpdatePaymentStatus(ctx, id, req.PaymentStatus, middleware.UserIDFrom(c))
		if err != nil {
			respondServiceError(c, logger, route, err)
			return
		}
		respond(c, http.StatusOK, gin.H{
			"message": "Payment status updated successfully",
			"order":   order,
		})
	}
}

func UpdateShippingInfo(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /admin/orders/:id/shipping"
		logger := env.log()
		defer handlePanic(c, logger, route)

		id, ok := parseObjectID(c, logger, route, "id")
		if !ok {
			return
		}
		var req updateShippingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, logger, route, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), env.timeout())
		defer cancel()

		order, err := env.Orders.UpdateShipping(ctx, id, orders.ShippingUpdate(req))
		if err != nil {
			respondServiceError(c, logger, route, err)
			return
		}
		respond(c, http.StatusOK, gin.H{
			"message": "Shipping info updated successfully",
			"order":   order,
		})
	}
}

func DeleteOrder(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /admin/orders/:id"
		logger := env.log()
		defer handlePanic(c, logger, route)

		id, ok := parseObjectID(c, logger, route, "id")
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), env.timeout())
		defer cancel()

		if err := env.Orders.Delete(ctx, id); err != nil {
			respondServiceError(c, logger, route, err)
			return
		}
		respond(c, http.StatusOK, gin.H{"message": "Order deleted successfully"})
	}
}

// parseDateParam accepts RFC 3339 or a plain date. A plain end date covers
// the whole day.
func parseDateParam(value string, endOfDay bool) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
