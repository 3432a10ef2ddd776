package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"shoestore/internal/orders"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

// errorStatusMap is checked in order, so specific errors precede the ones they wrap.
var errorStatusMap = []errorMapping{
	{orders.ErrValidation, http.StatusBadRequest, "VALIDATION_ERROR"},
	{orders.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{orders.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
	{orders.ErrInsufficientStock, http.StatusConflict, "INSUFFICIENT_STOCK"},
	{orders.ErrInsufficientLoyaltyPoints, http.StatusConflict, "INSUFFICIENT_LOYALTY_POINTS"},
	{orders.ErrInvalidState, http.StatusBadRequest, "INVALID_STATE"},
	{orders.ErrConflict, http.StatusConflict, "CONFLICT"},
}

func handlePanic(c *gin.Context, logger *zap.Logger, route string) {
	if r := recover(); r != nil {
		logger.Error("panic recovered", zap.String("route", route), zap.Any("panic", r))
		respondWithError(c, logger, http.StatusInternalServerError, route, "INTERNAL", "internal server error")
	}
}

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"status": status, "data": data})
}

func respondWithError(c *gin.Context, logger *zap.Logger, status int, route, code, message string) {
	logger.Debug("returning error",
		zap.String("route", route),
		zap.Int("status", status),
		zap.String("message", message),
	)
	c.AbortWithStatusJSON(status, gin.H{
		"status": status,
		"data":   gin.H{"message": message, "code": code},
	})
}

// respondServiceError maps engine errors onto the envelope. Unknown errors are
// logged and hidden behind a generic 500.
func respondServiceError(c *gin.Context, logger *zap.Logger, route string, err error) {
	for _, m := range errorStatusMap {
		if !errors.Is(err, m.err) {
			continue
		}
		data := gin.H{"message": publicMessage(err), "code": m.code}
		var stockErr *orders.StockError
		if errors.As(err, &stockErr) {
			data["error"] = gin.H{
				"productId": stockErr.ProductID.Hex(),
				"variantId": stockErr.VariantID.Hex(),
				"available": stockErr.Available,
				"requested": stockErr.Requested,
			}
		}
		logger.Debug("request rejected", zap.String("route", route), zap.Int("status", m.status), zap.Error(err))
		c.AbortWithStatusJSON(m.status, gin.H{"status": m.status, "data": data})
		return
	}

	if errors.Is(err, context.DeadlineExceeded) {
		logger.Error("request timed out", zap.String("route", route), zap.Error(err))
		respondWithError(c, logger, http.StatusInternalServerError, route, "TIMEOUT", "the request timed out, please retry")
		return
	}
	logger.Error("request failed", zap.String("route", route), zap.Error(err))
	respondWithError(c, logger, http.StatusInternalServerError, route, "INTERNAL", "internal server error")
}

// publicMessage drops the "order: " package prefix of sentinel errors.
func publicMessage(err error) string {
	return strings.TrimPrefix(err.Error(), "order: ")
}

func respondValidationError(c *gin.Context, logger *zap.Logger, route string, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		details := make([]string, 0, len(validationErrors))
		for _, fieldError := range validationErrors {
			field := fieldPath(fieldError.Namespace())
			switch fieldError.Tag() {
			case "required":
				details = append(details, fmt.Sprintf("%s is required", field))
			case "email":
				details = append(details, fmt.Sprintf("%s must be a valid email", field))
			case "oneof":
				details = append(details, fmt.Sprintf("%s must be one of %s", field, fieldError.Param()))
			case "min", "gte", "gt":
				details = append(details, fmt.Sprintf("%s must be at least %s", field, fieldError.Param()))
			default:
				details = append(details, fmt.Sprintf("%s is invalid", field))
			}
		}
		respondWithError(c, logger, http.StatusBadRequest, route, "VALIDATION_ERROR", strings.Join(details, "; "))
		return
	}
	respondWithError(c, logger, http.StatusBadRequest, route, "VALIDATION_ERROR", "invalid request body")
}

// fieldPath turns "createOrderRequest.Customer.Email" into "customer.email".
func fieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = lowerCamel(p)
	}
	return strings.Join(parts, ".")
}

func lowerCamel(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}

func parseObjectID(c *gin.Context, logger *zap.Logger, route, param string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(param))
	if err != nil {
		respondWithError(c, logger, http.StatusBadRequest, route, "VALIDATION_ERROR", fmt.Sprintf("invalid %s", param))
		return primitive.NilObjectID, false
	}
	return id, true
}
