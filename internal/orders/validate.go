package orders

import (
	"strings"

	"shoestore/internal/models"
)

func validateCreate(in CreateOrderInput) error {
	if blank(in.Customer.Name) || blank(in.Customer.Email) || blank(in.Customer.Phone) {
		return validationError("customer name, email and phone are required")
	}
	addr := in.ShippingAddress
	if blank(addr.RecipientName) || blank(addr.Phone) || blank(addr.Address) ||
		blank(addr.Ward) || blank(addr.District) || blank(addr.City) {
		return validationError("shipping address is incomplete")
	}
	if len(in.Items) == 0 {
		return validationError("order must contain at least one item")
	}
	for i, item := range in.Items {
		if err := validateItem(i, item); err != nil {
			return err
		}
	}
	if strings.TrimSpace(in.PaymentMethod) == "" {
		return validationError("payment method is required")
	}
	if !PaymentMethod(in.PaymentMethod).Valid() {
		return validationError("invalid payment method %q, must be one of cod, momo, zalopay, banking", in.PaymentMethod)
	}
	if in.Subtotal <= 0 {
		return validationError("subtotal is required")
	}
	if in.TotalAmount < 0 {
		return validationError("totalAmount must not be negative")
	}
	if in.ShippingFee < 0 || in.Discount < 0 || in.LoyaltyPointsDiscount < 0 {
		return validationError("fees and discounts must not be negative")
	}
	if in.LoyaltyPointsUsed < 0 {
		return validationError("loyaltyPointsUsed must not be negative")
	}
	if in.LoyaltyPointsUsed > 0 && in.UserID == nil {
		return validationError("loyalty points can only be used by a signed-in customer")
	}
	return nil
}

func validateItem(i int, item models.OrderItem) error {
	switch {
	case item.ProductID.IsZero():
		return validationError("items[%d].productId is required", i)
	case item.VariantID.IsZero():
		return validationError("items[%d].variantId is required", i)
	case blank(item.ProductName):
		return validationError("items[%d].productName is required", i)
	case blank(item.SKU):
		return validationError("items[%d].sku is required", i)
	case item.Quantity < 1:
		return validationError("items[%d].quantity must be at least 1", i)
	case item.Price < 0:
		return validationError("items[%d].price must not be negative", i)
	}
	return nil
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func trimCustomer(c models.OrderCustomer) models.OrderCustomer {
	return models.OrderCustomer{
		Name:  strings.TrimSpace(c.Name),
		Email: strings.TrimSpace(c.Email),
		Phone: strings.TrimSpace(c.Phone),
	}
}

func trimAddress(a models.ShippingAddress) models.ShippingAddress {
	return models.ShippingAddress{
		RecipientName: strings.TrimSpace(a.RecipientName),
		Phone:         strings.TrimSpace(a.Phone),
		Address:       strings.TrimSpace(a.Address),
		Ward:          strings.TrimSpace(a.Ward),
		District:      strings.TrimSpace(a.District),
		City:          strings.TrimSpace(a.City),
	}
}
