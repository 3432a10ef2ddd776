package orders

import (
	"fmt"

	"github.com/govalues/decimal"

	"shoestore/internal/models"
)

const moneyScale = 2

// VerifyTotals recomputes the order money fields from the line items and
// rejects any mismatch with what the client sent:
//
//	item.subtotal = price × quantity
//	subtotal      = Σ item.subtotal
//	totalAmount   = max(0, subtotal + shippingFee − discount − loyaltyPointsDiscount)
func VerifyTotals(in CreateOrderInput) error {
	sum := decimal.Zero
	for i, item := range in.Items {
		price, err := money(item.Price)
		if err != nil {
			return validationError("items[%d].price: %v", i, err)
		}
		qty, err := decimal.New(int64(item.Quantity), 0)
		if err != nil {
			return validationError("items[%d].quantity: %v", i, err)
		}
		want, err := price.Mul(qty)
		if err != nil {
			return validationError("items[%d]: %v", i, err)
		}
		got, err := money(item.Subtotal)
		if err != nil {
			return validationError("items[%d].subtotal: %v", i, err)
		}
		if want.Round(moneyScale).Cmp(got) != 0 {
			return validationError("items[%d].subtotal %s does not equal price × quantity %s", i, got, want.Round(moneyScale))
		}
		if sum, err = sum.Add(got); err != nil {
			return validationError("subtotal: %v", err)
		}
	}

	subtotal, err := money(in.Subtotal)
	if err != nil {
		return validationError("subtotal: %v", err)
	}
	if sum.Cmp(subtotal) != 0 {
		return validationError("subtotal %s does not equal the sum of item subtotals %s", subtotal, sum)
	}

	total, err := expectedTotal(subtotal, in.ShippingFee, in.Discount, in.LoyaltyPointsDiscount)
	if err != nil {
		return err
	}
	got, err := money(in.TotalAmount)
	if err != nil {
		return validationError("totalAmount: %v", err)
	}
	if total.Cmp(got) != 0 {
		return validationError("totalAmount %s does not match the computed total %s", got, total)
	}
	return nil
}

func expectedTotal(subtotal decimal.Decimal, shippingFee, discount, loyaltyDiscount float64) (decimal.Decimal, error) {
	fee, err := money(shippingFee)
	if err != nil {
		return decimal.Zero, validationError("shippingFee: %v", err)
	}
	disc, err := money(discount)
	if err != nil {
		return decimal.Zero, validationError("discount: %v", err)
	}
	points, err := money(loyaltyDiscount)
	if err != nil {
		return decimal.Zero, validationError("loyaltyPointsDiscount: %v", err)
	}

	total, err := subtotal.Add(fee)
	if err == nil {
		total, err = total.Sub(disc)
	}
	if err == nil {
		total, err = total.Sub(points)
	}
	if err != nil {
		return decimal.Zero, validationError("totalAmount: %v", err)
	}
	if total.IsNeg() {
		return decimal.Zero, nil
	}
	return total, nil
}

func money(v float64) (decimal.Decimal, error) {
	d, err := decimal.NewFromFloat64(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %v", v)
	}
	return d.Round(moneyScale), nil
}

// lineSubtotal is used to fill in missing item subtotals when totals are not enforced.
func lineSubtotal(item models.OrderItem) float64 {
	price, err := money(item.Price)
	if err != nil {
		return item.Price * float64(item.Quantity)
	}
	qty, err := decimal.New(int64(item.Quantity), 0)
	if err != nil {
		return item.Price * float64(item.Quantity)
	}
	sub, err := price.Mul(qty)
	if err != nil {
		return item.Price * float64(item.Quantity)
	}
	f, _ := sub.Round(moneyScale).Float64()
	return f
}
