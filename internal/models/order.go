package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OrderItem is a snapshot of a purchased variant taken at order time.
// Later catalog edits never touch it.
type OrderItem struct {
	ProductID   primitive.ObjectID `bson:"productId" json:"productId"`
	VariantID   primitive.ObjectID `bson:"variantId" json:"variantId"`
	ProductName string             `bson:"productName" json:"productName"`
	SKU         string             `bson:"sku" json:"sku"`
	Color       string             `bson:"color" json:"color"`
	Size        float64            `bson:"size" json:"size"`
	Price       float64            `bson:"price" json:"price"`
	Quantity    int                `bson:"quantity" json:"quantity"`
	Subtotal    float64            `bson:"subtotal" json:"subtotal"`
	Image       string             `bson:"image,omitempty" json:"image,omitempty"`
}

// OrderCustomer captures customer contact details independent of the account.
type OrderCustomer struct {
	Name  string `bson:"name" json:"name"`
	Email string `bson:"email" json:"email"`
	Phone string `bson:"phone" json:"phone"`
}

type ShippingAddress struct {
	RecipientName string `bson:"recipientName" json:"recipientName"`
	Phone         string `bson:"phone" json:"phone"`
	Address       string `bson:"address" json:"address"`
	Ward          string `bson:"ward" json:"ward"`
	District      string `bson:"district" json:"district"`
	City          string `bson:"city" json:"city"`
}

// StatusHistoryEntry is one row of the append-only audit trail.
type StatusHistoryEntry struct {
	Status    string              `bson:"status" json:"status"`
	Note      string              `bson:"note,omitempty" json:"note,omitempty"`
	UpdatedBy *primitive.ObjectID `bson:"updatedBy,omitempty" json:"updatedBy,omitempty"`
	UpdatedAt time.Time           `bson:"updatedAt" json:"updatedAt"`
}

type ShippingInfo struct {
	Carrier               string     `bson:"carrier,omitempty" json:"carrier,omitempty"`
	TrackingNumber        string     `bson:"trackingNumber,omitempty" json:"trackingNumber,omitempty"`
	EstimatedDeliveryDate *time.Time `bson:"estimatedDeliveryDate,omitempty" json:"estimatedDeliveryDate,omitempty"`
}

// ReleaseProgress tracks which reservations of a cancelled order were
// returned. Done holds keys of the form "line:<index>" and "points". Pending
// is set when a release attempt failed and a retry has work left.
type ReleaseProgress struct {
	Pending bool     `bson:"pending" json:"pending"`
	Done    []string `bson:"done" json:"done"`
}

// Order defines the persisted order document.
type Order struct {
	ID                    primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	OrderNumber           string               `bson:"orderNumber" json:"orderNumber"`
	UserID                *primitive.ObjectID  `bson:"userId" json:"userId"`
	Customer              OrderCustomer        `bson:"customer" json:"customer"`
	ShippingAddress       ShippingAddress      `bson:"shippingAddress" json:"shippingAddress"`
	Items                 []OrderItem          `bson:"items" json:"items"`
	Subtotal              float64              `bson:"subtotal" json:"subtotal"`
	ShippingFee           float64              `bson:"shippingFee" json:"shippingFee"`
	Discount              float64              `bson:"discount" json:"discount"`
	VoucherCode           string               `bson:"voucherCode,omitempty" json:"voucherCode,omitempty"`
	LoyaltyPointsUsed     int                  `bson:"loyaltyPointsUsed" json:"loyaltyPointsUsed"`
	LoyaltyPointsDiscount float64              `bson:"loyaltyPointsDiscount" json:"loyaltyPointsDiscount"`
	TotalAmount           float64              `bson:"totalAmount" json:"totalAmount"`
	PaymentMethod         string               `bson:"paymentMethod" json:"paymentMethod"`
	PaymentStatus         string               `bson:"paymentStatus" json:"paymentStatus"`
	PaidAt                *time.Time           `bson:"paidAt" json:"paidAt"`
	Status                string               `bson:"status" json:"status"`
	StatusHistory         []StatusHistoryEntry `bson:"statusHistory" json:"statusHistory"`
	Shipping              *ShippingInfo        `bson:"shipping,omitempty" json:"shipping,omitempty"`
	Note                  string               `bson:"note,omitempty" json:"note,omitempty"`
	CancelReason          string               `bson:"cancelReason,omitempty" json:"cancelReason,omitempty"`
	Release               *ReleaseProgress     `bson:"release,omitempty" json:"release,omitempty"`
	CreatedAt             time.Time            `bson:"createdAt" json:"createdAt"`
	UpdatedAt             time.Time            `bson:"updatedAt" json:"updatedAt"`
}

// Clone returns a deep copy so callers can mutate without aliasing stored slices.
func (o Order) Clone() Order {
	out := o
	if o.UserID != nil {
		id := *o.UserID
		out.UserID = &id
	}
	out.Items = append([]OrderItem(nil), o.Items...)
	out.StatusHistory = make([]StatusHistoryEntry, len(o.StatusHistory))
	for i, entry := range o.StatusHistory {
		if entry.UpdatedBy != nil {
			by := *entry.UpdatedBy
			entry.UpdatedBy = &by
		}
		out.StatusHistory[i] = entry
	}
	if o.PaidAt != nil {
		paid := *o.PaidAt
		out.PaidAt = &paid
	}
	if o.Shipping != nil {
		shipping := *o.Shipping
		if o.Shipping.EstimatedDeliveryDate != nil {
			eta := *o.Shipping.EstimatedDeliveryDate
			shipping.EstimatedDeliveryDate = &eta
		}
		out.Shipping = &shipping
	}
	if o.Release != nil {
		release := ReleaseProgress{Pending: o.Release.Pending, Done: append([]string(nil), o.Release.Done...)}
		out.Release = &release
	}
	return out
}
