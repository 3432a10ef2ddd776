package orders

import "slices"

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipping   Status = "shipping"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

type PaymentMethod string

const (
	PaymentCOD     PaymentMethod = "cod"
	PaymentMomo    PaymentMethod = "momo"
	PaymentZaloPay PaymentMethod = "zalopay"
	PaymentBanking PaymentMethod = "banking"
)

type Carrier string

const (
	CarrierGHN         Carrier = "GHN"
	CarrierGHTK        Carrier = "GHTK"
	CarrierViettelPost Carrier = "ViettelPost"
	CarrierOther       Carrier = "Other"
)

// fulfillment is the forward path; cancelled sits outside it.
var fulfillment = []Status{
	StatusPending,
	StatusConfirmed,
	StatusProcessing,
	StatusShipping,
	StatusDelivered,
}

var cancellableStatuses = []Status{StatusPending, StatusConfirmed}

func (s Status) Valid() bool {
	return s == StatusCancelled || slices.Contains(fulfillment, s)
}

// Terminal reports whether no further transition is permitted.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

func (s Status) Cancellable() bool {
	return slices.Contains(cancellableStatuses, s)
}

// CanTransition allows moving forward along the fulfillment path, skipping
// steps if needed, and re-affirming the current status. Cancellation has its
// own operation and is not a generic transition.
func CanTransition(current, target Status) bool {
	if current.Terminal() || target == StatusCancelled {
		return false
	}
	from := slices.Index(fulfillment, current)
	to := slices.Index(fulfillment, target)
	if from < 0 || to < 0 {
		return false
	}
	return to >= from
}

func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentPending, PaymentPaid, PaymentFailed:
		return true
	}
	return false
}

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCOD, PaymentMomo, PaymentZaloPay, PaymentBanking:
		return true
	}
	return false
}

func (c Carrier) Valid() bool {
	switch c {
	case CarrierGHN, CarrierGHTK, CarrierViettelPost, CarrierOther:
		return true
	}
	return false
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
