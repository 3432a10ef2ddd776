package orders

import (
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	// ErrValidation signals missing or malformed input.
	ErrValidation = errors.New("order: invalid input")
	// ErrNotFound indicates the order, product, variant or account could not be located.
	ErrNotFound = errors.New("order: not found")
	// ErrForbidden indicates the requester does not own the order.
	ErrForbidden = errors.New("order: forbidden")
	// ErrInvalidState indicates a transition from a closed or disallowed state.
	ErrInvalidState = errors.New("order: invalid status transition")
	// ErrConflict indicates a uniqueness violation such as a duplicate order number.
	ErrConflict = errors.New("order: conflict")
	// ErrInsufficientStock indicates a variant could not cover the requested quantity.
	ErrInsufficientStock = errors.New("order: insufficient stock")
	// ErrInsufficientLoyaltyPoints indicates the account balance cannot cover the points used.
	ErrInsufficientLoyaltyPoints = errors.New("order: insufficient loyalty points")

	// ErrStatusChanged is returned by repositories when a compare-and-set on the
	// order status lost against a concurrent writer.
	ErrStatusChanged = fmt.Errorf("%w: status changed concurrently", ErrInvalidState)
)

// StockError reports which variant ran out and by how much.
type StockError struct {
	ProductID primitive.ObjectID
	VariantID primitive.ObjectID
	Available int
	Requested int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("order: insufficient stock for variant %s: available %d, requested %d",
		e.VariantID.Hex(), e.Available, e.Requested)
}

func (e *StockError) Unwrap() error {
	return ErrInsufficientStock
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
