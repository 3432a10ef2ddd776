package orders

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"shoestore/internal/models"
)

// OrderRepository persists order documents.
type OrderRepository interface {
	Insert(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id primitive.ObjectID) (models.Order, error)
	FindByNumber(ctx context.Context, orderNumber string) (models.Order, error)
	List(ctx context.Context, filter ListFilter) ([]models.Order, int64, error)
	// ApplyTransition sets the status and appends the history entry only when
	// the stored status is one of t.From. A lost race returns ErrStatusChanged.
	ApplyTransition(ctx context.Context, id primitive.ObjectID, t Transition) (models.Order, error)
	SetPaymentStatus(ctx context.Context, id primitive.ObjectID, status string, paidAt *time.Time, at time.Time) (models.Order, error)
	SetShipping(ctx context.Context, id primitive.ObjectID, shipping models.ShippingInfo, at time.Time) (models.Order, error)
	Delete(ctx context.Context, id primitive.ObjectID) error

	// ClaimRelease records key in release.done unless it is already there and
	// reports whether this caller won the claim.
	ClaimRelease(ctx context.Context, id primitive.ObjectID, key string) (bool, error)
	// UnclaimRelease drops key after the release it guarded failed.
	UnclaimRelease(ctx context.Context, id primitive.ObjectID, key string) error
	// SetReleasePending marks whether a cancelled order still holds reservations
	// that a retry has to return.
	SetReleasePending(ctx context.Context, id primitive.ObjectID, pending bool, at time.Time) (models.Order, error)
}

// Catalog adjusts variant stock with atomic increments.
type Catalog interface {
	// ReserveStock decrements stock only if it covers quantity; otherwise it
	// returns a *StockError and leaves stock untouched.
	ReserveStock(ctx context.Context, productID, variantID primitive.ObjectID, quantity int) error
	ReleaseStock(ctx context.Context, productID, variantID primitive.ObjectID, quantity int) error
}

// Accounts adjusts loyalty balances with atomic increments.
type Accounts interface {
	DebitLoyaltyPoints(ctx context.Context, userID primitive.ObjectID, points int) error
	CreditLoyaltyPoints(ctx context.Context, userID primitive.ObjectID, points int) error
}

// UnitOfWork runs fn atomically when the backing store supports it.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

type Transition struct {
	From         []string
	To           string
	Entry        models.StatusHistoryEntry
	CancelReason string
	// Release, when set, is stored with the new status.
	Release *models.ReleaseProgress
	At      time.Time
}

// ListFilter narrows order listings. Zero values mean "no filter".
type ListFilter struct {
	UserID        *primitive.ObjectID
	Status        string
	PaymentStatus string
	PaymentMethod string
	Search        string
	From          *time.Time
	To            *time.Time
	SortBy        string
	Ascending     bool
	Page          int64
	Limit         int64
}

// DirectUnitOfWork runs fn without a transaction.
type DirectUnitOfWork struct{}

func (DirectUnitOfWork) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
