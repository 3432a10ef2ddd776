package handlers

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"shoestore/internal/logger"
	"shoestore/internal/models"
	"shoestore/internal/orders"
)

const defaultTimeout = 5 * time.Second

// OrderService is the order lifecycle engine as seen by the HTTP layer.
type OrderService interface {
	Create(ctx context.Context, in orders.CreateOrderInput) (models.Order, error)
	Get(ctx context.Context, id primitive.ObjectID) (models.Order, error)
	GetByNumber(ctx context.Context, orderNumber string) (models.Order, error)
	List(ctx context.Context, filter orders.ListFilter) ([]models.Order, int64, orders.ListFilter, error)
	UpdateStatus(ctx context.Context, id primitive.ObjectID, status, note string, updatedBy *primitive.ObjectID) (models.Order, error)
	Cancel(ctx context.Context, in orders.CancelInput) (models.Order, error)
	UpdatePaymentStatus(ctx context.Context, id primitive.ObjectID, status string, actor *primitive.ObjectID) (models.Order, error)
	UpdateShipping(ctx context.Context, id primitive.ObjectID, in orders.ShippingUpdate) (models.Order, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
}

type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	FindUserByID(ctx context.Context, id primitive.ObjectID) (models.User, error)
	FindUserByEmail(ctx context.Context, email string) (models.User, error)
	SetToken(ctx context.Context, id primitive.ObjectID, token string) error
}

type ProductStore interface {
	CreateProduct(ctx context.Context, product *models.Product) error
	FindProductByID(ctx context.Context, id primitive.ObjectID) (models.Product, error)
}

// Env carries what the handlers need.
type Env struct {
	Orders   OrderService
	Users    UserStore
	Products ProductStore
	Logger   *zap.Logger

	JWTSecret      string
	AccessTokenTTL time.Duration
	RequestTimeout time.Duration

	// Ping reports datastore health for /healthz.
	Ping func(ctx context.Context) error
	Now  func() time.Time
}

func (e *Env) timeout() time.Duration {
	if e.RequestTimeout <= 0 {
		return defaultTimeout
	}
	return e.RequestTimeout
}

func (e *Env) now() time.Time {
	if e.Now == nil {
		return time.Now().UTC()
	}
	return e.Now()
}

func (e *Env) log() *zap.Logger {
	return logger.OrNop(e.Logger)
}
