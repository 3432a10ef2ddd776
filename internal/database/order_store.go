package database

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"shoestore/internal/models"
	"shoestore/internal/orders"
)

type OrderStore struct {
	coll *mongo.Collection
}

func NewOrderStore(db *mongo.Database) *OrderStore {
	return &OrderStore{coll: db.Collection(OrdersCollection)}
}

func (s *OrderStore) Insert(ctx context.Context, order *models.Order) error {
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	if _, err := s.coll.InsertOne(ctx, order); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: order number %s already exists", orders.ErrConflict, order.OrderNumber)
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (s *OrderStore) FindByID(ctx context.Context, id primitive.ObjectID) (models.Order, error) {
	return s.findOne(ctx, bson.M{"_id": id}, id.Hex())
}

func (s *OrderStore) FindByNumber(ctx context.Context, orderNumber string) (models.Order, error) {
	return s.findOne(ctx, bson.M{"orderNumber": orderNumber}, orderNumber)
}

func (s *OrderStore) findOne(ctx context.Context, filter bson.M, ref string) (models.Order, error) {
	var order models.Order
	err := s.coll.FindOne(ctx, filter).Decode(&order)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Order{}, fmt.Errorf("%w: order %s", orders.ErrNotFound, ref)
	}
	if err != nil {
		return models.Order{}, fmt.Errorf("find order: %w", err)
	}
	return order, nil
}

func (s *OrderStore) List(ctx context.Context, filter orders.ListFilter) ([]models.Order, int64, error) {
	query := buildOrderFilter(filter)

	total, err := s.coll.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	direction := -1
	if filter.Ascending {
		direction = 1
	}
	findOpts := options.Find().
		SetSort(bson.D{{Key: filter.SortBy, Value: direction}, {Key: "_id", Value: direction}}).
		SetSkip((filter.Page - 1) * filter.Limit).
		SetLimit(filter.Limit)

	cursor, err := s.coll.Find(ctx, query, findOpts)
	if err != nil {
		return nil, 0, fmt.Errorf("find orders: %w", err)
	}
	defer cursor.Close(ctx)

	result := make([]models.Order, 0, filter.Limit)
	if err := cursor.All(ctx, &result); err != nil {
		return nil, 0, fmt.Errorf("decode orders: %w", err)
	}
	return result, total, nil
}

// ApplyTransition is a compare-and-set on status: the update only matches
// while the stored status is still one of t.From.
func (s *OrderStore) ApplyTransition(ctx context.Context, id primitive.ObjectID, t orders.Transition) (models.Order, error) {
	set := bson.M{"status": t.To, "updatedAt": t.At}
	if t.CancelReason != "" {
		set["cancelReason"] = t.CancelReason
	}
	if t.Release != nil {
		release := *t.Release
		if release.Done == nil {
			release.Done = []string{}
		}
		set["release"] = release
	}
	update := bson.M{
		"$set":  set,
		"$push": bson.M{"statusHistory": t.Entry},
	}
	filter := bson.M{"_id": id, "status": bson.M{"$in": t.From}}

	var order models.Order
	err := s.coll.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&order)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, findErr := s.FindByID(ctx, id); findErr != nil {
			return models.Order{}, findErr
		}
		return models.Order{}, orders.ErrStatusChanged
	}
	if err != nil {
		return models.Order{}, fmt.Errorf("update order status: %w", err)
	}
	return order, nil
}

func (s *OrderStore) SetPaymentStatus(ctx context.Context, id primitive.ObjectID, status string, paidAt *time.Time, at time.Time) (models.Order, error) {
	return s.set(ctx, id, bson.M{"paymentStatus": status, "paidAt": paidAt, "updatedAt": at})
}

func (s *OrderStore) SetShipping(ctx context.Context, id primitive.ObjectID, shipping models.ShippingInfo, at time.Time) (models.Order, error) {
	return s.set(ctx, id, bson.M{"shipping": shipping, "updatedAt": at})
}

func (s *OrderStore) set(ctx context.Context, id primitive.ObjectID, fields bson.M) (models.Order, error) {
	var order models.Order
	err := s.coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": fields},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&order)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Order{}, fmt.Errorf("%w: order %s", orders.ErrNotFound, id.Hex())
	}
	if err != nil {
		return models.Order{}, fmt.Errorf("update order: %w", err)
	}
	return order, nil
}

// ClaimRelease pushes key only while it is absent, so concurrent callers
// cannot both release the same reservation.
func (s *OrderStore) ClaimRelease(ctx context.Context, id primitive.ObjectID, key string) (bool, error) {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id, "release.done": bson.M{"$ne": key}},
		bson.M{"$push": bson.M{"release.done": key}},
	)
	if err != nil {
		return false, fmt.Errorf("claim release %s: %w", key, err)
	}
	if res.MatchedCount == 0 {
		if _, findErr := s.FindByID(ctx, id); findErr != nil {
			return false, findErr
		}
		return false, nil
	}
	return true, nil
}

func (s *OrderStore) UnclaimRelease(ctx context.Context, id primitive.ObjectID, key string) error {
	_, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$pull": bson.M{"release.done": key}})
	if err != nil {
		return fmt.Errorf("unclaim release %s: %w", key, err)
	}
	return nil
}

func (s *OrderStore) SetReleasePending(ctx context.Context, id primitive.ObjectID, pending bool, at time.Time) (models.Order, error) {
	return s.set(ctx, id, bson.M{"release.pending": pending, "updatedAt": at})
}

func (s *OrderStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: order %s", orders.ErrNotFound, id.Hex())
	}
	return nil
}

func buildOrderFilter(f orders.ListFilter) bson.M {
	query := bson.M{}
	if f.UserID != nil {
		query["userId"] = *f.UserID
	}
	if f.Status != "" {
		query["status"] = f.Status
	}
	if f.PaymentStatus != "" {
		query["paymentStatus"] = f.PaymentStatus
	}
	if f.PaymentMethod != "" {
		query["paymentMethod"] = f.PaymentMethod
	}
	if f.From != nil || f.To != nil {
		created := bson.M{}
		if f.From != nil {
			created["$gte"] = *f.From
		}
		if f.To != nil {
			created["$lte"] = *f.To
		}
		query["createdAt"] = created
	}
	if f.Search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(f.Search), Options: "i"}
		query["$or"] = bson.A{
			bson.M{"orderNumber": pattern},
			bson.M{"customer.name": pattern},
			bson.M{"customer.email": pattern},
			bson.M{"customer.phone": pattern},
		}
	}
	return query
}
