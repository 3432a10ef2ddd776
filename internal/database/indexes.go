package database

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

type collectionIndexes struct {
	collection string
	models     []mongo.IndexModel
}

const skuIndex = "variants_sku_unique"

func indexPlan() []collectionIndexes {
	return []collectionIndexes{
		{
			collection: OrdersCollection,
			models: []mongo.IndexModel{
				{
					Keys:    bson.D{{Key: "orderNumber", Value: 1}},
					Options: options.Index().SetName("orderNumber_unique").SetUnique(true),
				},
				{
					Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
					Options: options.Index().SetName("userId_createdAt"),
				},
				{
					Keys:    bson.D{{Key: "createdAt", Value: -1}},
					Options: options.Index().SetName("createdAt_desc"),
				},
				{
					Keys:    bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}},
					Options: options.Index().SetName("status_createdAt"),
				},
			},
		},
		{
			collection: UsersCollection,
			models: []mongo.IndexModel{
				{
					Keys:    bson.D{{Key: "email", Value: 1}},
					Options: options.Index().SetName("email_unique").SetUnique(true),
				},
			},
		},
		{
			collection: ProductsCollection,
			models: []mongo.IndexModel{
				{
					Keys: bson.D{{Key: "slug", Value: 1}},
					Options: options.Index().
						SetName("slug_unique").
						SetUnique(true).
						SetPartialFilterExpression(bson.M{
							"slug": bson.M{"$exists": true},
						}),
				},
				{
					Keys: bson.D{{Key: "variants.sku", Value: 1}},
					Options: options.Index().
						SetName(skuIndex).
						SetUnique(true).
						SetPartialFilterExpression(bson.M{
							"variants.sku": bson.M{"$exists": true},
						}),
				},
			},
		},
	}
}

// EnsureIndexes creates every index the stores rely on. It keeps going after
// a failure and returns all errors joined.
func EnsureIndexes(ctx context.Context, db *mongo.Database, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var errs []error
	for _, plan := range indexPlan() {
		names, err := db.Collection(plan.collection).Indexes().CreateMany(ctx, plan.models)
		if err != nil {
			logger.Warn("EnsureIndexes: index error", zap.String("collection", plan.collection), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		logger.Info("EnsureIndexes: indexes ready", zap.String("collection", plan.collection), zap.Strings("indexes", names))
	}
	return errors.Join(errs...)
}
