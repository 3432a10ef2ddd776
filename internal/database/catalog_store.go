package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"shoestore/internal/models"
	"shoestore/internal/orders"
)

// CatalogStore reads products and adjusts variant stock in place.
type CatalogStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewCatalogStore(db *mongo.Database) *CatalogStore {
	return &CatalogStore{
		coll: db.Collection(ProductsCollection),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *CatalogStore) CreateProduct(ctx context.Context, product *models.Product) error {
	if product.ID.IsZero() {
		product.ID = primitive.NewObjectID()
	}
	if _, err := s.coll.InsertOne(ctx, product); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			if strings.Contains(err.Error(), skuIndex) {
				return fmt.Errorf("%w: a variant sku of %s already exists", orders.ErrConflict, product.Name)
			}
			return fmt.Errorf("%w: slug %s already exists", orders.ErrConflict, product.Slug)
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (s *CatalogStore) FindProductByID(ctx context.Context, id primitive.ObjectID) (models.Product, error) {
	var product models.Product
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&product)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Product{}, fmt.Errorf("%w: product %s", orders.ErrNotFound, id.Hex())
	}
	if err != nil {
		return models.Product{}, fmt.Errorf("find product: %w", err)
	}
	return product, nil
}

// ReserveStock decrements the variant only while its stock covers quantity.
func (s *CatalogStore) ReserveStock(ctx context.Context, productID, variantID primitive.ObjectID, quantity int) error {
	filter := bson.M{
		"_id": productID,
		"variants": bson.M{"$elemMatch": bson.M{
			"_id":   variantID,
			"stock": bson.M{"$gte": quantity},
		}},
	}
	update := bson.M{
		"$inc": bson.M{"variants.$.stock": -quantity},
		"$set": bson.M{"updatedAt": s.now()},
	}

	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("reserve stock: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	product, err := s.FindProductByID(ctx, productID)
	if err != nil {
		return err
	}
	variant, ok := product.Variant(variantID)
	if !ok {
		return fmt.Errorf("%w: variant %s", orders.ErrNotFound, variantID.Hex())
	}
	return &orders.StockError{
		ProductID: productID,
		VariantID: variantID,
		Available: variant.Stock,
		Requested: quantity,
	}
}

func (s *CatalogStore) ReleaseStock(ctx context.Context, productID, variantID primitive.ObjectID, quantity int) error {
	filter := bson.M{"_id": productID, "variants._id": variantID}
	update := bson.M{
		"$inc": bson.M{"variants.$.stock": quantity},
		"$set": bson.M{"updatedAt": s.now()},
	}

	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("release stock: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: variant %s of product %s", orders.ErrNotFound, variantID.Hex(), productID.Hex())
	}
	return nil
}
