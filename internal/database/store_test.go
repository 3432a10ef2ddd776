package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"shoestore/internal/models"
	"shoestore/internal/orders"
)

func newMock(t *testing.T) *mtest.T {
	return mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
}

func TestOrderStoreInsertDuplicateNumber(t *testing.T) {
	mt := newMock(t)
	mt.Run("duplicate", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error collection: orders index: orderNumber_unique",
		}))

		store := NewOrderStore(mt.DB)
		err := store.Insert(context.Background(), &models.Order{OrderNumber: "ORD1"})
		assert.ErrorIs(mt, err, orders.ErrConflict)
	})
}

func TestOrderStoreFindByIDNotFound(t *testing.T) {
	mt := newMock(t)
	mt.Run("missing", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "shop.orders", mtest.FirstBatch))

		store := NewOrderStore(mt.DB)
		_, err := store.FindByID(context.Background(), primitive.NewObjectID())
		assert.ErrorIs(mt, err, orders.ErrNotFound)
	})
}

func TestOrderStoreApplyTransition(t *testing.T) {
	mt := newMock(t)
	id := primitive.NewObjectID()

	mt.Run("applied", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: bson.D{
			{Key: "_id", Value: id},
			{Key: "orderNumber", Value: "ORD1"},
			{Key: "status", Value: "cancelled"},
			{Key: "cancelReason", Value: "changed mind"},
		}}))

		store := NewOrderStore(mt.DB)
		order, err := store.ApplyTransition(context.Background(), id, orders.Transition{
			From:         []string{"pending", "confirmed"},
			To:           "cancelled",
			CancelReason: "changed mind",
			At:           time.Now(),
		})
		require.NoError(mt, err)
		assert.Equal(mt, "cancelled", order.Status)
		assert.Equal(mt, "changed mind", order.CancelReason)
	})

	mt.Run("lost race", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil}),
			mtest.CreateCursorResponse(1, "shop.orders", mtest.FirstBatch, bson.D{
				{Key: "_id", Value: id},
				{Key: "status", Value: "shipping"},
			}),
		)

		store := NewOrderStore(mt.DB)
		_, err := store.ApplyTransition(context.Background(), id, orders.Transition{
			From: []string{"pending", "confirmed"},
			To:   "cancelled",
		})
		assert.ErrorIs(mt, err, orders.ErrStatusChanged)
		assert.ErrorIs(mt, err, orders.ErrInvalidState)
	})
}

func TestCatalogStoreReserveStock(t *testing.T) {
	mt := newMock(t)
	productID := primitive.NewObjectID()
	variantID := primitive.NewObjectID()

	mt.Run("reserved", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		store := NewCatalogStore(mt.DB)
		require.NoError(mt, store.ReserveStock(context.Background(), productID, variantID, 2))
	})

	mt.Run("insufficient", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			mtest.CreateCursorResponse(1, "shop.products", mtest.FirstBatch, bson.D{
				{Key: "_id", Value: productID},
				{Key: "variants", Value: bson.A{
					bson.D{{Key: "_id", Value: variantID}, {Key: "stock", Value: 1}, {Key: "sku", Value: "X-42"}},
				}},
			}),
		)

		store := NewCatalogStore(mt.DB)
		err := store.ReserveStock(context.Background(), productID, variantID, 2)

		var stockErr *orders.StockError
		require.ErrorAs(mt, err, &stockErr)
		assert.Equal(mt, 1, stockErr.Available)
		assert.Equal(mt, 2, stockErr.Requested)
	})

	mt.Run("unknown variant", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			mtest.CreateCursorResponse(1, "shop.products", mtest.FirstBatch, bson.D{
				{Key: "_id", Value: productID},
				{Key: "variants", Value: bson.A{}},
			}),
		)

		store := NewCatalogStore(mt.DB)
		err := store.ReserveStock(context.Background(), productID, variantID, 2)
		assert.ErrorIs(mt, err, orders.ErrNotFound)
	})
}

func TestCatalogStoreReleaseMissingVariant(t *testing.T) {
	mt := newMock(t)
	mt.Run("missing", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))

		store := NewCatalogStore(mt.DB)
		err := store.ReleaseStock(context.Background(), primitive.NewObjectID(), primitive.NewObjectID(), 1)
		assert.ErrorIs(mt, err, orders.ErrNotFound)
	})
}

func TestAccountStoreDebitLoyaltyPoints(t *testing.T) {
	mt := newMock(t)
	userID := primitive.NewObjectID()

	mt.Run("debited", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))

		store := NewAccountStore(mt.DB)
		require.NoError(mt, store.DebitLoyaltyPoints(context.Background(), userID, 100))
	})

	mt.Run("short balance", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			mtest.CreateCursorResponse(1, "shop.users", mtest.FirstBatch, bson.D{
				{Key: "_id", Value: userID},
				{Key: "loyaltyPoints", Value: 40},
			}),
		)

		store := NewAccountStore(mt.DB)
		err := store.DebitLoyaltyPoints(context.Background(), userID, 100)
		assert.ErrorIs(mt, err, orders.ErrInsufficientLoyaltyPoints)
		assert.Contains(mt, err.Error(), "balance 40")
	})

	mt.Run("unknown user", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			mtest.CreateCursorResponse(0, "shop.users", mtest.FirstBatch),
		)

		store := NewAccountStore(mt.DB)
		err := store.DebitLoyaltyPoints(context.Background(), userID, 100)
		assert.ErrorIs(mt, err, orders.ErrNotFound)
	})
}

func TestUnitOfWorkDisabledCallsThrough(t *testing.T) {
	called := false
	uow := NewUnitOfWork(nil, false)
	err := uow.Do(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestBuildOrderFilter(t *testing.T) {
	userID := primitive.NewObjectID()
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	query := buildOrderFilter(orders.ListFilter{
		UserID:        &userID,
		Status:        "pending",
		PaymentMethod: "cod",
		Search:        "ord+1",
		From:          &from,
		To:            &to,
	})

	assert.Equal(t, userID, query["userId"])
	assert.Equal(t, "pending", query["status"])
	assert.Equal(t, "cod", query["paymentMethod"])
	assert.NotContains(t, query, "paymentStatus")
	assert.Equal(t, bson.M{"$gte": from, "$lte": to}, query["createdAt"])

	or, ok := query["$or"].(bson.A)
	require.True(t, ok)
	require.Len(t, or, 4)
	assert.Equal(t, bson.M{"orderNumber": primitive.Regex{Pattern: `ord\+1`, Options: "i"}}, or[0])

	assert.Empty(t, buildOrderFilter(orders.ListFilter{}))
}

func TestIndexPlanCoversUniqueKeys(t *testing.T) {
	unique := map[string][]string{}
	for _, plan := range indexPlan() {
		for _, model := range plan.models {
			if model.Options != nil && model.Options.Unique != nil && *model.Options.Unique {
				unique[plan.collection] = append(unique[plan.collection], *model.Options.Name)
			}
		}
	}
	assert.Equal(t, map[string][]string{
		OrdersCollection:   {"orderNumber_unique"},
		UsersCollection:    {"email_unique"},
		ProductsCollection: {"slug_unique", "variants_sku_unique"},
	}, unique)
}

func TestCatalogStoreDuplicateSKU(t *testing.T) {
	mt := newMock(t)
	mt.Run("duplicate sku", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error collection: products index: variants_sku_unique dup key: { variants.sku: \"X-42\" }",
		}))

		store := NewCatalogStore(mt.DB)
		err := store.CreateProduct(context.Background(), &models.Product{Name: "Runner", Slug: "runner"})
		assert.ErrorIs(mt, err, orders.ErrConflict)
		assert.Contains(mt, err.Error(), "variant sku")
	})
}

func TestOrderStoreClaimRelease(t *testing.T) {
	mt := newMock(t)
	id := primitive.NewObjectID()

	mt.Run("claimed", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))

		claimed, err := NewOrderStore(mt.DB).ClaimRelease(context.Background(), id, "line:0")
		require.NoError(mt, err)
		assert.True(mt, claimed)
	})

	mt.Run("already claimed", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			mtest.CreateCursorResponse(1, "shop.orders", mtest.FirstBatch, bson.D{
				{Key: "_id", Value: id},
				{Key: "status", Value: "cancelled"},
			}),
		)

		claimed, err := NewOrderStore(mt.DB).ClaimRelease(context.Background(), id, "line:0")
		require.NoError(mt, err)
		assert.False(mt, claimed)
	})

	mt.Run("missing order", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			mtest.CreateCursorResponse(0, "shop.orders", mtest.FirstBatch),
		)

		_, err := NewOrderStore(mt.DB).ClaimRelease(context.Background(), id, "line:0")
		assert.ErrorIs(mt, err, orders.ErrNotFound)
	})
}
