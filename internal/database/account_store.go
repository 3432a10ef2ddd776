package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"shoestore/internal/models"
	"shoestore/internal/orders"
)

// AccountStore manages user documents and their loyalty balance.
type AccountStore struct {
	coll *mongo.Collection
}

func NewAccountStore(db *mongo.Database) *AccountStore {
	return &AccountStore{coll: db.Collection(UsersCollection)}
}

func (s *AccountStore) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if _, err := s.coll.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: email %s already registered", orders.ErrConflict, user.Email)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *AccountStore) FindUserByID(ctx context.Context, id primitive.ObjectID) (models.User, error) {
	return s.findOne(ctx, bson.M{"_id": id}, id.Hex())
}

func (s *AccountStore) FindUserByEmail(ctx context.Context, email string) (models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return s.findOne(ctx, bson.M{"email": email}, email)
}

func (s *AccountStore) findOne(ctx context.Context, filter bson.M, ref string) (models.User, error) {
	var user models.User
	err := s.coll.FindOne(ctx, filter).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.User{}, fmt.Errorf("%w: user %s", orders.ErrNotFound, ref)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

// SetToken stores the session token checked by the auth middleware. An empty
// token signs the user out.
func (s *AccountStore) SetToken(ctx context.Context, id primitive.ObjectID, token string) error {
	update := bson.M{"$set": bson.M{"token": token}}
	if token == "" {
		update = bson.M{"$unset": bson.M{"token": ""}}
	}
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("update token: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: user %s", orders.ErrNotFound, id.Hex())
	}
	return nil
}

// DebitLoyaltyPoints only applies when the balance covers points.
func (s *AccountStore) DebitLoyaltyPoints(ctx context.Context, userID primitive.ObjectID, points int) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": userID, "loyaltyPoints": bson.M{"$gte": points}},
		bson.M{"$inc": bson.M{"loyaltyPoints": -points}},
	)
	if err != nil {
		return fmt.Errorf("debit loyalty points: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	var balance struct {
		LoyaltyPoints int `bson:"loyaltyPoints"`
	}
	err = s.coll.FindOne(ctx, bson.M{"_id": userID},
		options.FindOne().SetProjection(bson.M{"loyaltyPoints": 1}),
	).Decode(&balance)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%w: user %s", orders.ErrNotFound, userID.Hex())
	}
	if err != nil {
		return fmt.Errorf("find user: %w", err)
	}
	return fmt.Errorf("%w: balance %d, requested %d", orders.ErrInsufficientLoyaltyPoints, balance.LoyaltyPoints, points)
}

func (s *AccountStore) CreditLoyaltyPoints(ctx context.Context, userID primitive.ObjectID, points int) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$inc": bson.M{"loyaltyPoints": points}})
	if err != nil {
		return fmt.Errorf("credit loyalty points: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: user %s", orders.ErrNotFound, userID.Hex())
	}
	return nil
}
