package memstore

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"shoestore/internal/models"
	"shoestore/internal/orders"
)

type Accounts struct {
	mu    sync.Mutex
	users map[primitive.ObjectID]models.User
}

func NewAccounts(users ...models.User) *Accounts {
	a := &Accounts{users: make(map[primitive.ObjectID]models.User)}
	for _, u := range users {
		_ = a.CreateUser(context.Background(), &u)
	}
	return a
}

func (a *Accounts) CreateUser(_ context.Context, user *models.User) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(user.Email))
	for _, existing := range a.users {
		if existing.Email == email {
			return fmt.Errorf("%w: email %s already registered", orders.ErrConflict, email)
		}
	}
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	user.Email = email
	a.users[user.ID] = *user
	return nil
}

func (a *Accounts) FindUserByID(_ context.Context, id primitive.ObjectID) (models.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	u, ok := a.users[id]
	if !ok {
		return models.User{}, fmt.Errorf("%w: user %s", orders.ErrNotFound, id.Hex())
	}
	return u, nil
}

func (a *Accounts) FindUserByEmail(_ context.Context, email string) (models.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range a.users {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, fmt.Errorf("%w: user %s", orders.ErrNotFound, email)
}

func (a *Accounts) SetToken(_ context.Context, id primitive.ObjectID, token string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	u, ok := a.users[id]
	if !ok {
		return fmt.Errorf("%w: user %s", orders.ErrNotFound, id.Hex())
	}
	u.Token = token
	a.users[id] = u
	return nil
}

// LoyaltyPoints returns the balance of a user, or -1 if unknown.
func (a *Accounts) LoyaltyPoints(id primitive.ObjectID) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	u, ok := a.users[id]
	if !ok {
		return -1
	}
	return u.LoyaltyPoints
}

func (a *Accounts) DebitLoyaltyPoints(_ context.Context, userID primitive.ObjectID, points int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	u, ok := a.users[userID]
	if !ok {
		return fmt.Errorf("%w: user %s", orders.ErrNotFound, userID.Hex())
	}
	if u.LoyaltyPoints < points {
		return fmt.Errorf("%w: balance %d, requested %d", orders.ErrInsufficientLoyaltyPoints, u.LoyaltyPoints, points)
	}
	u.LoyaltyPoints -= points
	a.users[userID] = u
	return nil
}

func (a *Accounts) CreditLoyaltyPoints(_ context.Context, userID primitive.ObjectID, points int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	u, ok := a.users[userID]
	if !ok {
		return fmt.Errorf("%w: user %s", orders.ErrNotFound, userID.Hex())
	}
	u.LoyaltyPoints += points
	a.users[userID] = u
	return nil
}
