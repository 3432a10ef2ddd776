// Package memstore keeps orders, products and accounts in memory. It backs the
// engine and handler tests and local runs without MongoDB.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"shoestore/internal/models"
	"shoestore/internal/orders"
)

type Orders struct {
	mu     sync.RWMutex
	byID   map[primitive.ObjectID]models.Order
	byCode map[string]primitive.ObjectID
}

func NewOrders() *Orders {
	return &Orders{
		byID:   make(map[primitive.ObjectID]models.Order),
		byCode: make(map[string]primitive.ObjectID),
	}
}

func (s *Orders) Insert(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	if _, ok := s.byCode[order.OrderNumber]; ok {
		return fmt.Errorf("%w: order number %s already exists", orders.ErrConflict, order.OrderNumber)
	}
	if _, ok := s.byID[order.ID]; ok {
		return fmt.Errorf("%w: order %s already exists", orders.ErrConflict, order.ID.Hex())
	}
	s.byID[order.ID] = order.Clone()
	s.byCode[order.OrderNumber] = order.ID
	return nil
}

func (s *Orders) FindByID(_ context.Context, id primitive.ObjectID) (models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.byID[id]
	if !ok {
		return models.Order{}, fmt.Errorf("%w: order %s", orders.ErrNotFound, id.Hex())
	}
	return order.Clone(), nil
}

func (s *Orders) FindByNumber(_ context.Context, orderNumber string) (models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byCode[orderNumber]
	if !ok {
		return models.Order{}, fmt.Errorf("%w: order %s", orders.ErrNotFound, orderNumber)
	}
	return s.byID[id].Clone(), nil
}

func (s *Orders) List(_ context.Context, filter orders.ListFilter) ([]models.Order, int64, error) {
	s.mu.RLock()
	matched := make([]models.Order, 0, len(s.byID))
	for _, order := range s.byID {
		if matches(order, filter) {
			matched = append(matched, order.Clone())
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		less := compare(matched[i], matched[j], filter.SortBy) < 0
		if filter.Ascending {
			return less
		}
		return compare(matched[j], matched[i], filter.SortBy) < 0
	})

	total := int64(len(matched))
	start := (filter.Page - 1) * filter.Limit
	if start < 0 || start >= total {
		return []models.Order{}, total, nil
	}
	end := min(start+filter.Limit, total)
	return matched[start:end], total, nil
}

func (s *Orders) ApplyTransition(_ context.Context, id primitive.ObjectID, t orders.Transition) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.byID[id]
	if !ok {
		return models.Order{}, fmt.Errorf("%w: order %s", orders.ErrNotFound, id.Hex())
	}
	if !slices.Contains(t.From, order.Status) {
		return models.Order{}, orders.ErrStatusChanged
	}
	order = order.Clone()
	order.Status = t.To
	order.StatusHistory = append(order.StatusHistory, t.Entry)
	if t.CancelReason != "" {
		order.CancelReason = t.CancelReason
	}
	if t.Release != nil {
		release := *t.Release
		order.Release = &release
	}
	order.UpdatedAt = t.At
	s.byID[id] = order
	return order.Clone(), nil
}

func (s *Orders) SetPaymentStatus(_ context.Context, id primitive.ObjectID, status string, paidAt *time.Time, at time.Time) (models.Order, error) {
	return s.update(id, func(order *models.Order) {
		order.PaymentStatus = status
		order.PaidAt = paidAt
		order.UpdatedAt = at
	})
}

func (s *Orders) SetShipping(_ context.Context, id primitive.ObjectID, shipping models.ShippingInfo, at time.Time) (models.Order, error) {
	return s.update(id, func(order *models.Order) {
		order.Shipping = &shipping
		order.UpdatedAt = at
	})
}

func (s *Orders) Delete(_ context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: order %s", orders.ErrNotFound, id.Hex())
	}
	delete(s.byID, id)
	delete(s.byCode, order.OrderNumber)
	return nil
}

func (s *Orders) ClaimRelease(_ context.Context, id primitive.ObjectID, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.byID[id]
	if !ok {
		return false, fmt.Errorf("%w: order %s", orders.ErrNotFound, id.Hex())
	}
	order = order.Clone()
	if order.Release == nil {
		order.Release = &models.ReleaseProgress{}
	}
	if slices.Contains(order.Release.Done, key) {
		return false, nil
	}
	order.Release.Done = append(order.Release.Done, key)
	s.byID[id] = order
	return true, nil
}

func (s *Orders) UnclaimRelease(_ context.Context, id primitive.ObjectID, key string) error {
	_, err := s.update(id, func(order *models.Order) {
		if order.Release != nil {
			order.Release.Done = slices.DeleteFunc(order.Release.Done, func(k string) bool { return k == key })
		}
	})
	return err
}

func (s *Orders) SetReleasePending(_ context.Context, id primitive.ObjectID, pending bool, at time.Time) (models.Order, error) {
	return s.update(id, func(order *models.Order) {
		if order.Release == nil {
			order.Release = &models.ReleaseProgress{}
		}
		order.Release.Pending = pending
		order.UpdatedAt = at
	})
}

func (s *Orders) update(id primitive.ObjectID, mutate func(*models.Order)) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.byID[id]
	if !ok {
		return models.Order{}, fmt.Errorf("%w: order %s", orders.ErrNotFound, id.Hex())
	}
	order = order.Clone()
	mutate(&order)
	s.byID[id] = order.Clone()
	return order, nil
}

func matches(order models.Order, f orders.ListFilter) bool {
	if f.UserID != nil && (order.UserID == nil || *order.UserID != *f.UserID) {
		return false
	}
	if f.Status != "" && order.Status != f.Status {
		return false
	}
	if f.PaymentStatus != "" && order.PaymentStatus != f.PaymentStatus {
		return false
	}
	if f.PaymentMethod != "" && order.PaymentMethod != f.PaymentMethod {
		return false
	}
	if f.From != nil && order.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && order.CreatedAt.After(*f.To) {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		haystack := []string{order.OrderNumber, order.Customer.Name, order.Customer.Email, order.Customer.Phone}
		found := false
		for _, field := range haystack {
			if strings.Contains(strings.ToLower(field), needle) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func compare(a, b models.Order, field string) int {
	switch field {
	case "totalAmount":
		switch {
		case a.TotalAmount < b.TotalAmount:
			return -1
		case a.TotalAmount > b.TotalAmount:
			return 1
		}
		return 0
	case "orderNumber":
		return strings.Compare(a.OrderNumber, b.OrderNumber)
	case "status":
		return strings.Compare(a.Status, b.Status)
	case "updatedAt":
		return a.UpdatedAt.Compare(b.UpdatedAt)
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}
