package orders

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"shoestore/internal/models"
)

const (
	defaultCancelReason = "customer cancelled"
	createdNote         = "order created"
	strandedReason      = "checkout failed, reservations pending release"

	pointsKey = "points"

	defaultPage  = 1
	defaultLimit = 20
	maxLimit     = 100
)

var sortableFields = map[string]bool{
	"createdAt":   true,
	"updatedAt":   true,
	"totalAmount": true,
	"orderNumber": true,
	"status":      true,
}

// Deps bundles the collaborators the service needs.
type Deps struct {
	Orders     OrderRepository
	Catalog    Catalog
	Accounts   Accounts
	UnitOfWork UnitOfWork
	Events     EventPublisher
	Logger     *zap.Logger

	// Clock and NewOrderNumber are overridable in tests.
	Clock          func() time.Time
	NewOrderNumber func(time.Time) string

	// StrictTotals rejects orders whose money fields do not add up.
	StrictTotals bool
}

// Service owns the order lifecycle: creation, status transitions,
// cancellation and payment updates, together with the stock and loyalty
// adjustments that creation and cancellation imply.
type Service struct {
	orders       OrderRepository
	catalog      Catalog
	accounts     Accounts
	uow          UnitOfWork
	events       EventPublisher
	logger       *zap.Logger
	tracer       trace.Tracer
	now          func() time.Time
	newNumber    func(time.Time) string
	strictTotals bool
}

func NewService(deps Deps) *Service {
	s := &Service{
		orders:       deps.Orders,
		catalog:      deps.Catalog,
		accounts:     deps.Accounts,
		uow:          deps.UnitOfWork,
		events:       deps.Events,
		logger:       deps.Logger,
		tracer:       otel.Tracer("shoestore/orders"),
		now:          deps.Clock,
		newNumber:    deps.NewOrderNumber,
		strictTotals: deps.StrictTotals,
	}
	if s.uow == nil {
		s.uow = DirectUnitOfWork{}
	}
	if s.events == nil {
		s.events = nopPublisher{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.newNumber == nil {
		s.newNumber = NewOrderNumber
	}
	return s
}

type CreateOrderInput struct {
	UserID                *primitive.ObjectID
	Customer              models.OrderCustomer
	ShippingAddress       models.ShippingAddress
	Items                 []models.OrderItem
	Subtotal              float64
	ShippingFee           float64
	Discount              float64
	VoucherCode           string
	LoyaltyPointsUsed     int
	LoyaltyPointsDiscount float64
	TotalAmount           float64
	PaymentMethod         string
	Note                  string
}

type CancelInput struct {
	OrderID primitive.ObjectID
	// RequesterID is the customer asking to cancel. Nil skips the ownership check.
	RequesterID *primitive.ObjectID
	// ActorID is recorded as updatedBy when the cancel comes from staff.
	ActorID *primitive.ObjectID
	Reason  string
}

type ShippingUpdate struct {
	Carrier               string
	TrackingNumber        string
	EstimatedDeliveryDate *time.Time
}

// Create validates the input, reserves stock for every line, debits loyalty
// points and persists the order. If any step fails the earlier ones are undone.
func (s *Service) Create(ctx context.Context, in CreateOrderInput) (order models.Order, err error) {
	ctx, span := s.tracer.Start(ctx, "orders.Create")
	defer func() { endSpan(span, err) }()

	if err := validateCreate(in); err != nil {
		return models.Order{}, err
	}
	if s.strictTotals {
		if err := VerifyTotals(in); err != nil {
			return models.Order{}, err
		}
	}

	now := s.now()
	order = s.buildOrder(in, now)
	span.SetAttributes(attribute.String("order.number", order.OrderNumber))

	steps := make([]sagaStep, 0, len(order.Items)+2)
	for i, item := range order.Items {
		steps = append(steps, sagaStep{
			name: "reserve stock " + item.SKU,
			key:  lineKey(i),
			execute: func(ctx context.Context) error {
				return s.catalog.ReserveStock(ctx, item.ProductID, item.VariantID, item.Quantity)
			},
			compensate: func(ctx context.Context) error {
				return s.catalog.ReleaseStock(ctx, item.ProductID, item.VariantID, item.Quantity)
			},
		})
	}
	if order.UserID != nil && order.LoyaltyPointsUsed > 0 {
		userID, points := *order.UserID, order.LoyaltyPointsUsed
		steps = append(steps, sagaStep{
			name: "debit loyalty points",
			key:  pointsKey,
			execute: func(ctx context.Context) error {
				return s.accounts.DebitLoyaltyPoints(ctx, userID, points)
			},
			compensate: func(ctx context.Context) error {
				return s.accounts.CreditLoyaltyPoints(ctx, userID, points)
			},
		})
	}
	steps = append(steps, sagaStep{
		name: "insert order",
		execute: func(ctx context.Context) error {
			return s.orders.Insert(ctx, &order)
		},
	})

	err = s.uow.Do(ctx, func(ctx context.Context) error {
		err := runSaga(ctx, s.logger, order.OrderNumber, steps)
		var stranded *compensationError
		if errors.As(err, &stranded) {
			s.recordStranded(context.WithoutCancel(ctx), order, stranded.unreleased, now)
		}
		return err
	})
	if err != nil {
		return models.Order{}, err
	}

	s.logger.Info("[ORDER] [INFO] order created",
		zap.String("orderNumber", order.OrderNumber),
		zap.Int("items", len(order.Items)),
		zap.Float64("totalAmount", order.TotalAmount),
	)
	s.publish(ctx, newEvent(EventOrderCreated, order, "", nil, now))
	return order, nil
}

// recordStranded stores a checkout whose rollback could not return every
// reservation as a cancelled order with a pending release, so a later cancel
// can finish the job.
func (s *Service) recordStranded(ctx context.Context, order models.Order, unreleased []string, now time.Time) {
	done := make([]string, 0, len(order.Items)+1)
	for _, key := range reservationKeys(order) {
		if !slices.Contains(unreleased, key) {
			done = append(done, key)
		}
	}
	order.Status = string(StatusCancelled)
	order.CancelReason = strandedReason
	order.StatusHistory = append(order.StatusHistory, models.StatusHistoryEntry{
		Status:    string(StatusCancelled),
		Note:      strandedReason,
		UpdatedAt: now,
	})
	order.Release = &models.ReleaseProgress{Pending: true, Done: done}

	if err := s.orders.Insert(ctx, &order); err != nil {
		s.logger.Error("[ORDER] CRITICAL: unreleased reservations could not be recorded",
			zap.String("orderNumber", order.OrderNumber),
			zap.Strings("unreleased", unreleased),
			zap.Error(err),
		)
		return
	}
	s.logger.Warn("[ORDER] [WARN] checkout recorded with pending release",
		zap.String("orderNumber", order.OrderNumber),
		zap.Strings("unreleased", unreleased),
	)
}

func (s *Service) buildOrder(in CreateOrderInput, now time.Time) models.Order {
	items := make([]models.OrderItem, len(in.Items))
	for i, item := range in.Items {
		item.ProductName = strings.TrimSpace(item.ProductName)
		item.SKU = strings.TrimSpace(item.SKU)
		if !s.strictTotals && item.Subtotal == 0 {
			item.Subtotal = lineSubtotal(item)
		}
		items[i] = item
	}

	return models.Order{
		ID:                    primitive.NewObjectID(),
		OrderNumber:           s.newNumber(now),
		UserID:                in.UserID,
		Customer:              trimCustomer(in.Customer),
		ShippingAddress:       trimAddress(in.ShippingAddress),
		Items:                 items,
		Subtotal:              in.Subtotal,
		ShippingFee:           in.ShippingFee,
		Discount:              in.Discount,
		VoucherCode:           strings.TrimSpace(in.VoucherCode),
		LoyaltyPointsUsed:     in.LoyaltyPointsUsed,
		LoyaltyPointsDiscount: in.LoyaltyPointsDiscount,
		TotalAmount:           in.TotalAmount,
		PaymentMethod:         in.PaymentMethod,
		PaymentStatus:         string(PaymentPending),
		Status:                string(StatusPending),
		StatusHistory: []models.StatusHistoryEntry{{
			Status:    string(StatusPending),
			Note:      createdNote,
			UpdatedAt: now,
		}},
		Note:      cleanText(in.Note),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *Service) Get(ctx context.Context, id primitive.ObjectID) (models.Order, error) {
	return s.orders.FindByID(ctx, id)
}

func (s *Service) GetByNumber(ctx context.Context, orderNumber string) (models.Order, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return models.Order{}, validationError("order number is required")
	}
	return s.orders.FindByNumber(ctx, orderNumber)
}

// List returns one page of orders and the total number of matches.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]models.Order, int64, ListFilter, error) {
	filter, err := normalizeFilter(filter)
	if err != nil {
		return nil, 0, filter, err
	}
	orders, total, err := s.orders.List(ctx, filter)
	return orders, total, filter, err
}

// UpdateStatus moves an order along the fulfillment path. Requests for
// cancelled are handed to Cancel so stock and points are returned.
func (s *Service) UpdateStatus(ctx context.Context, id primitive.ObjectID, status, note string, updatedBy *primitive.ObjectID) (order models.Order, err error) {
	ctx, span := s.tracer.Start(ctx, "orders.UpdateStatus",
		trace.WithAttributes(attribute.String("order.id", id.Hex()), attribute.String("order.status", status)))
	defer func() { endSpan(span, err) }()

	target := Status(strings.TrimSpace(status))
	if !target.Valid() {
		return models.Order{}, validationError("invalid status %q, must be one of %s",
			status, strings.Join(statusStrings(append(slices.Clone(fulfillment), StatusCancelled)), ", "))
	}
	if target == StatusCancelled {
		return s.Cancel(ctx, CancelInput{OrderID: id, ActorID: updatedBy, Reason: note})
	}

	current, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return models.Order{}, err
	}
	from := Status(current.Status)
	if from.Terminal() {
		return models.Order{}, fmt.Errorf("%w: cannot update a closed order (status %s)", ErrInvalidState, from)
	}
	if !CanTransition(from, target) {
		return models.Order{}, fmt.Errorf("%w: cannot move order from %s back to %s", ErrInvalidState, from, target)
	}

	note = cleanText(note)
	if note == "" {
		note = "order status updated to " + string(target)
	}
	now := s.now()
	order, err = s.orders.ApplyTransition(ctx, id, Transition{
		From: []string{string(from)},
		To:   string(target),
		Entry: models.StatusHistoryEntry{
			Status:    string(target),
			Note:      note,
			UpdatedBy: updatedBy,
			UpdatedAt: now,
		},
		At: now,
	})
	if err != nil {
		return models.Order{}, err
	}

	s.logger.Info("[ORDER] [INFO] status updated",
		zap.String("orderNumber", order.OrderNumber),
		zap.String("from", string(from)),
		zap.String("to", string(target)),
	)
	s.publish(ctx, newEvent(EventOrderStatusChanged, order, string(from), updatedBy, now))
	return order, nil
}

// Cancel closes a pending or confirmed order and reverses exactly the stock
// and loyalty adjustments made when it was created.
func (s *Service) Cancel(ctx context.Context, in CancelInput) (order models.Order, err error) {
	ctx, span := s.tracer.Start(ctx, "orders.Cancel",
		trace.WithAttributes(attribute.String("order.id", in.OrderID.Hex())))
	defer func() { endSpan(span, err) }()

	current, err := s.orders.FindByID(ctx, in.OrderID)
	if err != nil {
		return models.Order{}, err
	}
	if in.RequesterID != nil && current.UserID != nil && *in.RequesterID != *current.UserID {
		return models.Order{}, fmt.Errorf("%w: you can only cancel your own orders", ErrForbidden)
	}
	if current.Release != nil && current.Release.Pending {
		return s.resumeRelease(ctx, current)
	}
	from := Status(current.Status)
	if !from.Cancellable() {
		return models.Order{}, fmt.Errorf("%w: cannot cancel an order with status %s", ErrInvalidState, from)
	}

	reason := cleanText(in.Reason)
	if reason == "" {
		reason = defaultCancelReason
	}
	updatedBy := in.ActorID
	if updatedBy == nil {
		updatedBy = in.RequesterID
	}
	now := s.now()

	err = s.uow.Do(ctx, func(ctx context.Context) error {
		cancelled, err := s.orders.ApplyTransition(ctx, in.OrderID, Transition{
			From: statusStrings(cancellableStatuses),
			To:   string(StatusCancelled),
			Entry: models.StatusHistoryEntry{
				Status:    string(StatusCancelled),
				Note:      reason,
				UpdatedBy: updatedBy,
				UpdatedAt: now,
			},
			CancelReason: reason,
			Release:      &models.ReleaseProgress{Done: []string{}},
			At:           now,
		})
		if err != nil {
			return err
		}
		order, err = s.releaseReservations(context.WithoutCancel(ctx), cancelled)
		return err
	})
	if err != nil {
		return models.Order{}, err
	}

	s.logger.Info("[ORDER] [INFO] order cancelled",
		zap.String("orderNumber", order.OrderNumber),
		zap.String("from", string(from)),
		zap.String("reason", reason),
	)
	s.publish(ctx, newEvent(EventOrderCancelled, order, string(from), updatedBy, now))
	return order, nil
}

// resumeRelease finishes returning the reservations of a cancelled order
// whose earlier release stopped part way.
func (s *Service) resumeRelease(ctx context.Context, current models.Order) (order models.Order, err error) {
	err = s.uow.Do(ctx, func(ctx context.Context) error {
		order, err = s.releaseReservations(context.WithoutCancel(ctx), current)
		return err
	})
	if err != nil {
		return models.Order{}, err
	}
	s.logger.Info("[ORDER] [INFO] pending release completed", zap.String("orderNumber", order.OrderNumber))
	return order, nil
}

// releaseReservations returns stock and loyalty points held by the order.
// Each reservation is claimed on the order before it is returned, so retries
// and concurrent callers release it at most once. A failed attempt marks the
// release pending for the next cancel. Products or accounts deleted since
// creation are skipped.
func (s *Service) releaseReservations(ctx context.Context, order models.Order) (models.Order, error) {
	var errs []error
	for i, item := range order.Items {
		err := s.releaseOnce(ctx, order, lineKey(i), func() error {
			err := s.catalog.ReleaseStock(ctx, item.ProductID, item.VariantID, item.Quantity)
			if errors.Is(err, ErrNotFound) {
				s.logger.Warn("[ORDER] [WARN] variant missing, stock not restored",
					zap.String("orderNumber", order.OrderNumber),
					zap.String("productId", item.ProductID.Hex()),
					zap.String("variantId", item.VariantID.Hex()),
				)
				return nil
			}
			return err
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("release stock %s: %w", item.SKU, err))
		}
	}

	if order.UserID != nil && order.LoyaltyPointsUsed > 0 {
		err := s.releaseOnce(ctx, order, pointsKey, func() error {
			err := s.accounts.CreditLoyaltyPoints(ctx, *order.UserID, order.LoyaltyPointsUsed)
			if errors.Is(err, ErrNotFound) {
				s.logger.Warn("[ORDER] [WARN] account missing, loyalty points not restored",
					zap.String("orderNumber", order.OrderNumber),
					zap.String("userId", order.UserID.Hex()),
				)
				return nil
			}
			return err
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("credit loyalty points: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		s.logger.Error("[ORDER] CRITICAL: cancellation left reservations unreleased",
			zap.String("orderNumber", order.OrderNumber),
			zap.Error(err),
		)
		if _, markErr := s.orders.SetReleasePending(ctx, order.ID, true, s.now()); markErr != nil {
			err = errors.Join(err, fmt.Errorf("mark release pending: %w", markErr))
		}
		return models.Order{}, err
	}
	if order.Release != nil && !order.Release.Pending {
		return s.orders.FindByID(ctx, order.ID)
	}
	return s.orders.SetReleasePending(ctx, order.ID, false, s.now())
}

func (s *Service) releaseOnce(ctx context.Context, order models.Order, key string, release func() error) error {
	claimed, err := s.orders.ClaimRelease(ctx, order.ID, key)
	if err != nil || !claimed {
		return err
	}
	if err := release(); err != nil {
		if unclaimErr := s.orders.UnclaimRelease(ctx, order.ID, key); unclaimErr != nil {
			s.logger.Error("[ORDER] CRITICAL: release claim could not be dropped",
				zap.String("orderNumber", order.OrderNumber),
				zap.String("key", key),
				zap.Error(unclaimErr),
			)
		}
		return err
	}
	return nil
}

func lineKey(i int) string {
	return "line:" + strconv.Itoa(i)
}

func reservationKeys(order models.Order) []string {
	keys := make([]string, 0, len(order.Items)+1)
	for i := range order.Items {
		keys = append(keys, lineKey(i))
	}
	if order.UserID != nil && order.LoyaltyPointsUsed > 0 {
		keys = append(keys, pointsKey)
	}
	return keys
}

// UpdatePaymentStatus records the payment outcome and stamps paidAt the first
// time the order becomes paid.
func (s *Service) UpdatePaymentStatus(ctx context.Context, id primitive.ObjectID, status string, actor *primitive.ObjectID) (order models.Order, err error) {
	ctx, span := s.tracer.Start(ctx, "orders.UpdatePaymentStatus",
		trace.WithAttributes(attribute.String("order.id", id.Hex()), attribute.String("order.payment_status", status)))
	defer func() { endSpan(span, err) }()

	target := PaymentStatus(strings.TrimSpace(status))
	if !target.Valid() {
		return models.Order{}, validationError("invalid payment status %q, must be one of pending, paid, failed", status)
	}

	current, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return models.Order{}, err
	}

	now := s.now()
	paidAt := current.PaidAt
	if target == PaymentPaid && current.PaymentStatus != string(PaymentPaid) {
		paidAt = &now
	}
	order, err = s.orders.SetPaymentStatus(ctx, id, string(target), paidAt, now)
	if err != nil {
		return models.Order{}, err
	}

	s.logger.Info("[ORDER] [INFO] payment status updated",
		zap.String("orderNumber", order.OrderNumber),
		zap.String("from", current.PaymentStatus),
		zap.String("to", string(target)),
	)
	event := newEvent(EventPaymentUpdated, order, order.Status, actor, now)
	event.Metadata = map[string]any{"previousPaymentStatus": current.PaymentStatus}
	s.publish(ctx, event)
	return order, nil
}

// UpdateShipping merges carrier details into the order. Empty fields keep
// their stored value.
func (s *Service) UpdateShipping(ctx context.Context, id primitive.ObjectID, in ShippingUpdate) (models.Order, error) {
	carrier := strings.TrimSpace(in.Carrier)
	if carrier != "" && !Carrier(carrier).Valid() {
		return models.Order{}, validationError("invalid carrier %q, must be one of GHN, GHTK, ViettelPost, Other", in.Carrier)
	}

	current, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return models.Order{}, err
	}
	if current.Status == string(StatusCancelled) {
		return models.Order{}, fmt.Errorf("%w: cannot ship a cancelled order", ErrInvalidState)
	}

	shipping := models.ShippingInfo{}
	if current.Shipping != nil {
		shipping = *current.Shipping
	}
	if carrier != "" {
		shipping.Carrier = carrier
	}
	if tracking := strings.TrimSpace(in.TrackingNumber); tracking != "" {
		shipping.TrackingNumber = tracking
	}
	if in.EstimatedDeliveryDate != nil {
		eta := in.EstimatedDeliveryDate.UTC()
		shipping.EstimatedDeliveryDate = &eta
	}
	return s.orders.SetShipping(ctx, id, shipping, s.now())
}

// Delete removes a closed order. Open orders still hold stock and must be
// cancelled first.
func (s *Service) Delete(ctx context.Context, id primitive.ObjectID) error {
	current, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !Status(current.Status).Terminal() {
		return fmt.Errorf("%w: only delivered or cancelled orders can be deleted", ErrInvalidState)
	}
	if current.Release != nil && current.Release.Pending {
		return fmt.Errorf("%w: order still holds unreleased stock or points", ErrInvalidState)
	}
	if err := s.orders.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("[ORDER] [INFO] order deleted", zap.String("orderNumber", current.OrderNumber))
	return nil
}

func (s *Service) publish(ctx context.Context, event Event) {
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("[ORDER] [WARN] event publish failed",
			zap.String("type", event.Type),
			zap.String("orderNumber", event.OrderNumber),
			zap.Error(err),
		)
	}
}

func newEvent(kind string, order models.Order, previous string, actor *primitive.ObjectID, at time.Time) Event {
	event := Event{
		Type:           kind,
		OrderID:        order.ID.Hex(),
		OrderNumber:    order.OrderNumber,
		PreviousStatus: previous,
		CurrentStatus:  order.Status,
		PaymentStatus:  order.PaymentStatus,
		OccurredAt:     at,
	}
	if order.UserID != nil {
		event.UserID = order.UserID.Hex()
	}
	if actor != nil {
		event.ActorID = actor.Hex()
	}
	return event
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func normalizeFilter(f ListFilter) (ListFilter, error) {
	if f.Page < 1 {
		f.Page = defaultPage
	}
	if f.Limit < 1 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	if f.SortBy == "" {
		f.SortBy = "createdAt"
	}
	if !sortableFields[f.SortBy] {
		return f, validationError("cannot sort by %q", f.SortBy)
	}
	if f.Status != "" && !Status(f.Status).Valid() {
		return f, validationError("invalid status filter %q", f.Status)
	}
	if f.PaymentStatus != "" && !PaymentStatus(f.PaymentStatus).Valid() {
		return f, validationError("invalid payment status filter %q", f.PaymentStatus)
	}
	if f.PaymentMethod != "" && !PaymentMethod(f.PaymentMethod).Valid() {
		return f, validationError("invalid payment method filter %q", f.PaymentMethod)
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return f, validationError("endDate must not be before startDate")
	}
	f.Search = strings.TrimSpace(f.Search)
	return f, nil
}
