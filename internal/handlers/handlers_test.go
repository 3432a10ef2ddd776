package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"shoestore/internal/idempotency"
	"shoestore/internal/middleware"
	"shoestore/internal/models"
	"shoestore/internal/orders"
	"shoestore/internal/orders/memstore"
)

const testSecret = "handlers-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router   *gin.Engine
	catalog  *memstore.Catalog
	accounts *memstore.Accounts

	product primitive.ObjectID
	variant primitive.ObjectID

	customer      models.User
	customerToken string
	adminToken    string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	s := &testServer{
		product: primitive.NewObjectID(),
		variant: primitive.NewObjectID(),
	}
	s.catalog = memstore.NewCatalog(models.Product{
		ID:       s.product,
		Name:     "Runner 42",
		Slug:     "runner-42",
		Price:    100,
		Variants: []models.Variant{{ID: s.variant, Color: "black", Size: 42, Stock: 5, SKU: "X-42"}},
		IsActive: true,
	})

	now := time.Now()
	s.customer = models.User{ID: primitive.NewObjectID(), Email: "c@example.com", Role: models.RoleCustomer, LoyaltyPoints: 200}
	admin := models.User{ID: primitive.NewObjectID(), Email: "a@example.com", Role: models.RoleAdmin}

	var err error
	s.customerToken, err = middleware.IssueToken(testSecret, s.customer.ID, s.customer.Role, time.Hour, now)
	require.NoError(t, err)
	s.adminToken, err = middleware.IssueToken(testSecret, admin.ID, admin.Role, time.Hour, now)
	require.NoError(t, err)
	s.customer.Token = s.customerToken
	admin.Token = s.adminToken
	s.accounts = memstore.NewAccounts(s.customer, admin)

	var seq atomic.Int64
	svc := orders.NewService(orders.Deps{
		Orders:     memstore.NewOrders(),
		Catalog:    s.catalog,
		Accounts:   s.accounts,
		UnitOfWork: orders.DirectUnitOfWork{},
		NewOrderNumber: func(time.Time) string {
			return fmt.Sprintf("ORD%04d", seq.Add(1))
		},
		StrictTotals: true,
	})

	env := &Env{
		Orders:         svc,
		Users:          s.accounts,
		Products:       s.catalog,
		Logger:         zap.NewNop(),
		JWTSecret:      testSecret,
		AccessTokenTTL: time.Hour,
	}
	auth := middleware.NewAuthenticator(testSecret, s.accounts, zap.NewNop())

	s.router = gin.New()
	RegisterRoutes(s.router.Group("/api/v1"), env, auth,
		middleware.Idempotency(idempotency.NewMemoryStore(), time.Hour, zap.NewNop()))
	return s
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type errorData struct {
	Message string         `json:"message"`
	Code    string         `json:"code"`
	Error   map[string]any `json:"error"`
}

type orderData struct {
	Message string       `json:"message"`
	Order   models.Order `json:"order"`
}

func (s *testServer) do(t *testing.T, method, path, token string, body any, headers ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	assert.Equal(t, w.Code, env.Status)
	return w, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func (s *testServer) orderBody(quantity int) map[string]any {
	price := 100.0
	subtotal := price * float64(quantity)
	return map[string]any{
		"customer": map[string]any{"name": "Lan", "email": "lan@example.com", "phone": "0900000000"},
		"shippingAddress": map[string]any{
			"recipientName": "Lan", "phone": "0900000000", "address": "1 Le Loi",
			"ward": "Ben Nghe", "district": "1", "city": "HCMC",
		},
		"items": []map[string]any{{
			"productId":   s.product.Hex(),
			"variantId":   s.variant.Hex(),
			"productName": "Runner 42",
			"sku":         "X-42",
			"color":       "black",
			"size":        42,
			"price":       price,
			"quantity":    quantity,
			"subtotal":    subtotal,
		}},
		"subtotal":      subtotal,
		"shippingFee":   30,
		"totalAmount":   subtotal + 30,
		"paymentMethod": "cod",
	}
}

func TestCreateOrderForSignedInCustomer(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(t, http.MethodPost, "/api/v1/orders", s.customerToken, s.orderBody(2))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	data := decode[orderData](t, env.Data)
	assert.Equal(t, "Order created successfully", data.Message)
	assert.Equal(t, "ORD0001", data.Order.OrderNumber)
	require.NotNil(t, data.Order.UserID)
	assert.Equal(t, s.customer.ID, *data.Order.UserID)
	assert.Equal(t, "pending", data.Order.Status)
	assert.Equal(t, 3, s.catalog.Stock(s.product, s.variant))
}

func TestCreateOrderBodyUserIDIsOverriddenByToken(t *testing.T) {
	s := newTestServer(t)

	body := s.orderBody(1)
	body["userId"] = primitive.NewObjectID().Hex()
	w, env := s.do(t, http.MethodPost, "/api/v1/orders", s.customerToken, body)
	require.Equal(t, http.StatusOK, w.Code)

	data := decode[orderData](t, env.Data)
	require.NotNil(t, data.Order.UserID)
	assert.Equal(t, s.customer.ID, *data.Order.UserID)
}

func TestCreateOrderAnonymousCannotSpendPoints(t *testing.T) {
	s := newTestServer(t)

	body := s.orderBody(1)
	body["userId"] = s.customer.ID.Hex()
	body["loyaltyPointsUsed"] = 100
	body["loyaltyPointsDiscount"] = 10
	body["totalAmount"] = 120
	w, env := s.do(t, http.MethodPost, "/api/v1/orders", "", body)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", decode[errorData](t, env.Data).Code)
	assert.Equal(t, 200, s.accounts.LoyaltyPoints(s.customer.ID))
	assert.Equal(t, 5, s.catalog.Stock(s.product, s.variant))
}

func TestCreateOrderValidation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		mutate func(map[string]any)
		want   string
	}{
		{
			name:   "missing items",
			mutate: func(b map[string]any) { b["items"] = []map[string]any{} },
			want:   "items must be at least 1",
		},
		{
			name:   "bad payment method",
			mutate: func(b map[string]any) { b["paymentMethod"] = "cash" },
			want:   "paymentMethod must be one of cod momo zalopay banking",
		},
		{
			name:   "bad product id",
			mutate: func(b map[string]any) { b["items"].([]map[string]any)[0]["productId"] = "nope" },
			want:   "invalid items[0].productId",
		},
		{
			name:   "missing color",
			mutate: func(b map[string]any) { delete(b["items"].([]map[string]any)[0], "color") },
			want:   "items[0].color is required",
		},
		{
			name:   "missing size",
			mutate: func(b map[string]any) { delete(b["items"].([]map[string]any)[0], "size") },
			want:   "items[0].size is required",
		},
		{
			name:   "totals do not add up",
			mutate: func(b map[string]any) { b["totalAmount"] = 1 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := s.orderBody(1)
			tt.mutate(body)
			w, env := s.do(t, http.MethodPost, "/api/v1/orders", "", body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			data := decode[errorData](t, env.Data)
			assert.Equal(t, "VALIDATION_ERROR", data.Code)
			if tt.want != "" {
				assert.Contains(t, data.Message, tt.want)
			}
		})
	}
	assert.Equal(t, 5, s.catalog.Stock(s.product, s.variant))
}

func TestCreateOrderOutOfStockCarriesDetails(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(t, http.MethodPost, "/api/v1/orders", "", s.orderBody(6))
	require.Equal(t, http.StatusConflict, w.Code)

	data := decode[errorData](t, env.Data)
	assert.Equal(t, "INSUFFICIENT_STOCK", data.Code)
	assert.Equal(t, s.variant.Hex(), data.Error["variantId"])
	assert.EqualValues(t, 5, data.Error["available"])
	assert.EqualValues(t, 6, data.Error["requested"])
}

func TestCreateOrderIdempotencyKeyReplays(t *testing.T) {
	s := newTestServer(t)
	body := s.orderBody(1)

	first, firstEnv := s.do(t, http.MethodPost, "/api/v1/orders", s.customerToken, body, "Idempotency-Key", "checkout-1")
	require.Equal(t, http.StatusOK, first.Code)
	second, secondEnv := s.do(t, http.MethodPost, "/api/v1/orders", s.customerToken, body, "Idempotency-Key", "checkout-1")
	require.Equal(t, http.StatusOK, second.Code)

	assert.Equal(t, "true", second.Header().Get("X-Idempotent-Replay"))
	assert.Equal(t,
		decode[orderData](t, firstEnv.Data).Order.OrderNumber,
		decode[orderData](t, secondEnv.Data).Order.OrderNumber)
	assert.Equal(t, 4, s.catalog.Stock(s.product, s.variant))
}

func (s *testServer) placeOrder(t *testing.T, token string) models.Order {
	t.Helper()
	w, env := s.do(t, http.MethodPost, "/api/v1/orders", token, s.orderBody(2))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[orderData](t, env.Data).Order
}

func TestCancelOrderReleasesStock(t *testing.T) {
	s := newTestServer(t)
	order := s.placeOrder(t, s.customerToken)
	require.Equal(t, 3, s.catalog.Stock(s.product, s.variant))

	path := "/api/v1/orders/" + order.ID.Hex() + "/cancel"
	w, env := s.do(t, http.MethodPut, path, s.customerToken, map[string]any{"cancelReason": "changed my mind"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	cancelled := decode[orderData](t, env.Data).Order
	assert.Equal(t, "cancelled", cancelled.Status)
	assert.Equal(t, "changed my mind", cancelled.CancelReason)
	assert.Equal(t, 5, s.catalog.Stock(s.product, s.variant))

	w, env = s.do(t, http.MethodPut, path, s.customerToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_STATE", decode[errorData](t, env.Data).Code)
	assert.Equal(t, 5, s.catalog.Stock(s.product, s.variant))
}

func TestCancelOrderOfAnotherCustomerIsForbidden(t *testing.T) {
	s := newTestServer(t)
	order := s.placeOrder(t, s.customerToken)

	stranger := models.User{ID: primitive.NewObjectID(), Email: "s@example.com", Role: models.RoleCustomer}
	token, err := middleware.IssueToken(testSecret, stranger.ID, stranger.Role, time.Hour, time.Now())
	require.NoError(t, err)
	stranger.Token = token
	require.NoError(t, s.accounts.CreateUser(context.Background(), &stranger))

	w, env := s.do(t, http.MethodPut, "/api/v1/orders/"+order.ID.Hex()+"/cancel", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", decode[errorData](t, env.Data).Code)
	assert.Equal(t, 3, s.catalog.Stock(s.product, s.variant))
}

func TestAdminStatusFlow(t *testing.T) {
	s := newTestServer(t)
	order := s.placeOrder(t, "")
	base := "/api/v1/admin/orders/" + order.ID.Hex()

	w, _ := s.do(t, http.MethodPut, base+"/status", s.customerToken, map[string]any{"status": "confirmed"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env := s.do(t, http.MethodPut, base+"/status", s.adminToken, map[string]any{"status": "shipping", "note": "<b>handed over</b>"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[orderData](t, env.Data).Order
	assert.Equal(t, "shipping", updated.Status)
	require.Len(t, updated.StatusHistory, 2)
	assert.Equal(t, "handed over", updated.StatusHistory[1].Note)

	w, env = s.do(t, http.MethodPut, base+"/status", s.adminToken, map[string]any{"status": "confirmed"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_STATE", decode[errorData](t, env.Data).Code)

	w, env = s.do(t, http.MethodPut, base+"/status", s.adminToken, map[string]any{"status": "lost"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode[errorData](t, env.Data).Code)

	w, env = s.do(t, http.MethodPut, base+"/payment-status", s.adminToken, map[string]any{"paymentStatus": "paid"})
	require.Equal(t, http.StatusOK, w.Code)
	paid := decode[orderData](t, env.Data).Order
	assert.Equal(t, "paid", paid.PaymentStatus)
	assert.NotNil(t, paid.PaidAt)

	w, env = s.do(t, http.MethodPut, base+"/shipping", s.adminToken, map[string]any{"carrier": "GHN", "trackingNumber": "GHN123"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	shipped := decode[orderData](t, env.Data).Order
	assert.Equal(t, "GHN", shipped.Shipping.Carrier)
	assert.Equal(t, "GHN123", shipped.Shipping.TrackingNumber)
}

func TestAdminCancelThroughStatusReleasesStock(t *testing.T) {
	s := newTestServer(t)
	order := s.placeOrder(t, s.customerToken)

	w, env := s.do(t, http.MethodPut, "/api/v1/admin/orders/"+order.ID.Hex()+"/status", s.adminToken,
		map[string]any{"status": "cancelled", "note": "fraud"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "cancelled", decode[orderData](t, env.Data).Order.Status)
	assert.Equal(t, 5, s.catalog.Stock(s.product, s.variant))
}

func TestOrderLookups(t *testing.T) {
	s := newTestServer(t)
	order := s.placeOrder(t, s.customerToken)
	s.placeOrder(t, "")

	w, env := s.do(t, http.MethodGet, "/api/v1/orders/number/"+order.OrderNumber, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, order.ID, decode[orderData](t, env.Data).Order.ID)

	w, env = s.do(t, http.MethodGet, "/api/v1/orders/"+primitive.NewObjectID().Hex(), "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decode[errorData](t, env.Data).Code)

	w, _ = s.do(t, http.MethodGet, "/api/v1/orders/not-an-id", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	type listData struct {
		Orders     []models.Order `json:"orders"`
		Pagination pagination     `json:"pagination"`
	}

	w, env = s.do(t, http.MethodGet, "/api/v1/orders/my_orders", s.customerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	mine := decode[listData](t, env.Data)
	require.Len(t, mine.Orders, 1)
	assert.Equal(t, order.ID, mine.Orders[0].ID)

	w, env = s.do(t, http.MethodGet, "/api/v1/admin/orders?limit=1&sortBy=createdAt&order=asc", s.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	all := decode[listData](t, env.Data)
	assert.Len(t, all.Orders, 1)
	assert.Equal(t, pagination{Page: 1, Limit: 1, Total: 2, TotalPages: 2}, all.Pagination)

	w, _ = s.do(t, http.MethodGet, "/api/v1/admin/orders?page=0", s.adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminDeleteOnlyTerminalOrders(t *testing.T) {
	s := newTestServer(t)
	order := s.placeOrder(t, "")
	path := "/api/v1/admin/orders/" + order.ID.Hex()

	w, _ := s.do(t, http.MethodDelete, path, s.adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodPut, "/api/v1/orders/"+order.ID.Hex()+"/cancel", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodDelete, path, s.adminToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodGet, "/api/v1/orders/"+order.ID.Hex(), "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRegisterLoginLogout(t *testing.T) {
	s := newTestServer(t)

	type authData struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}

	creds := map[string]any{"email": "New@Example.com", "password": "secret1", "fullName": "New User"}
	w, env := s.do(t, http.MethodPost, "/api/v1/auth/register", "", creds)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	registered := decode[authData](t, env.Data)
	assert.Equal(t, "new@example.com", registered.User.Email)
	assert.Equal(t, models.RoleCustomer, registered.User.Role)

	w, env = s.do(t, http.MethodPost, "/api/v1/auth/register", "", creds)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CONFLICT", decode[errorData](t, env.Data).Code)

	w, _ = s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]any{"email": "new@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, env = s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]any{"email": "new@example.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, w.Code)
	token := decode[authData](t, env.Data).Token
	require.NotEmpty(t, token)

	w, env = s.do(t, http.MethodGet, "/api/v1/users/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, registered.User.ID, decode[struct {
		User models.User `json:"user"`
	}](t, env.Data).User.ID)

	w, _ = s.do(t, http.MethodPost, "/api/v1/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodGet, "/api/v1/users/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateAndGetProduct(t *testing.T) {
	s := newTestServer(t)

	body := map[string]any{
		"name":      "Trail Blazer X",
		"sku":       "TB-X",
		"price":     120,
		"salePrice": 99,
		"variants": []map[string]any{
			{"color": "red", "size": 41, "stock": 3, "sku": "TB-X-41"},
			{"color": "red", "size": 42, "stock": 4, "sku": "TB-X-42"},
		},
	}
	w, env := s.do(t, http.MethodPost, "/api/v1/admin/products", s.adminToken, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	type productData struct {
		Product productResponse `json:"product"`
	}
	created := decode[productData](t, env.Data).Product
	assert.Equal(t, "trail-blazer-x", created.Slug)
	assert.Equal(t, 7, created.TotalStock)
	assert.True(t, created.IsOnSale)
	assert.Equal(t, 99.0, created.EffectivePrice)

	w, env = s.do(t, http.MethodGet, "/api/v1/products/"+created.ID.Hex(), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, created.ID, decode[productData](t, env.Data).Product.ID)

	w, env = s.do(t, http.MethodPost, "/api/v1/admin/products", s.adminToken, body)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, decode[errorData](t, env.Data).Message, "slug trail-blazer-x")

	body["slug"] = "trail-blazer-y"
	w, env = s.do(t, http.MethodPost, "/api/v1/admin/products", s.adminToken, body)
	assert.Equal(t, http.StatusConflict, w.Code)
	conflict := decode[errorData](t, env.Data)
	assert.Equal(t, "CONFLICT", conflict.Code)
	assert.Contains(t, conflict.Message, "variant sku TB-X-41")

	body["slug"] = "other"
	body["salePrice"] = 150
	w, _ = s.do(t, http.MethodPost, "/api/v1/admin/products", s.adminToken, body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w, _ := s.do(t, http.MethodGet, "/api/v1/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
