package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg"
	middleware "github.com/nimeshabuddhika/shopsphere-orders/pkg/middlewares"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeOrderService struct {
	order     models.Order
	summaries []models.OrderSummary
	err       error
	gotUser   int64
	gotTrace  string
}

func (f *fakeOrderService) CreateOrder(_ context.Context, traceID string, userID int64) (models.Order, error) {
	f.gotTrace, f.gotUser = traceID, userID
	return f.order, f.err
}

func (f *fakeOrderService) ListOrders(_ context.Context, traceID string, userID int64) ([]models.OrderSummary, error) {
	f.gotTrace, f.gotUser = traceID, userID
	return f.summaries, f.err
}

func newRouter(svc *fakeOrderService, createMiddlewares ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	r := gin.New()
	api := r.Group("/api/v1")
	api.Use(middleware.TraceID(), middleware.RequireUser(logger))
	NewOrderHandler(logger, svc).RegisterRoutes(api, createMiddlewares...)
	NewBaseHandler(logger).RegisterRoutes(r)
	return r
}

func serve(r http.Handler, method, path, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set(pkg.HeaderTraceId, "trace-123")
	if userID != "" {
		req.Header.Set(pkg.HeaderUserId, userID)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateOrder_Created(t *testing.T) {
	createdAt := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := &fakeOrderService{order: models.Order{
		ID:        42,
		UserID:    7,
		Total:     143000,
		Status:    pkg.OrderStatusPaid,
		CreatedAt: createdAt,
		Items: []models.OrderItem{
			{ProductID: 1, Name: "Laptop", Quantity: 2, Price: 70000},
			{ProductID: 2, Name: "Headphones", Quantity: 1, Price: 3000},
		},
		Payment: json.RawMessage(`{"status":"SUCCESS","transactionId":"tx_1"}`),
	}}

	w := serve(newRouter(svc), http.MethodPost, "/api/v1/orders", "7")

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "trace-123", w.Header().Get(pkg.HeaderTraceId))
	assert.Equal(t, int64(7), svc.gotUser)
	assert.Equal(t, "trace-123", svc.gotTrace)
	assert.JSONEq(t, `{
		"id": 42,
		"userId": 7,
		"items": [
			{"productId": 1, "name": "Laptop", "quantity": 2, "price": 70000},
			{"productId": 2, "name": "Headphones", "quantity": 1, "price": 3000}
		],
		"total": 143000,
		"status": "PAID",
		"createdAt": "2025-03-01T10:00:00Z",
		"payment": {"status": "SUCCESS", "transactionId": "tx_1"}
	}`, w.Body.String())
}

func TestCreateOrder_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"empty cart", pkg.NewAppError(pkg.ErrEmptyCartCode, pkg.ErrEmptyCartCode.Message, nil), http.StatusBadRequest, "ORDER_EMPTY_CART"},
		{"step failure", pkg.NewAppError(pkg.ErrOrderCreationCode, pkg.ErrOrderCreationCode.Message, errors.New("payment down")), http.StatusInternalServerError, "APP_INTERNAL"},
		{"checkout in progress", pkg.NewAppError(pkg.ErrCheckoutInProgressCode, pkg.ErrCheckoutInProgressCode.Message, nil), http.StatusConflict, "ORDER_CHECKOUT_IN_PROGRESS"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "APP_INTERNAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(newRouter(&fakeOrderService{err: tt.err}), http.MethodPost, "/api/v1/orders", "7")

			assert.Equal(t, tt.status, w.Code)
			var body pkg.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Code)
		})
	}
}

func TestCreateOrder_RequiresUser(t *testing.T) {
	svc := &fakeOrderService{}
	r := newRouter(svc)

	w := serve(r, http.MethodPost, "/api/v1/orders", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(r, http.MethodPost, "/api/v1/orders", "abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Zero(t, svc.gotUser)
}

func TestCreateOrder_ExtraMiddlewaresRunBeforeCreateOnly(t *testing.T) {
	reject := func(c *gin.Context) { c.AbortWithStatus(http.StatusTooManyRequests) }
	svc := &fakeOrderService{summaries: []models.OrderSummary{}}
	r := newRouter(svc, reject)

	assert.Equal(t, http.StatusTooManyRequests, serve(r, http.MethodPost, "/api/v1/orders", "7").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/api/v1/orders", "7").Code)
}

func TestListOrders(t *testing.T) {
	createdAt := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := &fakeOrderService{summaries: []models.OrderSummary{
		{ID: 2, Total: 3000, Status: pkg.OrderStatusFailed, CreatedAt: createdAt.Add(time.Minute)},
		{ID: 1, Total: 143000, Status: pkg.OrderStatusPaid, CreatedAt: createdAt},
	}}

	w := serve(newRouter(svc), http.MethodGet, "/api/v1/orders", "7")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(7), svc.gotUser)
	assert.JSONEq(t, `[
		{"id": 2, "total": 3000, "status": "FAILED", "createdAt": "2025-03-01T10:01:00Z"},
		{"id": 1, "total": 143000, "status": "PAID", "createdAt": "2025-03-01T10:00:00Z"}
	]`, w.Body.String())
}

func TestListOrders_EmptyIsArray(t *testing.T) {
	w := serve(newRouter(&fakeOrderService{}), http.MethodGet, "/api/v1/orders", "7")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestHealth(t *testing.T) {
	w := serve(newRouter(&fakeOrderService{}), http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","service":"order-service"}`, w.Body.String())
}
