package tests

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg/dtos"
)

// ChargeCall is one request the fake payment service received.
type ChargeCall struct {
	Amount         int64
	IdempotencyKey string
	TraceID        string
}

// FakeCollaborators serves the cart, catalog, payment and notification contracts from one
// httptest server so a checkout can run end to end without the real services.
type FakeCollaborators struct {
	mu            sync.Mutex
	carts         map[int64][]dtos.CartItemDto
	products      map[int64]dtos.ProductDto
	paymentStatus string
	paymentDown   bool
	cartDown      bool
	notifyDown    bool
	charges       []ChargeCall
	cartReads     int
	notifications []dtos.NotifyRequestDto

	server *httptest.Server
}

// NewFakeCollaborators starts the fake services; they stop when the test ends.
// The catalog is seeded with the ShopSphere demo products.
func NewFakeCollaborators(t *testing.T) *FakeCollaborators {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &FakeCollaborators{
		carts: make(map[int64][]dtos.CartItemDto),
		products: map[int64]dtos.ProductDto{
			1: {ID: 1, Name: "Laptop", Price: 70000, Stock: 10},
			2: {ID: 2, Name: "Headphones", Price: 3000, Stock: 25},
			3: {ID: 3, Name: "Smartphone", Price: 45000, Stock: 15},
		},
		paymentStatus: pkg.PaymentStatusSuccess,
	}

	r := gin.New()
	r.GET("/cart", f.getCart)
	r.GET("/products/:id", f.getProduct)
	r.POST("/payments", f.charge)
	r.POST("/notify", f.notify)
	f.server = httptest.NewServer(r)
	t.Cleanup(f.server.Close)
	return f
}

func (f *FakeCollaborators) URL() string { return f.server.URL }

func (f *FakeCollaborators) SetCart(userID int64, items ...dtos.CartItemDto) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.carts[userID] = items
}

func (f *FakeCollaborators) SetProduct(p dtos.ProductDto) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.products[p.ID] = p
}

func (f *FakeCollaborators) SetPaymentStatus(status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paymentStatus = status
}

func (f *FakeCollaborators) SetPaymentDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paymentDown = down
}

func (f *FakeCollaborators) SetCartDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cartDown = down
}

func (f *FakeCollaborators) SetNotifyDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifyDown = down
}

func (f *FakeCollaborators) Charges() []ChargeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ChargeCall(nil), f.charges...)
}

func (f *FakeCollaborators) Notifications() []dtos.NotifyRequestDto {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]dtos.NotifyRequestDto(nil), f.notifications...)
}

func (f *FakeCollaborators) CartReads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cartReads
}

func (f *FakeCollaborators) getCart(c *gin.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cartReads++
	if f.cartDown {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "DB error"})
		return
	}
	userID, err := strconv.ParseInt(c.GetHeader(pkg.HeaderUserId), 10, 64)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Missing user"})
		return
	}
	items := f.carts[userID]
	if items == nil {
		items = []dtos.CartItemDto{}
	}
	c.JSON(http.StatusOK, dtos.CartSnapshotDto{Items: items})
}

func (f *FakeCollaborators) getProduct(c *gin.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, _ := strconv.ParseInt(c.Param("id"), 10, 64)
	product, ok := f.products[id]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "Not found"})
		return
	}
	c.JSON(http.StatusOK, product)
}

func (f *FakeCollaborators) charge(c *gin.Context) {
	var req dtos.ChargeRequestDto
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.paymentDown {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "payment provider down"})
		return
	}
	f.charges = append(f.charges, ChargeCall{
		Amount:         req.Amount,
		IdempotencyKey: c.GetHeader(pkg.HeaderIdempotencyKey),
		TraceID:        c.GetHeader(pkg.HeaderTraceId),
	})
	c.JSON(http.StatusOK, dtos.ChargeResponseDto{
		Status:        f.paymentStatus,
		TransactionID: fmt.Sprintf("tx_%d", len(f.charges)),
	})
}

func (f *FakeCollaborators) notify(c *gin.Context) {
	var req dtos.NotifyRequestDto
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "userId and message required"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.notifyDown {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "DB error"})
		return
	}
	f.notifications = append(f.notifications, req)
	c.JSON(http.StatusCreated, gin.H{"status": "stored"})
}
