package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg"
)

// Order maps to table `orders`. Payment is the raw settlement payload and is not persisted.
type Order struct {
	ID                   int64
	UserID               int64
	Total                int64
	Status               pkg.OrderStatus
	IdempotencyKey       uuid.UUID
	PaymentTransactionID string
	CreatedAt            time.Time
	Items                []OrderItem
	Payment              json.RawMessage
}

// OrderItem maps to table `order_items`: a frozen catalog snapshot at order time.
type OrderItem struct {
	ID        int64
	OrderID   int64
	ProductID int64
	Name      string
	Quantity  int
	Price     int64
}

// LineTotal is quantity × price.
func (i OrderItem) LineTotal() int64 {
	return int64(i.Quantity) * i.Price
}

// OrderSummary is the list projection of an order.
type OrderSummary struct {
	ID        int64
	Total     int64
	Status    pkg.OrderStatus
	CreatedAt time.Time
}

// SumItems returns Σ quantity × price over items.
func SumItems(items []OrderItem) int64 {
	var total int64
	for _, item := range items {
		total += item.LineTotal()
	}
	return total
}

// ErrAmountOverflow means a line or order total does not fit in int64.
var ErrAmountOverflow = errors.New("amount overflows int64")

// CheckedSum is SumItems without wraparound. Quantities and prices must be non-negative.
func CheckedSum(items []OrderItem) (int64, error) {
	var total int64
	for _, item := range items {
		if item.Quantity < 0 || item.Price < 0 {
			return 0, fmt.Errorf("product %d: negative quantity or price", item.ProductID)
		}
		if item.Quantity > 0 && item.Price > math.MaxInt64/int64(item.Quantity) {
			return 0, fmt.Errorf("%w: product %d line %d × %d", ErrAmountOverflow, item.ProductID, item.Quantity, item.Price)
		}
		line := item.LineTotal()
		if total > math.MaxInt64-line {
			return 0, fmt.Errorf("%w: order total at product %d", ErrAmountOverflow, item.ProductID)
		}
		total += line
	}
	return total, nil
}

type ReconciliationStatus string

const (
	ReconciliationPending  ReconciliationStatus = "PENDING"
	ReconciliationRefunded ReconciliationStatus = "REFUNDED"
	ReconciliationResolved ReconciliationStatus = "RESOLVED"
)

// ChargeReconciliation maps to table `charge_reconciliations`: a settled charge with no order behind it.
type ChargeReconciliation struct {
	ID             int64
	IdempotencyKey uuid.UUID
	UserID         int64
	Amount         int64
	TransactionID  string
	TraceID        string
	Status         ReconciliationStatus
	ChargedAt      time.Time
	CreatedAt      time.Time
}
