package views

import (
	"time"

	"github.com/nimeshabuddhika/shopsphere-orders/pkg"
)

type OrderEventType string

const (
	OrderEventCreated            OrderEventType = "ORDER_CREATED"
	OrderEventChargeUnreconciled OrderEventType = "CHARGE_UNRECONCILED"
)

// OrderEvent is the payload published to the order events topic.
// OrderID is zero for CHARGE_UNRECONCILED: the charge went through but no order row exists.
type OrderEvent struct {
	Type           OrderEventType  `json:"type" validate:"required,oneof=ORDER_CREATED CHARGE_UNRECONCILED"`
	OrderID        int64           `json:"orderId,omitempty" validate:"min=0"`
	UserID         int64           `json:"userId" validate:"gt=0"`
	Total          int64           `json:"total" validate:"min=0"`
	Status         pkg.OrderStatus `json:"status,omitempty"`
	IdempotencyKey string          `json:"idempotencyKey" validate:"required,uuid"`
	TransactionID  string          `json:"transactionId,omitempty"`
	TraceID        string          `json:"traceId"`
	OccurredAt     time.Time       `json:"occurredAt" validate:"required"`
}
