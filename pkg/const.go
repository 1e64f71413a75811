package pkg

const (
	HeaderTraceId        string = "X-Trace-Id"
	HeaderRequestId      string = "X-Request-Id"
	HeaderUserId         string = "X-User-Id"
	HeaderIdempotencyKey string = "Idempotency-Key"
)

const (
	TraceId        string = "trace_id"
	RequestId      string = "request_id"
	UserId         string = "user_id"
	OrderId        string = "order_id"
	IdempotencyKey string = "idempotency_key"
	TransactionId  string = "transaction_id"
)

type OrderStatus string

const (
	OrderStatusPaid   OrderStatus = "PAID"
	OrderStatusFailed OrderStatus = "FAILED"
)

// PaymentStatusSuccess is the only settlement status that marks an order as paid.
const PaymentStatusSuccess = "SUCCESS"

// OrderStatusFromSettlement maps a payment settlement status to the persisted order status.
func OrderStatusFromSettlement(status string) OrderStatus {
	if status == PaymentStatusSuccess {
		return OrderStatusPaid
	}
	return OrderStatusFailed
}
