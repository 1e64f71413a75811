package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg/dtos"
)

// ChargeResult is the settlement outcome plus the raw payload the payment service returned.
type ChargeResult struct {
	dtos.ChargeResponseDto
	Raw json.RawMessage
}

// PaymentClient submits exactly one charge per call. It never retries.
type PaymentClient interface {
	Charge(ctx context.Context, traceID string, amount int64, idempotencyKey uuid.UUID) (ChargeResult, error)
}

type PaymentClientImpl struct {
	baseClient
}

func NewPaymentClient(baseURL string, httpClient *http.Client) PaymentClient {
	return &PaymentClientImpl{baseClient: newBaseClient("payment", baseURL, httpClient)}
}

// Charge calls POST /payments. Declines come back as a result, not an error; only transport
// failures, non-2xx answers and undecodable bodies yield ErrPaymentUnavailable.
func (c *PaymentClientImpl) Charge(ctx context.Context, traceID string, amount int64, idempotencyKey uuid.UUID) (ChargeResult, error) {
	var result ChargeResult

	headers := traceHeaders(traceID)
	headers[pkg.HeaderIdempotencyKey] = idempotencyKey.String()

	raw, err := c.do(ctx, http.MethodPost, "/payments", headers, dtos.ChargeRequestDto{Amount: amount})
	if err != nil {
		return result, fmt.Errorf("%w: %w", ErrPaymentUnavailable, err)
	}
	if err = json.Unmarshal(raw, &result.ChargeResponseDto); err != nil {
		return result, fmt.Errorf("%w: decode settlement: %w", ErrPaymentUnavailable, err)
	}
	result.Raw = json.RawMessage(raw)
	return result, nil
}
