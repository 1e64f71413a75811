package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/nimeshabuddhika/shopsphere-orders/pkg"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg/dtos"
)

// CartClient reads a point-in-time snapshot of a user's cart.
type CartClient interface {
	GetSnapshot(ctx context.Context, traceID string, userID int64) ([]dtos.CartItemDto, error)
}

type CartClientImpl struct {
	baseClient
}

func NewCartClient(baseURL string, httpClient *http.Client) CartClient {
	return &CartClientImpl{baseClient: newBaseClient("cart", baseURL, httpClient)}
}

// GetSnapshot calls GET /cart as userID. Every failure is reported as ErrCartUnavailable;
// a snapshot with a non-positive product id or quantity also wraps ErrInvalidCart.
func (c *CartClientImpl) GetSnapshot(ctx context.Context, traceID string, userID int64) ([]dtos.CartItemDto, error) {
	headers := traceHeaders(traceID)
	headers[pkg.HeaderUserId] = strconv.FormatInt(userID, 10)

	raw, err := c.do(ctx, http.MethodGet, "/cart", headers, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCartUnavailable, err)
	}

	var snapshot dtos.CartSnapshotDto
	if err = json.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("%w: decode cart: %w", ErrCartUnavailable, err)
	}
	for _, item := range snapshot.Items {
		if item.ProductID <= 0 || item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: %w: product %d quantity %d", ErrCartUnavailable, ErrInvalidCart, item.ProductID, item.Quantity)
		}
	}
	return snapshot.Items, nil
}
