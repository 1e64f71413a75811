package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/nimeshabuddhika/shopsphere-orders/pkg/dtos"
)

// CatalogClient resolves the authoritative name and price of a product.
type CatalogClient interface {
	GetProduct(ctx context.Context, traceID string, productID int64) (dtos.ProductDto, error)
}

type CatalogClientImpl struct {
	baseClient
}

func NewCatalogClient(baseURL string, httpClient *http.Client) CatalogClient {
	return &CatalogClientImpl{baseClient: newBaseClient("catalog", baseURL, httpClient)}
}

// GetProduct calls GET /products/{id}. A 404 yields ErrProductNotFound, anything else that
// is not a decodable product yields ErrCatalogUnavailable.
func (c *CatalogClientImpl) GetProduct(ctx context.Context, traceID string, productID int64) (dtos.ProductDto, error) {
	var product dtos.ProductDto

	raw, err := c.do(ctx, http.MethodGet, "/products/"+strconv.FormatInt(productID, 10), traceHeaders(traceID), nil)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return product, fmt.Errorf("%w: %d", ErrProductNotFound, productID)
		}
		return product, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}
	if err = json.Unmarshal(raw, &product); err != nil {
		return product, fmt.Errorf("%w: decode product %d: %w", ErrCatalogUnavailable, productID, err)
	}
	if product.ID == 0 {
		product.ID = productID
	}
	if product.Price < 0 {
		return product, fmt.Errorf("%w: product %d has negative price", ErrCatalogUnavailable, productID)
	}
	return product, nil
}
