package tests

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg"
)

type OrderItemResponse struct {
	ProductID int64  `json:"productId"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	Price     int64  `json:"price"`
}

type OrderResponse struct {
	ID        int64               `json:"id"`
	UserID    int64               `json:"userId"`
	Items     []OrderItemResponse `json:"items"`
	Total     int64               `json:"total"`
	Status    string              `json:"status"`
	CreatedAt string              `json:"createdAt"`
	Payment   json.RawMessage     `json:"payment"`
}

type OrderSummaryResponse struct {
	ID        int64  `json:"id"`
	Total     int64  `json:"total"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
}

// DoAsUser sends a request with a fresh trace id and, when userID is non-zero, the X-User-Id header.
func DoAsUser(t *testing.T, method, url string, userID int64) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(pkg.HeaderTraceId, uuid.New().String())
	if userID != 0 {
		req.Header.Set(pkg.HeaderUserId, strconv.FormatInt(userID, 10))
	}
	t.Logf("Request %s %s as user %d", method, url, userID)
	resp, err := http.DefaultClient.Do(req)
	if resp != nil {
		t.Logf("Response %s %s: Status %d", method, url, resp.StatusCode)
		t.Cleanup(func() { _ = resp.Body.Close() })
	}
	return resp, err
}

func PostOrder(t *testing.T, baseURL string, userID int64) (*http.Response, error) {
	return DoAsUser(t, http.MethodPost, baseURL+"/api/v1/orders", userID)
}

func GetOrders(t *testing.T, baseURL string, userID int64) (*http.Response, error) {
	return DoAsUser(t, http.MethodGet, baseURL+"/api/v1/orders", userID)
}

func GetTraceId(resp *http.Response) string {
	return resp.Header.Get(pkg.HeaderTraceId)
}

func DecodeOrder(r io.Reader) (OrderResponse, error) {
	var out OrderResponse
	err := json.NewDecoder(r).Decode(&out)
	return out, err
}

func DecodeOrderSummaries(r io.Reader) ([]OrderSummaryResponse, error) {
	var out []OrderSummaryResponse
	err := json.NewDecoder(r).Decode(&out)
	return out, err
}

func DecodeError(r io.Reader) (ErrorResponse, error) {
	var out ErrorResponse
	err := json.NewDecoder(r).Decode(&out)
	return out, err
}
