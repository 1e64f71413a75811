package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nimeshabuddhika/shopsphere-orders/pkg"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg/utils"
	"github.com/nimeshabuddhika/shopsphere-orders/services/order-api/internal/observability"
)

// Errors surfaced by the collaborator adapters.
var (
	ErrCartUnavailable         = errors.New("cart service unavailable")
	ErrInvalidCart             = errors.New("invalid cart snapshot")
	ErrProductNotFound         = errors.New("product not found")
	ErrCatalogUnavailable      = errors.New("catalog service unavailable")
	ErrPaymentUnavailable      = errors.New("payment service unavailable")
	ErrNotificationUnavailable = errors.New("notification service unavailable")
)

// maxBodyBytes caps how much of a collaborator response is read.
const maxBodyBytes = 1 << 20

// StatusError reports a non-2xx collaborator response.
type StatusError struct {
	Collaborator string
	StatusCode   int
	Body         string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s responded %d: %s", e.Collaborator, e.StatusCode, e.Body)
}

// baseClient holds what every adapter needs: where the collaborator lives and how to reach it.
type baseClient struct {
	name       string
	baseURL    string
	httpClient *http.Client
}

func newBaseClient(name, baseURL string, httpClient *http.Client) baseClient {
	if httpClient == nil {
		httpClient = utils.NewHTTPClient()
	}
	return baseClient{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// do sends one request and returns the raw 2xx body. Non-2xx responses become *StatusError.
func (b baseClient) do(ctx context.Context, method, path string, headers map[string]string, body any) ([]byte, error) {
	start := time.Now()
	raw, err := b.send(ctx, method, path, headers, body)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	observability.CollaboratorLatency.WithLabelValues(b.name, outcome).Observe(time.Since(start).Seconds())
	return raw, err
}

func (b baseClient) send(ctx context.Context, method, path string, headers map[string]string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		if !utils.IsEmpty(v) {
			req.Header.Set(k, v)
		}
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Collaborator: b.name, StatusCode: resp.StatusCode, Body: truncate(string(raw), 256)}
	}
	return raw, nil
}

func traceHeaders(traceID string) map[string]string {
	return map[string]string{pkg.HeaderTraceId: traceID}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
