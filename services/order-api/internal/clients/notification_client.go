package clients

import (
	"context"
	"fmt"
	"net/http"

	"github.com/nimeshabuddhika/shopsphere-orders/pkg/dtos"
)

// NotificationClient delivers one user-facing message.
type NotificationClient interface {
	Notify(ctx context.Context, traceID string, userID int64, message string) error
}

type NotificationClientImpl struct {
	baseClient
}

func NewNotificationClient(baseURL string, httpClient *http.Client) NotificationClient {
	return &NotificationClientImpl{baseClient: newBaseClient("notification", baseURL, httpClient)}
}

func (c *NotificationClientImpl) Notify(ctx context.Context, traceID string, userID int64, message string) error {
	_, err := c.do(ctx, http.MethodPost, "/notify", traceHeaders(traceID), dtos.NotifyRequestDto{UserID: userID, Message: message})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotificationUnavailable, err)
	}
	return nil
}
