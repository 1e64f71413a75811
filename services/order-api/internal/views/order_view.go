package views

import (
	"encoding/json"
	"time"

	"github.com/nimeshabuddhika/shopsphere-orders/pkg"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg/models"
)

// OrderItemView is one line of a created order.
type OrderItemView struct {
	ProductID int64  `json:"productId"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	Price     int64  `json:"price"`
}

// OrderView is the POST /orders response body.
type OrderView struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"userId"`
	Items     []OrderItemView `json:"items"`
	Total     int64           `json:"total"`
	Status    pkg.OrderStatus `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
	Payment   json.RawMessage `json:"payment"`
}

// OrderSummaryView is one element of the GET /orders response body.
type OrderSummaryView struct {
	ID        int64           `json:"id"`
	Total     int64           `json:"total"`
	Status    pkg.OrderStatus `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
}

func ToOrderView(order models.Order) OrderView {
	items := make([]OrderItemView, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemView{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}
	payment := order.Payment
	if len(payment) == 0 {
		payment = json.RawMessage("null")
	}
	return OrderView{
		ID:        order.ID,
		UserID:    order.UserID,
		Items:     items,
		Total:     order.Total,
		Status:    order.Status,
		CreatedAt: order.CreatedAt,
		Payment:   payment,
	}
}

func ToOrderSummaryViews(summaries []models.OrderSummary) []OrderSummaryView {
	out := make([]OrderSummaryView, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, OrderSummaryView{ID: s.ID, Total: s.Total, Status: s.Status, CreatedAt: s.CreatedAt})
	}
	return out
}
