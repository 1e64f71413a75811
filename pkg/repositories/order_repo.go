package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg/database"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg/models"
)

var ErrNoItems = errors.New("order has no items")

type OrderRepository interface {
	// CreateWithItems inserts the order row and all of its items on tx.
	// The returned order carries the store-assigned id and created_at.
	CreateWithItems(ctx context.Context, tx pgx.Tx, order models.Order) (models.Order, error)
	// ListByUser returns the user's order summaries, most recent first.
	ListByUser(ctx context.Context, db database.Querier, userID int64) ([]models.OrderSummary, error)
}

type OrderRepositoryImpl struct {
}

func NewOrderRepository() OrderRepository {
	return &OrderRepositoryImpl{}
}

func (o OrderRepositoryImpl) CreateWithItems(ctx context.Context, tx pgx.Tx, order models.Order) (models.Order, error) {
	if len(order.Items) == 0 {
		return order, ErrNoItems
	}
	if order.IdempotencyKey == uuid.Nil {
		return order, errors.New("idempotency key cannot be nil")
	}

	var txID *string
	if order.PaymentTransactionID != "" {
		txID = &order.PaymentTransactionID
	}
	err := tx.QueryRow(ctx, `
						INSERT INTO orders (user_id, total, status, idempotency_key, payment_transaction_id)
						VALUES ($1, $2, $3, $4, $5)
						RETURNING id, created_at`,
		order.UserID,
		order.Total,
		order.Status,
		order.IdempotencyKey,
		txID,
	).Scan(&order.ID, &order.CreatedAt)
	if err != nil {
		return order, fmt.Errorf("insert order: %w", err)
	}

	rows := make([][]any, 0, len(order.Items))
	for i := range order.Items {
		order.Items[i].OrderID = order.ID
		item := order.Items[i]
		rows = append(rows, []any{item.OrderID, item.ProductID, item.Name, item.Quantity, item.Price})
	}
	copied, err := tx.CopyFrom(ctx,
		pgx.Identifier{"order_items"},
		[]string{"order_id", "product_id", "name", "quantity", "price"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return order, fmt.Errorf("insert order items: %w", err)
	}
	if copied != int64(len(rows)) {
		return order, fmt.Errorf("insert order items: copied %d of %d rows", copied, len(rows))
	}
	return order, nil
}

func (o OrderRepositoryImpl) ListByUser(ctx context.Context, db database.Querier, userID int64) ([]models.OrderSummary, error) {
	rows, err := db.Query(ctx, `
							SELECT id, total, status, created_at
							FROM orders
							WHERE user_id = $1
							ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := make([]models.OrderSummary, 0)
	for rows.Next() {
		var s models.OrderSummary
		if err = rows.Scan(&s.ID, &s.Total, &s.Status, &s.CreatedAt); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}
