package repositories_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg/database"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg/models"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg/repositories"
	"github.com/nimeshabuddhika/shopsphere-orders/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupDB(t *testing.T) *database.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}
	dsn, terminate, err := tests.StartPostgresForTests()
	require.NoError(t, err)
	t.Cleanup(terminate)

	logger := zap.NewNop()
	require.NoError(t, database.RunMigrations(logger, dsn))
	db, closeDB, err := database.New(context.Background(), logger, database.Config{PrimaryDSN: dsn, MaxConns: 4, MinConns: 1})
	require.NoError(t, err)
	t.Cleanup(closeDB)
	return db
}

func newOrder(userID int64, status pkg.OrderStatus, items ...models.OrderItem) models.Order {
	return models.Order{
		UserID:               userID,
		Total:                models.SumItems(items),
		Status:               status,
		IdempotencyKey:       uuid.New(),
		PaymentTransactionID: "tx_" + uuid.NewString()[:8],
		Items:                items,
	}
}

func create(t *testing.T, db *database.DB, repo repositories.OrderRepository, order models.Order) (models.Order, error) {
	t.Helper()
	var created models.Order
	err := db.WithTransaction(context.Background(), func(ctx context.Context, tx pgx.Tx) error {
		var err error
		created, err = repo.CreateWithItems(ctx, tx, order)
		return err
	})
	return created, err
}

func countRows(t *testing.T, db *database.DB, sql string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(context.Background(), sql, args...).Scan(&n))
	return n
}

func TestOrderRepository(t *testing.T) {
	db := setupDB(t)
	repo := repositories.NewOrderRepository()

	t.Run("creates order with items", func(t *testing.T) {
		order := newOrder(1, pkg.OrderStatusPaid,
			models.OrderItem{ProductID: 1, Name: "Laptop", Quantity: 2, Price: 70000},
			models.OrderItem{ProductID: 2, Name: "Headphones", Quantity: 1, Price: 3000},
		)

		created, err := create(t, db, repo, order)
		require.NoError(t, err)

		assert.Positive(t, created.ID)
		assert.False(t, created.CreatedAt.IsZero())
		for _, item := range created.Items {
			assert.Equal(t, created.ID, item.OrderID)
		}
		assert.Equal(t, 2, countRows(t, db, `SELECT COUNT(*) FROM order_items WHERE order_id = $1`, created.ID))
		assert.Equal(t, int64(143000), int64(countRows(t, db, `SELECT total FROM orders WHERE id = $1`, created.ID)))
	})

	t.Run("rejects order without items", func(t *testing.T) {
		_, err := create(t, db, repo, newOrder(1, pkg.OrderStatusPaid))
		assert.ErrorIs(t, err, repositories.ErrNoItems)
	})

	t.Run("invalid item rolls back the order", func(t *testing.T) {
		order := newOrder(2, pkg.OrderStatusPaid, models.OrderItem{ProductID: 1, Name: "Laptop", Quantity: 0, Price: 70000})

		_, err := create(t, db, repo, order)

		var pgErr *pgconn.PgError
		require.True(t, errors.As(err, &pgErr))
		assert.Equal(t, "23514", pgErr.Code)
		assert.Zero(t, countRows(t, db, `SELECT COUNT(*) FROM orders WHERE user_id = 2`))
	})

	t.Run("idempotency key is unique", func(t *testing.T) {
		order := newOrder(3, pkg.OrderStatusFailed, models.OrderItem{ProductID: 2, Name: "Headphones", Quantity: 1, Price: 3000})
		_, err := create(t, db, repo, order)
		require.NoError(t, err)

		_, err = create(t, db, repo, order)
		var pgErr *pgconn.PgError
		require.True(t, errors.As(err, &pgErr))
		assert.Equal(t, "23505", pgErr.Code)
		assert.Equal(t, 1, countRows(t, db, `SELECT COUNT(*) FROM orders WHERE user_id = 3`))
	})

	t.Run("lists newest first for one user", func(t *testing.T) {
		item := models.OrderItem{ProductID: 2, Name: "Headphones", Quantity: 1, Price: 3000}
		first, err := create(t, db, repo, newOrder(10, pkg.OrderStatusPaid, item))
		require.NoError(t, err)
		second, err := create(t, db, repo, newOrder(10, pkg.OrderStatusFailed, item))
		require.NoError(t, err)
		_, err = create(t, db, repo, newOrder(11, pkg.OrderStatusPaid, item))
		require.NoError(t, err)

		summaries, err := repo.ListByUser(context.Background(), db, 10)
		require.NoError(t, err)

		require.Len(t, summaries, 2)
		assert.Equal(t, second.ID, summaries[0].ID)
		assert.Equal(t, pkg.OrderStatusFailed, summaries[0].Status)
		assert.Equal(t, first.ID, summaries[1].ID)
		assert.Equal(t, int64(3000), summaries[1].Total)
	})

	t.Run("lists nothing as empty slice", func(t *testing.T) {
		summaries, err := repo.ListByUser(context.Background(), db, 999)
		require.NoError(t, err)
		assert.NotNil(t, summaries)
		assert.Empty(t, summaries)
	})
}
