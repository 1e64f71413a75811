package repositories_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg/models"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconciliationRepository(t *testing.T) {
	db := setupDB(t)
	repo := repositories.NewReconciliationRepository()
	ctx := context.Background()
	chargedAt := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("records pending charge", func(t *testing.T) {
		key := uuid.New()
		inserted, err := repo.Record(ctx, db, models.ChargeReconciliation{
			IdempotencyKey: key,
			UserID:         7,
			Amount:         73000,
			TransactionID:  "tx_1",
			TraceID:        "trace-1",
			ChargedAt:      chargedAt,
		})
		require.NoError(t, err)
		assert.True(t, inserted)

		got, err := repo.FindByIdempotencyKey(ctx, db, key)
		require.NoError(t, err)
		assert.NotZero(t, got.ID)
		assert.Equal(t, int64(7), got.UserID)
		assert.Equal(t, int64(73000), got.Amount)
		assert.Equal(t, "tx_1", got.TransactionID)
		assert.Equal(t, "trace-1", got.TraceID)
		assert.Equal(t, models.ReconciliationPending, got.Status)
		assert.True(t, chargedAt.Equal(got.ChargedAt))
	})

	t.Run("duplicate key is ignored", func(t *testing.T) {
		rec := models.ChargeReconciliation{IdempotencyKey: uuid.New(), UserID: 8, Amount: 3000, ChargedAt: chargedAt}
		inserted, err := repo.Record(ctx, db, rec)
		require.NoError(t, err)
		require.True(t, inserted)

		rec.Amount = 9999
		inserted, err = repo.Record(ctx, db, rec)
		require.NoError(t, err)
		assert.False(t, inserted)

		got, err := repo.FindByIdempotencyKey(ctx, db, rec.IdempotencyKey)
		require.NoError(t, err)
		assert.Equal(t, int64(3000), got.Amount)
		assert.Empty(t, got.TransactionID)
	})

	t.Run("negative amount violates check", func(t *testing.T) {
		_, err := repo.Record(ctx, db, models.ChargeReconciliation{IdempotencyKey: uuid.New(), UserID: 9, Amount: -1, ChargedAt: chargedAt})
		var pgErr *pgconn.PgError
		require.True(t, errors.As(err, &pgErr))
		assert.Equal(t, "23514", pgErr.Code)
	})

	t.Run("nil key rejected", func(t *testing.T) {
		_, err := repo.Record(ctx, db, models.ChargeReconciliation{UserID: 9, ChargedAt: chargedAt})
		assert.Error(t, err)
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := repo.FindByIdempotencyKey(ctx, db, uuid.New())
		assert.ErrorIs(t, err, pgx.ErrNoRows)
	})
}
