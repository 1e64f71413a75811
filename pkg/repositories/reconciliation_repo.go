package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg/database"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg/models"
)

type ReconciliationRepository interface {
	// Record stores a pending reconciliation. It reports false when the idempotency key was
	// already recorded, so redelivered events are harmless.
	Record(ctx context.Context, db database.Execer, rec models.ChargeReconciliation) (bool, error)
	// FindByIdempotencyKey returns the reconciliation for one charge attempt.
	FindByIdempotencyKey(ctx context.Context, db database.Querier, key uuid.UUID) (models.ChargeReconciliation, error)
}

type ReconciliationRepositoryImpl struct {
}

func NewReconciliationRepository() ReconciliationRepository {
	return &ReconciliationRepositoryImpl{}
}

func (r ReconciliationRepositoryImpl) Record(ctx context.Context, db database.Execer, rec models.ChargeReconciliation) (bool, error) {
	if rec.IdempotencyKey == uuid.Nil {
		return false, errors.New("idempotency key cannot be nil")
	}
	if rec.Status == "" {
		rec.Status = models.ReconciliationPending
	}

	var txID, traceID *string
	if rec.TransactionID != "" {
		txID = &rec.TransactionID
	}
	if rec.TraceID != "" {
		traceID = &rec.TraceID
	}
	tag, err := db.Exec(ctx, `
						INSERT INTO charge_reconciliations (idempotency_key, user_id, amount, transaction_id, trace_id, status, charged_at)
						VALUES ($1, $2, $3, $4, $5, $6, $7)
						ON CONFLICT (idempotency_key) DO NOTHING`,
		rec.IdempotencyKey,
		rec.UserID,
		rec.Amount,
		txID,
		traceID,
		rec.Status,
		rec.ChargedAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r ReconciliationRepositoryImpl) FindByIdempotencyKey(ctx context.Context, db database.Querier, key uuid.UUID) (models.ChargeReconciliation, error) {
	var (
		rec     models.ChargeReconciliation
		txID    *string
		traceID *string
	)
	err := db.QueryRow(ctx, `
						SELECT id, idempotency_key, user_id, amount, transaction_id, trace_id, status, charged_at, created_at
						FROM charge_reconciliations
						WHERE idempotency_key = $1`,
		key,
	).Scan(&rec.ID, &rec.IdempotencyKey, &rec.UserID, &rec.Amount, &txID, &traceID, &rec.Status, &rec.ChargedAt, &rec.CreatedAt)
	if txID != nil {
		rec.TransactionID = *txID
	}
	if traceID != nil {
		rec.TraceID = *traceID
	}
	return rec, err
}
