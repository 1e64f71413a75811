package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg/database"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg/models"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg/repositories"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg/utils"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg/views"
	"github.com/nimeshabuddhika/shopsphere-orders/services/reconciliation-worker/internal/observability"
	"go.uber.org/zap"
)

// ReconciliationService records charges that were settled without an order.
type ReconciliationService interface {
	RecordUnreconciledCharge(ctx context.Context, event views.OrderEvent) error
}

type ReconciliationServiceConf struct {
	Logger      *zap.Logger
	DB          database.Execer
	Repo        repositories.ReconciliationRepository
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

type ReconciliationServiceImpl struct {
	ReconciliationServiceConf
}

func NewReconciliationService(conf ReconciliationServiceConf) ReconciliationService {
	conf.MaxRetries = max(conf.MaxRetries, 0)
	return &ReconciliationServiceImpl{ReconciliationServiceConf: conf}
}

// RecordUnreconciledCharge stores the charge as PENDING. Transient store errors are retried
// with backoff; constraint violations and a cancelled ctx are returned immediately.
func (s *ReconciliationServiceImpl) RecordUnreconciledCharge(ctx context.Context, event views.OrderEvent) error {
	key, err := uuid.Parse(event.IdempotencyKey)
	if err != nil {
		return fmt.Errorf("invalid idempotency key %q: %w", event.IdempotencyKey, err)
	}
	rec := models.ChargeReconciliation{
		IdempotencyKey: key,
		UserID:         event.UserID,
		Amount:         event.Total,
		TransactionID:  event.TransactionID,
		TraceID:        event.TraceID,
		Status:         models.ReconciliationPending,
		ChargedAt:      event.OccurredAt,
	}

	for attempt := 0; ; attempt++ {
		inserted, err := s.Repo.Record(ctx, s.DB, rec)
		if err == nil {
			observability.ChargesRecorded.WithLabelValues(strconv.FormatBool(!inserted)).Inc()
			s.Logger.Info("unreconciled charge recorded",
				zap.String(pkg.TraceId, event.TraceID),
				zap.String(pkg.IdempotencyKey, event.IdempotencyKey),
				zap.String(pkg.TransactionId, event.TransactionID),
				zap.Int64("amount", event.Total),
				zap.Bool("duplicate", !inserted),
			)
			return nil
		}
		if !isTransient(err) || attempt >= s.MaxRetries {
			return fmt.Errorf("record charge %s: %w", event.IdempotencyKey, err)
		}

		delay := utils.CalculateExponentialBackoffWithJitter(attempt+1, s.BaseBackoff, s.MaxBackoff)
		observability.StoreRetries.Inc()
		s.Logger.Warn("recording charge failed, retrying",
			zap.String(pkg.IdempotencyKey, event.IdempotencyKey),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// isTransient reports whether retrying err may succeed. Data and constraint errors never will.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return !strings.HasPrefix(pgErr.Code, "22") && !strings.HasPrefix(pgErr.Code, "23")
	}
	return true
}
