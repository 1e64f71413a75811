package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg/database"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg/models"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg/views"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeReconciliationRepo struct {
	errs     []error // returned in order, then nil
	calls    int
	recorded []models.ChargeReconciliation
	seen     map[uuid.UUID]bool
}

func (f *fakeReconciliationRepo) Record(_ context.Context, _ database.Execer, rec models.ChargeReconciliation) (bool, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return false, err
	}
	if f.seen == nil {
		f.seen = map[uuid.UUID]bool{}
	}
	if f.seen[rec.IdempotencyKey] {
		return false, nil
	}
	f.seen[rec.IdempotencyKey] = true
	f.recorded = append(f.recorded, rec)
	return true, nil
}

func (f *fakeReconciliationRepo) FindByIdempotencyKey(context.Context, database.Querier, uuid.UUID) (models.ChargeReconciliation, error) {
	return models.ChargeReconciliation{}, nil
}

func newReconciler(repo *fakeReconciliationRepo, retries int) ReconciliationService {
	return NewReconciliationService(ReconciliationServiceConf{
		Logger:      zap.NewNop(),
		Repo:        repo,
		MaxRetries:  retries,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  2 * time.Millisecond,
	})
}

func unreconciledEvent() views.OrderEvent {
	return views.OrderEvent{
		Type:           views.OrderEventChargeUnreconciled,
		UserID:         7,
		Total:          73000,
		Status:         pkg.OrderStatusPaid,
		IdempotencyKey: uuid.NewString(),
		TransactionID:  "tx_9",
		TraceID:        "trace",
		OccurredAt:     time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestRecordUnreconciledCharge_StoresPending(t *testing.T) {
	repo := &fakeReconciliationRepo{}
	event := unreconciledEvent()

	require.NoError(t, newReconciler(repo, 3).RecordUnreconciledCharge(context.Background(), event))

	require.Len(t, repo.recorded, 1)
	rec := repo.recorded[0]
	assert.Equal(t, event.IdempotencyKey, rec.IdempotencyKey.String())
	assert.Equal(t, int64(7), rec.UserID)
	assert.Equal(t, int64(73000), rec.Amount)
	assert.Equal(t, "tx_9", rec.TransactionID)
	assert.Equal(t, models.ReconciliationPending, rec.Status)
	assert.Equal(t, event.OccurredAt, rec.ChargedAt)
}

func TestRecordUnreconciledCharge_RedeliveryIsNoop(t *testing.T) {
	repo := &fakeReconciliationRepo{}
	event := unreconciledEvent()
	svc := newReconciler(repo, 3)

	require.NoError(t, svc.RecordUnreconciledCharge(context.Background(), event))
	require.NoError(t, svc.RecordUnreconciledCharge(context.Background(), event))
	assert.Len(t, repo.recorded, 1)
}

func TestRecordUnreconciledCharge_RetriesTransientErrors(t *testing.T) {
	repo := &fakeReconciliationRepo{errs: []error{errors.New("conn reset"), errors.New("conn reset")}}

	require.NoError(t, newReconciler(repo, 3).RecordUnreconciledCharge(context.Background(), unreconciledEvent()))
	assert.Equal(t, 3, repo.calls)
	assert.Len(t, repo.recorded, 1)
}

func TestRecordUnreconciledCharge_GivesUpAfterMaxRetries(t *testing.T) {
	repo := &fakeReconciliationRepo{errs: []error{errors.New("a"), errors.New("b"), errors.New("c"), errors.New("d")}}

	err := newReconciler(repo, 2).RecordUnreconciledCharge(context.Background(), unreconciledEvent())
	require.Error(t, err)
	assert.Equal(t, 3, repo.calls)
}

func TestRecordUnreconciledCharge_ConstraintViolationIsNotRetried(t *testing.T) {
	repo := &fakeReconciliationRepo{errs: []error{&pgconn.PgError{Code: "23514"}}}

	err := newReconciler(repo, 3).RecordUnreconciledCharge(context.Background(), unreconciledEvent())
	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, 1, repo.calls)
}

func TestRecordUnreconciledCharge_StopsOnCancel(t *testing.T) {
	repo := &fakeReconciliationRepo{errs: []error{errors.New("a"), errors.New("b")}}
	svc := NewReconciliationService(ReconciliationServiceConf{
		Logger: zap.NewNop(), Repo: repo, MaxRetries: 5, BaseBackoff: time.Hour, MaxBackoff: time.Hour,
	})
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	err := svc.RecordUnreconciledCharge(ctx, unreconciledEvent())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, repo.calls)
}

type fakeReconciler struct {
	events []views.OrderEvent
	err    error
}

func (f *fakeReconciler) RecordUnreconciledCharge(_ context.Context, event views.OrderEvent) error {
	f.events = append(f.events, event)
	return f.err
}

func encode(t *testing.T, event views.OrderEvent) []byte {
	t.Helper()
	b, err := json.Marshal(event)
	require.NoError(t, err)
	return b
}

func TestEventHandler_RecordsUnreconciledCharges(t *testing.T) {
	reconciler := &fakeReconciler{}
	h := NewEventHandler(zap.NewNop(), reconciler)
	event := unreconciledEvent()

	require.NoError(t, h.Handle(context.Background(), encode(t, event)))
	require.Len(t, reconciler.events, 1)
	assert.Equal(t, event.IdempotencyKey, reconciler.events[0].IdempotencyKey)
}

func TestEventHandler_SkipsOrderCreated(t *testing.T) {
	reconciler := &fakeReconciler{}
	event := unreconciledEvent()
	event.Type = views.OrderEventCreated
	event.OrderID = 12

	require.NoError(t, NewEventHandler(zap.NewNop(), reconciler).Handle(context.Background(), encode(t, event)))
	assert.Empty(t, reconciler.events)
}

func TestEventHandler_PoisonMessages(t *testing.T) {
	badKey := unreconciledEvent()
	badKey.IdempotencyKey = "not-a-uuid"
	unknownType := unreconciledEvent()
	unknownType.Type = "ORDER_SHIPPED"
	noUser := unreconciledEvent()
	noUser.UserID = 0

	tests := []struct {
		name   string
		value  []byte
		reason string
	}{
		{"garbage", []byte(`{not json`), ReasonDecode},
		{"bad idempotency key", encode(t, badKey), ReasonValidation},
		{"unknown type", encode(t, unknownType), ReasonValidation},
		{"missing user", encode(t, noUser), ReasonValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reconciler := &fakeReconciler{}
			err := NewEventHandler(zap.NewNop(), reconciler).Handle(context.Background(), tt.value)

			var poison *PoisonError
			require.ErrorAs(t, err, &poison)
			assert.Equal(t, tt.reason, poison.Reason)
			assert.Empty(t, reconciler.events)
		})
	}
}

func TestEventHandler_RecordFailureIsPoison(t *testing.T) {
	reconciler := &fakeReconciler{err: errors.New("retries exhausted")}

	err := NewEventHandler(zap.NewNop(), reconciler).Handle(context.Background(), encode(t, unreconciledEvent()))
	var poison *PoisonError
	require.ErrorAs(t, err, &poison)
	assert.Equal(t, ReasonRecord, poison.Reason)
}

func TestEventHandler_ShutdownLeavesMessageForRedelivery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	reconciler := &fakeReconciler{err: context.Canceled}

	err := NewEventHandler(zap.NewNop(), reconciler).Handle(ctx, encode(t, unreconciledEvent()))
	assert.ErrorIs(t, err, context.Canceled)
	var poison *PoisonError
	assert.False(t, errors.As(err, &poison))
}

func TestDLQPayload(t *testing.T) {
	topic := "order-events"
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: 2, Offset: 41},
		Key:            []byte("7"),
		Value:          []byte(`{not json`),
		Headers:        []kafka.Header{{Key: "type", Value: []byte("CHARGE_UNRECONCILED")}},
	}
	failedAt := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	payload := dlqPayload(msg, ReasonDecode, "boom", failedAt)

	assert.Equal(t, "order-events", payload["originalTopic"])
	assert.Equal(t, int32(2), payload["originalPartition"])
	assert.Equal(t, int64(41), payload["originalOffset"])
	assert.Equal(t, "7", payload["key"])
	assert.Equal(t, `{not json`, payload["value"])
	assert.Equal(t, map[string]string{"type": "CHARGE_UNRECONCILED"}, payload["headers"])
	assert.Equal(t, ReasonDecode, payload["failureReason"])
	assert.Equal(t, "2025-05-01T12:00:00Z", payload["failedAt"])
}
