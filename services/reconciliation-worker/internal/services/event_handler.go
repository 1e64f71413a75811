package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg/views"
	"github.com/nimeshabuddhika/shopsphere-orders/services/reconciliation-worker/internal/observability"
	"go.uber.org/zap"
)

// DLQ reasons.
const (
	ReasonDecode     = "json_unmarshal_error"
	ReasonValidation = "validation_error"
	ReasonRecord     = "record_error"
)

// PoisonError marks a message that can never be handled and belongs in the DLQ.
type PoisonError struct {
	Reason string
	Err    error
}

func (e *PoisonError) Error() string { return fmt.Sprintf("%s: %v", e.Reason, e.Err) }
func (e *PoisonError) Unwrap() error { return e.Err }

// EventHandler turns one raw order event into a reconciliation side effect.
type EventHandler struct {
	logger     *zap.Logger
	validate   *validator.Validate
	reconciler ReconciliationService
}

func NewEventHandler(logger *zap.Logger, reconciler ReconciliationService) *EventHandler {
	return &EventHandler{logger: logger, validate: validator.New(), reconciler: reconciler}
}

// Handle returns nil when the offset can be committed, a *PoisonError when the message must be
// dead-lettered, or the ctx error when the worker is stopping and the message must be redelivered.
func (h *EventHandler) Handle(ctx context.Context, value []byte) error {
	var event views.OrderEvent
	if err := json.Unmarshal(value, &event); err != nil {
		observability.EventsHandled.WithLabelValues("unknown", "poison").Inc()
		return &PoisonError{Reason: ReasonDecode, Err: err}
	}
	if err := h.validate.Struct(&event); err != nil {
		observability.EventsHandled.WithLabelValues(string(event.Type), "poison").Inc()
		return &PoisonError{Reason: ReasonValidation, Err: err}
	}

	switch event.Type {
	case views.OrderEventChargeUnreconciled:
		err := h.reconciler.RecordUnreconciledCharge(ctx, event)
		switch {
		case err == nil:
			observability.EventsHandled.WithLabelValues(string(event.Type), "recorded").Inc()
			return nil
		case ctx.Err() != nil && errors.Is(err, ctx.Err()):
			return err
		default:
			observability.EventsHandled.WithLabelValues(string(event.Type), "poison").Inc()
			return &PoisonError{Reason: ReasonRecord, Err: err}
		}
	default:
		h.logger.Debug("skipping order event", zap.String(pkg.TraceId, event.TraceID), zap.String("type", string(event.Type)))
		observability.EventsHandled.WithLabelValues(string(event.Type), "skipped").Inc()
		return nil
	}
}
