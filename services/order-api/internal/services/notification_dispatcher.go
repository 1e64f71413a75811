package services

import (
	"context"
	"sync"
	"time"

	"github.com/nimeshabuddhika/shopsphere-orders/pkg"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg/utils"
	"github.com/nimeshabuddhika/shopsphere-orders/services/order-api/internal/clients"
	"github.com/nimeshabuddhika/shopsphere-orders/services/order-api/internal/observability"
	"go.uber.org/zap"
)

// NotificationDispatcher hands user-facing messages to the notification service without
// blocking the caller. Delivery is best-effort: failures are logged and counted, never returned.
type NotificationDispatcher interface {
	Dispatch(traceID string, userID int64, message string)
}

type NotificationDispatcherConf struct {
	Logger      *zap.Logger
	Client      clients.NotificationClient
	Workers     int
	QueueSize   int
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

type notificationJob struct {
	traceID string
	userID  int64
	message string
}

type NotificationDispatcherImpl struct {
	conf   NotificationDispatcherConf
	queue  chan notificationJob
	wg     sync.WaitGroup
	mu     sync.RWMutex // guards closed against sends on a closed queue
	closed bool
	cancel context.CancelFunc
}

func NewNotificationDispatcher(conf NotificationDispatcherConf) *NotificationDispatcherImpl {
	conf.Workers = max(conf.Workers, 1)
	conf.QueueSize = max(conf.QueueSize, 1)
	conf.MaxAttempts = max(conf.MaxAttempts, 1)
	return &NotificationDispatcherImpl{
		conf:  conf,
		queue: make(chan notificationJob, conf.QueueSize),
	}
}

// Start launches the workers. They outlive any request and stop once Close drains the queue.
func (d *NotificationDispatcherImpl) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(context.WithoutCancel(ctx))
	for i := 0; i < d.conf.Workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for job := range d.queue {
				observability.NotificationQueueDepth.Dec()
				d.deliver(ctx, job)
			}
		}()
	}
	d.conf.Logger.Info("notification dispatcher started", zap.Int("workers", d.conf.Workers), zap.Int("queue_size", d.conf.QueueSize))
}

// Dispatch enqueues the message and returns immediately. A full queue drops the message.
func (d *NotificationDispatcherImpl) Dispatch(traceID string, userID int64, message string) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(traceID, userID, "shutdown")
		return
	}
	select {
	case d.queue <- notificationJob{traceID: traceID, userID: userID, message: message}:
		observability.NotificationQueueDepth.Inc()
	default:
		d.drop(traceID, userID, "queue_full")
	}
}

// Close stops intake and waits for queued messages until ctx expires, then abandons the rest.
func (d *NotificationDispatcherImpl) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.conf.Logger.Info("notification dispatcher drained")
	case <-ctx.Done():
		d.conf.Logger.Warn("notification dispatcher drain timed out", zap.Int("abandoned", len(d.queue)))
	}
	if d.cancel != nil {
		d.cancel()
	}
	return ctx.Err()
}

func (d *NotificationDispatcherImpl) deliver(ctx context.Context, job notificationJob) {
	var err error
	for attempt := 1; ; attempt++ {
		if err = d.conf.Client.Notify(ctx, job.traceID, job.userID, job.message); err == nil {
			observability.NotificationsSent.Inc()
			d.conf.Logger.Debug("notification delivered", zap.String(pkg.TraceId, job.traceID), zap.Int64(pkg.UserId, job.userID), zap.Int("attempt", attempt))
			return
		}
		if attempt >= d.conf.MaxAttempts || ctx.Err() != nil {
			break
		}
		delay := utils.CalculateExponentialBackoffWithJitter(attempt, d.conf.BaseBackoff, d.conf.MaxBackoff)
		d.conf.Logger.Warn("notification failed, retrying",
			zap.String(pkg.TraceId, job.traceID), zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
		if !sleep(ctx, delay) {
			break
		}
	}
	d.conf.Logger.Error("failed to send notification", zap.String(pkg.TraceId, job.traceID), zap.Int64(pkg.UserId, job.userID), zap.Error(err))
	observability.NotificationsDropped.WithLabelValues("undeliverable").Inc()
}

func (d *NotificationDispatcherImpl) drop(traceID string, userID int64, reason string) {
	d.conf.Logger.Warn("notification dropped", zap.String(pkg.TraceId, traceID), zap.Int64(pkg.UserId, userID), zap.String("reason", reason))
	observability.NotificationsDropped.WithLabelValues(reason).Inc()
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
