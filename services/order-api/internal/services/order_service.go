package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg/cache"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg/database"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg/dtos"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg/models"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg/repositories"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg/views"
	"github.com/nimeshabuddhika/shopsphere-orders/services/order-api/internal/clients"
	"github.com/nimeshabuddhika/shopsphere-orders/services/order-api/internal/observability"
	"go.uber.org/zap"
)

// Checkout failures. Each is wrapped in a pkg.AppError before it leaves the service.
var (
	ErrEmptyCart               = errors.New("cart is empty")
	ErrCartUnavailable         = errors.New("cart unavailable")
	ErrProductResolutionFailed = errors.New("product resolution failed")
	ErrPaymentUnavailable      = errors.New("payment unavailable")
	ErrPersistenceFailed       = errors.New("order persistence failed")
	ErrCheckoutInProgress      = errors.New("checkout in progress")
)

// persistTimeout bounds the order write once the charge has happened. The write runs detached
// from the request so a client disconnect cannot leave a charge without its order.
const persistTimeout = 10 * time.Second

// Database is the slice of *database.DB the order service needs.
type Database interface {
	Primary() database.Querier
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error
}

type OrderService interface {
	// CreateOrder checks out the user's current cart: price, charge, persist, notify.
	CreateOrder(ctx context.Context, traceID string, userID int64) (models.Order, error)
	// ListOrders returns the user's order summaries, most recent first.
	ListOrders(ctx context.Context, traceID string, userID int64) ([]models.OrderSummary, error)
}

type OrderServiceConf struct {
	Logger    *zap.Logger
	DB        Database
	OrderRepo repositories.OrderRepository
	Cart      clients.CartClient
	Catalog   clients.CatalogClient
	Payment   clients.PaymentClient
	Notifier  NotificationDispatcher
	Events    OrderEventPublisher
	Lock      cache.CheckoutLock
}

type OrderServiceImpl struct {
	OrderServiceConf
}

func NewOrderService(conf OrderServiceConf) OrderService {
	if conf.Events == nil {
		conf.Events = NoopOrderEventPublisher{}
	}
	if conf.Lock == nil {
		conf.Lock = cache.NoopCheckoutLock{}
	}
	return &OrderServiceImpl{OrderServiceConf: conf}
}

func (s *OrderServiceImpl) CreateOrder(ctx context.Context, traceID string, userID int64) (models.Order, error) {
	release, err := s.Lock.Acquire(ctx, userID)
	switch {
	case errors.Is(err, cache.ErrLockHeld):
		return models.Order{}, s.fail(traceID, "checkout_in_progress",
			pkg.NewAppError(pkg.ErrCheckoutInProgressCode, pkg.ErrCheckoutInProgressCode.Message, ErrCheckoutInProgress))
	case err != nil:
		// Lock backend down: checkouts proceed unserialised rather than not at all.
		s.Logger.Warn("checkout lock unavailable, continuing without it", zap.String(pkg.TraceId, traceID), zap.Error(err))
	default:
		defer release(context.WithoutCancel(ctx))
	}

	// 1. Cart snapshot
	cartItems, err := s.Cart.GetSnapshot(ctx, traceID, userID)
	if err != nil {
		return models.Order{}, s.fail(traceID, "cart_unavailable",
			pkg.NewAppError(pkg.ErrOrderCreationCode, pkg.ErrOrderCreationCode.Message, fmt.Errorf("%w: %w", ErrCartUnavailable, err)))
	}
	if len(cartItems) == 0 {
		return models.Order{}, s.fail(traceID, "empty_cart",
			pkg.NewAppError(pkg.ErrEmptyCartCode, pkg.ErrEmptyCartCode.Message, ErrEmptyCart))
	}

	// 2. Price every line from the catalog, in snapshot order
	items, total, err := s.priceItems(ctx, traceID, cartItems)
	if err != nil {
		return models.Order{}, s.fail(traceID, "product_resolution_failed",
			pkg.NewAppError(pkg.ErrOrderCreationCode, pkg.ErrOrderCreationCode.Message, fmt.Errorf("%w: %w", ErrProductResolutionFailed, err)))
	}

	// 3. Exactly one charge. A decline is an outcome, not an error.
	idempotencyKey := uuid.New()
	charge, err := s.Payment.Charge(ctx, traceID, total, idempotencyKey)
	if err != nil {
		return models.Order{}, s.fail(traceID, "payment_unavailable",
			pkg.NewAppError(pkg.ErrOrderCreationCode, pkg.ErrOrderCreationCode.Message, fmt.Errorf("%w: %w", ErrPaymentUnavailable, err)))
	}

	order := models.Order{
		UserID:               userID,
		Total:                total,
		Status:               pkg.OrderStatusFromSettlement(charge.Status),
		IdempotencyKey:       idempotencyKey,
		PaymentTransactionID: charge.TransactionID,
		Items:                items,
		Payment:              charge.Raw,
	}

	// 4. Order and items in one transaction
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	var created models.Order
	err = s.DB.WithTransaction(persistCtx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		created, err = s.OrderRepo.CreateWithItems(ctx, tx, order)
		return err
	})
	if err != nil {
		if order.Status == pkg.OrderStatusPaid {
			s.compensateCharge(traceID, order)
		}
		cause := pkg.HandleSQLError(traceID, s.Logger, err)
		return models.Order{}, s.fail(traceID, "persistence_failed",
			pkg.NewAppError(pkg.ErrOrderCreationCode, pkg.ErrOrderCreationCode.Message, fmt.Errorf("%w: %w", ErrPersistenceFailed, cause)))
	}
	order = created

	observability.OrdersCreated.WithLabelValues(string(order.Status)).Inc()
	s.Logger.Info("order created",
		zap.String(pkg.TraceId, traceID),
		zap.Int64(pkg.OrderId, order.ID),
		zap.Int64(pkg.UserId, userID),
		zap.Int64("total", order.Total),
		zap.String("status", string(order.Status)),
		zap.Int("items", len(order.Items)),
		zap.String(pkg.IdempotencyKey, idempotencyKey.String()),
		zap.String(pkg.TransactionId, order.PaymentTransactionID),
	)
	s.Events.Publish(s.orderEvent(views.OrderEventCreated, traceID, order))

	// 5. Only paid orders notify; the dispatcher never blocks this path.
	if order.Status == pkg.OrderStatusPaid {
		s.Notifier.Dispatch(traceID, userID, notificationMessage(order))
	}
	return order, nil
}

// ListOrders reads from the primary: a replica may lag behind an order this user just placed.
func (s *OrderServiceImpl) ListOrders(ctx context.Context, traceID string, userID int64) ([]models.OrderSummary, error) {
	summaries, err := s.OrderRepo.ListByUser(ctx, s.DB.Primary(), userID)
	if err != nil {
		return nil, pkg.HandleSQLError(traceID, s.Logger, err)
	}
	return summaries, nil
}

// priceItems resolves every cart line against the catalog and sums quantity × price.
// The first failure aborts; nothing has been charged at this point.
func (s *OrderServiceImpl) priceItems(ctx context.Context, traceID string, cartItems []dtos.CartItemDto) ([]models.OrderItem, int64, error) {
	items := make([]models.OrderItem, 0, len(cartItems))
	for _, cartItem := range cartItems {
		product, err := s.Catalog.GetProduct(ctx, traceID, cartItem.ProductID)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, models.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  cartItem.Quantity,
			Price:     product.Price,
		})
	}
	total, err := models.CheckedSum(items)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// compensateCharge records a successful charge that has no order behind it. The event carries
// the idempotency key and transaction id so a reconciler can refund it.
func (s *OrderServiceImpl) compensateCharge(traceID string, order models.Order) {
	observability.ChargesUnreconciled.Inc()
	s.Logger.Error("charge succeeded but order was not persisted",
		zap.String(pkg.TraceId, traceID),
		zap.Int64(pkg.UserId, order.UserID),
		zap.Int64("total", order.Total),
		zap.String(pkg.IdempotencyKey, order.IdempotencyKey.String()),
		zap.String(pkg.TransactionId, order.PaymentTransactionID),
	)
	s.Events.Publish(s.orderEvent(views.OrderEventChargeUnreconciled, traceID, order))
}

func (s *OrderServiceImpl) orderEvent(eventType views.OrderEventType, traceID string, order models.Order) views.OrderEvent {
	return views.OrderEvent{
		Type:           eventType,
		OrderID:        order.ID,
		UserID:         order.UserID,
		Total:          order.Total,
		Status:         order.Status,
		IdempotencyKey: order.IdempotencyKey.String(),
		TransactionID:  order.PaymentTransactionID,
		TraceID:        traceID,
		OccurredAt:     time.Now().UTC(),
	}
}

func (s *OrderServiceImpl) fail(traceID, reason string, err error) error {
	observability.OrdersFailed.WithLabelValues(reason).Inc()
	s.Logger.Debug("checkout aborted", zap.String(pkg.TraceId, traceID), zap.String("reason", reason))
	return err
}

func notificationMessage(order models.Order) string {
	return fmt.Sprintf("Your order #%d for ₹%d has been placed successfully.", order.ID, order.Total)
}
