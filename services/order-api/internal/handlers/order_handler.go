package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg/utils"
	"github.com/nimeshabuddhika/shopsphere-orders/services/order-api/internal/services"
	"github.com/nimeshabuddhika/shopsphere-orders/services/order-api/internal/views"
	"go.uber.org/zap"
)

type OrderHandler struct {
	logger  *zap.Logger
	service services.OrderService
}

func NewOrderHandler(logger *zap.Logger, svc services.OrderService) *OrderHandler {
	return &OrderHandler{logger: logger, service: svc}
}

// RegisterRoutes registers order routes. Extra handlers (rate limiting) run before CreateOrder only.
func (h *OrderHandler) RegisterRoutes(r *gin.RouterGroup, createMiddlewares ...gin.HandlerFunc) {
	r.POST("/orders", append(createMiddlewares, h.CreateOrder)...)
	r.GET("/orders", h.ListOrders)
}

// CreateOrder checks out the caller's cart. A declined payment still answers 201 with status FAILED.
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	traceID, userID, ok := h.caller(c)
	if !ok {
		return
	}

	order, err := h.service.CreateOrder(c.Request.Context(), traceID, userID)
	if err != nil {
		resp := pkg.ToErrorResponse(h.logger, traceID, err)
		c.JSON(resp.Status, resp)
		return
	}
	c.JSON(http.StatusCreated, views.ToOrderView(order))
}

func (h *OrderHandler) ListOrders(c *gin.Context) {
	traceID, userID, ok := h.caller(c)
	if !ok {
		return
	}

	summaries, err := h.service.ListOrders(c.Request.Context(), traceID, userID)
	if err != nil {
		resp := pkg.ToErrorResponse(h.logger, traceID, err)
		c.JSON(resp.Status, resp)
		return
	}
	c.JSON(http.StatusOK, views.ToOrderSummaryViews(summaries))
}

func (h *OrderHandler) caller(c *gin.Context) (string, int64, bool) {
	traceID, err := utils.GetTraceID(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, pkg.ToErrorResponse(h.logger, traceID, err))
		return "", 0, false
	}
	userID, err := utils.GetUserID(c)
	if err != nil {
		resp := pkg.ToErrorResponse(h.logger, traceID, pkg.NewAppError(pkg.ErrUnauthorizedCode, pkg.ErrUnauthorizedCode.Message, err))
		c.JSON(resp.Status, resp)
		return "", 0, false
	}
	return traceID, userID, true
}
