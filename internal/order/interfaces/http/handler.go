// Package http 提供订单服务的 HTTP 接口
package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/ecommerce/internal/order/application"
	"github.com/wyfcoding/ecommerce/internal/order/domain"
	"github.com/wyfcoding/ecommerce/pkg/logger"
	"github.com/wyfcoding/ecommerce/pkg/response"
)

// OrderHandler 订单 HTTP 处理器
type OrderHandler struct {
	checkout *application.CheckoutService
	commands *application.CommandService
	queries  *application.QueryService
}

// NewOrderHandler 创建订单 HTTP 处理器
func NewOrderHandler(checkout *application.CheckoutService, commands *application.CommandService, queries *application.QueryService) *OrderHandler {
	return &OrderHandler{checkout: checkout, commands: commands, queries: queries}
}

// RegisterRoutes 注册路由
func (h *OrderHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.POST("/checkout", h.Checkout)
		api.GET("/orders", h.ListOrders)
		api.GET("/orders/:order_number", h.GetOrder)
		api.GET("/orders/:order_number/history", h.GetHistory)
		api.POST("/orders/:order_number/cancel", h.CancelOrder)
		api.POST("/orders/:order_number/delivered", h.MarkDelivered)
	}
	admin := router.Group("/api/v1/admin")
	{
		admin.PUT("/orders/:order_number/status", h.AdminSetStatus)
		admin.POST("/orders/:order_number/notifications/shipped", h.ResendShippedNotification)
	}
}

// userID 从请求头取用户标识，上游网关负责认证
func userID(c *gin.Context) string {
	return c.GetHeader("X-User-ID")
}

type checkoutRequest struct {
	ShippingAddress domain.Address  `json:"shipping_address" binding:"required"`
	BillingAddress  *domain.Address `json:"billing_address"`
}

// Checkout 结算下单
func (h *OrderHandler) Checkout(c *gin.Context) {
	uid := userID(c)
	if uid == "" {
		response.ErrorWithStatus(c, http.StatusUnauthorized, "missing user identity", nil)
		return
	}

	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	order, err := h.checkout.Checkout(c.Request.Context(), application.CheckoutInput{
		UserID:          uid,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
	})
	if err != nil {
		var unavailable *domain.CheckoutUnavailableError
		switch {
		case errors.Is(err, application.ErrEmptyCart):
			response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), nil)
		case errors.As(err, &unavailable):
			response.ErrorWithStatus(c, http.StatusConflict, err.Error(), unavailable.Unavailable)
		default:
			logger.Error(c.Request.Context(), "Checkout failed", "user_id", uid, "error", err)
			response.ErrorWithStatus(c, http.StatusInternalServerError, "checkout failed", nil)
		}
		return
	}

	response.Created(c, order)
}

// GetOrder 获取订单详情
func (h *OrderHandler) GetOrder(c *gin.Context) {
	orderNumber := c.Param("order_number")
	order, err := h.queries.Get(c.Request.Context(), userID(c), orderNumber)
	if err != nil {
		h.renderError(c, orderNumber, err)
		return
	}
	response.Success(c, order)
}

// ListOrders 分页获取当前用户订单
func (h *OrderHandler) ListOrders(c *gin.Context) {
	uid := userID(c)
	if uid == "" {
		response.ErrorWithStatus(c, http.StatusUnauthorized, "missing user identity", nil)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	orders, total, err := h.queries.ListByUser(c.Request.Context(), uid, limit, offset)
	if err != nil {
		logger.Error(c.Request.Context(), "Failed to list orders", "user_id", uid, "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, "failed to list orders", nil)
		return
	}

	response.Success(c, gin.H{"orders": orders, "total": total})
}

// GetHistory 获取订单状态历史
func (h *OrderHandler) GetHistory(c *gin.Context) {
	orderNumber := c.Param("order_number")
	histories, err := h.queries.History(c.Request.Context(), userID(c), orderNumber)
	if err != nil {
		h.renderError(c, orderNumber, err)
		return
	}
	response.Success(c, histories)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// CancelOrder 取消订单
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	uid := userID(c)
	if uid == "" {
		response.ErrorWithStatus(c, http.StatusUnauthorized, "missing user identity", nil)
		return
	}
	orderNumber := c.Param("order_number")

	var req cancelRequest
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "cancelled by customer"
	}

	if err := h.commands.Cancel(c.Request.Context(), uid, orderNumber, req.Reason); err != nil {
		h.renderError(c, orderNumber, err)
		return
	}
	response.Success(c, gin.H{"order_number": orderNumber, "status": domain.StatusCancelled})
}

// MarkDelivered 确认签收
func (h *OrderHandler) MarkDelivered(c *gin.Context) {
	orderNumber := c.Param("order_number")
	if err := h.commands.MarkDelivered(c.Request.Context(), orderNumber); err != nil {
		h.renderError(c, orderNumber, err)
		return
	}
	response.Success(c, gin.H{"order_number": orderNumber, "status": domain.StatusDelivered})
}

type setStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason"`
}

// AdminSetStatus 管理端手工迁移订单状态
func (h *OrderHandler) AdminSetStatus(c *gin.Context) {
	orderNumber := c.Param("order_number")

	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if req.Reason == "" {
		req.Reason = "status updated by operator"
	}

	if err := h.commands.AdminSetStatus(c.Request.Context(), orderNumber, domain.OrderStatus(req.Status), req.Reason); err != nil {
		h.renderError(c, orderNumber, err)
		return
	}
	response.Success(c, gin.H{"order_number": orderNumber, "status": req.Status})
}

// ResendShippedNotification 补发发货通知
func (h *OrderHandler) ResendShippedNotification(c *gin.Context) {
	orderNumber := c.Param("order_number")
	if err := h.commands.ResendShippedNotification(c.Request.Context(), orderNumber); err != nil {
		h.renderError(c, orderNumber, err)
		return
	}
	response.Success(c, gin.H{"order_number": orderNumber})
}

// renderError 把领域错误映射为 HTTP 状态码
func (h *OrderHandler) renderError(c *gin.Context, orderNumber string, err error) {
	var invalid *domain.InvalidTransitionError
	var notCancellable *domain.NotCancellableError
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		response.ErrorWithStatus(c, http.StatusNotFound, "order not found", nil)
	case errors.Is(err, application.ErrForbidden):
		// 不暴露他人订单的存在性
		response.ErrorWithStatus(c, http.StatusNotFound, "order not found", nil)
	case errors.As(err, &invalid), errors.As(err, &notCancellable), errors.Is(err, domain.ErrStaleTransition):
		response.ErrorWithStatus(c, http.StatusConflict, err.Error(), nil)
	default:
		logger.Error(c.Request.Context(), "Order operation failed", "order_number", orderNumber, "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, "internal error", nil)
	}
}
