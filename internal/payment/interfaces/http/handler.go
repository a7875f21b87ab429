// Package http 提供支付对账的 HTTP 接口
package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/ecommerce/internal/payment/application"
	"github.com/wyfcoding/ecommerce/internal/payment/domain"
	"github.com/wyfcoding/ecommerce/pkg/logger"
	"github.com/wyfcoding/ecommerce/pkg/response"
)

// PaymentHandler 支付 HTTP 处理器
type PaymentHandler struct {
	gateway *application.Gateway
}

// NewPaymentHandler 创建支付 HTTP 处理器
func NewPaymentHandler(gateway *application.Gateway) *PaymentHandler {
	return &PaymentHandler{gateway: gateway}
}

// RegisterRoutes 注册路由
func (h *PaymentHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.POST("/payments/confirm", h.ConfirmPayment)
	}
	// webhook 不走用户侧中间件分组，签名校验就是它的认证
	router.POST("/webhooks/payment", h.HandleWebhook)
}

type confirmRequest struct {
	OrderNumber     string `json:"order_number" binding:"required"`
	PaymentIntentID string `json:"payment_intent_id" binding:"required"`
}

// ConfirmPayment 同步支付确认：向渠道核实后应用结果
func (h *PaymentHandler) ConfirmPayment(c *gin.Context) {
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	order, err := h.gateway.ConfirmPayment(c.Request.Context(), req.OrderNumber, req.PaymentIntentID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnknownOrder):
			response.ErrorWithStatus(c, http.StatusNotFound, "order not found", nil)
		default:
			logger.Error(c.Request.Context(), "Payment confirmation failed",
				"order_number", req.OrderNumber, "error", err)
			response.ErrorWithStatus(c, http.StatusBadGateway, "payment confirmation failed", nil)
		}
		return
	}

	response.Success(c, order)
}

// HandleWebhook 支付渠道异步回调。
// 未知订单返回 200，避免渠道无限重试一个永远不会被认领的事件；
// 签名不合法返回 400。
func (h *PaymentHandler) HandleWebhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "failed to read payload", nil)
		return
	}

	err = h.gateway.HandleWebhook(c.Request.Context(), payload, c.Request.Header)
	if err != nil && !errors.Is(err, domain.ErrUnknownOrder) {
		logger.Error(c.Request.Context(), "Webhook processing failed", "error", err)
		response.ErrorWithStatus(c, http.StatusBadRequest, "webhook rejected", nil)
		return
	}

	response.Success(c, nil)
}
