// Package http 提供库存管理的 HTTP 接口（管理端）
package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/ecommerce/internal/inventory/application"
	"github.com/wyfcoding/ecommerce/internal/inventory/domain"
	"github.com/wyfcoding/ecommerce/pkg/logger"
	"github.com/wyfcoding/ecommerce/pkg/response"
)

// InventoryHandler 库存 HTTP 处理器
type InventoryHandler struct {
	app *application.InventoryService
}

// NewInventoryHandler 创建库存 HTTP 处理器
func NewInventoryHandler(app *application.InventoryService) *InventoryHandler {
	return &InventoryHandler{app: app}
}

// RegisterRoutes 注册路由
func (h *InventoryHandler) RegisterRoutes(router *gin.Engine) {
	admin := router.Group("/api/v1/admin/inventory")
	{
		admin.POST("/:product_id/adjust", h.Adjust)
		admin.POST("/:product_id/initial", h.RegisterInitial)
		admin.GET("/:product_id/transactions", h.Transactions)
		admin.GET("/:product_id/verify", h.Verify)
	}
}

func productIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("product_id"), 10, 32)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid product id", nil)
		return 0, false
	}
	return uint(id), true
}

type adjustRequest struct {
	Delta    int    `json:"delta" binding:"required"`
	Reason   string `json:"reason" binding:"required"`
	Operator string `json:"operator" binding:"required"`
}

// Adjust 人工调整库存
func (h *InventoryHandler) Adjust(c *gin.Context) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}
	var req adjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err := h.app.Adjust(c.Request.Context(), productID, req.Delta, req.Reason, req.Operator); err != nil {
		h.renderError(c, err)
		return
	}
	response.Success(c, gin.H{"product_id": productID, "delta": req.Delta})
}

type initialRequest struct {
	Quantity int    `json:"quantity" binding:"required"`
	Operator string `json:"operator" binding:"required"`
}

// RegisterInitial 初始入库
func (h *InventoryHandler) RegisterInitial(c *gin.Context) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}
	var req initialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err := h.app.RegisterInitialStock(c.Request.Context(), productID, req.Quantity, req.Operator); err != nil {
		h.renderError(c, err)
		return
	}
	response.Success(c, gin.H{"product_id": productID, "quantity": req.Quantity})
}

// Transactions 查询库存流水
func (h *InventoryHandler) Transactions(c *gin.Context) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	txns, total, err := h.app.Transactions(c.Request.Context(), productID, limit, offset)
	if err != nil {
		h.renderError(c, err)
		return
	}
	response.Success(c, gin.H{"transactions": txns, "total": total})
}

// Verify 核对库存投影与流水之和
func (h *InventoryHandler) Verify(c *gin.Context) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}
	if err := h.app.VerifyProjection(c.Request.Context(), productID); err != nil {
		h.renderError(c, err)
		return
	}
	response.Success(c, gin.H{"product_id": productID, "consistent": true})
}

func (h *InventoryHandler) renderError(c *gin.Context, err error) {
	var insufficient *domain.InsufficientStockError
	switch {
	case errors.Is(err, domain.ErrProductNotFound):
		response.ErrorWithStatus(c, http.StatusNotFound, "product not found", nil)
	case errors.Is(err, domain.ErrInvalidQuantity):
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), nil)
	case errors.As(err, &insufficient):
		response.ErrorWithStatus(c, http.StatusConflict, err.Error(), nil)
	default:
		logger.Error(c.Request.Context(), "Inventory operation failed", "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, "internal error", nil)
	}
}
