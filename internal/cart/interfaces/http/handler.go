// Package http 提供购物车的 HTTP 接口
package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/ecommerce/internal/cart/application"
	catalogdomain "github.com/wyfcoding/ecommerce/internal/catalog/domain"
	"github.com/wyfcoding/ecommerce/pkg/logger"
	"github.com/wyfcoding/ecommerce/pkg/response"
)

// CartHandler 购物车 HTTP 处理器
type CartHandler struct {
	app *application.CartService
}

// NewCartHandler 创建购物车 HTTP 处理器
func NewCartHandler(app *application.CartService) *CartHandler {
	return &CartHandler{app: app}
}

// RegisterRoutes 注册路由
func (h *CartHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/cart")
	{
		api.GET("", h.GetCart)
		api.POST("/items", h.AddItem)
		api.PUT("/items/:product_id", h.UpdateQuantity)
		api.PUT("/selection", h.SetSelection)
		api.DELETE("/items/:product_id", h.RemoveItem)
		api.DELETE("", h.Clear)
	}
}

func userID(c *gin.Context) (string, bool) {
	uid := c.GetHeader("X-User-ID")
	if uid == "" {
		response.ErrorWithStatus(c, http.StatusUnauthorized, "missing user identity", nil)
		return "", false
	}
	return uid, true
}

func productIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("product_id"), 10, 32)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid product id", nil)
		return 0, false
	}
	return uint(id), true
}

// GetCart 获取购物车
func (h *CartHandler) GetCart(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	items, err := h.app.GetCart(c.Request.Context(), uid)
	if err != nil {
		logger.Error(c.Request.Context(), "Failed to load cart", "user_id", uid, "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, "failed to load cart", nil)
		return
	}
	response.Success(c, items)
}

type addItemRequest struct {
	ProductID uint `json:"product_id" binding:"required"`
	Quantity  int  `json:"quantity" binding:"required"`
}

// AddItem 添加商品
func (h *CartHandler) AddItem(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err := h.app.AddItem(c.Request.Context(), uid, req.ProductID, req.Quantity); err != nil {
		h.renderError(c, err)
		return
	}
	response.Success(c, gin.H{"product_id": req.ProductID, "quantity": req.Quantity})
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity" binding:"required"`
}

// UpdateQuantity 修改数量
func (h *CartHandler) UpdateQuantity(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	productID, ok := productIDParam(c)
	if !ok {
		return
	}
	var req updateQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err := h.app.UpdateQuantity(c.Request.Context(), uid, productID, req.Quantity); err != nil {
		h.renderError(c, err)
		return
	}
	response.Success(c, gin.H{"product_id": productID, "quantity": req.Quantity})
}

type selectionRequest struct {
	ProductIDs []uint `json:"product_ids" binding:"required"`
	Selected   *bool  `json:"selected" binding:"required"`
}

// SetSelection 设置勾选状态
func (h *CartHandler) SetSelection(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	var req selectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err := h.app.SelectItems(c.Request.Context(), uid, req.ProductIDs, *req.Selected); err != nil {
		h.renderError(c, err)
		return
	}
	response.Success(c, nil)
}

// RemoveItem 删除商品
func (h *CartHandler) RemoveItem(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	productID, ok := productIDParam(c)
	if !ok {
		return
	}
	if err := h.app.RemoveItem(c.Request.Context(), uid, productID); err != nil {
		h.renderError(c, err)
		return
	}
	response.Success(c, nil)
}

// Clear 清空购物车
func (h *CartHandler) Clear(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	if err := h.app.Clear(c.Request.Context(), uid); err != nil {
		h.renderError(c, err)
		return
	}
	response.Success(c, nil)
}

func (h *CartHandler) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, application.ErrInvalidQuantity):
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, catalogdomain.ErrProductNotFound):
		response.ErrorWithStatus(c, http.StatusNotFound, "product not found", nil)
	default:
		logger.Error(c.Request.Context(), "Cart operation failed", "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, "internal error", nil)
	}
}
