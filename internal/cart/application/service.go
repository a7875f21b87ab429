// Package application 购物车应用服务
package application

import (
	"context"
	"errors"

	catalogdomain "github.com/wyfcoding/ecommerce/internal/catalog/domain"
	"github.com/wyfcoding/ecommerce/internal/cart/domain"
)

// ErrInvalidQuantity 数量非法
var ErrInvalidQuantity = errors.New("quantity must be positive")

// CartService 购物车应用服务
type CartService struct {
	repo     domain.Repository
	products catalogdomain.ProductReader
}

// NewCartService 创建购物车应用服务
func NewCartService(repo domain.Repository, products catalogdomain.ProductReader) *CartService {
	return &CartService{repo: repo, products: products}
}

// AddItem 添加商品到购物车，已存在时叠加数量
func (s *CartService) AddItem(ctx context.Context, userID string, productID uint, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}

	product, err := s.products.Get(ctx, productID)
	if err != nil {
		return err
	}

	item := &domain.CartItem{
		UserID:     userID,
		ProductID:  productID,
		Quantity:   quantity,
		PriceAtAdd: product.Price,
		Selected:   true,
	}
	return s.repo.Upsert(ctx, item)
}

// UpdateQuantity 修改购物车行数量
func (s *CartService) UpdateQuantity(ctx context.Context, userID string, productID uint, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	return s.repo.UpdateQuantity(ctx, userID, productID, quantity)
}

// SelectItems 设置购物车行的勾选状态
func (s *CartService) SelectItems(ctx context.Context, userID string, productIDs []uint, selected bool) error {
	return s.repo.SetSelected(ctx, userID, productIDs, selected)
}

// RemoveItem 从购物车移除商品
func (s *CartService) RemoveItem(ctx context.Context, userID string, productID uint) error {
	return s.repo.Remove(ctx, userID, productID)
}

// Clear 清空购物车
func (s *CartService) Clear(ctx context.Context, userID string) error {
	return s.repo.Clear(ctx, userID)
}

// GetCart 获取用户购物车
func (s *CartService) GetCart(ctx context.Context, userID string) ([]*domain.CartItem, error) {
	return s.repo.List(ctx, userID)
}
