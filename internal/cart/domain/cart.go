// Package domain 包含购物车的领域模型
package domain

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CartItem 购物车行，结算后即被清除，不再作为价格依据
type CartItem struct {
	gorm.Model
	// 用户 ID
	UserID string `gorm:"column:user_id;type:varchar(36);index:idx_cart_user_product,unique;not null" json:"user_id"`
	// 商品 ID
	ProductID uint `gorm:"column:product_id;index:idx_cart_user_product,unique;not null" json:"product_id"`
	// 数量
	Quantity int `gorm:"column:quantity;not null" json:"quantity"`
	// 加入时的单价（仅供展示，结算时以商品当前价为准）
	PriceAtAdd decimal.Decimal `gorm:"column:price_at_add;type:decimal(20,2);not null" json:"price_at_add"`
	// 是否勾选参与结算
	Selected bool `gorm:"column:selected;not null;default:true" json:"selected"`
}

// TableName 指定表名
func (CartItem) TableName() string { return "cart_items" }

// Repository 购物车仓储接口
type Repository interface {
	// List 获取用户全部购物车行
	List(ctx context.Context, userID string) ([]*CartItem, error)
	// ListSelected 获取用户勾选的购物车行
	ListSelected(ctx context.Context, userID string) ([]*CartItem, error)
	// Upsert 新增或叠加数量
	Upsert(ctx context.Context, item *CartItem) error
	// UpdateQuantity 修改数量
	UpdateQuantity(ctx context.Context, userID string, productID uint, quantity int) error
	// SetSelected 设置勾选状态
	SetSelected(ctx context.Context, userID string, productIDs []uint, selected bool) error
	// Remove 删除购物车行
	Remove(ctx context.Context, userID string, productID uint) error
	// DeleteSelected 删除勾选的购物车行（结算完成后调用）
	DeleteSelected(ctx context.Context, userID string) error
	// Clear 清空购物车
	Clear(ctx context.Context, userID string) error
}
