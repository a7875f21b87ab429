// Package domain 包含库存流水账的领域模型
// 所有库存变动都必须经过 Ledger，products.stock_quantity 只是流水 delta 之和的投影
package domain

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// TransactionType 库存变动类型
type TransactionType string

const (
	TransactionTypeSale       TransactionType = "sale"       // 下单扣减
	TransactionTypeReturn     TransactionType = "return"     // 取消/退款回补
	TransactionTypeAdjustment TransactionType = "adjustment" // 人工调整
	TransactionTypeInitial    TransactionType = "initial"    // 初始入库
)

// InventoryTransaction 库存流水，追加写入，创建后不可修改
type InventoryTransaction struct {
	gorm.Model
	// 流水号
	TxnID string `gorm:"column:txn_id;type:varchar(32);uniqueIndex;not null" json:"txn_id"`
	// 商品 ID
	ProductID uint `gorm:"column:product_id;index;not null" json:"product_id"`
	// 变动类型
	Type TransactionType `gorm:"column:type;type:varchar(20);not null" json:"type"`
	// 变动数量（扣减为负）
	QuantityDelta int `gorm:"column:quantity_delta;not null" json:"quantity_delta"`
	// 变动前库存
	PreviousStock int `gorm:"column:previous_stock;not null" json:"previous_stock"`
	// 变动后库存
	NewStock int `gorm:"column:new_stock;not null" json:"new_stock"`
	// 关联订单号（下单/回补时填写）
	OrderNumber string `gorm:"column:order_number;type:varchar(32);index" json:"order_number"`
	// 关联用户
	UserID string `gorm:"column:user_id;type:varchar(36);index" json:"user_id"`
	// 变动原因
	Reason string `gorm:"column:reason;type:varchar(255)" json:"reason"`
}

// TableName 指定表名
func (InventoryTransaction) TableName() string { return "inventory_transactions" }

// NewTransaction 创建流水记录，校验 new = previous + delta 且 new >= 0
func NewTransaction(txnID string, productID uint, txnType TransactionType, delta, previous, next int, orderNumber, userID, reason string) (*InventoryTransaction, error) {
	if next != previous+delta {
		return nil, fmt.Errorf("inconsistent stock transition: %d + %d != %d", previous, delta, next)
	}
	if next < 0 {
		return nil, fmt.Errorf("stock cannot go negative: %d", next)
	}
	return &InventoryTransaction{
		TxnID:         txnID,
		ProductID:     productID,
		Type:          txnType,
		QuantityDelta: delta,
		PreviousStock: previous,
		NewStock:      next,
		OrderNumber:   orderNumber,
		UserID:        userID,
		Reason:        reason,
	}, nil
}

// InsufficientStockError 库存不足
type InsufficientStockError struct {
	ProductID uint
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

var (
	// ErrInvalidQuantity 数量非法
	ErrInvalidQuantity = errors.New("quantity must be positive")
	// ErrProductNotFound 商品不存在
	ErrProductNotFound = errors.New("product not found")
)

// Ledger 库存流水账接口
// 三个操作都要求对同一商品的并发调用串行化，且扣减/写流水在同一原子单元内完成
type Ledger interface {
	// Reserve 原子扣减库存并写一条 sale 流水，同时累加 sold_count，
	// 库存不足时返回 *InsufficientStockError 且不产生任何变更
	Reserve(ctx context.Context, productID uint, quantity int, orderNumber, userID string) error
	// Release 原子回补库存并写一条 return 流水，同时扣减 sold_count，总是成功
	Release(ctx context.Context, productID uint, quantity int, orderNumber, reason string) error
	// Adjust 人工调整库存，delta 可正可负，调整后库存不得为负
	Adjust(ctx context.Context, productID uint, delta int, reason, operator string) error
	// RecordInitial 初始入库
	RecordInitial(ctx context.Context, productID uint, quantity int, operator string) error
}

// TransactionRepository 库存流水只读仓储
type TransactionRepository interface {
	// ListByProduct 按商品查询流水
	ListByProduct(ctx context.Context, productID uint, limit, offset int) ([]*InventoryTransaction, int64, error)
	// SumDeltas 商品全部流水 delta 之和，用于核对投影
	SumDeltas(ctx context.Context, productID uint) (int, error)
}
