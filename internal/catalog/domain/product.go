// Package domain 包含商品目录的领域模型
// 本服务只读取商品信息并通过库存流水账维护 stock_quantity/sold_count，
// 商品的增删改由目录服务负责
package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrProductNotFound 商品不存在
var ErrProductNotFound = errors.New("product not found")

// Product 商品实体
type Product struct {
	gorm.Model
	// 商品编码
	SKU string `gorm:"column:sku;type:varchar(64);uniqueIndex;not null" json:"sku"`
	// 商品名称
	Name string `gorm:"column:name;type:varchar(255);not null" json:"name"`
	// 商品描述
	Description string `gorm:"column:description;type:text" json:"description"`
	// 单价
	Price decimal.Decimal `gorm:"column:price;type:decimal(20,2);not null" json:"price"`
	// 主图地址
	ImageURL string `gorm:"column:image_url;type:varchar(512)" json:"image_url"`
	// 当前库存（库存流水的投影，始终等于流水 delta 之和）
	StockQuantity int `gorm:"column:stock_quantity;not null;default:0" json:"stock_quantity"`
	// 累计售出数量
	SoldCount int `gorm:"column:sold_count;not null;default:0" json:"sold_count"`
	// 乐观锁版本号
	LockVersion int64 `gorm:"column:lock_version;not null;default:0" json:"-"`
	// 分类
	Category string `gorm:"column:category;type:varchar(100);index" json:"category"`
}

// TableName 指定表名
func (Product) TableName() string { return "products" }

// ProductReader 商品只读仓储接口
type ProductReader interface {
	// 按 ID 获取商品
	Get(ctx context.Context, id uint) (*Product, error)
	// 按 SKU 获取商品
	GetBySKU(ctx context.Context, sku string) (*Product, error)
}
