// Package application 库存应用服务：人工调整、初始入库与流水审计
package application

import (
	"context"
	"fmt"

	catalogdomain "github.com/wyfcoding/ecommerce/internal/catalog/domain"
	"github.com/wyfcoding/ecommerce/internal/inventory/domain"
	"github.com/wyfcoding/ecommerce/pkg/logger"
)

// InventoryService 库存应用服务
type InventoryService struct {
	ledger   domain.Ledger
	txns     domain.TransactionRepository
	products catalogdomain.ProductReader
}

// NewInventoryService 创建库存应用服务
func NewInventoryService(ledger domain.Ledger, txns domain.TransactionRepository, products catalogdomain.ProductReader) *InventoryService {
	return &InventoryService{ledger: ledger, txns: txns, products: products}
}

// Adjust 人工调整库存
func (s *InventoryService) Adjust(ctx context.Context, productID uint, delta int, reason, operator string) error {
	if err := s.ledger.Adjust(ctx, productID, delta, reason, operator); err != nil {
		return err
	}
	logger.Info(ctx, "Stock adjusted",
		"product_id", productID,
		"delta", delta,
		"operator", operator,
		"reason", reason,
	)
	return nil
}

// RegisterInitialStock 初始入库
func (s *InventoryService) RegisterInitialStock(ctx context.Context, productID uint, quantity int, operator string) error {
	if err := s.ledger.RecordInitial(ctx, productID, quantity, operator); err != nil {
		return err
	}
	logger.Info(ctx, "Initial stock registered",
		"product_id", productID,
		"quantity", quantity,
		"operator", operator,
	)
	return nil
}

// Transactions 查询商品库存流水
func (s *InventoryService) Transactions(ctx context.Context, productID uint, limit, offset int) ([]*domain.InventoryTransaction, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.txns.ListByProduct(ctx, productID, limit, offset)
}

// VerifyProjection 核对商品库存投影与流水之和是否一致
func (s *InventoryService) VerifyProjection(ctx context.Context, productID uint) error {
	product, err := s.products.Get(ctx, productID)
	if err != nil {
		return err
	}
	sum, err := s.txns.SumDeltas(ctx, productID)
	if err != nil {
		return err
	}
	if product.StockQuantity != sum {
		return fmt.Errorf("stock projection mismatch for product %d: stock_quantity=%d, ledger sum=%d",
			productID, product.StockQuantity, sum)
	}
	return nil
}
