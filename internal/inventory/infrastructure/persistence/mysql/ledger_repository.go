package mysql

import (
	"context"
	"errors"
	"fmt"

	catalogdomain "github.com/wyfcoding/ecommerce/internal/catalog/domain"
	"github.com/wyfcoding/ecommerce/internal/inventory/domain"
	pkgdb "github.com/wyfcoding/ecommerce/pkg/db"
	"github.com/wyfcoding/ecommerce/pkg/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ledgerRepository 基于 MySQL 的库存流水账实现
// 通过 SELECT ... FOR UPDATE 串行化同一商品的并发变更，
// 商品行更新与流水写入在同一事务内完成
type ledgerRepository struct {
	db    *gorm.DB
	idgen *utils.SnowflakeID
}

// NewLedgerRepository 创建库存流水账
func NewLedgerRepository(db *gorm.DB, idgen *utils.SnowflakeID) domain.Ledger {
	return &ledgerRepository{db: db, idgen: idgen}
}

func (r *ledgerRepository) Reserve(ctx context.Context, productID uint, quantity int, orderNumber, userID string) error {
	if quantity <= 0 {
		return domain.ErrInvalidQuantity
	}
	return r.mutate(ctx, productID, -quantity, quantity, domain.TransactionTypeSale, orderNumber, userID, "order_reservation")
}

func (r *ledgerRepository) Release(ctx context.Context, productID uint, quantity int, orderNumber, reason string) error {
	if quantity <= 0 {
		return domain.ErrInvalidQuantity
	}
	return r.mutate(ctx, productID, quantity, -quantity, domain.TransactionTypeReturn, orderNumber, "", reason)
}

func (r *ledgerRepository) Adjust(ctx context.Context, productID uint, delta int, reason, operator string) error {
	if delta == 0 {
		return domain.ErrInvalidQuantity
	}
	return r.mutate(ctx, productID, delta, 0, domain.TransactionTypeAdjustment, "", operator, reason)
}

func (r *ledgerRepository) RecordInitial(ctx context.Context, productID uint, quantity int, operator string) error {
	if quantity <= 0 {
		return domain.ErrInvalidQuantity
	}
	return r.mutate(ctx, productID, quantity, 0, domain.TransactionTypeInitial, "", operator, "initial_stock")
}

// mutate 在单个事务内锁定商品行、条件更新库存并写入流水
// stockDelta 为库存变动量，soldDelta 为 sold_count 变动量
func (r *ledgerRepository) mutate(ctx context.Context, productID uint, stockDelta, soldDelta int, txnType domain.TransactionType, orderNumber, userID, reason string) error {
	db := pkgdb.FromContext(ctx, r.db)
	return db.Transaction(func(tx *gorm.DB) error {
		var product catalogdomain.Product
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&product, productID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrProductNotFound
			}
			return err
		}

		newStock := product.StockQuantity + stockDelta
		if newStock < 0 {
			return &domain.InsufficientStockError{
				ProductID: productID,
				Requested: -stockDelta,
				Available: product.StockQuantity,
			}
		}

		// 条件更新携带版本号，未命中说明行在锁外被修改
		result := tx.Model(&catalogdomain.Product{}).
			Where("id = ? AND lock_version = ?", productID, product.LockVersion).
			Updates(map[string]any{
				"stock_quantity": newStock,
				"sold_count":     gorm.Expr("sold_count + ?", soldDelta),
				"lock_version":   product.LockVersion + 1,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("optimistic lock failed: product %d modified by another transaction", productID)
		}

		txn, err := domain.NewTransaction(
			fmt.Sprintf("ITX%d", r.idgen.Generate()),
			productID, txnType, stockDelta, product.StockQuantity, newStock,
			orderNumber, userID, reason,
		)
		if err != nil {
			return err
		}
		return tx.Create(txn).Error
	})
}

// transactionRepository 库存流水只读仓储实现
type transactionRepository struct{ db *gorm.DB }

// NewTransactionRepository 创建库存流水查询仓储
func NewTransactionRepository(db *gorm.DB) domain.TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) ListByProduct(ctx context.Context, productID uint, limit, offset int) ([]*domain.InventoryTransaction, int64, error) {
	db := pkgdb.FromContext(ctx, r.db)

	var total int64
	if err := db.Model(&domain.InventoryTransaction{}).Where("product_id = ?", productID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var txns []*domain.InventoryTransaction
	err := db.Where("product_id = ?", productID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&txns).Error
	if err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}

func (r *transactionRepository) SumDeltas(ctx context.Context, productID uint) (int, error) {
	var sum *int
	err := pkgdb.FromContext(ctx, r.db).
		Model(&domain.InventoryTransaction{}).
		Where("product_id = ?", productID).
		Select("SUM(quantity_delta)").
		Scan(&sum).Error
	if err != nil {
		return 0, err
	}
	if sum == nil {
		return 0, nil
	}
	return *sum, nil
}
