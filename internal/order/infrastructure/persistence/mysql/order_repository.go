// Package mysql 提供订单仓储的 MySQL 实现
package mysql

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/wyfcoding/ecommerce/internal/order/domain"
	pkgdb "github.com/wyfcoding/ecommerce/pkg/db"
)

type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单仓储
func NewOrderRepository(db *gorm.DB) domain.Repository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(ctx context.Context, order *domain.Order, history *domain.OrderStatusHistory) error {
	db := pkgdb.FromContext(ctx, r.db)
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(order).Error; err != nil {
			return err
		}
		history.OrderID = order.ID
		return tx.Create(history).Error
	})
}

func (r *orderRepository) Get(ctx context.Context, orderNumber string) (*domain.Order, error) {
	db := pkgdb.FromContext(ctx, r.db)
	var order domain.Order
	err := db.WithContext(ctx).
		Preload("Items").
		Where("order_number = ?", orderNumber).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Order, int64, error) {
	db := pkgdb.FromContext(ctx, r.db)
	var total int64
	if err := db.WithContext(ctx).Model(&domain.Order{}).
		Where("user_id = ?", userID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var orders []*domain.Order
	err := db.WithContext(ctx).
		Preload("Items").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&orders).Error
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// Transition 用条件更新实现状态机迁移。WHERE 同时匹配 id 与当前状态，
// 两个并发迁移只有一个能生效；未生效的一方拿到 ErrStaleTransition，由调用方决定重试或放弃。
func (r *orderRepository) Transition(ctx context.Context, order *domain.Order, to domain.OrderStatus, set map[string]any, history *domain.OrderStatusHistory) error {
	db := pkgdb.FromContext(ctx, r.db)
	from := order.Status
	return db.Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{
			"status":       to,
			"lock_version": gorm.Expr("lock_version + 1"),
			"updated_at":   time.Now(),
		}
		for k, v := range set {
			updates[k] = v
		}
		result := tx.Model(&domain.Order{}).
			Where("id = ? AND status = ?", order.ID, from).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrStaleTransition
		}
		history.OrderID = order.ID
		history.FromStatus = from
		history.ToStatus = to
		if err := tx.Create(history).Error; err != nil {
			return err
		}
		order.Status = to
		order.LockVersion++
		return nil
	})
}

func (r *orderRepository) ListShippable(ctx context.Context, before time.Time, limit int) ([]*domain.Order, error) {
	db := pkgdb.FromContext(ctx, r.db)
	var orders []*domain.Order
	err := db.WithContext(ctx).
		Where("status IN ? AND payment_status = ? AND confirmed_at IS NOT NULL AND confirmed_at < ?",
			[]domain.OrderStatus{domain.StatusConfirmed, domain.StatusProcessing},
			domain.PaymentPaid, before).
		Order("confirmed_at ASC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *orderRepository) History(ctx context.Context, orderID uint) ([]*domain.OrderStatusHistory, error) {
	db := pkgdb.FromContext(ctx, r.db)
	var histories []*domain.OrderStatusHistory
	err := db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Find(&histories).Error
	if err != nil {
		return nil, err
	}
	return histories, nil
}
