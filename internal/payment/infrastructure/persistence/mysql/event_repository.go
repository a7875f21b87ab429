// Package mysql 提供支付事件仓储的 MySQL 实现
package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/wyfcoding/ecommerce/internal/payment/domain"
	pkgdb "github.com/wyfcoding/ecommerce/pkg/db"
)

type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository 创建支付事件仓储
func NewEventRepository(db *gorm.DB) domain.EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) IsApplied(ctx context.Context, eventID string) (bool, error) {
	db := pkgdb.FromContext(ctx, r.db)
	var event domain.PaymentEvent
	err := db.WithContext(ctx).
		Select("id").
		Where("event_id = ?", eventID).
		First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Record 依赖 event_id 唯一索引兜底并发：两个事务同时写同一事件时，
// 后提交的一方收到唯一键冲突，整个事务回滚，渠道重试后命中去重检查
func (r *eventRepository) Record(ctx context.Context, event *domain.PaymentEvent) error {
	db := pkgdb.FromContext(ctx, r.db)
	return db.WithContext(ctx).Create(event).Error
}
