package mysql

import (
	"context"

	"github.com/wyfcoding/ecommerce/internal/cart/domain"
	pkgdb "github.com/wyfcoding/ecommerce/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type cartRepository struct{ db *gorm.DB }

// NewCartRepository 创建购物车仓储
func NewCartRepository(db *gorm.DB) domain.Repository {
	return &cartRepository{db: db}
}

func (r *cartRepository) List(ctx context.Context, userID string) ([]*domain.CartItem, error) {
	var items []*domain.CartItem
	err := pkgdb.FromContext(ctx, r.db).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&items).Error
	return items, err
}

func (r *cartRepository) ListSelected(ctx context.Context, userID string) ([]*domain.CartItem, error) {
	var items []*domain.CartItem
	err := pkgdb.FromContext(ctx, r.db).
		Where("user_id = ? AND selected = ?", userID, true).
		Order("created_at ASC").
		Find(&items).Error
	return items, err
}

func (r *cartRepository) Upsert(ctx context.Context, item *domain.CartItem) error {
	return pkgdb.FromContext(ctx, r.db).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "product_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"quantity":     gorm.Expr("quantity + ?", item.Quantity),
			"price_at_add": item.PriceAtAdd,
			"selected":     true,
		}),
	}).Create(item).Error
}

func (r *cartRepository) UpdateQuantity(ctx context.Context, userID string, productID uint, quantity int) error {
	return pkgdb.FromContext(ctx, r.db).
		Model(&domain.CartItem{}).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Update("quantity", quantity).Error
}

func (r *cartRepository) SetSelected(ctx context.Context, userID string, productIDs []uint, selected bool) error {
	if len(productIDs) == 0 {
		return nil
	}
	return pkgdb.FromContext(ctx, r.db).
		Model(&domain.CartItem{}).
		Where("user_id = ? AND product_id IN ?", userID, productIDs).
		Update("selected", selected).Error
}

func (r *cartRepository) Remove(ctx context.Context, userID string, productID uint) error {
	return pkgdb.FromContext(ctx, r.db).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Delete(&domain.CartItem{}).Error
}

func (r *cartRepository) DeleteSelected(ctx context.Context, userID string) error {
	return pkgdb.FromContext(ctx, r.db).
		Where("user_id = ? AND selected = ?", userID, true).
		Delete(&domain.CartItem{}).Error
}

func (r *cartRepository) Clear(ctx context.Context, userID string) error {
	return pkgdb.FromContext(ctx, r.db).
		Where("user_id = ?", userID).
		Delete(&domain.CartItem{}).Error
}
