package mysql

import (
	"context"
	"errors"

	"github.com/wyfcoding/ecommerce/internal/catalog/domain"
	pkgdb "github.com/wyfcoding/ecommerce/pkg/db"
	"gorm.io/gorm"
)

type productRepository struct{ db *gorm.DB }

// NewProductRepository 创建商品只读仓储
func NewProductRepository(db *gorm.DB) domain.ProductReader {
	return &productRepository{db: db}
}

func (r *productRepository) Get(ctx context.Context, id uint) (*domain.Product, error) {
	var product domain.Product
	if err := pkgdb.FromContext(ctx, r.db).First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrProductNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (r *productRepository) GetBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	var product domain.Product
	if err := pkgdb.FromContext(ctx, r.db).Where("sku = ?", sku).First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrProductNotFound
		}
		return nil, err
	}
	return &product, nil
}
