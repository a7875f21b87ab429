package application

import (
	"context"
	"fmt"
	"time"

	"github.com/wyfcoding/ecommerce/internal/order/domain"
	"github.com/wyfcoding/ecommerce/pkg/cache"
	"github.com/wyfcoding/ecommerce/pkg/logger"
)

// QueryCache 订单查询缓存失效接口，状态迁移后由命令服务调用
type QueryCache interface {
	Invalidate(ctx context.Context, orderNumber string)
}

// NopQueryCache 空缓存实现
type NopQueryCache struct{}

func (NopQueryCache) Invalidate(context.Context, string) {}

const orderCacheTTL = 5 * time.Minute

// QueryService 订单查询服务，读多写少的订单详情走 Redis 缓存
type QueryService struct {
	orders domain.Repository
	cache  *cache.RedisCache
}

// NewQueryService 创建订单查询服务，cache 可为 nil 表示不启用缓存
func NewQueryService(orders domain.Repository, c *cache.RedisCache) *QueryService {
	return &QueryService{orders: orders, cache: c}
}

func orderCacheKey(orderNumber string) string {
	return fmt.Sprintf("order:%s", orderNumber)
}

// Get 获取订单详情，缓存未命中时回源数据库
func (s *QueryService) Get(ctx context.Context, userID, orderNumber string) (*domain.Order, error) {
	if s.cache != nil {
		var cached domain.Order
		found, err := s.cache.GetJSON(ctx, orderCacheKey(orderNumber), &cached)
		if err != nil {
			logger.Warn(ctx, "Order cache read failed", "order_number", orderNumber, "error", err)
		} else if found {
			if userID != "" && cached.UserID != userID {
				return nil, ErrForbidden
			}
			return &cached, nil
		}
	}

	order, err := s.orders.Get(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if userID != "" && order.UserID != userID {
		return nil, ErrForbidden
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, orderCacheKey(orderNumber), order, orderCacheTTL); err != nil {
			logger.Warn(ctx, "Order cache write failed", "order_number", orderNumber, "error", err)
		}
	}
	return order, nil
}

// ListByUser 分页获取用户订单
func (s *QueryService) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Order, int64, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.orders.ListByUser(ctx, userID, limit, offset)
}

// History 获取订单完整状态历史
func (s *QueryService) History(ctx context.Context, userID, orderNumber string) ([]*domain.OrderStatusHistory, error) {
	order, err := s.orders.Get(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if userID != "" && order.UserID != userID {
		return nil, ErrForbidden
	}
	return s.orders.History(ctx, order.ID)
}

// Invalidate 使订单缓存失效
func (s *QueryService) Invalidate(ctx context.Context, orderNumber string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, orderCacheKey(orderNumber)); err != nil {
		logger.Warn(ctx, "Order cache invalidation failed", "order_number", orderNumber, "error", err)
	}
}
