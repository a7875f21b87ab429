// Package application 实现订单服务的应用层
package application

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	cartdomain "github.com/wyfcoding/ecommerce/internal/cart/domain"
	catalogdomain "github.com/wyfcoding/ecommerce/internal/catalog/domain"
	inventorydomain "github.com/wyfcoding/ecommerce/internal/inventory/domain"
	"github.com/wyfcoding/ecommerce/internal/order/domain"
	pkgdb "github.com/wyfcoding/ecommerce/pkg/db"
	"github.com/wyfcoding/ecommerce/pkg/logger"
	"github.com/wyfcoding/ecommerce/pkg/metrics"
	"github.com/wyfcoding/ecommerce/pkg/utils"
)

// ErrEmptyCart 购物车中没有勾选的商品
var ErrEmptyCart = errors.New("no selected items in cart")

// CheckoutInput 结算请求
type CheckoutInput struct {
	UserID          string
	ShippingAddress domain.Address
	BillingAddress  *domain.Address
}

// CheckoutService 结算服务：把勾选的购物车行原子地转换为一张 pending 订单
type CheckoutService struct {
	orders   domain.Repository
	cart     cartdomain.Repository
	products catalogdomain.ProductReader
	ledger   inventorydomain.Ledger
	pricing  PricingPolicy
	tx       pkgdb.TxManager
	idgen    *utils.SnowflakeID
	metrics  *metrics.Metrics
}

// NewCheckoutService 创建结算服务
func NewCheckoutService(
	orders domain.Repository,
	cart cartdomain.Repository,
	products catalogdomain.ProductReader,
	ledger inventorydomain.Ledger,
	pricing PricingPolicy,
	tx pkgdb.TxManager,
	idgen *utils.SnowflakeID,
	m *metrics.Metrics,
) *CheckoutService {
	return &CheckoutService{
		orders:   orders,
		cart:     cart,
		products: products,
		ledger:   ledger,
		pricing:  pricing,
		tx:       tx,
		idgen:    idgen,
		metrics:  m,
	}
}

// Checkout 结算：在一个存储事务内扣减所有勾选商品的库存、
// 生成订单与商品快照、写入首条状态历史并清空已结算的购物车行。
// 任意一行库存不足则整单失败，事务回滚，已扣减的行自动恢复；
// 错误中带上全部不可用的商品行，而不是只报第一个。
func (s *CheckoutService) Checkout(ctx context.Context, input CheckoutInput) (*domain.Order, error) {
	lines, err := s.cart.ListSelected(ctx, input.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	// 按商品 ID 排序加锁，避免并发结算互相死锁
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })

	orderNumber := fmt.Sprintf("ORD%d", s.idgen.Generate())

	var order *domain.Order
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		var unavailable []domain.UnavailableItem
		items := make([]domain.OrderItem, 0, len(lines))
		subtotal := decimal.Zero

		for _, line := range lines {
			if err := s.ledger.Reserve(ctx, line.ProductID, line.Quantity, orderNumber, input.UserID); err != nil {
				var insufficient *inventorydomain.InsufficientStockError
				switch {
				case errors.As(err, &insufficient):
					s.metrics.StockInsufficient.Inc()
					unavailable = append(unavailable, domain.UnavailableItem{
						ProductID: line.ProductID,
						Requested: insufficient.Requested,
						Available: insufficient.Available,
						Reason:    "insufficient_stock",
					})
					continue
				case errors.Is(err, inventorydomain.ErrProductNotFound):
					unavailable = append(unavailable, domain.UnavailableItem{
						ProductID: line.ProductID,
						Requested: line.Quantity,
						Reason:    "product_not_found",
					})
					continue
				default:
					return fmt.Errorf("failed to reserve stock for product %d: %w", line.ProductID, err)
				}
			}

			// Reserve 已在本事务内锁定商品行，这里读到的是扣减后的最新快照
			product, err := s.products.Get(ctx, line.ProductID)
			if err != nil {
				return fmt.Errorf("failed to load product %d: %w", line.ProductID, err)
			}

			lineTotal := product.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
			subtotal = subtotal.Add(lineTotal)
			items = append(items, domain.OrderItem{
				ProductID:    product.ID,
				Quantity:     line.Quantity,
				UnitPrice:    product.Price,
				TotalPrice:   lineTotal,
				ProductName:  product.Name,
				ProductSKU:   product.SKU,
				ProductPrice: product.Price,
				ProductImage: product.ImageURL,
			})
		}

		if len(unavailable) > 0 {
			return &domain.CheckoutUnavailableError{Unavailable: unavailable}
		}

		totals := s.pricing.Price(subtotal)

		billing := input.ShippingAddress
		if input.BillingAddress != nil {
			billing = *input.BillingAddress
		}

		order = &domain.Order{
			OrderNumber:     orderNumber,
			UserID:          input.UserID,
			Status:          domain.StatusPending,
			PaymentStatus:   domain.PaymentPending,
			Subtotal:        totals.Subtotal,
			TaxAmount:       totals.TaxAmount,
			ShippingFee:     totals.ShippingFee,
			DiscountAmount:  totals.DiscountAmount,
			TotalAmount:     totals.TotalAmount,
			Currency:        totals.Currency,
			ShippingAddress: input.ShippingAddress,
			BillingAddress:  billing,
			Items:           items,
		}

		history := &domain.OrderStatusHistory{
			ToStatus: domain.StatusPending,
			Reason:   "order created",
			IsSystem: true,
		}
		if err := s.orders.Create(ctx, order, history); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		if err := s.cart.DeleteSelected(ctx, input.UserID); err != nil {
			return fmt.Errorf("failed to clear cart: %w", err)
		}
		return nil
	})
	if err != nil {
		s.metrics.CheckoutFailures.Inc()
		return nil, err
	}

	s.metrics.OrdersCreated.Inc()
	logger.Info(ctx, "Order created",
		"order_number", order.OrderNumber,
		"user_id", input.UserID,
		"items", len(order.Items),
		"total", order.TotalAmount.String())
	return order, nil
}
