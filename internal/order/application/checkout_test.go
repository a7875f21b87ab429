package application

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	cartdomain "github.com/wyfcoding/ecommerce/internal/cart/domain"
	catalogdomain "github.com/wyfcoding/ecommerce/internal/catalog/domain"
	"github.com/wyfcoding/ecommerce/internal/order/domain"
	"github.com/wyfcoding/ecommerce/pkg/config"
	"github.com/wyfcoding/ecommerce/pkg/metrics"
	"github.com/wyfcoding/ecommerce/pkg/utils"
)

func testPricing() PricingPolicy {
	return NewStandardPricing(config.PricingConfig{
		TaxRate:               0.10,
		FlatShipping:          10,
		FreeShippingThreshold: 100,
		Currency:              "USD",
	})
}

type checkoutEnv struct {
	orders   *fakeOrderRepo
	cart     *fakeCartRepo
	products *fakeProducts
	ledger   *fakeLedger
	service  *CheckoutService
}

func newCheckoutEnv(t *testing.T, stock map[uint]int, products ...*catalogdomain.Product) *checkoutEnv {
	t.Helper()
	orders := newFakeOrderRepo()
	cart := newFakeCartRepo()
	catalog := newFakeProducts(products...)
	ledger := newFakeLedger(stock)
	tx := &fakeTxManager{stores: []snapshotter{orders, cart, ledger}}
	service := NewCheckoutService(orders, cart, catalog, ledger, testPricing(), tx, utils.NewSnowflakeID(1), metrics.New("test"))
	return &checkoutEnv{orders: orders, cart: cart, products: catalog, ledger: ledger, service: service}
}

func product(id uint, sku string, price string) *catalogdomain.Product {
	return &catalogdomain.Product{
		Model: gorm.Model{ID: id},
		SKU:   sku,
		Name:  "Product " + sku,
		Price: decimal.RequireFromString(price),
	}
}

func addToCart(env *checkoutEnv, userID string, productID uint, quantity int) {
	_ = env.cart.Upsert(context.Background(), &cartdomain.CartItem{
		UserID:    userID,
		ProductID: productID,
		Quantity:  quantity,
		Selected:  true,
	})
}

func shippingAddress() domain.Address {
	return domain.Address{
		Name:       "Alice Zhang",
		Phone:      "13800000000",
		Line1:      "1 Main St",
		City:       "Hangzhou",
		State:      "ZJ",
		PostalCode: "310000",
		Country:    "CN",
	}
}

func TestCheckoutCreatesPendingOrderWithSnapshots(t *testing.T) {
	env := newCheckoutEnv(t, map[uint]int{1: 10, 2: 5},
		product(1, "SKU-1", "25.00"),
		product(2, "SKU-2", "30.00"),
	)
	addToCart(env, "user-1", 1, 2)
	addToCart(env, "user-1", 2, 1)

	order, err := env.service.Checkout(context.Background(), CheckoutInput{
		UserID:          "user-1",
		ShippingAddress: shippingAddress(),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPending, order.Status)
	assert.Equal(t, domain.PaymentPending, order.PaymentStatus)
	assert.True(t, decimal.RequireFromString("80.00").Equal(order.Subtotal))
	assert.True(t, decimal.RequireFromString("8.00").Equal(order.TaxAmount))
	// 小计低于免邮门槛，收固定运费
	assert.True(t, decimal.RequireFromString("10.00").Equal(order.ShippingFee))
	assert.True(t, decimal.RequireFromString("98.00").Equal(order.TotalAmount))
	assert.True(t, order.TotalsConsistent())

	require.Len(t, order.Items, 2)
	assert.Equal(t, "Product SKU-1", order.Items[0].ProductName)
	assert.Equal(t, "SKU-1", order.Items[0].ProductSKU)

	// 库存已扣减
	assert.Equal(t, 8, env.ledger.stockOf(1))
	assert.Equal(t, 4, env.ledger.stockOf(2))

	// 勾选的购物车行已清除
	remaining, err := env.cart.ListSelected(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, remaining)

	// 首条状态历史
	histories, err := env.orders.History(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, histories, 1)
	assert.Equal(t, domain.OrderStatus(""), histories[0].FromStatus)
	assert.Equal(t, domain.StatusPending, histories[0].ToStatus)
}

func TestCheckoutFreeShippingAboveThreshold(t *testing.T) {
	env := newCheckoutEnv(t, map[uint]int{1: 10}, product(1, "SKU-1", "60.00"))
	addToCart(env, "user-1", 1, 2)

	order, err := env.service.Checkout(context.Background(), CheckoutInput{
		UserID:          "user-1",
		ShippingAddress: shippingAddress(),
	})
	require.NoError(t, err)

	assert.True(t, decimal.RequireFromString("120.00").Equal(order.Subtotal))
	assert.True(t, order.ShippingFee.IsZero())
	assert.True(t, decimal.RequireFromString("132.00").Equal(order.TotalAmount))
}

func TestCheckoutEmptyCart(t *testing.T) {
	env := newCheckoutEnv(t, map[uint]int{})

	_, err := env.service.Checkout(context.Background(), CheckoutInput{
		UserID:          "user-1",
		ShippingAddress: shippingAddress(),
	})
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestCheckoutReportsAllUnavailableLines(t *testing.T) {
	env := newCheckoutEnv(t, map[uint]int{1: 1, 2: 0, 3: 10},
		product(1, "SKU-1", "25.00"),
		product(2, "SKU-2", "30.00"),
		product(3, "SKU-3", "15.00"),
	)
	addToCart(env, "user-1", 1, 5)
	addToCart(env, "user-1", 2, 1)
	addToCart(env, "user-1", 3, 2)

	_, err := env.service.Checkout(context.Background(), CheckoutInput{
		UserID:          "user-1",
		ShippingAddress: shippingAddress(),
	})

	var unavailable *domain.CheckoutUnavailableError
	require.ErrorAs(t, err, &unavailable)
	require.Len(t, unavailable.Unavailable, 2)

	byProduct := make(map[uint]domain.UnavailableItem)
	for _, item := range unavailable.Unavailable {
		byProduct[item.ProductID] = item
	}
	assert.Equal(t, 5, byProduct[1].Requested)
	assert.Equal(t, 1, byProduct[1].Available)
	assert.Equal(t, 1, byProduct[2].Requested)
	assert.Equal(t, 0, byProduct[2].Available)

	// 整单回滚：已成功扣减的第三行也恢复
	assert.Equal(t, 1, env.ledger.stockOf(1))
	assert.Equal(t, 0, env.ledger.stockOf(2))
	assert.Equal(t, 10, env.ledger.stockOf(3))

	// 购物车保持原样，没有创建任何订单
	remaining, err := env.cart.ListSelected(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, remaining, 3)
	assert.Empty(t, env.orders.orders)
}

func TestCheckoutConcurrentLastUnit(t *testing.T) {
	env := newCheckoutEnv(t, map[uint]int{1: 1}, product(1, "SKU-1", "25.00"))
	addToCart(env, "user-a", 1, 1)
	addToCart(env, "user-b", 1, 1)

	results := make([]error, 2)
	var wg sync.WaitGroup
	for i, uid := range []string{"user-a", "user-b"} {
		wg.Add(1)
		go func(i int, uid string) {
			defer wg.Done()
			_, err := env.service.Checkout(context.Background(), CheckoutInput{
				UserID:          uid,
				ShippingAddress: shippingAddress(),
			})
			results[i] = err
		}(i, uid)
	}
	wg.Wait()

	var successes, conflicts int
	for _, err := range results {
		if err == nil {
			successes++
			continue
		}
		var unavailable *domain.CheckoutUnavailableError
		require.ErrorAs(t, err, &unavailable)
		assert.Equal(t, 0, unavailable.Unavailable[0].Available)
		conflicts++
	}

	// 最后一件只能卖给一个人
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)
	assert.Equal(t, 0, env.ledger.stockOf(1))
	assert.Len(t, env.orders.orders, 1)
}
