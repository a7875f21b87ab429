package application

import (
	"context"
	"sync"
	"time"

	cartdomain "github.com/wyfcoding/ecommerce/internal/cart/domain"
	catalogdomain "github.com/wyfcoding/ecommerce/internal/catalog/domain"
	inventorydomain "github.com/wyfcoding/ecommerce/internal/inventory/domain"
	"github.com/wyfcoding/ecommerce/internal/order/domain"
)

// fakeTxManager 模拟事务：执行前对参与的存储打快照，回调失败时恢复。
// 事务整体串行执行，嵌套调用复用外层事务，与真实实现的语义一致
type fakeTxManager struct {
	mu     sync.Mutex
	stores []snapshotter
}

type snapshotter interface {
	snapshot() any
	restore(any)
}

type fakeTxKey struct{}

func (m *fakeTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(fakeTxKey{}) != nil {
		return fn(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshots := make([]any, len(m.stores))
	for i, s := range m.stores {
		snapshots[i] = s.snapshot()
	}
	if err := fn(context.WithValue(ctx, fakeTxKey{}, true)); err != nil {
		for i, s := range m.stores {
			s.restore(snapshots[i])
		}
		return err
	}
	return nil
}

// fakeLedger 内存库存账本
type fakeLedger struct {
	mu    sync.Mutex
	stock map[uint]int
	sold  map[uint]int
}

func newFakeLedger(stock map[uint]int) *fakeLedger {
	s := make(map[uint]int, len(stock))
	for k, v := range stock {
		s[k] = v
	}
	return &fakeLedger{stock: s, sold: make(map[uint]int)}
}

func (l *fakeLedger) Reserve(ctx context.Context, productID uint, quantity int, orderNumber, userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	available, ok := l.stock[productID]
	if !ok {
		return inventorydomain.ErrProductNotFound
	}
	if available < quantity {
		return &inventorydomain.InsufficientStockError{ProductID: productID, Requested: quantity, Available: available}
	}
	l.stock[productID] = available - quantity
	l.sold[productID] += quantity
	return nil
}

func (l *fakeLedger) Release(ctx context.Context, productID uint, quantity int, orderNumber, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stock[productID] += quantity
	l.sold[productID] -= quantity
	return nil
}

func (l *fakeLedger) Adjust(ctx context.Context, productID uint, delta int, reason, operator string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stock[productID] += delta
	return nil
}

func (l *fakeLedger) RecordInitial(ctx context.Context, productID uint, quantity int, operator string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stock[productID] += quantity
	return nil
}

func (l *fakeLedger) stockOf(productID uint) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stock[productID]
}

func (l *fakeLedger) soldOf(productID uint) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sold[productID]
}

func (l *fakeLedger) snapshot() any {
	l.mu.Lock()
	defer l.mu.Unlock()
	stock := make(map[uint]int, len(l.stock))
	for k, v := range l.stock {
		stock[k] = v
	}
	sold := make(map[uint]int, len(l.sold))
	for k, v := range l.sold {
		sold[k] = v
	}
	return [2]map[uint]int{stock, sold}
}

func (l *fakeLedger) restore(s any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	maps := s.([2]map[uint]int)
	l.stock = maps[0]
	l.sold = maps[1]
}

// fakeOrderRepo 内存订单仓储，Transition 用与 MySQL 实现相同的条件更新语义
type fakeOrderRepo struct {
	mu        sync.Mutex
	orders    map[string]*domain.Order
	histories map[uint][]*domain.OrderStatusHistory
	nextID    uint
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{
		orders:    make(map[string]*domain.Order),
		histories: make(map[uint][]*domain.OrderStatusHistory),
	}
}

func (r *fakeOrderRepo) Create(ctx context.Context, order *domain.Order, history *domain.OrderStatusHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	order.ID = r.nextID
	for i := range order.Items {
		order.Items[i].OrderID = order.ID
	}
	stored := *order
	items := make([]domain.OrderItem, len(order.Items))
	copy(items, order.Items)
	stored.Items = items
	r.orders[order.OrderNumber] = &stored

	history.OrderID = order.ID
	r.histories[order.ID] = append(r.histories[order.ID], history)
	return nil
}

func (r *fakeOrderRepo) Get(ctx context.Context, orderNumber string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.orders[orderNumber]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	copied := *stored
	items := make([]domain.OrderItem, len(stored.Items))
	copy(items, stored.Items)
	copied.Items = items
	return &copied, nil
}

func (r *fakeOrderRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Order, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*domain.Order
	for _, o := range r.orders {
		if o.UserID == userID {
			copied := *o
			result = append(result, &copied)
		}
	}
	return result, int64(len(result)), nil
}

func (r *fakeOrderRepo) Transition(ctx context.Context, order *domain.Order, to domain.OrderStatus, set map[string]any, history *domain.OrderStatusHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.orders[order.OrderNumber]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if stored.Status != order.Status {
		return domain.ErrStaleTransition
	}
	from := stored.Status
	stored.Status = to
	stored.LockVersion++
	applySet(stored, set)

	history.OrderID = stored.ID
	history.FromStatus = from
	history.ToStatus = to
	r.histories[stored.ID] = append(r.histories[stored.ID], history)

	order.Status = to
	order.LockVersion = stored.LockVersion
	return nil
}

func applySet(o *domain.Order, set map[string]any) {
	for k, v := range set {
		switch k {
		case "payment_status":
			o.PaymentStatus = v.(domain.PaymentStatus)
		case "payment_reference":
			o.PaymentReference = v.(string)
		case "tracking_number":
			o.TrackingNumber = v.(string)
		case "confirmed_at":
			t := v.(time.Time)
			o.ConfirmedAt = &t
		case "shipped_at":
			t := v.(time.Time)
			o.ShippedAt = &t
		case "delivered_at":
			t := v.(time.Time)
			o.DeliveredAt = &t
		case "cancelled_at":
			t := v.(time.Time)
			o.CancelledAt = &t
		}
	}
}

func (r *fakeOrderRepo) ListShippable(ctx context.Context, before time.Time, limit int) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*domain.Order
	for _, o := range r.orders {
		if len(result) >= limit {
			break
		}
		shippableStatus := o.Status == domain.StatusConfirmed || o.Status == domain.StatusProcessing
		if shippableStatus && o.PaymentStatus == domain.PaymentPaid && o.ConfirmedAt != nil && o.ConfirmedAt.Before(before) {
			copied := *o
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (r *fakeOrderRepo) History(ctx context.Context, orderID uint) ([]*domain.OrderStatusHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.OrderStatusHistory(nil), r.histories[orderID]...), nil
}

func (r *fakeOrderRepo) snapshot() any {
	r.mu.Lock()
	defer r.mu.Unlock()
	orders := make(map[string]*domain.Order, len(r.orders))
	for k, v := range r.orders {
		copied := *v
		items := make([]domain.OrderItem, len(v.Items))
		copy(items, v.Items)
		copied.Items = items
		orders[k] = &copied
	}
	histories := make(map[uint][]*domain.OrderStatusHistory, len(r.histories))
	for k, v := range r.histories {
		histories[k] = append([]*domain.OrderStatusHistory(nil), v...)
	}
	return []any{orders, histories, r.nextID}
}

func (r *fakeOrderRepo) restore(s any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	parts := s.([]any)
	r.orders = parts[0].(map[string]*domain.Order)
	r.histories = parts[1].(map[uint][]*domain.OrderStatusHistory)
	r.nextID = parts[2].(uint)
}

// fakeCartRepo 内存购物车
type fakeCartRepo struct {
	mu    sync.Mutex
	items map[string][]*cartdomain.CartItem
}

func newFakeCartRepo() *fakeCartRepo {
	return &fakeCartRepo{items: make(map[string][]*cartdomain.CartItem)}
}

func (r *fakeCartRepo) List(ctx context.Context, userID string) ([]*cartdomain.CartItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*cartdomain.CartItem(nil), r.items[userID]...), nil
}

func (r *fakeCartRepo) ListSelected(ctx context.Context, userID string) ([]*cartdomain.CartItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var selected []*cartdomain.CartItem
	for _, item := range r.items[userID] {
		if item.Selected {
			copied := *item
			selected = append(selected, &copied)
		}
	}
	return selected, nil
}

func (r *fakeCartRepo) Upsert(ctx context.Context, item *cartdomain.CartItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.items[item.UserID] {
		if existing.ProductID == item.ProductID {
			existing.Quantity += item.Quantity
			existing.Selected = true
			return nil
		}
	}
	copied := *item
	r.items[item.UserID] = append(r.items[item.UserID], &copied)
	return nil
}

func (r *fakeCartRepo) UpdateQuantity(ctx context.Context, userID string, productID uint, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range r.items[userID] {
		if item.ProductID == productID {
			item.Quantity = quantity
		}
	}
	return nil
}

func (r *fakeCartRepo) SetSelected(ctx context.Context, userID string, productIDs []uint, selected bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range r.items[userID] {
		for _, id := range productIDs {
			if item.ProductID == id {
				item.Selected = selected
			}
		}
	}
	return nil
}

func (r *fakeCartRepo) Remove(ctx context.Context, userID string, productID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.items[userID][:0]
	for _, item := range r.items[userID] {
		if item.ProductID != productID {
			kept = append(kept, item)
		}
	}
	r.items[userID] = kept
	return nil
}

func (r *fakeCartRepo) DeleteSelected(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.items[userID][:0]
	for _, item := range r.items[userID] {
		if !item.Selected {
			kept = append(kept, item)
		}
	}
	r.items[userID] = kept
	return nil
}

func (r *fakeCartRepo) Clear(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, userID)
	return nil
}

func (r *fakeCartRepo) snapshot() any {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make(map[string][]*cartdomain.CartItem, len(r.items))
	for k, v := range r.items {
		copies := make([]*cartdomain.CartItem, len(v))
		for i, item := range v {
			copied := *item
			copies[i] = &copied
		}
		items[k] = copies
	}
	return items
}

func (r *fakeCartRepo) restore(s any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = s.(map[string][]*cartdomain.CartItem)
}

// fakeProducts 内存商品目录
type fakeProducts struct {
	mu       sync.Mutex
	products map[uint]*catalogdomain.Product
}

func newFakeProducts(products ...*catalogdomain.Product) *fakeProducts {
	m := make(map[uint]*catalogdomain.Product, len(products))
	for _, p := range products {
		m[p.ID] = p
	}
	return &fakeProducts{products: m}
}

func (f *fakeProducts) Get(ctx context.Context, id uint) (*catalogdomain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return nil, catalogdomain.ErrProductNotFound
	}
	copied := *p
	return &copied, nil
}

func (f *fakeProducts) GetBySKU(ctx context.Context, sku string) (*catalogdomain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.products {
		if p.SKU == sku {
			copied := *p
			return &copied, nil
		}
	}
	return nil, catalogdomain.ErrProductNotFound
}

// fakeNotifier 记录通知调用
type fakeNotifier struct {
	mu        sync.Mutex
	confirmed []string
	shipped   []string
}

func (n *fakeNotifier) OrderConfirmed(ctx context.Context, order *domain.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmed = append(n.confirmed, order.OrderNumber)
}

func (n *fakeNotifier) OrderShipped(ctx context.Context, order *domain.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.shipped = append(n.shipped, order.OrderNumber)
}

func (n *fakeNotifier) shippedCount(orderNumber string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, num := range n.shipped {
		if num == orderNumber {
			count++
		}
	}
	return count
}
