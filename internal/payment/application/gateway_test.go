package application

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	orderapp "github.com/wyfcoding/ecommerce/internal/order/application"
	orderdomain "github.com/wyfcoding/ecommerce/internal/order/domain"
	"github.com/wyfcoding/ecommerce/internal/payment/domain"
	"github.com/wyfcoding/ecommerce/pkg/metrics"
	"github.com/wyfcoding/ecommerce/pkg/utils"
)

// fakeEventRepo 内存支付事件表，event_id 唯一
type fakeEventRepo struct {
	mu     sync.Mutex
	events map[string]*domain.PaymentEvent
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{events: make(map[string]*domain.PaymentEvent)}
}

func (r *fakeEventRepo) IsApplied(ctx context.Context, eventID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.events[eventID]
	return ok, nil
}

func (r *fakeEventRepo) Record(ctx context.Context, event *domain.PaymentEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[event.EventID] = event
	return nil
}

func (r *fakeEventRepo) disposition(eventID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.events[eventID]; ok {
		return e.Disposition
	}
	return ""
}

func (r *fakeEventRepo) snapshot() any {
	r.mu.Lock()
	defer r.mu.Unlock()
	events := make(map[string]*domain.PaymentEvent, len(r.events))
	for k, v := range r.events {
		copied := *v
		events[k] = &copied
	}
	return events
}

func (r *fakeEventRepo) restore(s any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = s.(map[string]*domain.PaymentEvent)
}

// fakeOrderRepo 内存订单仓储，条件更新语义与 MySQL 实现一致
type fakeOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*orderdomain.Order
	nextID uint
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[string]*orderdomain.Order)}
}

func (r *fakeOrderRepo) Create(ctx context.Context, order *orderdomain.Order, history *orderdomain.OrderStatusHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	order.ID = r.nextID
	copied := *order
	r.orders[order.OrderNumber] = &copied
	return nil
}

func (r *fakeOrderRepo) Get(ctx context.Context, orderNumber string) (*orderdomain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.orders[orderNumber]
	if !ok {
		return nil, orderdomain.ErrOrderNotFound
	}
	copied := *stored
	return &copied, nil
}

func (r *fakeOrderRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*orderdomain.Order, int64, error) {
	return nil, 0, nil
}

func (r *fakeOrderRepo) Transition(ctx context.Context, order *orderdomain.Order, to orderdomain.OrderStatus, set map[string]any, history *orderdomain.OrderStatusHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.orders[order.OrderNumber]
	if !ok {
		return orderdomain.ErrOrderNotFound
	}
	if stored.Status != order.Status {
		return orderdomain.ErrStaleTransition
	}
	stored.Status = to
	for k, v := range set {
		switch k {
		case "payment_status":
			stored.PaymentStatus = v.(orderdomain.PaymentStatus)
		case "payment_reference":
			stored.PaymentReference = v.(string)
		case "confirmed_at":
			t := v.(time.Time)
			stored.ConfirmedAt = &t
		case "cancelled_at":
			t := v.(time.Time)
			stored.CancelledAt = &t
		case "delivered_at":
			t := v.(time.Time)
			stored.DeliveredAt = &t
		}
	}
	order.Status = to
	return nil
}

func (r *fakeOrderRepo) ListShippable(ctx context.Context, before time.Time, limit int) ([]*orderdomain.Order, error) {
	return nil, nil
}

func (r *fakeOrderRepo) History(ctx context.Context, orderID uint) ([]*orderdomain.OrderStatusHistory, error) {
	return nil, nil
}

func (r *fakeOrderRepo) snapshot() any {
	r.mu.Lock()
	defer r.mu.Unlock()
	orders := make(map[string]*orderdomain.Order, len(r.orders))
	for k, v := range r.orders {
		copied := *v
		orders[k] = &copied
	}
	return orders
}

func (r *fakeOrderRepo) restore(s any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = s.(map[string]*orderdomain.Order)
}

// fakeLedger 只统计回补量
type fakeLedger struct {
	mu       sync.Mutex
	released map[uint]int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{released: make(map[uint]int)}
}

func (l *fakeLedger) Reserve(ctx context.Context, productID uint, quantity int, orderNumber, userID string) error {
	return nil
}

func (l *fakeLedger) Release(ctx context.Context, productID uint, quantity int, orderNumber, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released[productID] += quantity
	return nil
}

func (l *fakeLedger) Adjust(ctx context.Context, productID uint, delta int, reason, operator string) error {
	return nil
}

func (l *fakeLedger) RecordInitial(ctx context.Context, productID uint, quantity int, operator string) error {
	return nil
}

func (l *fakeLedger) snapshot() any {
	l.mu.Lock()
	defer l.mu.Unlock()
	released := make(map[uint]int, len(l.released))
	for k, v := range l.released {
		released[k] = v
	}
	return released
}

func (l *fakeLedger) restore(s any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released = s.(map[uint]int)
}

// fakeTxManager 模拟事务：执行前对参与的存储打快照，回调失败时恢复，
// 与真实实现回滚整个事务的语义一致；嵌套调用复用外层事务
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

// fakeProvider 预置事件的支付渠道
type fakeProvider struct {
	payments map[string]*domain.Event
	webhook  *domain.Event
}

func (p *fakeProvider) RetrievePayment(ctx context.Context, paymentIntentID string) (*domain.Event, error) {
	if e, ok := p.payments[paymentIntentID]; ok {
		copied := *e
		return &copied, nil
	}
	return nil, domain.ErrUnknownOrder
}

func (p *fakeProvider) ParseWebhook(payload []byte, header http.Header) (*domain.Event, error) {
	if p.webhook == nil {
		return nil, nil
	}
	copied := *p.webhook
	return &copied, nil
}

// recordingNotifier 记录收到确认通知的订单号
type recordingNotifier struct {
	mu        sync.Mutex
	confirmed []string
}

func (n *recordingNotifier) OrderConfirmed(_ context.Context, order *orderdomain.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmed = append(n.confirmed, order.OrderNumber)
}

func (n *recordingNotifier) OrderShipped(context.Context, *orderdomain.Order) {}

func (n *recordingNotifier) confirmedOrders() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.confirmed...)
}

type gatewayEnv struct {
	events   *fakeEventRepo
	orders   *fakeOrderRepo
	ledger   *fakeLedger
	notifier *recordingNotifier
	gateway  *Gateway
}

func newGatewayEnv(t *testing.T, provider domain.Provider) *gatewayEnv {
	t.Helper()
	events := newFakeEventRepo()
	orders := newFakeOrderRepo()
	ledger := newFakeLedger()
	notifier := &recordingNotifier{}
	tx := &fakeTxManager{stores: []snapshotter{events, orders, ledger}}
	commands := orderapp.NewCommandService(orders, ledger, tx, notifier, utils.NewSnowflakeID(3), metrics.New("test"), orderapp.NopQueryCache{})
	gateway := NewGateway(events, orders, commands, provider, notifier, tx, metrics.New("test"))
	return &gatewayEnv{events: events, orders: orders, ledger: ledger, notifier: notifier, gateway: gateway}
}

func (env *gatewayEnv) seedOrder(t *testing.T, orderNumber string, status orderdomain.OrderStatus, paymentStatus orderdomain.PaymentStatus) {
	t.Helper()
	total := decimal.RequireFromString("50.00")
	order := &orderdomain.Order{
		OrderNumber:   orderNumber,
		UserID:        "user-1",
		Status:        status,
		PaymentStatus: paymentStatus,
		Subtotal:      total,
		TotalAmount:   total,
		Currency:      "USD",
		Items: []orderdomain.OrderItem{{
			ProductID: 1,
			Quantity:  2,
		}},
	}
	require.NoError(t, env.orders.Create(context.Background(), order, &orderdomain.OrderStatusHistory{ToStatus: status}))
}

func succeededEvent(eventID, orderNumber string) *domain.Event {
	return &domain.Event{
		EventID:     eventID,
		OrderNumber: orderNumber,
		Outcome:     domain.OutcomeSucceeded,
		Reference:   "pi_123",
	}
}

func TestApplySucceededConfirmsOrder(t *testing.T) {
	env := newGatewayEnv(t, &fakeProvider{})
	env.seedOrder(t, "ORD-1", orderdomain.StatusPending, orderdomain.PaymentPending)

	require.NoError(t, env.gateway.Apply(context.Background(), succeededEvent("evt_1", "ORD-1")))

	order, err := env.orders.Get(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusConfirmed, order.Status)
	assert.Equal(t, orderdomain.PaymentPaid, order.PaymentStatus)
	assert.Equal(t, "pi_123", order.PaymentReference)
	assert.Equal(t, domain.DispositionApplied, env.events.disposition("evt_1"))
	// 确认通知在事务提交之后恰好发出一次
	assert.Equal(t, []string{"ORD-1"}, env.notifier.confirmedOrders())
}

func TestApplySucceededAfterCancelIsStale(t *testing.T) {
	env := newGatewayEnv(t, &fakeProvider{})
	// 支付前取消的订单：状态已是 cancelled，支付状态仍停在 pending
	env.seedOrder(t, "ORD-1", orderdomain.StatusCancelled, orderdomain.PaymentPending)

	// 迟到的成功事件按过期处理，返回成功让渠道停止重试
	require.NoError(t, env.gateway.Apply(context.Background(), succeededEvent("evt_1", "ORD-1")))

	order, err := env.orders.Get(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusCancelled, order.Status)
	assert.Equal(t, orderdomain.PaymentPending, order.PaymentStatus)
	assert.Equal(t, domain.DispositionStale, env.events.disposition("evt_1"))
	assert.Empty(t, env.notifier.confirmedOrders())
}

func TestApplyDuplicateEventIsNoop(t *testing.T) {
	env := newGatewayEnv(t, &fakeProvider{})
	env.seedOrder(t, "ORD-1", orderdomain.StatusPending, orderdomain.PaymentPending)

	require.NoError(t, env.gateway.Apply(context.Background(), succeededEvent("evt_1", "ORD-1")))
	// 渠道重试同一事件
	require.NoError(t, env.gateway.Apply(context.Background(), succeededEvent("evt_1", "ORD-1")))

	order, err := env.orders.Get(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusConfirmed, order.Status)
	assert.Len(t, env.events.events, 1)
}

func TestApplyFailedAfterPaidIsStale(t *testing.T) {
	env := newGatewayEnv(t, &fakeProvider{})
	env.seedOrder(t, "ORD-1", orderdomain.StatusPending, orderdomain.PaymentPending)

	require.NoError(t, env.gateway.Apply(context.Background(), succeededEvent("evt_1", "ORD-1")))

	// 乱序送达的失败事件不能推翻已支付的订单
	failed := &domain.Event{
		EventID:       "evt_2",
		OrderNumber:   "ORD-1",
		Outcome:       domain.OutcomeFailed,
		Reference:     "pi_123",
		FailureReason: "card declined",
	}
	require.NoError(t, env.gateway.Apply(context.Background(), failed))

	order, err := env.orders.Get(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusConfirmed, order.Status)
	assert.Equal(t, orderdomain.PaymentPaid, order.PaymentStatus)
	assert.Equal(t, domain.DispositionStale, env.events.disposition("evt_2"))
	// 库存没有被误回补
	assert.Empty(t, env.ledger.released)
}

func TestApplyFailedReleasesStock(t *testing.T) {
	env := newGatewayEnv(t, &fakeProvider{})
	env.seedOrder(t, "ORD-1", orderdomain.StatusPending, orderdomain.PaymentPending)

	failed := &domain.Event{
		EventID:     "evt_1",
		OrderNumber: "ORD-1",
		Outcome:     domain.OutcomeFailed,
		Reference:   "pi_123",
	}
	require.NoError(t, env.gateway.Apply(context.Background(), failed))

	order, err := env.orders.Get(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusFailed, order.Status)
	assert.Equal(t, orderdomain.PaymentFailed, order.PaymentStatus)
	assert.Equal(t, 2, env.ledger.released[1])
}

func TestApplyRefundedFromDelivered(t *testing.T) {
	env := newGatewayEnv(t, &fakeProvider{})
	env.seedOrder(t, "ORD-1", orderdomain.StatusDelivered, orderdomain.PaymentPaid)

	refunded := &domain.Event{
		EventID:     "evt_1",
		OrderNumber: "ORD-1",
		Outcome:     domain.OutcomeRefunded,
		Reference:   "pi_123",
	}
	require.NoError(t, env.gateway.Apply(context.Background(), refunded))

	order, err := env.orders.Get(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusRefunded, order.Status)
	assert.Equal(t, orderdomain.PaymentRefunded, order.PaymentStatus)
	assert.Equal(t, 2, env.ledger.released[1])
}

func TestApplyRefundedBeforeDeliveryIsStale(t *testing.T) {
	env := newGatewayEnv(t, &fakeProvider{})
	env.seedOrder(t, "ORD-1", orderdomain.StatusConfirmed, orderdomain.PaymentPaid)

	refunded := &domain.Event{
		EventID:     "evt_1",
		OrderNumber: "ORD-1",
		Outcome:     domain.OutcomeRefunded,
		Reference:   "pi_123",
	}
	require.NoError(t, env.gateway.Apply(context.Background(), refunded))

	order, err := env.orders.Get(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusConfirmed, order.Status)
	assert.Equal(t, domain.DispositionStale, env.events.disposition("evt_1"))
}

func TestApplyUnknownOrder(t *testing.T) {
	env := newGatewayEnv(t, &fakeProvider{})

	err := env.gateway.Apply(context.Background(), succeededEvent("evt_1", "ORD-MISSING"))
	assert.ErrorIs(t, err, domain.ErrUnknownOrder)

	// 记录必须在返回错误后仍然存在：错误在事务外返回，事务本身提交
	applied, err := env.events.IsApplied(context.Background(), "evt_1")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, domain.DispositionUnknownOrder, env.events.disposition("evt_1"))

	// 事件已记录，重试直接幂等返回
	require.NoError(t, env.gateway.Apply(context.Background(), succeededEvent("evt_1", "ORD-MISSING")))
}

func TestConfirmPaymentSyncPath(t *testing.T) {
	provider := &fakeProvider{payments: map[string]*domain.Event{
		"pi_123": {EventID: "sync:pi_123", Outcome: domain.OutcomeSucceeded, Reference: "pi_123"},
	}}
	env := newGatewayEnv(t, provider)
	env.seedOrder(t, "ORD-1", orderdomain.StatusPending, orderdomain.PaymentPending)

	order, err := env.gateway.ConfirmPayment(context.Background(), "ORD-1", "pi_123")
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusConfirmed, order.Status)

	// webhook 之后送达同一事件，幂等
	require.NoError(t, env.gateway.Apply(context.Background(), &domain.Event{
		EventID:     "sync:pi_123",
		OrderNumber: "ORD-1",
		Outcome:     domain.OutcomeSucceeded,
		Reference:   "pi_123",
	}))
	assert.Len(t, env.events.events, 1)
}

func TestHandleWebhookIgnoresIrrelevantEvents(t *testing.T) {
	env := newGatewayEnv(t, &fakeProvider{webhook: nil})
	require.NoError(t, env.gateway.HandleWebhook(context.Background(), []byte("{}"), http.Header{}))
	assert.Empty(t, env.events.events)
}
