// Package domain 包含订单服务的领域模型
package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderStatus 订单状态
type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusConfirmed  OrderStatus = "confirmed"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
	StatusRefunded   OrderStatus = "refunded"
	StatusFailed     OrderStatus = "failed"
)

// PaymentStatus 支付状态
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// statusTransitions 订单状态机的合法迁移表
var statusTransitions = map[OrderStatus][]OrderStatus{
	StatusPending:    {StatusConfirmed, StatusFailed, StatusCancelled},
	StatusConfirmed:  {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered},
	StatusDelivered:  {StatusRefunded},
	StatusCancelled:  {},
	StatusRefunded:   {},
	StatusFailed:     {},
}

// CanTransition 判断状态迁移是否合法
func CanTransition(from, to OrderStatus) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal 判断是否为终态（delivered 仍可迁移到 refunded）
func IsTerminal(s OrderStatus) bool {
	return len(statusTransitions[s]) == 0
}

// ValidStatus 判断状态值是否合法
func ValidStatus(s OrderStatus) bool {
	_, ok := statusTransitions[s]
	return ok
}

// Address 地址快照，下单时从用户资料复制，之后不再跟随用户资料变化
type Address struct {
	Name       string `gorm:"type:varchar(100)" json:"name"`
	Phone      string `gorm:"type:varchar(32)" json:"phone"`
	Line1      string `gorm:"type:varchar(255)" json:"line1"`
	Line2      string `gorm:"type:varchar(255)" json:"line2"`
	City       string `gorm:"type:varchar(100)" json:"city"`
	State      string `gorm:"type:varchar(100)" json:"state"`
	PostalCode string `gorm:"type:varchar(20)" json:"postal_code"`
	Country    string `gorm:"type:varchar(2)" json:"country"`
}

// Order 订单聚合根
// 订单创建后永不物理删除，取消是一种状态而不是删除
type Order struct {
	gorm.Model
	// 订单号，对外唯一标识
	OrderNumber string `gorm:"column:order_number;type:varchar(32);uniqueIndex;not null" json:"order_number"`
	// 用户 ID
	UserID string `gorm:"column:user_id;type:varchar(36);index;not null" json:"user_id"`
	// 订单状态
	Status OrderStatus `gorm:"column:status;type:varchar(20);index;not null" json:"status"`
	// 支付状态
	PaymentStatus PaymentStatus `gorm:"column:payment_status;type:varchar(20);index;not null" json:"payment_status"`
	// 商品小计
	Subtotal decimal.Decimal `gorm:"column:subtotal;type:decimal(20,2);not null" json:"subtotal"`
	// 税费
	TaxAmount decimal.Decimal `gorm:"column:tax_amount;type:decimal(20,2);not null" json:"tax_amount"`
	// 运费
	ShippingFee decimal.Decimal `gorm:"column:shipping_fee;type:decimal(20,2);not null" json:"shipping_fee"`
	// 优惠金额
	DiscountAmount decimal.Decimal `gorm:"column:discount_amount;type:decimal(20,2);not null" json:"discount_amount"`
	// 应付总额，始终等于 subtotal + tax + shipping - discount
	TotalAmount decimal.Decimal `gorm:"column:total_amount;type:decimal(20,2);not null" json:"total_amount"`
	// 币种
	Currency string `gorm:"column:currency;type:varchar(3);not null;default:'USD'" json:"currency"`
	// 收货地址快照
	ShippingAddress Address `gorm:"embedded;embeddedPrefix:shipping_" json:"shipping_address"`
	// 账单地址快照
	BillingAddress Address `gorm:"embedded;embeddedPrefix:billing_" json:"billing_address"`
	// 支付渠道引用（支付成功前为空）
	PaymentReference string `gorm:"column:payment_reference;type:varchar(128)" json:"payment_reference"`
	// 运单号，仅在进入 shipped 时设置一次
	TrackingNumber string `gorm:"column:tracking_number;type:varchar(64)" json:"tracking_number"`
	// 乐观锁版本号
	LockVersion int64 `gorm:"column:lock_version;not null;default:0" json:"-"`
	// 各状态时间戳
	ConfirmedAt *time.Time `gorm:"column:confirmed_at" json:"confirmed_at"`
	ShippedAt   *time.Time `gorm:"column:shipped_at" json:"shipped_at"`
	DeliveredAt *time.Time `gorm:"column:delivered_at" json:"delivered_at"`
	CancelledAt *time.Time `gorm:"column:cancelled_at" json:"cancelled_at"`
	// 订单明细
	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items"`
}

// TableName 指定表名
func (Order) TableName() string { return "orders" }

// CanCancel 是否可以取消
func (o *Order) CanCancel() bool {
	switch o.Status {
	case StatusPending, StatusConfirmed, StatusProcessing:
		return true
	default:
		return false
	}
}

// TotalsConsistent 校验金额不变式 total = subtotal + tax + shipping - discount
func (o *Order) TotalsConsistent() bool {
	expected := o.Subtotal.Add(o.TaxAmount).Add(o.ShippingFee).Sub(o.DiscountAmount)
	return o.TotalAmount.Equal(expected)
}

// OrderItem 订单明细，携带下单时的商品快照，创建后不可修改，
// 后续目录编辑不得影响历史订单
type OrderItem struct {
	gorm.Model
	// 所属订单
	OrderID uint `gorm:"column:order_id;index;not null" json:"order_id"`
	// 商品 ID
	ProductID uint `gorm:"column:product_id;index;not null" json:"product_id"`
	// 数量
	Quantity int `gorm:"column:quantity;not null" json:"quantity"`
	// 下单时单价
	UnitPrice decimal.Decimal `gorm:"column:unit_price;type:decimal(20,2);not null" json:"unit_price"`
	// 行小计
	TotalPrice decimal.Decimal `gorm:"column:total_price;type:decimal(20,2);not null" json:"total_price"`
	// 商品快照
	ProductName  string          `gorm:"column:product_name;type:varchar(255);not null" json:"product_name"`
	ProductSKU   string          `gorm:"column:product_sku;type:varchar(64);not null" json:"product_sku"`
	ProductPrice decimal.Decimal `gorm:"column:product_price;type:decimal(20,2);not null" json:"product_price"`
	ProductImage string          `gorm:"column:product_image;type:varchar(512)" json:"product_image"`
}

// TableName 指定表名
func (OrderItem) TableName() string { return "order_items" }

// OrderStatusHistory 状态迁移历史，追加写入
// 同一订单按时间排序的 to_status 序列必须是状态机的一条合法路径
type OrderStatusHistory struct {
	gorm.Model
	// 订单 ID
	OrderID uint `gorm:"column:order_id;index;not null" json:"order_id"`
	// 迁移前状态（首条记录为空）
	FromStatus OrderStatus `gorm:"column:from_status;type:varchar(20)" json:"from_status"`
	// 迁移后状态
	ToStatus OrderStatus `gorm:"column:to_status;type:varchar(20);not null" json:"to_status"`
	// 迁移原因
	Reason string `gorm:"column:reason;type:varchar(255)" json:"reason"`
	// 是否系统触发
	IsSystem bool `gorm:"column:is_system;not null;default:false" json:"is_system"`
}

// TableName 指定表名
func (OrderStatusHistory) TableName() string { return "order_status_histories" }

// Repository 订单仓储接口
type Repository interface {
	// Create 原子创建订单、明细与首条状态历史
	Create(ctx context.Context, order *Order, history *OrderStatusHistory) error
	// Get 按订单号获取订单（含明细）
	Get(ctx context.Context, orderNumber string) (*Order, error)
	// ListByUser 分页获取用户订单
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*Order, int64, error)
	// Transition 条件更新订单状态：仅当当前状态等于 order.Status 时生效，
	// 成功后追加一条状态历史并刷新内存中的 order；当前状态不匹配时返回 ErrStaleTransition
	Transition(ctx context.Context, order *Order, to OrderStatus, set map[string]any, history *OrderStatusHistory) error
	// ListShippable 获取可推进发货的订单：status ∈ {confirmed, processing}、
	// 已支付、未发货且 confirmed_at 早于 before
	ListShippable(ctx context.Context, before time.Time, limit int) ([]*Order, error)
	// History 获取订单状态历史（按时间升序）
	History(ctx context.Context, orderID uint) ([]*OrderStatusHistory, error)
}
