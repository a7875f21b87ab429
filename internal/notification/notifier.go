// Package notification 将订单生命周期事件发布到消息队列，由下游消费者发送通知
package notification

import (
	"context"
	"time"

	"github.com/wyfcoding/ecommerce/internal/order/domain"
	"github.com/wyfcoding/ecommerce/pkg/logger"
	"github.com/wyfcoding/ecommerce/pkg/mq"
)

// 事件类型
const (
	EventOrderConfirmed = "order.confirmed"
	EventOrderShipped   = "order.shipped"
)

// Envelope 通知消息信封
type Envelope struct {
	// 事件类型
	EventType string `json:"event_type"`
	// 订单号
	OrderNumber string `json:"order_number"`
	// 用户 ID
	UserID string `json:"user_id"`
	// 运单号（发货事件携带）
	TrackingNumber string `json:"tracking_number,omitempty"`
	// 订单总额
	TotalAmount string `json:"total_amount"`
	// 币种
	Currency string `json:"currency"`
	// 事件时间
	OccurredAt time.Time `json:"occurred_at"`
}

// Notifier 订单通知接口
// 通知失败只记录日志，绝不影响订单主流程
type Notifier interface {
	// OrderConfirmed 支付成功通知
	OrderConfirmed(ctx context.Context, order *domain.Order)
	// OrderShipped 发货通知
	OrderShipped(ctx context.Context, order *domain.Order)
}

// KafkaNotifier 基于 Kafka 的通知实现
type KafkaNotifier struct {
	producer *mq.KafkaProducer
	topic    string
}

// NewKafkaNotifier 创建 Kafka 通知器
func NewKafkaNotifier(producer *mq.KafkaProducer, topic string) *KafkaNotifier {
	return &KafkaNotifier{producer: producer, topic: topic}
}

func (n *KafkaNotifier) OrderConfirmed(ctx context.Context, order *domain.Order) {
	n.publish(ctx, Envelope{
		EventType:   EventOrderConfirmed,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount.String(),
		Currency:    order.Currency,
		OccurredAt:  time.Now(),
	})
}

func (n *KafkaNotifier) OrderShipped(ctx context.Context, order *domain.Order) {
	n.publish(ctx, Envelope{
		EventType:      EventOrderShipped,
		OrderNumber:    order.OrderNumber,
		UserID:         order.UserID,
		TrackingNumber: order.TrackingNumber,
		TotalAmount:    order.TotalAmount.String(),
		Currency:       order.Currency,
		OccurredAt:     time.Now(),
	})
}

// publish 发送消息，失败仅记录日志，由发货通知补发等对账手段兜底
func (n *KafkaNotifier) publish(ctx context.Context, env Envelope) {
	if err := n.producer.SendMessage(ctx, n.topic, env.OrderNumber, env); err != nil {
		logger.Error(ctx, "Failed to publish notification",
			"event_type", env.EventType,
			"order_number", env.OrderNumber,
			"error", err)
		return
	}
	logger.Info(ctx, "Notification published", "event_type", env.EventType, "order_number", env.OrderNumber)
}

// NopNotifier 空实现，供测试或未配置 Kafka 时使用
type NopNotifier struct{}

func (NopNotifier) OrderConfirmed(context.Context, *domain.Order) {}

func (NopNotifier) OrderShipped(context.Context, *domain.Order) {}
