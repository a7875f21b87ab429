// Package domain 包含支付对账的领域模型
package domain

import (
	"context"
	"errors"
	"net/http"

	"gorm.io/gorm"
)

// Outcome 支付事件结果
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeRefunded  Outcome = "refunded"
)

// Event 来自支付渠道的事件，同步确认与异步 webhook 殊途同归
type Event struct {
	// 渠道事件 ID，幂等去重的依据
	EventID string
	// 订单号
	OrderNumber string
	// 事件结果
	Outcome Outcome
	// 渠道支付引用（charge/payment intent ID）
	Reference string
	// 失败原因（failed 事件携带）
	FailureReason string
}

// PaymentEvent 已应用的支付事件，event_id 唯一索引保证同一事件至多生效一次
type PaymentEvent struct {
	gorm.Model
	// 渠道事件 ID
	EventID string `gorm:"column:event_id;type:varchar(128);uniqueIndex;not null" json:"event_id"`
	// 订单号
	OrderNumber string `gorm:"column:order_number;type:varchar(32);index" json:"order_number"`
	// 事件结果
	Outcome Outcome `gorm:"column:outcome;type:varchar(20);not null" json:"outcome"`
	// 渠道支付引用
	Reference string `gorm:"column:reference;type:varchar(128)" json:"reference"`
	// 应用结果说明（applied / stale / unknown_order）
	Disposition string `gorm:"column:disposition;type:varchar(32);not null" json:"disposition"`
}

// TableName 指定表名
func (PaymentEvent) TableName() string { return "payment_events" }

// 事件应用结果
const (
	DispositionApplied      = "applied"
	DispositionStale        = "stale"
	DispositionUnknownOrder = "unknown_order"
)

// EventRepository 支付事件仓储
type EventRepository interface {
	// IsApplied 事件是否已应用过
	IsApplied(ctx context.Context, eventID string) (bool, error)
	// Record 记录事件，event_id 冲突时返回底层唯一键错误
	Record(ctx context.Context, event *PaymentEvent) error
}

// Provider 支付渠道接口
type Provider interface {
	// RetrievePayment 主动查询一笔支付的最终状态（同步确认路径）
	RetrievePayment(ctx context.Context, paymentIntentID string) (*Event, error)
	// ParseWebhook 校验签名并解析 webhook 请求；
	// 与订单无关的事件类型返回 (nil, nil)
	ParseWebhook(payload []byte, header http.Header) (*Event, error)
}

// ErrUnknownOrder 事件引用的订单不存在
var ErrUnknownOrder = errors.New("payment event references unknown order")
