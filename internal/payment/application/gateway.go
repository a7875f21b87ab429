// Package application 实现支付对账网关：
// 同步确认与异步 webhook 两条路径汇聚到同一套事件应用逻辑
package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/wyfcoding/ecommerce/internal/notification"
	orderapp "github.com/wyfcoding/ecommerce/internal/order/application"
	orderdomain "github.com/wyfcoding/ecommerce/internal/order/domain"
	"github.com/wyfcoding/ecommerce/internal/payment/domain"
	pkgdb "github.com/wyfcoding/ecommerce/pkg/db"
	"github.com/wyfcoding/ecommerce/pkg/logger"
	"github.com/wyfcoding/ecommerce/pkg/metrics"
)

// Gateway 支付对账网关
type Gateway struct {
	events   domain.EventRepository
	orders   orderdomain.Repository
	commands *orderapp.CommandService
	provider domain.Provider
	notifier notification.Notifier
	tx       pkgdb.TxManager
	metrics  *metrics.Metrics
}

// NewGateway 创建支付对账网关
func NewGateway(
	events domain.EventRepository,
	orders orderdomain.Repository,
	commands *orderapp.CommandService,
	provider domain.Provider,
	notifier notification.Notifier,
	tx pkgdb.TxManager,
	m *metrics.Metrics,
) *Gateway {
	return &Gateway{
		events:   events,
		orders:   orders,
		commands: commands,
		provider: provider,
		notifier: notifier,
		tx:       tx,
		metrics:  m,
	}
}

// ConfirmPayment 同步确认：客户端声称支付完成后，主动向渠道核实
// PaymentIntent 的最终状态，再走统一的事件应用路径
func (g *Gateway) ConfirmPayment(ctx context.Context, orderNumber, paymentIntentID string) (*orderdomain.Order, error) {
	event, err := g.provider.RetrievePayment(ctx, paymentIntentID)
	if err != nil {
		return nil, err
	}
	// 同步路径以调用方给出的订单号为准
	event.OrderNumber = orderNumber

	if err := g.Apply(ctx, event); err != nil {
		return nil, err
	}
	return g.orders.Get(ctx, orderNumber)
}

// HandleWebhook 异步路径：校验签名、解析事件并应用。
// 与订单无关的事件类型直接确认成功，让渠道停止重试。
func (g *Gateway) HandleWebhook(ctx context.Context, payload []byte, header http.Header) error {
	event, err := g.provider.ParseWebhook(payload, header)
	if err != nil {
		return err
	}
	if event == nil {
		return nil
	}
	return g.Apply(ctx, event)
}

// Apply 把一个支付事件应用到订单上。整个应用在一个存储事务内完成：
// 去重检查、订单解析、状态迁移和事件落库要么全部生效要么全部回滚。
//   - 已应用过的事件直接返回成功（幂等）
//   - 事件相对订单当前状态已过期（乱序送达）时记录为 stale 并返回成功
//   - 引用未知订单的事件记录后返回 ErrUnknownOrder，由接口层决定响应码
//
// 两个并发请求携带同一事件时，后提交方在落库时撞唯一键、整个事务回滚，
// 渠道重试后命中去重检查，净效果仍是恰好应用一次。
func (g *Gateway) Apply(ctx context.Context, event *domain.Event) error {
	var (
		unknownOrder bool
		confirmed    *orderdomain.Order
	)
	err := g.tx.WithTx(ctx, func(ctx context.Context) error {
		applied, err := g.events.IsApplied(ctx, event.EventID)
		if err != nil {
			return fmt.Errorf("failed to check event dedup: %w", err)
		}
		if applied {
			g.metrics.PaymentEventsDuplicate.Inc()
			logger.Info(ctx, "Duplicate payment event ignored", "event_id", event.EventID)
			return nil
		}

		order, err := g.orders.Get(ctx, event.OrderNumber)
		if err != nil {
			if errors.Is(err, orderdomain.ErrOrderNotFound) {
				if recErr := g.record(ctx, event, domain.DispositionUnknownOrder); recErr != nil {
					return recErr
				}
				logger.Warn(ctx, "Payment event references unknown order",
					"event_id", event.EventID, "order_number", event.OrderNumber)
				// 回调返回非 nil 会让整个事务回滚，未知订单的记录必须提交，
				// 否则渠道的每次重试都打不中去重检查；错误在事务外返回
				unknownOrder = true
				return nil
			}
			return err
		}

		disposition, err := g.dispatch(ctx, order, event)
		if err != nil {
			return err
		}

		if err := g.record(ctx, event, disposition); err != nil {
			return err
		}

		if disposition == domain.DispositionApplied {
			g.metrics.PaymentEventsApplied.Inc()
			if event.Outcome == domain.OutcomeSucceeded {
				confirmed = order
			}
		} else {
			g.metrics.PaymentEventsStale.Inc()
		}
		logger.Info(ctx, "Payment event processed",
			"event_id", event.EventID,
			"order_number", event.OrderNumber,
			"outcome", event.Outcome,
			"disposition", disposition)
		return nil
	})
	if err != nil {
		return err
	}
	if unknownOrder {
		return domain.ErrUnknownOrder
	}
	// 确认通知在事务提交之后发出，回滚的迁移不产生通知
	if confirmed != nil {
		g.notifier.OrderConfirmed(ctx, confirmed)
	}
	return nil
}

// dispatch 按事件结果与订单当前支付状态决定动作。
// 过期事件（如订单已支付后又收到 failed）不报错，记录为 stale 即可。
func (g *Gateway) dispatch(ctx context.Context, order *orderdomain.Order, event *domain.Event) (string, error) {
	switch event.Outcome {
	case domain.OutcomeSucceeded:
		// 已取消订单的支付状态仍是 pending，迟到的成功事件同样按过期处理
		if order.Status != orderdomain.StatusPending || order.PaymentStatus != orderdomain.PaymentPending {
			return domain.DispositionStale, nil
		}
		if err := g.commands.ConfirmPaid(ctx, order, event.Reference); err != nil {
			if errors.Is(err, orderdomain.ErrStaleTransition) {
				return domain.DispositionStale, nil
			}
			return "", err
		}
		return domain.DispositionApplied, nil

	case domain.OutcomeFailed:
		if order.Status != orderdomain.StatusPending || order.PaymentStatus != orderdomain.PaymentPending {
			return domain.DispositionStale, nil
		}
		reason := event.FailureReason
		if reason == "" {
			reason = "payment failed"
		}
		if err := g.commands.FailPayment(ctx, order, reason); err != nil {
			if errors.Is(err, orderdomain.ErrStaleTransition) {
				return domain.DispositionStale, nil
			}
			return "", err
		}
		return domain.DispositionApplied, nil

	case domain.OutcomeRefunded:
		if order.PaymentStatus != orderdomain.PaymentPaid || order.Status != orderdomain.StatusDelivered {
			return domain.DispositionStale, nil
		}
		if err := g.commands.Refund(ctx, order, "refunded by payment provider"); err != nil {
			if errors.Is(err, orderdomain.ErrStaleTransition) {
				return domain.DispositionStale, nil
			}
			return "", err
		}
		return domain.DispositionApplied, nil

	default:
		return "", fmt.Errorf("unknown payment outcome: %s", event.Outcome)
	}
}

func (g *Gateway) record(ctx context.Context, event *domain.Event, disposition string) error {
	return g.events.Record(ctx, &domain.PaymentEvent{
		EventID:     event.EventID,
		OrderNumber: event.OrderNumber,
		Outcome:     event.Outcome,
		Reference:   event.Reference,
		Disposition: disposition,
	})
}
