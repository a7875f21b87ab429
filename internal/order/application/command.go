package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	inventorydomain "github.com/wyfcoding/ecommerce/internal/inventory/domain"
	"github.com/wyfcoding/ecommerce/internal/notification"
	"github.com/wyfcoding/ecommerce/internal/order/domain"
	pkgdb "github.com/wyfcoding/ecommerce/pkg/db"
	"github.com/wyfcoding/ecommerce/pkg/logger"
	"github.com/wyfcoding/ecommerce/pkg/metrics"
	"github.com/wyfcoding/ecommerce/pkg/utils"
)

// ErrForbidden 订单不属于当前用户
var ErrForbidden = errors.New("order does not belong to user")

// CommandService 订单状态变更服务，所有迁移都经过状态机校验与条件更新
type CommandService struct {
	orders   domain.Repository
	ledger   inventorydomain.Ledger
	tx       pkgdb.TxManager
	notifier notification.Notifier
	idgen    *utils.SnowflakeID
	metrics  *metrics.Metrics
	cache    QueryCache
}

// NewCommandService 创建订单命令服务
func NewCommandService(
	orders domain.Repository,
	ledger inventorydomain.Ledger,
	tx pkgdb.TxManager,
	notifier notification.Notifier,
	idgen *utils.SnowflakeID,
	m *metrics.Metrics,
	cache QueryCache,
) *CommandService {
	return &CommandService{
		orders:   orders,
		ledger:   ledger,
		tx:       tx,
		notifier: notifier,
		idgen:    idgen,
		metrics:  m,
		cache:    cache,
	}
}

// transition 校验状态机后执行条件更新，成功后使查询缓存失效
func (s *CommandService) transition(ctx context.Context, order *domain.Order, to domain.OrderStatus, set map[string]any, reason string, isSystem bool) error {
	if !domain.CanTransition(order.Status, to) {
		return &domain.InvalidTransitionError{OrderNumber: order.OrderNumber, From: order.Status, To: to}
	}
	history := &domain.OrderStatusHistory{
		Reason:   reason,
		IsSystem: isSystem,
	}
	if err := s.orders.Transition(ctx, order, to, set, history); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, order.OrderNumber)
	return nil
}

// Cancel 取消订单：pending/confirmed/processing 可取消，
// 已发货不可取消，取消在同一事务内回补每个商品行的库存
func (s *CommandService) Cancel(ctx context.Context, userID, orderNumber, reason string) error {
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		order, err := s.orders.Get(ctx, orderNumber)
		if err != nil {
			return err
		}
		if userID != "" && order.UserID != userID {
			return ErrForbidden
		}
		if !order.CanCancel() {
			return &domain.NotCancellableError{OrderNumber: order.OrderNumber, Status: order.Status}
		}

		now := time.Now()
		set := map[string]any{"cancelled_at": now}
		if err := s.transition(ctx, order, domain.StatusCancelled, set, reason, userID == ""); err != nil {
			return err
		}

		for _, item := range order.Items {
			if err := s.ledger.Release(ctx, item.ProductID, item.Quantity, order.OrderNumber, "order_cancelled"); err != nil {
				return fmt.Errorf("failed to release stock for product %d: %w", item.ProductID, err)
			}
		}

		s.metrics.OrdersCancelled.Inc()
		logger.Info(ctx, "Order cancelled", "order_number", orderNumber, "reason", reason)
		return nil
	})
}

// ConfirmPaid 支付成功：pending -> confirmed，记录支付引用与确认时间。
// 调用方通常在自己的事务里执行本方法，确认通知由调用方在提交后发出
func (s *CommandService) ConfirmPaid(ctx context.Context, order *domain.Order, paymentReference string) error {
	now := time.Now()
	set := map[string]any{
		"payment_status":    domain.PaymentPaid,
		"payment_reference": paymentReference,
		"confirmed_at":      now,
	}
	if err := s.transition(ctx, order, domain.StatusConfirmed, set, "payment succeeded", true); err != nil {
		return err
	}
	order.PaymentStatus = domain.PaymentPaid
	order.PaymentReference = paymentReference
	order.ConfirmedAt = &now
	return nil
}

// FailPayment 支付失败：pending -> failed，回补库存
func (s *CommandService) FailPayment(ctx context.Context, order *domain.Order, reason string) error {
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		set := map[string]any{"payment_status": domain.PaymentFailed}
		if err := s.transition(ctx, order, domain.StatusFailed, set, reason, true); err != nil {
			return err
		}
		order.PaymentStatus = domain.PaymentFailed

		for _, item := range order.Items {
			if err := s.ledger.Release(ctx, item.ProductID, item.Quantity, order.OrderNumber, "payment_failed"); err != nil {
				return fmt.Errorf("failed to release stock for product %d: %w", item.ProductID, err)
			}
		}
		return nil
	})
}

// Refund 退款：delivered -> refunded，回补库存
func (s *CommandService) Refund(ctx context.Context, order *domain.Order, reason string) error {
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		set := map[string]any{"payment_status": domain.PaymentRefunded}
		if err := s.transition(ctx, order, domain.StatusRefunded, set, reason, true); err != nil {
			return err
		}
		order.PaymentStatus = domain.PaymentRefunded

		for _, item := range order.Items {
			if err := s.ledger.Release(ctx, item.ProductID, item.Quantity, order.OrderNumber, "order_refunded"); err != nil {
				return fmt.Errorf("failed to release stock for product %d: %w", item.ProductID, err)
			}
		}
		return nil
	})
}

// MarkDelivered 签收：shipped -> delivered
func (s *CommandService) MarkDelivered(ctx context.Context, orderNumber string) error {
	order, err := s.orders.Get(ctx, orderNumber)
	if err != nil {
		return err
	}
	set := map[string]any{"delivered_at": time.Now()}
	return s.transition(ctx, order, domain.StatusDelivered, set, "delivery confirmed", false)
}

// AdvanceToShipped 把一张已支付订单推进到 shipped。
// confirmed 的订单先迁移到 processing 再发货；运单号在进入 shipped 的
// 同一条件更新里写入，保证只生成一次。并发重叠运行时，输掉条件更新的
// 一方拿到 ErrStaleTransition 并静默跳过。
func (s *CommandService) AdvanceToShipped(ctx context.Context, order *domain.Order) error {
	if order.Status == domain.StatusConfirmed {
		err := s.transition(ctx, order, domain.StatusProcessing, nil, "fulfillment started", true)
		if errors.Is(err, domain.ErrStaleTransition) {
			return nil
		}
		if err != nil {
			return err
		}
	}
	if order.Status != domain.StatusProcessing {
		return nil
	}

	tracking := fmt.Sprintf("TRK%d", s.idgen.Generate())
	now := time.Now()
	set := map[string]any{
		"tracking_number": tracking,
		"shipped_at":      now,
	}
	err := s.transition(ctx, order, domain.StatusShipped, set, "shipped by carrier", true)
	if errors.Is(err, domain.ErrStaleTransition) {
		return nil
	}
	if err != nil {
		return err
	}
	order.TrackingNumber = tracking
	order.ShippedAt = &now

	s.metrics.ShipmentsTotal.Inc()
	logger.Info(ctx, "Order shipped", "order_number", order.OrderNumber, "tracking_number", tracking)

	s.notifier.OrderShipped(ctx, order)
	return nil
}

// ResendShippedNotification 补发发货通知，用于通知链路失败后的对账兜底
func (s *CommandService) ResendShippedNotification(ctx context.Context, orderNumber string) error {
	order, err := s.orders.Get(ctx, orderNumber)
	if err != nil {
		return err
	}
	if order.Status != domain.StatusShipped && order.Status != domain.StatusDelivered {
		return &domain.InvalidTransitionError{OrderNumber: orderNumber, From: order.Status, To: domain.StatusShipped}
	}
	s.notifier.OrderShipped(ctx, order)
	return nil
}

// AdminSetStatus 管理端手工迁移状态，仍受状态机约束
func (s *CommandService) AdminSetStatus(ctx context.Context, orderNumber string, to domain.OrderStatus, reason string) error {
	if !domain.ValidStatus(to) {
		return fmt.Errorf("unknown order status: %s", to)
	}
	order, err := s.orders.Get(ctx, orderNumber)
	if err != nil {
		return err
	}

	switch to {
	case domain.StatusCancelled:
		return s.Cancel(ctx, "", orderNumber, reason)
	case domain.StatusDelivered:
		return s.MarkDelivered(ctx, orderNumber)
	case domain.StatusShipped:
		return s.AdvanceToShipped(ctx, order)
	default:
		return s.transition(ctx, order, to, nil, reason, false)
	}
}
