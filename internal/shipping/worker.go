// Package shipping 实现发货推进后台任务：
// 周期性扫描已支付订单，把 confirmed 推进到 processing 再到 shipped
package shipping

import (
	"context"
	"time"

	orderapp "github.com/wyfcoding/ecommerce/internal/order/application"
	"github.com/wyfcoding/ecommerce/internal/order/domain"
	"github.com/wyfcoding/ecommerce/pkg/config"
	"github.com/wyfcoding/ecommerce/pkg/logger"
)

// Worker 发货推进器
// 多实例重叠运行是安全的：推进依赖订单状态的条件更新，
// 同一订单同时被两轮处理时只有一方生效，另一方静默跳过
type Worker struct {
	orders   domain.Repository
	commands *orderapp.CommandService

	interval        time.Duration
	processingDelay time.Duration
	batchSize       int
}

// NewWorker 创建发货推进器
func NewWorker(orders domain.Repository, commands *orderapp.CommandService, cfg config.ShippingConfig) *Worker {
	return &Worker{
		orders:          orders,
		commands:        commands,
		interval:        time.Duration(cfg.IntervalSeconds) * time.Second,
		processingDelay: time.Duration(cfg.ProcessingDelaySeconds) * time.Second,
		batchSize:       cfg.BatchSize,
	}
}

// Run 启动轮询循环，阻塞直到 ctx 取消
func (w *Worker) Run(ctx context.Context) {
	logger.Info(ctx, "Shipping worker started",
		"interval", w.interval.String(),
		"processing_delay", w.processingDelay.String(),
		"batch_size", w.batchSize)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Shipping worker stopped")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// runOnce 处理一批可发货的订单，单个订单的失败不中断整批
func (w *Worker) runOnce(ctx context.Context) {
	cutoff := time.Now().Add(-w.processingDelay)
	orders, err := w.orders.ListShippable(ctx, cutoff, w.batchSize)
	if err != nil {
		logger.Error(ctx, "Failed to list shippable orders", "error", err)
		return
	}
	if len(orders) == 0 {
		return
	}

	logger.Info(ctx, "Advancing shippable orders", "count", len(orders))
	for _, order := range orders {
		orderCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := w.commands.AdvanceToShipped(orderCtx, order); err != nil {
			logger.Error(ctx, "Failed to advance order",
				"order_number", order.OrderNumber,
				"status", order.Status,
				"error", err)
		}
		cancel()
	}
}
