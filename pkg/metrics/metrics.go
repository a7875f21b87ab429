// Package metrics 提供 Prometheus helper，包含常用 counter/gauge/histogram 模板
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wyfcoding/ecommerce/pkg/logger"
)

// Metrics 指标集合
type Metrics struct {
	// HTTP 请求计数
	HTTPRequestsTotal prometheus.Counter
	// HTTP 请求耗时
	HTTPRequestDuration prometheus.Histogram

	// 数据库查询计数
	DBQueriesTotal prometheus.Counter
	// 数据库查询耗时
	DBQueryDuration prometheus.Histogram

	// 业务指标
	OrdersCreated          prometheus.Counter
	OrdersCancelled        prometheus.Counter
	CheckoutFailures       prometheus.Counter
	PaymentEventsApplied   prometheus.Counter
	PaymentEventsDuplicate prometheus.Counter
	PaymentEventsStale     prometheus.Counter
	ShipmentsTotal         prometheus.Counter
	StockConflicts         prometheus.Counter
	StockInsufficient      prometheus.Counter
}

// New 创建指标实例
func New(serviceName string) *Metrics {
	// Prometheus 指标名不允许连字符
	serviceName = strings.ReplaceAll(serviceName, "-", "_")
	return &Metrics{
		HTTPRequestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ecommerce",
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}),
		HTTPRequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ecommerce",
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		DBQueriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ecommerce",
			Subsystem: serviceName,
			Name:      "db_queries_total",
			Help:      "Total database queries",
		}),
		DBQueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ecommerce",
			Subsystem: serviceName,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		OrdersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ecommerce",
			Subsystem: serviceName,
			Name:      "orders_created_total",
			Help:      "Total orders created via checkout",
		}),
		OrdersCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ecommerce",
			Subsystem: serviceName,
			Name:      "orders_cancelled_total",
			Help:      "Total orders cancelled",
		}),
		CheckoutFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ecommerce",
			Subsystem: serviceName,
			Name:      "checkout_failures_total",
			Help:      "Total checkout attempts rejected for unavailable stock",
		}),
		PaymentEventsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ecommerce",
			Subsystem: serviceName,
			Name:      "payment_events_applied_total",
			Help:      "Total payment events applied",
		}),
		PaymentEventsDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ecommerce",
			Subsystem: serviceName,
			Name:      "payment_events_duplicate_total",
			Help:      "Total payment events skipped as already applied",
		}),
		PaymentEventsStale: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ecommerce",
			Subsystem: serviceName,
			Name:      "payment_events_stale_total",
			Help:      "Total payment events ignored as stale",
		}),
		ShipmentsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ecommerce",
			Subsystem: serviceName,
			Name:      "shipments_total",
			Help:      "Total orders advanced to shipped",
		}),
		StockConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ecommerce",
			Subsystem: serviceName,
			Name:      "stock_conflicts_total",
			Help:      "Total optimistic lock conflicts on stock mutation",
		}),
		StockInsufficient: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ecommerce",
			Subsystem: serviceName,
			Name:      "stock_insufficient_total",
			Help:      "Total reservations rejected for insufficient stock",
		}),
	}
}

// Register 注册所有指标
func (m *Metrics) Register() error {
	collectors := []prometheus.Collector{
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.DBQueriesTotal,
		m.DBQueryDuration,
		m.OrdersCreated,
		m.OrdersCancelled,
		m.CheckoutFailures,
		m.PaymentEventsApplied,
		m.PaymentEventsDuplicate,
		m.PaymentEventsStale,
		m.ShipmentsTotal,
		m.StockConflicts,
		m.StockInsufficient,
	}

	for _, metric := range collectors {
		if err := prometheus.DefaultRegisterer.Register(metric); err != nil {
			logger.Error(context.Background(), "Failed to register metric", "error", err)
			return err
		}
	}

	logger.Info(context.Background(), "Metrics registered successfully")
	return nil
}

// StartHTTPServer 启动 Prometheus HTTP 服务器
func StartHTTPServer(port int, path string) error {
	if path == "" {
		path = "/metrics"
	}

	http.Handle(path, promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	logger.Info(context.Background(), "Starting Prometheus HTTP server", "addr", addr, "path", path)

	go func() {
		if err := http.ListenAndServe(addr, nil); err != nil {
			logger.Error(context.Background(), "Failed to start Prometheus HTTP server", "error", err)
		}
	}()

	return nil
}
