// NotificationService 主程序
// 功能：消费订单生命周期事件并分发用户通知
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/wyfcoding/ecommerce/internal/notification"
	"github.com/wyfcoding/ecommerce/pkg/config"
	"github.com/wyfcoding/ecommerce/pkg/logger"
	"github.com/wyfcoding/ecommerce/pkg/mq"
)

func main() {
	configPath := flag.String("config", "configs/notification/config.toml", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	loggerCfg := logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
		WithCaller: cfg.Logger.WithCaller,
	}
	if err := logger.Init(loggerCfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info(ctx, "Starting NotificationService",
		"service", cfg.ServiceName,
		"topic", cfg.Kafka.NotificationTopic,
	)

	consumer, err := mq.NewConsumer(mq.KafkaConfig{
		Brokers:        cfg.Kafka.Brokers,
		GroupID:        cfg.Kafka.GroupID,
		SessionTimeout: cfg.Kafka.SessionTimeout,
	}, cfg.Kafka.NotificationTopic)
	if err != nil {
		logger.Fatal(ctx, "Failed to create Kafka consumer", "error", err)
	}
	defer consumer.Close()

	for {
		msg, err := consumer.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			logger.Error(ctx, "Failed to read message", "error", err)
			continue
		}

		var env notification.Envelope
		if err := msg.UnmarshalPayload(&env); err != nil {
			logger.Error(ctx, "Failed to parse notification envelope",
				"topic", msg.Topic, "offset", msg.Offset, "error", err)
			continue
		}

		// 真实的投递渠道（邮件、短信、推送）在这里接入，
		// 目前记录结构化日志作为投递出口
		switch env.EventType {
		case notification.EventOrderConfirmed:
			logger.Info(ctx, "Order confirmation notification",
				"order_number", env.OrderNumber,
				"user_id", env.UserID,
				"total", env.TotalAmount,
				"currency", env.Currency)
		case notification.EventOrderShipped:
			logger.Info(ctx, "Order shipped notification",
				"order_number", env.OrderNumber,
				"user_id", env.UserID,
				"tracking_number", env.TrackingNumber)
		default:
			logger.Warn(ctx, "Unknown notification event", "event_type", env.EventType)
		}
	}

	logger.Info(ctx, "NotificationService stopped")
}
