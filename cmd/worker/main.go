// Worker consumes booking events from Kafka and pushes them to Loki.
// Set BOOKING_KAFKA_BROKERS, BOOKING_KAFKA_TOPIC, KAFKA_GROUP_ID, and LOKI_URL. APP_SECRET is required by config but unused.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"booking-intake/backend/internal/config"
	"booking-intake/backend/internal/logging"
	"booking-intake/backend/internal/telemetry/loki"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Env)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	brokers := cfg.BookingKafkaBrokersList()
	if len(brokers) == 0 {
		logger.Fatal("worker: BOOKING_KAFKA_BROKERS is required")
	}
	if cfg.LokiURL == "" {
		logger.Fatal("worker: LOKI_URL is required")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          cfg.BookingKafkaTopic,
		GroupID:        cfg.KafkaGroupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		CommitInterval: time.Second,
	})
	defer reader.Close()

	client := loki.NewClient(cfg.LokiURL, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("worker: consuming",
		zap.String("topic", cfg.BookingKafkaTopic),
		zap.String("group", cfg.KafkaGroupID),
		zap.String("loki", cfg.LokiURL))

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("worker: stopped")
				return
			}
			logger.Warn("worker: kafka read error", zap.Error(err))
			continue
		}

		pushCtx, pushCancel := context.WithTimeout(ctx, 10*time.Second)
		if err := client.PushBookingJSON(pushCtx, msg.Value); err != nil {
			logger.Warn("worker: loki push failed", zap.String("key", string(msg.Key)), zap.Int64("offset", msg.Offset), zap.Error(err))
		}
		pushCancel()
	}
}
