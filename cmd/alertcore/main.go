// Package main provides the CLI entry point for the alert core service.
// It wires the occurrence consumer, the lifecycle components, and the
// three background sweeps, and handles graceful shutdown.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/WilBtc/InsaAutomationCorp-sub010/internal/config"
	"github.com/WilBtc/InsaAutomationCorp-sub010/internal/consumer"
	"github.com/WilBtc/InsaAutomationCorp-sub010/internal/escalation"
	"github.com/WilBtc/InsaAutomationCorp-sub010/internal/grouping"
	"github.com/WilBtc/InsaAutomationCorp-sub010/internal/lifecycle"
	"github.com/WilBtc/InsaAutomationCorp-sub010/internal/notifier"
	"github.com/WilBtc/InsaAutomationCorp-sub010/internal/oncall"
	"github.com/WilBtc/InsaAutomationCorp-sub010/internal/service"
	"github.com/WilBtc/InsaAutomationCorp-sub010/internal/sla"
	"github.com/WilBtc/InsaAutomationCorp-sub010/internal/store"
	"github.com/WilBtc/InsaAutomationCorp-sub010/pkg/metrics"
	"github.com/WilBtc/InsaAutomationCorp-sub010/pkg/shared"
)

const serviceName = "alert-core"

func main() {
	// Initialize structured logger with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := config.Config{}
	flag.StringVar(&cfg.PostgresDSN, "postgres-dsn", shared.GetEnvOrDefault("POSTGRES_DSN", "postgres://localhost:5432/alertcore?sslmode=disable"), "PostgreSQL connection string")
	flag.StringVar(&cfg.KafkaBrokers, "kafka-brokers", shared.GetEnvOrDefault("KAFKA_BROKERS", "localhost:9092"), "Kafka broker addresses (comma-separated)")
	flag.StringVar(&cfg.RawTopic, "raw-topic", shared.GetEnvOrDefault("ALERTS_RAW_TOPIC", "alerts.raw"), "Raw occurrence topic name")
	flag.StringVar(&cfg.GroupID, "group-id", shared.GetEnvOrDefault("KAFKA_GROUP_ID", "alert-core"), "Kafka consumer group ID")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", shared.GetEnvOrDefault("REDIS_ADDR", ""), "Redis address for metrics reporting (empty = disabled)")
	flag.DurationVar(&cfg.GroupingWindow, "grouping-window", shared.GetEnvDurationOrDefault("GROUPING_WINDOW", grouping.DefaultWindow), "Occurrence grouping window")
	flag.DurationVar(&cfg.SweepInterval, "sweep-interval", shared.GetEnvDurationOrDefault("SWEEP_INTERVAL", 15*time.Second), "Background sweep interval")
	flag.IntVar(&cfg.DispatchBatchSize, "dispatch-batch-size", shared.GetEnvIntOrDefault("DISPATCH_BATCH_SIZE", 50), "Escalation runs claimed per dispatcher sweep")
	flag.IntVar(&cfg.SweepBatchSize, "sweep-batch-size", shared.GetEnvIntOrDefault("SWEEP_BATCH_SIZE", 200), "Rows claimed per breach/idle sweep")
	flag.Parse()

	slog.Info("Starting alert core",
		"postgres_dsn", shared.MaskDSN(cfg.PostgresDSN),
		"kafka_brokers", cfg.KafkaBrokers,
		"raw_topic", cfg.RawTopic,
		"grouping_window", cfg.GroupingWindow,
		"sweep_interval", cfg.SweepInterval,
	)

	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("Received shutdown signal, shutting down gracefully...")
		cancel()
	}()

	db, err := store.NewDB(cfg.PostgresDSN)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Metrics are optional: without Redis the collector degrades to no-op.
	var recorder metrics.Recorder = metrics.NoOp{}
	if cfg.RedisAddr != "" {
		redisClient, err := shared.ConnectRedis(ctx, cfg.RedisAddr)
		if err != nil {
			slog.Warn("Redis unavailable, metrics reporting disabled", "error", err)
		} else {
			defer redisClient.Close()
			collector := metrics.NewCollector(serviceName, redisClient)
			collector.Start(ctx)
			defer collector.Stop()
			recorder = collector
		}
	}

	kafkaConsumer, err := consumer.NewConsumer(cfg.KafkaBrokers, cfg.RawTopic, cfg.GroupID)
	if err != nil {
		slog.Error("Failed to create Kafka consumer", "error", err)
		os.Exit(1)
	}
	defer kafkaConsumer.Close()

	// Wire the core components.
	states := lifecycle.New(db)
	tracker := sla.NewTracker(db)
	resolver := oncall.NewResolver(db)
	engine := escalation.NewEngine(db)
	groups := grouping.NewEngine(db, engine, recorder)
	groups.SetWindow(cfg.GroupingWindow)
	svc := service.New(db, groups, states, tracker, resolver)

	scanner := sla.NewScanner(db, cfg.SweepInterval, cfg.SweepBatchSize, recorder)
	dispatcher := escalation.NewDispatcher(db, notifier.NewLog(), resolver, cfg.SweepInterval, cfg.DispatchBatchSize, recorder)
	closer := grouping.NewIdleCloser(db, cfg.GroupingWindow, cfg.SweepInterval, cfg.SweepBatchSize, recorder)

	// The three sweeps run as independent workers; horizontal scaling
	// happens through the store's claim queries, not in-process.
	var wg sync.WaitGroup
	for _, run := range []func(context.Context){scanner.Run, dispatcher.Run, closer.Run} {
		wg.Add(1)
		go func(run func(context.Context)) {
			defer wg.Done()
			run(ctx)
		}(run)
	}

	processor := service.NewProcessor(kafkaConsumer, svc, recorder)
	if err := processor.Run(ctx); err != nil {
		slog.Error("Occurrence processing failed", "error", err)
	}

	cancel()
	wg.Wait()
	slog.Info("Alert core stopped")
}
