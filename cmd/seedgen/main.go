// Command seedgen populates a development environment: it registers
// escalation policies and on-call schedules in PostgreSQL, then publishes
// a stream of random raw occurrences to the alerts.raw topic.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/WilBtc/InsaAutomationCorp-sub010/internal/events"
	"github.com/WilBtc/InsaAutomationCorp-sub010/internal/model"
	"github.com/WilBtc/InsaAutomationCorp-sub010/internal/store"
	pkgkafka "github.com/WilBtc/InsaAutomationCorp-sub010/pkg/kafka"
	"github.com/WilBtc/InsaAutomationCorp-sub010/pkg/shared"
)

var (
	sources = []string{"web-1", "web-2", "db-primary", "cache-1", "queue-1", "worker-3"}
	checks  = []string{"disk_usage", "cpu_load", "memory_rss", "http_errors", "replication_lag"}
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	dsn := flag.String("postgres-dsn", shared.GetEnvOrDefault("POSTGRES_DSN", ""), "PostgreSQL connection string")
	brokers := flag.String("kafka-brokers", shared.GetEnvOrDefault("KAFKA_BROKERS", "localhost:9092"), "Kafka broker addresses")
	topic := flag.String("raw-topic", shared.GetEnvOrDefault("ALERTS_RAW_TOPIC", "alerts.raw"), "Raw occurrence topic")
	count := flag.Int("count", shared.GetEnvIntOrDefault("OCCURRENCE_COUNT", 500), "Number of occurrences to publish")
	flag.Parse()

	if *dsn == "" {
		slog.Error("postgres-dsn is required")
		os.Exit(1)
	}

	ctx := context.Background()

	db, err := store.NewDB(*dsn)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := seedSchedules(ctx, db); err != nil {
		slog.Error("Failed to seed schedules", "error", err)
		os.Exit(1)
	}
	if err := seedPolicies(ctx, db); err != nil {
		slog.Error("Failed to seed policies", "error", err)
		os.Exit(1)
	}

	writer := &kafka.Writer{
		Addr:     kafka.TCP(pkgkafka.ParseBrokers(*brokers)...),
		Topic:    *topic,
		Balancer: &kafka.Hash{},
	}
	defer writer.Close()

	published, err := publishOccurrences(ctx, writer, *count)
	if err != nil {
		slog.Error("Failed to publish occurrences", "error", err)
		os.Exit(1)
	}

	slog.Info("Seed complete", "occurrences_published", published, "topic", *topic)
}

func seedSchedules(ctx context.Context, db *store.DB) error {
	schedules := []*model.OnCallSchedule{
		{
			ScheduleID:    "sched-primary",
			Name:          "primary on-call",
			RotationType:  model.RotationWeekly,
			RotationStart: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
			Interval:      1,
			Members:       []string{"alice", "bob", "carol"},
			Timezone:      "UTC",
		},
		{
			ScheduleID:    "sched-followthesun",
			Name:          "follow the sun",
			RotationType:  model.RotationDaily,
			RotationStart: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC),
			Interval:      1,
			Members:       []string{"dana", "erin"},
			Timezone:      "America/New_York",
		},
	}
	for _, s := range schedules {
		if err := s.Validate(); err != nil {
			return err
		}
		if err := db.InsertSchedule(ctx, s); err != nil {
			slog.Warn("Schedule not inserted, may already exist", "schedule_id", s.ScheduleID, "error", err)
			continue
		}
		slog.Info("Schedule seeded", "schedule_id", s.ScheduleID)
	}
	return nil
}

func seedPolicies(ctx context.Context, db *store.DB) error {
	policies := []*model.EscalationPolicy{
		{
			PolicyID:      "pol-critical",
			Name:          "critical paging",
			SeverityMatch: []model.Severity{model.SeverityCritical},
			Priority:      100,
			Enabled:       true,
			Tiers: []model.Tier{
				{Delay: 0, Channels: []string{"sms", "slack"}, ScheduleRef: "sched-primary"},
				{Delay: 10 * time.Minute, Channels: []string{"sms"}, ScheduleRef: "sched-followthesun"},
				{Delay: 30 * time.Minute, Channels: []string{"email"}, Recipients: []string{"oncall-leads@example.com"}, Mandatory: true},
			},
		},
		{
			PolicyID:      "pol-default",
			Name:          "default notification",
			SeverityMatch: model.Severities,
			Priority:      1,
			Enabled:       true,
			Tiers: []model.Tier{
				{Delay: 0, Channels: []string{"email"}, Recipients: []string{"alerts@example.com"}},
			},
		},
	}
	for _, p := range policies {
		if err := p.Validate(); err != nil {
			return err
		}
		if err := db.InsertPolicy(ctx, p); err != nil {
			slog.Warn("Policy not inserted, may already exist", "policy_id", p.PolicyID, "error", err)
			continue
		}
		slog.Info("Policy seeded", "policy_id", p.PolicyID)
	}
	return nil
}

func publishOccurrences(ctx context.Context, writer *kafka.Writer, count int) (int, error) {
	published := 0
	for i := 0; i < count; i++ {
		occ := &events.RawOccurrence{
			SchemaVersion: events.SchemaVersion,
			EventTS:       time.Now().UnixMilli(),
			SourceID:      sources[rand.Intn(len(sources))],
			CheckName:     checks[rand.Intn(len(checks))],
			Severity:      string(model.Severities[rand.Intn(len(model.Severities))]),
			Message:       "synthetic occurrence",
			Value:         50 + rand.Float64()*50,
			Threshold:     90,
		}
		payload, err := json.Marshal(occ)
		if err != nil {
			return published, fmt.Errorf("failed to marshal occurrence: %w", err)
		}
		msg := kafka.Message{
			Key:   []byte(occ.SourceID + "|" + occ.CheckName),
			Value: payload,
		}
		if err := writer.WriteMessages(ctx, msg); err != nil {
			return published, fmt.Errorf("failed to publish occurrence: %w", err)
		}
		published++

		if published%100 == 0 {
			slog.Info("Progress", "published", published, "total", count)
		}
	}
	return published, nil
}
