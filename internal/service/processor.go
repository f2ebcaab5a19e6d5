package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/WilBtc/InsaAutomationCorp-sub010/internal/events"
	"github.com/WilBtc/InsaAutomationCorp-sub010/pkg/metrics"
)

// OccurrenceReader reads raw occurrence messages from a message queue.
type OccurrenceReader interface {
	// ReadMessage reads the next message and returns the parsed occurrence.
	// Returns the raw message for offset tracking.
	ReadMessage(ctx context.Context) (*events.RawOccurrence, *kafka.Message, error)

	// CommitMessage commits the offset for the given message.
	CommitMessage(ctx context.Context, msg *kafka.Message) error

	// Close closes the reader and releases resources.
	Close() error
}

// Processor continuously feeds raw occurrences from the alerts.raw topic
// into the grouping engine.
type Processor struct {
	reader  OccurrenceReader
	service *Service
	metrics metrics.Recorder
}

// NewProcessor creates an occurrence processor. If m is nil, a no-op
// metrics implementation is used.
func NewProcessor(reader OccurrenceReader, service *Service, m metrics.Recorder) *Processor {
	if m == nil {
		m = metrics.NoOp{}
	}
	return &Processor{
		reader:  reader,
		service: service,
		metrics: m,
	}
}

// Run reads occurrences until the context is cancelled. Offsets are
// committed only after successful processing: if the process crashes
// before a commit, the occurrence is redelivered and the grouping and
// scheduling idempotency keys absorb the duplicate.
func (p *Processor) Run(ctx context.Context) error {
	slog.Info("Starting occurrence processing loop")

	for {
		select {
		case <-ctx.Done():
			slog.Info("Occurrence processing loop stopped")
			return nil
		default:
			occ, msg, err := p.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				// Poison messages (bad JSON, unknown severity) are
				// committed and skipped; everything else is retried.
				if msg != nil {
					slog.Error("Skipping malformed occurrence", "error", err)
					p.metrics.RecordError()
					if commitErr := p.reader.CommitMessage(ctx, msg); commitErr != nil {
						slog.Error("Failed to commit malformed occurrence", "error", commitErr)
					}
					continue
				}
				slog.Error("Failed to read occurrence", "error", err)
				continue
			}

			p.metrics.RecordReceived()

			if !p.processOne(ctx, occ) {
				continue
			}

			if err := p.reader.CommitMessage(ctx, msg); err != nil {
				slog.Error("Failed to commit offset", "source_id", occ.SourceID, "error", err)
				// Offset will be committed on a later attempt; duplicates
				// are absorbed by the grouping window.
			}
		}
	}
}

// processOne ingests a single occurrence. Returns true if processing
// succeeded and the message should be committed.
func (p *Processor) processOne(ctx context.Context, occ *events.RawOccurrence) bool {
	startTime := time.Now()

	result, err := p.service.CreateAlert(ctx, occ.ToOccurrence())
	if err != nil {
		slog.Error("Failed to ingest occurrence",
			"source_id", occ.SourceID,
			"check_name", occ.CheckName,
			"error", err,
		)
		p.metrics.RecordError()
		return false
	}

	p.metrics.RecordProcessed(time.Since(startTime))

	if !result.Appended {
		slog.Info("Occurrence opened new alert",
			"alert_id", result.AlertID,
			"group_id", result.GroupID,
			"source_id", occ.SourceID,
			"check_name", occ.CheckName,
			"severity", occ.Severity,
		)
	}
	return true
}
