package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/banking/fraud-dashboard/internal/config"
	"github.com/banking/fraud-dashboard/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventTypeReportCompleted marks a report that reached the Ready state
const EventTypeReportCompleted = "report.completed"

// ReportCompletedEvent carries the summary of a finished analysis. Records
// are not included; they live only as long as the session.
type ReportCompletedEvent struct {
	EventID      uuid.UUID               `json:"event_id"`
	EventType    string                  `json:"event_type"`
	SessionID    uuid.UUID               `json:"session_id"`
	FileName     string                  `json:"file_name"`
	Summary      domain.ReportSummary    `json:"summary"`
	Distribution domain.RiskDistribution `json:"distribution"`
	Rejected     int                     `json:"rejected"`
	GeneratedAt  time.Time               `json:"generated_at"`
}

// NewReportCompletedEvent builds the event for a report
func NewReportCompletedEvent(sessionID uuid.UUID, fileName string, report *domain.Report) *ReportCompletedEvent {
	return &ReportCompletedEvent{
		EventID:      uuid.New(),
		EventType:    EventTypeReportCompleted,
		SessionID:    sessionID,
		FileName:     fileName,
		Summary:      report.Summary,
		Distribution: report.Distribution,
		Rejected:     len(report.Rejects),
		GeneratedAt:  report.GeneratedAt,
	}
}

// ReportProducer publishes report events to Kafka
type ReportProducer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

// NewReportProducer connects a synchronous producer to the configured brokers
func NewReportProducer(cfg config.KafkaConfig, logger *zap.Logger) (*ReportProducer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	config.Producer.Return.Successes = true
	config.Version = sarama.V2_8_0_0

	producer, err := sarama.NewSyncProducer(cfg.Brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return NewReportProducerWith(producer, cfg.ReportTopic, logger), nil
}

// NewReportProducerWith wraps an existing producer
func NewReportProducerWith(producer sarama.SyncProducer, topic string, logger *zap.Logger) *ReportProducer {
	return &ReportProducer{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
}

// PublishReportCompleted sends the event keyed by session id so all events
// of one session land on the same partition
func (p *ReportProducer) PublishReportCompleted(ctx context.Context, event *ReportCompletedEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal report event: %w", err)
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.SessionID.String()),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.EventType)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish report event: %w", err)
	}

	p.logger.Debug("Published report event",
		zap.String("event_id", event.EventID.String()),
		zap.String("topic", p.topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

// Close flushes and closes the producer
func (p *ReportProducer) Close() error {
	return p.producer.Close()
}
