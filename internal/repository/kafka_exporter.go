package repository

import (
	"context"

	"PriceCast/internal/domain/models"
	domrepo "PriceCast/internal/domain/repository"
)

// Publisher is what the Kafka exporter needs from pkg/kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// KafkaExporter publishes the snapshot document keyed by the current window id,
// so a compacted topic keeps one document per week.
type KafkaExporter struct {
	producer Publisher
	topic    string
}

func NewKafkaExporter(producer Publisher, topic string) *KafkaExporter {
	return &KafkaExporter{producer: producer, topic: topic}
}

func (e *KafkaExporter) Name() string { return "kafka" }

func (e *KafkaExporter) Export(ctx context.Context, snap *models.PublishedSnapshot) error {
	return e.producer.Publish(ctx, e.topic, []byte(snap.CurrentWeek.Start), snap)
}

var _ domrepo.Exporter = (*KafkaExporter)(nil)
