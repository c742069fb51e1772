package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"MidgardPull/internal/domain/models"
	domrepo "MidgardPull/internal/domain/repository"
	pkgch "MidgardPull/pkg/clickhouse"
	pkgkafka "MidgardPull/pkg/kafka"
	"MidgardPull/pkg/util"
)

// KafkaMirror publishes every newly inserted interval, keyed by series so each
// series stays ordered within its partition.
type KafkaMirror struct {
	producer *pkgkafka.Producer
	topic    string
}

var _ domrepo.Mirror = (*KafkaMirror)(nil)

// NewKafkaMirror creates a Kafka mirror.
func NewKafkaMirror(producer *pkgkafka.Producer, topic string) *KafkaMirror {
	return &KafkaMirror{producer: producer, topic: topic}
}

func (m *KafkaMirror) Name() string { return "kafka" }

func (m *KafkaMirror) Publish(ctx context.Context, events []models.IntervalEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, 0, len(events))
	for _, ev := range events {
		v, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal %s event: %w", ev.Series, err)
		}
		msgs = append(msgs, pkgkafka.Message{Key: []byte(ev.Series), Value: v})
	}
	return m.producer.PublishBatch(ctx, m.topic, msgs)
}

func (m *KafkaMirror) Close() error {
	if m.producer != nil {
		return m.producer.Close()
	}
	return nil
}

// ClickHouseMirror archives newly inserted intervals into a ReplacingMergeTree
// keyed by (series, end_time), so replays collapse to one row.
type ClickHouseMirror struct {
	client *pkgch.Client
	table  string
}

var _ domrepo.Mirror = (*ClickHouseMirror)(nil)

// NewClickHouseMirror creates the mirror and ensures its table exists.
func NewClickHouseMirror(ctx context.Context, client *pkgch.Client, table string) (*ClickHouseMirror, error) {
	fq := client.Database() + "." + table
	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS " + client.Database(),
		`CREATE TABLE IF NOT EXISTS ` + fq + ` (
			series LowCardinality(String),
			start_time UInt64,
			end_time UInt64,
			payload String,
			ingested_at DateTime64(3, 'UTC')
		) ENGINE = ReplacingMergeTree(ingested_at)
		ORDER BY (series, end_time)`,
	}); err != nil {
		return nil, err
	}
	return &ClickHouseMirror{client: client, table: fq}, nil
}

func (m *ClickHouseMirror) Name() string { return "clickhouse" }

func (m *ClickHouseMirror) Publish(ctx context.Context, events []models.IntervalEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := m.client.Conn().PrepareBatch(ctx,
		"INSERT INTO "+m.table+" (series, start_time, end_time, payload, ingested_at)")
	if err != nil {
		return fmt.Errorf("prepare clickhouse batch: %w", err)
	}

	for _, ev := range events {
		start, err := util.ParseEpoch(ev.StartTime)
		if err != nil {
			return fmt.Errorf("%s start_time: %w", ev.Series, err)
		}
		end, err := util.ParseEpoch(ev.EndTime)
		if err != nil {
			return fmt.Errorf("%s end_time: %w", ev.Series, err)
		}
		payload, err := json.Marshal(ev.Record)
		if err != nil {
			return fmt.Errorf("marshal %s record: %w", ev.Series, err)
		}
		if err := batch.Append(ev.Series, uint64(start), uint64(end), string(payload), ev.IngestedAt); err != nil {
			return fmt.Errorf("append clickhouse row: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send clickhouse batch: %w", err)
	}
	return nil
}

func (m *ClickHouseMirror) Close() error {
	return m.client.Close()
}
