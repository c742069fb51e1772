package repository

import (
	"context"

	"MidgardPull/internal/domain/models"
)

// SourceFetcher pulls one batch of a series starting at cursor (epoch seconds).
// No new data is an empty slice, not an error.
type SourceFetcher interface {
	FetchDepth(ctx context.Context, cursor int64, count int) ([]models.DepthInterval, error)
	FetchSwaps(ctx context.Context, cursor int64, count int) ([]models.SwapsInterval, error)
	FetchEarnings(ctx context.Context, cursor int64, count int) ([]models.EarningInterval, error)
	FetchRunePool(ctx context.Context, cursor int64, count int) ([]models.RunePoolInterval, error)
}

// IntervalStore is the write side. Insert* return only the records that were
// newly inserted; conflicting end_times are skipped silently.
type IntervalStore interface {
	LatestCursor(ctx context.Context) (int64, error)
	InsertDepth(ctx context.Context, records []models.DepthInterval) ([]models.DepthInterval, error)
	InsertSwaps(ctx context.Context, records []models.SwapsInterval) ([]models.SwapsInterval, error)
	InsertEarnings(ctx context.Context, records []models.EarningInterval) ([]models.EarningInterval, error)
	InsertRunePool(ctx context.Context, records []models.RunePoolInterval) ([]models.RunePoolInterval, error)
}

// IntervalReader is the read side used by the query API.
type IntervalReader interface {
	QueryDepth(ctx context.Context, q models.HistoryQuery) ([]models.DepthInterval, error)
	QuerySwaps(ctx context.Context, q models.HistoryQuery) ([]models.SwapsInterval, error)
	QueryEarnings(ctx context.Context, q models.HistoryQuery) ([]models.EarningRow, error)
	QueryRunePool(ctx context.Context, q models.HistoryQuery) ([]models.RunePoolInterval, error)
	Ping(ctx context.Context) error
}

// Mirror receives every newly inserted interval after it is durable.
type Mirror interface {
	Name() string
	Publish(ctx context.Context, events []models.IntervalEvent) error
	Close() error
}

type Metrics interface {
	RecordInserted(series string, n int)
	RecordSkipped(series string, n int)
	RecordError(kind string)
	RecordCycle(outcome string)
	RecordCursor(epoch int64)
	RecordLatency(op string, seconds float64)
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) RecordInserted(string, int)    {}
func (NoopMetrics) RecordSkipped(string, int)     {}
func (NoopMetrics) RecordError(string)            {}
func (NoopMetrics) RecordCycle(string)            {}
func (NoopMetrics) RecordCursor(int64)            {}
func (NoopMetrics) RecordLatency(string, float64) {}
