package usecase

import (
	"context"
	"fmt"
	"time"

	"MidgardPull/internal/domain/models"
	drepo "MidgardPull/internal/domain/repository"
	"MidgardPull/pkg/cache"
	applogger "MidgardPull/pkg/logger"
)

const historyCacheNamespace = "history"

func historyCachePrefix(series drepo.Series) string {
	return cache.GenerateKeyWithParams(historyCacheNamespace, series.String()) + ":"
}

// UpsertWriter persists one fetched batch. Rows are write-once: conflicts on
// end_time are skipped, never overwritten. After the store accepts a series it
// drops that series' cached query results and hands the new rows to mirrors.
type UpsertWriter struct {
	store   drepo.IntervalStore
	cache   cache.Service
	gens    *HistoryGenerations
	mirrors []drepo.Mirror
	metrics drepo.Metrics
	logger  *applogger.Logger
	now     func() time.Time
}

// NewUpsertWriter creates an UpsertWriter. cache, gens and metrics may be nil;
// gens must be shared with the HistoryQueryService reading the same cache.
func NewUpsertWriter(store drepo.IntervalStore, c cache.Service, gens *HistoryGenerations, mirrors []drepo.Mirror, metrics drepo.Metrics, logger *applogger.Logger) *UpsertWriter {
	if c == nil {
		c = cache.Noop{}
	}
	if gens == nil {
		gens = NewHistoryGenerations()
	}
	if metrics == nil {
		metrics = drepo.NoopMetrics{}
	}
	if logger == nil {
		logger = applogger.Nop()
	}
	return &UpsertWriter{store: store, cache: c, gens: gens, mirrors: mirrors, metrics: metrics, logger: logger, now: time.Now}
}

// Persist writes earnings, swaps, rune pool, then depth. Depth goes last so the
// cursor read back from it never runs ahead of the other series. Each series is
// its own transaction; a failure stops the batch and is safe to retry.
func (w *UpsertWriter) Persist(ctx context.Context, batch models.Batch) (models.PersistResult, error) {
	var res models.PersistResult

	for _, series := range drepo.AllSeries {
		start := time.Now()
		events, received, err := w.persistSeries(ctx, series, batch, &res)
		w.metrics.RecordLatency("persist_"+series.String(), time.Since(start).Seconds())
		if err != nil {
			return res, fmt.Errorf("persist %s: %w", series, err)
		}

		w.metrics.RecordInserted(series.String(), len(events))
		w.metrics.RecordSkipped(series.String(), received-len(events))
		if len(events) == 0 {
			continue
		}

		w.gens.Bump(series)
		if err := w.cache.DeleteByPrefix(ctx, historyCachePrefix(series)); err != nil {
			w.metrics.RecordError("cache")
			w.logger.Warn("history cache invalidation failed",
				applogger.String("series", series.String()),
				applogger.Error(err),
			)
		}
		w.publish(ctx, series, events)
	}

	return res, nil
}

func (w *UpsertWriter) persistSeries(ctx context.Context, series drepo.Series, batch models.Batch, res *models.PersistResult) ([]models.IntervalEvent, int, error) {
	now := w.now().UTC()
	switch series {
	case drepo.SeriesDepth:
		inserted, err := w.store.InsertDepth(ctx, batch.Depth)
		if err != nil {
			return nil, 0, err
		}
		res.Depth = len(inserted)
		events := make([]models.IntervalEvent, 0, len(inserted))
		for i := range inserted {
			events = append(events, newEvent(series, inserted[i].StartTime, inserted[i].EndTime, now, inserted[i]))
		}
		return events, len(batch.Depth), nil

	case drepo.SeriesSwaps:
		inserted, err := w.store.InsertSwaps(ctx, batch.Swaps)
		if err != nil {
			return nil, 0, err
		}
		res.Swaps = len(inserted)
		events := make([]models.IntervalEvent, 0, len(inserted))
		for i := range inserted {
			events = append(events, newEvent(series, inserted[i].StartTime, inserted[i].EndTime, now, inserted[i]))
		}
		return events, len(batch.Swaps), nil

	case drepo.SeriesEarnings:
		inserted, err := w.store.InsertEarnings(ctx, batch.Earnings)
		if err != nil {
			return nil, 0, err
		}
		res.Earnings = len(inserted)
		events := make([]models.IntervalEvent, 0, len(inserted))
		for i := range inserted {
			res.Pools += len(inserted[i].Pools)
			events = append(events, newEvent(series, inserted[i].StartTime, inserted[i].EndTime, now, inserted[i]))
		}
		return events, len(batch.Earnings), nil

	case drepo.SeriesRunePool:
		inserted, err := w.store.InsertRunePool(ctx, batch.RunePool)
		if err != nil {
			return nil, 0, err
		}
		res.RunePool = len(inserted)
		events := make([]models.IntervalEvent, 0, len(inserted))
		for i := range inserted {
			events = append(events, newEvent(series, inserted[i].StartTime, inserted[i].EndTime, now, inserted[i]))
		}
		return events, len(batch.RunePool), nil
	}
	return nil, 0, fmt.Errorf("unknown series %q", series)
}

func newEvent(series drepo.Series, start, end string, at time.Time, rec interface{}) models.IntervalEvent {
	return models.IntervalEvent{Series: series.String(), StartTime: start, EndTime: end, IngestedAt: at, Record: rec}
}

// publish fans events out to every mirror. The rows are already durable, so a
// mirror failure is logged and counted only.
func (w *UpsertWriter) publish(ctx context.Context, series drepo.Series, events []models.IntervalEvent) {
	for _, m := range w.mirrors {
		if err := m.Publish(ctx, events); err != nil {
			w.metrics.RecordError("mirror_" + m.Name())
			w.logger.Warn("mirror publish failed",
				applogger.String("mirror", m.Name()),
				applogger.String("series", series.String()),
				applogger.Int("events", len(events)),
				applogger.Error(err),
			)
		}
	}
}
