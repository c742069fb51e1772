package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"MidgardPull/internal/domain/models"
	drepo "MidgardPull/internal/domain/repository"
	applogger "MidgardPull/pkg/logger"
	"MidgardPull/pkg/util"
)

// Cycle outcomes, also used as metric labels.
const (
	OutcomePersisted = "persisted"
	OutcomeTooRecent = "too_recent"
	OutcomeCaughtUp  = "caught_up"
	OutcomeFailed    = "failed"
)

// BatchWriter persists one fetched batch.
type BatchWriter interface {
	Persist(ctx context.Context, batch models.Batch) (models.PersistResult, error)
}

// CursorSource returns the persisted cursor to resume from.
type CursorSource interface {
	LatestCursor(ctx context.Context) (int64, error)
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SchedulerOption configures IngestionScheduler.
type SchedulerOption func(*IngestionScheduler)

// WithBucket sets the width of one source bucket.
func WithBucket(d time.Duration) SchedulerOption {
	return func(s *IngestionScheduler) { s.bucket = d }
}

// WithBatchSize sets how many records are requested per series and cycle.
func WithBatchSize(n int) SchedulerOption {
	return func(s *IngestionScheduler) { s.batchSize = n }
}

// WithBackoff bounds the retry delay after a failed cycle.
func WithBackoff(initial, max time.Duration) SchedulerOption {
	return func(s *IngestionScheduler) {
		s.backoffInitial = initial
		s.backoffMax = max
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *IngestionScheduler) { s.now = now }
}

// WithSleeper replaces the context-aware sleep.
func WithSleeper(sleep Sleeper) SchedulerOption {
	return func(s *IngestionScheduler) { s.sleep = sleep }
}

// WithSchedulerLogger sets the logger.
func WithSchedulerLogger(l *applogger.Logger) SchedulerOption {
	return func(s *IngestionScheduler) { s.logger = l }
}

// WithSchedulerMetrics sets the metrics sink.
func WithSchedulerMetrics(m drepo.Metrics) SchedulerOption {
	return func(s *IngestionScheduler) { s.metrics = m }
}

// IngestionScheduler owns the ingestion cursor and drives fetch/persist cycles
// until its context is canceled. One cycle runs at a time.
//
// A record is settled once a full bucket has passed since its end_time. Only
// settled records are persisted. When nothing fetched is settled the cycle
// persists nothing and sleeps max(bucket-gap, bucket), gap being the distance
// from now to the last fetched end_time.
type IngestionScheduler struct {
	fetcher drepo.SourceFetcher
	writer  BatchWriter
	cursors CursorSource
	metrics drepo.Metrics
	logger  *applogger.Logger

	bucket         time.Duration
	batchSize      int
	backoffInitial time.Duration
	backoffMax     time.Duration
	now            func() time.Time
	sleep          Sleeper

	cursor atomic.Int64
}

// NewIngestionScheduler creates a scheduler with hourly buckets and 400-record batches.
func NewIngestionScheduler(fetcher drepo.SourceFetcher, writer BatchWriter, cursors CursorSource, opts ...SchedulerOption) *IngestionScheduler {
	s := &IngestionScheduler{
		fetcher:        fetcher,
		writer:         writer,
		cursors:        cursors,
		metrics:        drepo.NoopMetrics{},
		logger:         applogger.Nop(),
		bucket:         time.Hour,
		batchSize:      400,
		backoffInitial: 5 * time.Second,
		backoffMax:     5 * time.Minute,
		now:            time.Now,
		sleep:          sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Cursor returns the current cursor in epoch seconds, 0 before bootstrap.
func (s *IngestionScheduler) Cursor() int64 { return s.cursor.Load() }

// Run bootstraps the cursor and cycles until ctx is canceled. A failed cycle
// keeps the cursor and is retried after an exponential backoff. Run only
// returns ctx.Err().
func (s *IngestionScheduler) Run(ctx context.Context) error {
	retry := s.newBackoff()

	cursor, err := s.bootstrap(ctx, retry)
	if err != nil {
		return err
	}
	s.setCursor(cursor)
	retry.Reset()

	s.logger.Info("ingestion started",
		applogger.Int64("cursor", cursor),
		applogger.Duration("bucket", s.bucket),
		applogger.Int("batch_size", s.batchSize),
	)

	for {
		next, wait, err := s.Cycle(ctx, cursor)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			wait = retry.NextBackOff()
			s.logger.Error("ingestion cycle failed",
				applogger.Int64("cursor", cursor),
				applogger.String("kind", drepo.ErrorKind(err)),
				applogger.Duration("retry_in", wait),
				applogger.Error(err),
			)
		} else {
			retry.Reset()
			cursor = next
			s.setCursor(cursor)
		}

		if wait > 0 {
			if err := s.sleep(ctx, wait); err != nil {
				s.logger.Info("ingestion stopped", applogger.Int64("cursor", cursor))
				return err
			}
		} else if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// bootstrap reads the persisted cursor. An empty store or an unparsable value
// falls back to one bucket before now; an unreachable store is retried.
func (s *IngestionScheduler) bootstrap(ctx context.Context, retry backoff.BackOff) (int64, error) {
	for {
		cursor, err := s.cursors.LatestCursor(ctx)
		switch {
		case err == nil:
			return cursor, nil
		case errors.Is(err, drepo.ErrNotFound), errors.Is(err, drepo.ErrCursorParse):
			def := s.now().Add(-s.bucket).Unix()
			if errors.Is(err, drepo.ErrCursorParse) {
				s.metrics.RecordError(drepo.ErrorKind(err))
				s.logger.Warn("persisted cursor unreadable, using default",
					applogger.Int64("cursor", def),
					applogger.Error(err),
				)
			}
			return def, nil
		case ctx.Err() != nil:
			return 0, ctx.Err()
		}

		wait := retry.NextBackOff()
		s.metrics.RecordError(drepo.ErrorKind(err))
		s.logger.Error("reading ingestion cursor failed",
			applogger.Duration("retry_in", wait),
			applogger.Error(err),
		)
		if err := s.sleep(ctx, wait); err != nil {
			return 0, err
		}
	}
}

// Cycle runs one fetch/decide/persist step from cursor and returns the next
// cursor and how long to wait before the following cycle. On error the cursor
// is returned unchanged.
func (s *IngestionScheduler) Cycle(ctx context.Context, cursor int64) (int64, time.Duration, error) {
	start := time.Now()
	defer func() { s.metrics.RecordLatency("cycle", time.Since(start).Seconds()) }()

	batch, err := s.fetch(ctx, cursor)
	if err != nil {
		s.fail(err)
		return cursor, 0, err
	}

	if len(batch.Depth) == 0 {
		s.metrics.RecordCycle(OutcomeCaughtUp)
		s.logger.Debug("source has nothing new", applogger.Int64("cursor", cursor))
		return cursor, s.bucket, nil
	}

	last, err := util.ParseEpoch(batch.Depth[len(batch.Depth)-1].EndTime)
	if err != nil {
		err = fmt.Errorf("%w: depth end_time: %v", drepo.ErrMalformedPayload, err)
		s.fail(err)
		return cursor, 0, err
	}

	now := s.now()
	cutoff := now.Add(-s.bucket).Unix()
	settled, err := settledBatch(batch, cutoff)
	if err != nil {
		s.fail(err)
		return cursor, 0, err
	}

	if len(settled.Depth) == 0 {
		gap := now.Sub(time.Unix(last, 0))
		wait := s.bucket - gap
		if wait < s.bucket {
			wait = s.bucket
		}
		s.metrics.RecordCycle(OutcomeTooRecent)
		s.logger.Debug("freshest bucket not settled, skipping",
			applogger.Int64("cursor", cursor),
			applogger.Int64("last_end_time", last),
			applogger.Duration("gap", gap),
			applogger.Duration("sleep", wait),
		)
		return cursor, wait, nil
	}

	res, err := s.writer.Persist(ctx, settled)
	if err != nil {
		s.fail(err)
		return cursor, 0, err
	}

	next, _ := util.ParseEpoch(settled.Depth[len(settled.Depth)-1].EndTime)
	var wait time.Duration
	if next <= cursor {
		// the source only returned rows at or behind the cursor
		next = cursor
		wait = s.bucket
	}

	s.metrics.RecordCycle(OutcomePersisted)
	s.logger.Info("ingestion cycle persisted",
		applogger.Int64("cursor", cursor),
		applogger.Int64("next_cursor", next),
		applogger.Int("depth", res.Depth),
		applogger.Int("swaps", res.Swaps),
		applogger.Int("earnings", res.Earnings),
		applogger.Int("pools", res.Pools),
		applogger.Int("rune", res.RunePool),
		applogger.Duration("sleep", wait),
	)
	return next, wait, nil
}

func (s *IngestionScheduler) fetch(ctx context.Context, cursor int64) (models.Batch, error) {
	var (
		b   models.Batch
		err error
	)
	if b.Depth, err = s.fetcher.FetchDepth(ctx, cursor, s.batchSize); err != nil {
		return b, fmt.Errorf("fetch depth: %w", err)
	}
	if b.Swaps, err = s.fetcher.FetchSwaps(ctx, cursor, s.batchSize); err != nil {
		return b, fmt.Errorf("fetch swaps: %w", err)
	}
	if b.Earnings, err = s.fetcher.FetchEarnings(ctx, cursor, s.batchSize); err != nil {
		return b, fmt.Errorf("fetch earnings: %w", err)
	}
	if b.RunePool, err = s.fetcher.FetchRunePool(ctx, cursor, s.batchSize); err != nil {
		return b, fmt.Errorf("fetch rune pool: %w", err)
	}
	return b, nil
}

func (s *IngestionScheduler) fail(err error) {
	s.metrics.RecordCycle(OutcomeFailed)
	s.metrics.RecordError(drepo.ErrorKind(err))
}

func (s *IngestionScheduler) setCursor(c int64) {
	s.cursor.Store(c)
	s.metrics.RecordCursor(c)
}

func (s *IngestionScheduler) newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.backoffInitial
	b.MaxInterval = s.backoffMax
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// settledBatch keeps, per series, the records whose end_time is at or before cutoff.
func settledBatch(b models.Batch, cutoff int64) (models.Batch, error) {
	var (
		out models.Batch
		err error
	)
	if out.Depth, err = settled(b.Depth, cutoff, func(r models.DepthInterval) string { return r.EndTime }); err != nil {
		return out, err
	}
	if out.Swaps, err = settled(b.Swaps, cutoff, func(r models.SwapsInterval) string { return r.EndTime }); err != nil {
		return out, err
	}
	if out.Earnings, err = settled(b.Earnings, cutoff, func(r models.EarningInterval) string { return r.EndTime }); err != nil {
		return out, err
	}
	if out.RunePool, err = settled(b.RunePool, cutoff, func(r models.RunePoolInterval) string { return r.EndTime }); err != nil {
		return out, err
	}
	return out, nil
}

func settled[T any](records []T, cutoff int64, endTime func(T) string) ([]T, error) {
	out := make([]T, 0, len(records))
	for _, r := range records {
		end, err := util.ParseEpoch(endTime(r))
		if err != nil {
			return nil, fmt.Errorf("%w: end_time: %v", drepo.ErrMalformedPayload, err)
		}
		if end <= cutoff {
			out = append(out, r)
		}
	}
	return out, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
