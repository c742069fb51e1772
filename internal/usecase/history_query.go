package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"MidgardPull/internal/domain/models"
	drepo "MidgardPull/internal/domain/repository"
	"MidgardPull/pkg/cache"
	xhttp "MidgardPull/pkg/http"
	applogger "MidgardPull/pkg/logger"
	"MidgardPull/pkg/util"
)

const maxLimit = 1000

var emptyHistory = json.RawMessage("[]")

// HistoryQueryService answers /depth, /swap, /earnings and /rune. Results are
// cached as JSON per normalized query until the series gains rows or the TTL
// runs out.
type HistoryQueryService struct {
	reader  drepo.IntervalReader
	cache   cache.Service
	gens    *HistoryGenerations
	ttl     time.Duration
	metrics drepo.Metrics
	logger  *applogger.Logger
}

// NewHistoryQueryService creates the service. A zero ttl disables caching.
// gens must be the instance the UpsertWriter bumps.
func NewHistoryQueryService(reader drepo.IntervalReader, c cache.Service, gens *HistoryGenerations, ttl time.Duration, metrics drepo.Metrics, logger *applogger.Logger) *HistoryQueryService {
	if c == nil || ttl <= 0 {
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
	return &HistoryQueryService{reader: reader, cache: c, gens: gens, ttl: ttl, metrics: metrics, logger: logger}
}

// Query returns the JSON array of intervals for req. Parameter problems are
// 400 AppErrors, store failures 503.
func (s *HistoryQueryService) Query(ctx context.Context, series drepo.Series, req models.HistoryRequest) (json.RawMessage, error) {
	q, err := NormalizeHistoryRequest(series, req)
	if err != nil {
		return nil, err
	}

	if q.PastEnd() {
		return emptyHistory, nil
	}

	gen := s.gens.Current(series)
	key := historyCacheKey(series, gen, q)
	if b, err := s.cache.Get(ctx, key); err == nil {
		return b, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("history cache read failed", applogger.String("key", key), applogger.Error(err))
	}

	start := time.Now()
	data, err := s.load(ctx, series, q)
	s.metrics.RecordLatency("query_"+series.String(), time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		s.metrics.RecordError(drepo.ErrorKind(err))
		if errors.Is(err, drepo.ErrStoreUnavailable) {
			return nil, xhttp.ServiceUnavailableError("ERR_STORE_UNAVAILABLE", "history store is unavailable").WithError(err)
		}
		return nil, xhttp.InternalError("history query failed").WithError(err)
	}

	b, err := json.Marshal(data)
	if err != nil {
		return nil, xhttp.InternalError("encode history").WithError(err)
	}
	if s.gens.Current(series) != gen {
		// rows landed while this result was read
		return b, nil
	}
	if err := s.cache.Set(ctx, key, b, s.ttl); err != nil {
		s.logger.Warn("history cache write failed", applogger.String("key", key), applogger.Error(err))
	}
	return b, nil
}

func (s *HistoryQueryService) load(ctx context.Context, series drepo.Series, q models.HistoryQuery) (interface{}, error) {
	switch series {
	case drepo.SeriesDepth:
		rows, err := s.reader.QueryDepth(ctx, q)
		if rows == nil {
			rows = []models.DepthInterval{}
		}
		return rows, err
	case drepo.SeriesSwaps:
		rows, err := s.reader.QuerySwaps(ctx, q)
		if rows == nil {
			rows = []models.SwapsInterval{}
		}
		return rows, err
	case drepo.SeriesEarnings:
		rows, err := s.reader.QueryEarnings(ctx, q)
		if err != nil {
			return nil, err
		}
		return AssembleEarnings(rows), nil
	case drepo.SeriesRunePool:
		rows, err := s.reader.QueryRunePool(ctx, q)
		if rows == nil {
			rows = []models.RunePoolInterval{}
		}
		return rows, err
	}
	return nil, fmt.Errorf("unknown series %q", series)
}

// Ping reports whether the store answers.
func (s *HistoryQueryService) Ping(ctx context.Context) error {
	return s.reader.Ping(ctx)
}

// NormalizeHistoryRequest resolves defaults and parses every caller value.
// Limit 0 becomes the series default; times accept epoch seconds or RFC3339.
func NormalizeHistoryRequest(series drepo.Series, req models.HistoryRequest) (models.HistoryQuery, error) {
	q := models.HistoryQuery{
		Page:   req.Page,
		Limit:  req.Limit,
		SortBy: strings.ToLower(strings.TrimSpace(req.SortBy)),
	}

	if q.Page == 0 {
		q.Page = 1
	}
	if q.Page < 1 {
		return q, xhttp.InvalidParamError("page", "page must be at least 1")
	}
	if q.Limit == 0 {
		q.Limit = series.DefaultLimit()
	}
	if q.Limit < 0 || q.Limit > maxLimit {
		return q, xhttp.InvalidParamError("limit", fmt.Sprintf("limit must be between 1 and %d", maxLimit))
	}

	switch strings.ToUpper(strings.TrimSpace(req.Order)) {
	case "":
		q.Order = "DESC"
	case "ASC", "DESC":
		q.Order = drepo.NormalizeOrder(req.Order)
	default:
		return q, xhttp.InvalidParamError("order", "order must be ASC or DESC")
	}

	interval := strings.ToLower(strings.TrimSpace(req.Interval))
	if interval == "" {
		interval = string(drepo.BucketNone)
	}
	if !drepo.IsValidBucket(drepo.Bucket(interval)) {
		return q, xhttp.InvalidParamError("interval", "interval must be one of day, week, month, year, none")
	}
	q.Interval = interval

	var err error
	if q.StartTime, err = parseBound("start_time", req.StartTime); err != nil {
		return q, err
	}
	if q.EndTime, err = parseBound("end_time", req.EndTime); err != nil {
		return q, err
	}
	if q.StartTime != nil && q.EndTime != nil && *q.StartTime > *q.EndTime {
		return q, xhttp.InvalidParamError("start_time", "start_time must not be after end_time")
	}

	if series.SupportsPoolFilter() {
		q.Pool = strings.TrimSpace(req.Pool)
	}
	return q, nil
}

func parseBound(field, raw string) (*int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	t, ok := util.ParseTime(raw)
	if !ok {
		return nil, xhttp.InvalidParamError(field, field+" must be epoch seconds or RFC3339").
			WithParam("value", raw)
	}
	v := t.Unix()
	return &v, nil
}

func historyCacheKey(series drepo.Series, gen uint64, q models.HistoryQuery) string {
	bound := func(p *int64) string {
		if p == nil {
			return "-"
		}
		return fmt.Sprint(*p)
	}
	raw := fmt.Sprintf("%d|%d|%s|%s|%s|%s|%s|%s",
		q.Page, q.Limit, bound(q.StartTime), bound(q.EndTime), q.SortBy, q.Order, q.Pool, q.Interval)
	return historyCacheGenKey(series, gen) + cache.HashKey(raw)
}
