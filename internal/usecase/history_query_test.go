package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MidgardPull/internal/domain/models"
	drepo "MidgardPull/internal/domain/repository"
	"MidgardPull/pkg/cache"
	xhttp "MidgardPull/pkg/http"
)

func TestNormalizeHistoryRequest_Defaults(t *testing.T) {
	q, err := NormalizeHistoryRequest(drepo.SeriesDepth, models.HistoryRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.HistoryQuery{Page: 1, Limit: 400, Order: "DESC", Interval: "none"}, q)

	q, err = NormalizeHistoryRequest(drepo.SeriesEarnings, models.HistoryRequest{Pool: " BTC.BTC "})
	require.NoError(t, err)
	assert.Equal(t, 27, q.Limit)
	assert.Equal(t, "BTC.BTC", q.Pool)

	q, err = NormalizeHistoryRequest(drepo.SeriesSwaps, models.HistoryRequest{Pool: "BTC.BTC", Order: "asc", Interval: "Week"})
	require.NoError(t, err)
	assert.Empty(t, q.Pool)
	assert.Equal(t, "ASC", q.Order)
	assert.Equal(t, "week", q.Interval)
}

func TestNormalizeHistoryRequest_Times(t *testing.T) {
	q, err := NormalizeHistoryRequest(drepo.SeriesRunePool, models.HistoryRequest{
		StartTime: "1700000000",
		EndTime:   "2023-11-15T00:00:00Z",
	})
	require.NoError(t, err)
	require.NotNil(t, q.StartTime)
	require.NotNil(t, q.EndTime)
	assert.Equal(t, int64(1700000000), *q.StartTime)
	assert.Equal(t, int64(1700006400), *q.EndTime)
}

func TestNormalizeHistoryRequest_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		req   models.HistoryRequest
		field string
	}{
		{"negative page", models.HistoryRequest{Page: -1}, "page"},
		{"limit too large", models.HistoryRequest{Limit: 5000}, "limit"},
		{"bad order", models.HistoryRequest{Order: "sideways"}, "order"},
		{"bad interval", models.HistoryRequest{Interval: "hour"}, "interval"},
		{"bad start", models.HistoryRequest{StartTime: "yesterday"}, "start_time"},
		{"bad end", models.HistoryRequest{EndTime: "-5"}, "end_time"},
		{"inverted range", models.HistoryRequest{StartTime: "200", EndTime: "100"}, "start_time"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NormalizeHistoryRequest(drepo.SeriesDepth, tt.req)
			var appErr *xhttp.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, http.StatusBadRequest, appErr.Status)
			assert.Equal(t, tt.field, appErr.Field)
		})
	}
}

func TestHistoryQueryService_EarningsAreAssembled(t *testing.T) {
	store := newFakeStore()
	store.earningRows = []models.EarningRow{
		earningRow("100", "200", "1", "BTC.BTC"),
		earningRow("100", "200", "1", "ETH.ETH"),
		earningRow("200", "300", "2", ""),
	}
	svc := NewHistoryQueryService(store, nil, nil, 0, nil, nil)

	raw, err := svc.Query(context.Background(), drepo.SeriesEarnings, models.HistoryRequest{})
	require.NoError(t, err)

	var got []models.EarningInterval
	require.NoError(t, json.Unmarshal(raw, &got))
	require.Len(t, got, 2)
	assert.Len(t, got[0].Pools, 2)
	assert.Empty(t, got[1].Pools)
	assert.Contains(t, string(raw), `"pools":[]`)
}

func TestHistoryQueryService_EmptyIsArray(t *testing.T) {
	svc := NewHistoryQueryService(newFakeStore(), nil, nil, 0, nil, nil)

	for _, series := range []drepo.Series{drepo.SeriesDepth, drepo.SeriesSwaps, drepo.SeriesEarnings, drepo.SeriesRunePool} {
		raw, err := svc.Query(context.Background(), series, models.HistoryRequest{})
		require.NoError(t, err)
		assert.JSONEq(t, `[]`, string(raw), series.String())
	}
}

func TestHistoryQueryService_StoreUnavailable(t *testing.T) {
	store := newFakeStore()
	store.failNext("query", drepo.ErrStoreUnavailable)
	svc := NewHistoryQueryService(store, nil, nil, 0, nil, nil)

	_, err := svc.Query(context.Background(), drepo.SeriesDepth, models.HistoryRequest{})
	var appErr *xhttp.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, http.StatusServiceUnavailable, appErr.Status)
	assert.Equal(t, "ERR_STORE_UNAVAILABLE", appErr.Code)
	assert.ErrorIs(t, err, drepo.ErrStoreUnavailable)
}

func TestHistoryQueryService_CachesUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	c := cache.NewMemoryCache()
	defer c.Close()

	gens := NewHistoryGenerations()
	svc := NewHistoryQueryService(store, c, gens, time.Minute, nil, nil)
	writer := NewUpsertWriter(store, c, gens, nil, nil, nil)

	f := hourlyTimeline(base, 2)
	_, err := writer.Persist(ctx, models.Batch{Depth: f.depth[:1]})
	require.NoError(t, err)

	first, err := svc.Query(ctx, drepo.SeriesDepth, models.HistoryRequest{})
	require.NoError(t, err)
	second, err := svc.Query(ctx, drepo.SeriesDepth, models.HistoryRequest{Page: 1, Order: "desc"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, store.queries, 1, "identical normalized query is served from cache")

	_, err = svc.Query(ctx, drepo.SeriesDepth, models.HistoryRequest{Page: 2})
	require.NoError(t, err)
	assert.Len(t, store.queries, 2)

	_, err = writer.Persist(ctx, models.Batch{Depth: f.depth[1:]})
	require.NoError(t, err)

	third, err := svc.Query(ctx, drepo.SeriesDepth, models.HistoryRequest{})
	require.NoError(t, err)
	assert.Len(t, store.queries, 3)

	var rows []models.DepthInterval
	require.NoError(t, json.Unmarshal(third, &rows))
	assert.Len(t, rows, 2)
}

// commitDuringRead runs commit after the store has answered a depth query but
// before the caller gets the rows back.
type commitDuringRead struct {
	*fakeStore
	commit func()
}

func (r *commitDuringRead) QueryDepth(ctx context.Context, q models.HistoryQuery) ([]models.DepthInterval, error) {
	rows, err := r.fakeStore.QueryDepth(ctx, q)
	if r.commit != nil {
		commit := r.commit
		r.commit = nil
		commit()
	}
	return rows, err
}

func TestHistoryQueryService_IngestionDuringReadIsNotCached(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	c := cache.NewMemoryCache()
	defer c.Close()

	gens := NewHistoryGenerations()
	writer := NewUpsertWriter(store, c, gens, nil, nil, nil)
	f := hourlyTimeline(base, 2)
	_, err := writer.Persist(ctx, models.Batch{Depth: f.depth[:1]})
	require.NoError(t, err)

	reader := &commitDuringRead{fakeStore: store, commit: func() {
		_, err := writer.Persist(ctx, models.Batch{Depth: f.depth[1:]})
		require.NoError(t, err)
	}}
	svc := NewHistoryQueryService(reader, c, gens, time.Minute, nil, nil)

	first, err := svc.Query(ctx, drepo.SeriesDepth, models.HistoryRequest{})
	require.NoError(t, err)
	var rows []models.DepthInterval
	require.NoError(t, json.Unmarshal(first, &rows))
	assert.Len(t, rows, 1, "read finished before the commit")

	second, err := svc.Query(ctx, drepo.SeriesDepth, models.HistoryRequest{})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(second, &rows))
	assert.Len(t, rows, 2)
	assert.Len(t, store.queries, 2, "the result read across a commit is not served from cache")

	_, err = svc.Query(ctx, drepo.SeriesDepth, models.HistoryRequest{})
	require.NoError(t, err)
	assert.Len(t, store.queries, 2, "a result read without a concurrent commit is cached")
}

func TestHistoryQueryService_PageBeyondRangeIsEmpty(t *testing.T) {
	store := newFakeStore()
	store.failNext("query", errors.New("offset out of range"))
	svc := NewHistoryQueryService(store, nil, nil, 0, nil, nil)

	raw, err := svc.Query(context.Background(), drepo.SeriesDepth, models.HistoryRequest{Page: math.MaxInt64 / 100, Limit: 1000})
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))
	assert.Empty(t, store.queries, "an unaddressable page never reaches the store")
}

func TestHistoryQueryService_RejectedQueryIsInternalError(t *testing.T) {
	store := newFakeStore()
	store.failNext("query", errors.New("syntax error at or near OFFSET"))
	svc := NewHistoryQueryService(store, nil, nil, 0, nil, nil)

	_, err := svc.Query(context.Background(), drepo.SeriesDepth, models.HistoryRequest{})
	var appErr *xhttp.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
}
