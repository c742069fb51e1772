package usecase

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"MidgardPull/internal/domain/models"
	drepo "MidgardPull/internal/domain/repository"
)

// fakeStore is an in-memory IntervalStore/IntervalReader keyed by end_time.
type fakeStore struct {
	mu       sync.Mutex
	depth    map[string]models.DepthInterval
	swaps    map[string]models.SwapsInterval
	earnings map[string]models.EarningInterval
	runePool map[string]models.RunePoolInterval
	nextID   int64

	// failures consumed one per call, by operation name
	failures map[string][]error

	cursor    int64
	cursorErr []error

	earningRows []models.EarningRow
	queries     []models.HistoryQuery
	pingErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		depth:    make(map[string]models.DepthInterval),
		swaps:    make(map[string]models.SwapsInterval),
		earnings: make(map[string]models.EarningInterval),
		runePool: make(map[string]models.RunePoolInterval),
		failures: make(map[string][]error),
	}
}

func (f *fakeStore) failNext(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = append(f.failures[op], err)
}

func (f *fakeStore) takeFailure(op string) error {
	if errs := f.failures[op]; len(errs) > 0 {
		f.failures[op] = errs[1:]
		return errs[0]
	}
	return nil
}

func (f *fakeStore) LatestCursor(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.cursorErr) > 0 {
		err := f.cursorErr[0]
		f.cursorErr = f.cursorErr[1:]
		if err != nil {
			return 0, err
		}
	}
	return f.cursor, nil
}

func insertInto[T any](f *fakeStore, op string, table map[string]T, records []T, key func(T) string, setID func(*T, int64)) ([]T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(op); err != nil {
		return nil, err
	}
	var out []T
	for _, r := range records {
		k := key(r)
		if _, ok := table[k]; ok {
			continue
		}
		f.nextID++
		setID(&r, f.nextID)
		table[k] = r
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeStore) InsertDepth(_ context.Context, records []models.DepthInterval) ([]models.DepthInterval, error) {
	return insertInto(f, "depth", f.depth, records,
		func(r models.DepthInterval) string { return r.EndTime },
		func(r *models.DepthInterval, id int64) { r.ID = id })
}

func (f *fakeStore) InsertSwaps(_ context.Context, records []models.SwapsInterval) ([]models.SwapsInterval, error) {
	return insertInto(f, "swap", f.swaps, records,
		func(r models.SwapsInterval) string { return r.EndTime },
		func(r *models.SwapsInterval, id int64) { r.ID = id })
}

func (f *fakeStore) InsertEarnings(_ context.Context, records []models.EarningInterval) ([]models.EarningInterval, error) {
	return insertInto(f, "earnings", f.earnings, records,
		func(r models.EarningInterval) string { return r.EndTime },
		func(r *models.EarningInterval, id int64) { r.ID = id })
}

func (f *fakeStore) InsertRunePool(_ context.Context, records []models.RunePoolInterval) ([]models.RunePoolInterval, error) {
	return insertInto(f, "rune", f.runePool, records,
		func(r models.RunePoolInterval) string { return r.EndTime },
		func(r *models.RunePoolInterval, id int64) { r.ID = id })
}

func (f *fakeStore) QueryDepth(_ context.Context, q models.HistoryQuery) ([]models.DepthInterval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if err := f.takeFailure("query"); err != nil {
		return nil, err
	}
	out := make([]models.DepthInterval, 0, len(f.depth))
	for _, r := range f.depth {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return epoch(out[i].EndTime) > epoch(out[j].EndTime) })
	return out, nil
}

func (f *fakeStore) QuerySwaps(_ context.Context, q models.HistoryQuery) ([]models.SwapsInterval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if err := f.takeFailure("query"); err != nil {
		return nil, err
	}
	return nil, nil
}

func (f *fakeStore) QueryEarnings(_ context.Context, q models.HistoryQuery) ([]models.EarningRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if err := f.takeFailure("query"); err != nil {
		return nil, err
	}
	return f.earningRows, nil
}

func (f *fakeStore) QueryRunePool(_ context.Context, q models.HistoryQuery) ([]models.RunePoolInterval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if err := f.takeFailure("query"); err != nil {
		return nil, err
	}
	return []models.RunePoolInterval{}, nil
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeStore) counts() (depth, swaps, earnings, runePool int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.depth), len(f.swaps), len(f.earnings), len(f.runePool)
}

var (
	_ drepo.IntervalStore  = (*fakeStore)(nil)
	_ drepo.IntervalReader = (*fakeStore)(nil)
)

// fakeFetcher serves a fixed timeline: every record whose start_time is at or
// after the cursor, up to count.
type fakeFetcher struct {
	mu       sync.Mutex
	depth    []models.DepthInterval
	swaps    []models.SwapsInterval
	earnings []models.EarningInterval
	runePool []models.RunePoolInterval
	froms    []int64
	failures []error
}

func window[T any](records []T, cursor int64, count int, start func(T) string) []T {
	out := make([]T, 0)
	for _, r := range records {
		if epoch(start(r)) >= cursor && len(out) < count {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeFetcher) FetchDepth(_ context.Context, cursor int64, count int) ([]models.DepthInterval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.froms = append(f.froms, cursor)
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		if err != nil {
			return nil, err
		}
	}
	return window(f.depth, cursor, count, func(r models.DepthInterval) string { return r.StartTime }), nil
}

func (f *fakeFetcher) FetchSwaps(_ context.Context, cursor int64, count int) ([]models.SwapsInterval, error) {
	return window(f.swaps, cursor, count, func(r models.SwapsInterval) string { return r.StartTime }), nil
}

func (f *fakeFetcher) FetchEarnings(_ context.Context, cursor int64, count int) ([]models.EarningInterval, error) {
	return window(f.earnings, cursor, count, func(r models.EarningInterval) string { return r.StartTime }), nil
}

func (f *fakeFetcher) FetchRunePool(_ context.Context, cursor int64, count int) ([]models.RunePoolInterval, error) {
	return window(f.runePool, cursor, count, func(r models.RunePoolInterval) string { return r.StartTime }), nil
}

// hourlyTimeline fills every series with n hourly buckets starting at from.
func hourlyTimeline(from int64, n int) *fakeFetcher {
	f := &fakeFetcher{}
	for i := 0; i < n; i++ {
		s := strconv.FormatInt(from+int64(i)*3600, 10)
		e := strconv.FormatInt(from+int64(i+1)*3600, 10)
		f.depth = append(f.depth, models.DepthInterval{StartTime: s, EndTime: e, AssetDepth: fmt.Sprint(i)})
		f.swaps = append(f.swaps, models.SwapsInterval{StartTime: s, EndTime: e, TotalCount: fmt.Sprint(i)})
		f.earnings = append(f.earnings, models.EarningInterval{StartTime: s, EndTime: e,
			Pools: []models.Pool{{Pool: "BTC.BTC"}}})
		f.runePool = append(f.runePool, models.RunePoolInterval{StartTime: s, EndTime: e, Count: fmt.Sprint(i)})
	}
	return f
}

type fakeMetrics struct {
	mu       sync.Mutex
	cursors  []int64
	cycles   []string
	errors   []string
	inserted map[string]int
	skipped  map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{inserted: make(map[string]int), skipped: make(map[string]int)}
}

func (m *fakeMetrics) RecordInserted(series string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserted[series] += n
}

func (m *fakeMetrics) RecordSkipped(series string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skipped[series] += n
}

func (m *fakeMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, kind)
}

func (m *fakeMetrics) RecordCycle(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycles = append(m.cycles, outcome)
}

func (m *fakeMetrics) RecordCursor(epoch int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors = append(m.cursors, epoch)
}

func (m *fakeMetrics) RecordLatency(string, float64) {}

type fakeMirror struct {
	name   string
	err    error
	events []models.IntervalEvent
}

func (m *fakeMirror) Name() string { return m.name }

func (m *fakeMirror) Publish(_ context.Context, events []models.IntervalEvent) error {
	m.events = append(m.events, events...)
	return m.err
}

func (m *fakeMirror) Close() error { return nil }

// fakeClock is advanced by the fake sleeper.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func epoch(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}
