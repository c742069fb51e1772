package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5"

	"MidgardPull/internal/domain/models"
	domrepo "MidgardPull/internal/domain/repository"
	applogger "MidgardPull/pkg/logger"
	pgpkg "MidgardPull/pkg/postgres"
	"MidgardPull/pkg/util"
)

//go:embed schema.sql
var schemaSQL string

// PGIntervalStore persists and queries the four interval series in Postgres.
type PGIntervalStore struct {
	db     *pgpkg.Client
	logger *applogger.Logger
}

var (
	_ domrepo.IntervalStore  = (*PGIntervalStore)(nil)
	_ domrepo.IntervalReader = (*PGIntervalStore)(nil)
)

// NewPGIntervalStore creates the store.
func NewPGIntervalStore(db *pgpkg.Client, logger *applogger.Logger) *PGIntervalStore {
	if logger == nil {
		logger = applogger.Nop()
	}
	return &PGIntervalStore{db: db, logger: logger}
}

// Init applies the idempotent schema.
func (s *PGIntervalStore) Init(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return storeErr("init schema", err)
	}
	return nil
}

// Ping checks store reachability.
func (s *PGIntervalStore) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return storeErr("ping", err)
	}
	return nil
}

// LatestCursor returns the start_time of the depth row with the greatest end_time.
func (s *PGIntervalStore) LatestCursor(ctx context.Context) (int64, error) {
	// ordered as text so a corrupt end_time cannot fail the cast; epoch strings
	// compare numerically once their lengths are equal
	const q = `SELECT start_time FROM depth_intervals
		ORDER BY length(end_time) DESC, end_time DESC, id DESC LIMIT 1`

	var start string
	if err := s.db.QueryRow(ctx, q).Scan(&start); err != nil {
		if pgpkg.IsNotFoundError(err) {
			return 0, domrepo.ErrNotFound
		}
		return 0, storeErr("latest cursor", err)
	}

	ts, err := util.ParseEpoch(start)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domrepo.ErrCursorParse, err)
	}
	return ts, nil
}

func (s *PGIntervalStore) InsertDepth(ctx context.Context, records []models.DepthInterval) ([]models.DepthInterval, error) {
	return insertFlat(ctx, s.db, depthTable, records)
}

func (s *PGIntervalStore) InsertSwaps(ctx context.Context, records []models.SwapsInterval) ([]models.SwapsInterval, error) {
	return insertFlat(ctx, s.db, swapsTable, records)
}

func (s *PGIntervalStore) InsertRunePool(ctx context.Context, records []models.RunePoolInterval) ([]models.RunePoolInterval, error) {
	return insertFlat(ctx, s.db, runePoolTable, records)
}

// InsertEarnings inserts parents first; pools are attempted only for parents that
// were newly inserted, so a skipped parent never gains children. The returned
// parents carry their ids and the pools actually inserted.
func (s *PGIntervalStore) InsertEarnings(ctx context.Context, records []models.EarningInterval) ([]models.EarningInterval, error) {
	if len(records) == 0 {
		return nil, nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, storeErr("begin earnings", err)
	}
	defer tx.Rollback(ctx)

	parents, err := insertRows(ctx, tx, earningsTable.name, earningsTable.columns, "end_time", records,
		func(rec models.EarningInterval) []interface{} { return columnValues(rec, earningsTable.columns) })
	if err != nil {
		return nil, storeErr("insert earnings", err)
	}

	inserted := make([]models.EarningInterval, 0, len(parents))
	for _, p := range parents {
		rec := records[p.index]
		rec.ID = p.id
		inserted = append(inserted, rec)
	}

	poolCols := append([]string{"interval_id"}, poolColumns...)
	for i := range inserted {
		parent := &inserted[i]
		if len(parent.Pools) == 0 {
			continue
		}
		rows, err := insertRows(ctx, tx, "pools", poolCols, "interval_id, pool", parent.Pools,
			func(p models.Pool) []interface{} {
				return append([]interface{}{parent.ID}, columnValues(p, poolColumns)...)
			})
		if err != nil {
			return nil, storeErr("insert pools", err)
		}
		kept := make([]models.Pool, 0, len(rows))
		for _, r := range rows {
			kept = append(kept, parent.Pools[r.index])
		}
		parent.Pools = kept
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storeErr("commit earnings", err)
	}

	s.logger.Debug("earnings persisted",
		applogger.Int("received", len(records)),
		applogger.Int("inserted", len(inserted)),
	)
	return inserted, nil
}

func (s *PGIntervalStore) QueryDepth(ctx context.Context, q models.HistoryQuery) ([]models.DepthInterval, error) {
	return queryFlat[models.DepthInterval](ctx, s.db, domrepo.SeriesDepth, q)
}

func (s *PGIntervalStore) QuerySwaps(ctx context.Context, q models.HistoryQuery) ([]models.SwapsInterval, error) {
	return queryFlat[models.SwapsInterval](ctx, s.db, domrepo.SeriesSwaps, q)
}

func (s *PGIntervalStore) QueryRunePool(ctx context.Context, q models.HistoryQuery) ([]models.RunePoolInterval, error) {
	return queryFlat[models.RunePoolInterval](ctx, s.db, domrepo.SeriesRunePool, q)
}

// QueryEarnings returns the flat join rows in query order; Pool is nil for an
// interval without (matching) pools.
func (s *PGIntervalStore) QueryEarnings(ctx context.Context, q models.HistoryQuery) ([]models.EarningRow, error) {
	sqlStr, args, err := BuildEarningsQuery(q)
	if err != nil {
		return nil, fmt.Errorf("build earnings query: %w", err)
	}

	rows, err := s.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, storeErr("query earnings", err)
	}
	defer rows.Close()

	parentCols := append([]string{"id"}, earningsTable.columns...)
	out := make([]models.EarningRow, 0)
	for rows.Next() {
		var ei models.EarningInterval
		poolVals := make([]*string, len(poolColumns))
		targets := fieldPointers(&ei, parentCols)
		for i := range poolVals {
			targets = append(targets, &poolVals[i])
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, storeErr("scan earnings", err)
		}
		out = append(out, models.EarningRow{Interval: ei, Pool: poolFromNullable(poolVals)})
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("read earnings", err)
	}
	return out, nil
}

// poolFromNullable builds a Pool from the left-joined columns, or nil when the
// join found nothing.
func poolFromNullable(vals []*string) *models.Pool {
	var p models.Pool
	targets := fieldPointers(&p, poolColumns)
	present := false
	for i, v := range vals {
		if v == nil {
			continue
		}
		present = true
		*(targets[i].(*string)) = *v
	}
	if !present || p.Pool == "" {
		return nil
	}
	return &p
}

func queryFlat[T any](ctx context.Context, db *pgpkg.Client, series domrepo.Series, q models.HistoryQuery) ([]T, error) {
	sqlStr, args, err := BuildFlatQuery(series, q)
	if err != nil {
		return nil, fmt.Errorf("build %s query: %w", series, err)
	}

	rows, err := db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, storeErr("query "+series.String(), err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByName[T])
	if err != nil {
		return nil, storeErr("collect "+series.String(), err)
	}
	return out, nil
}

func insertFlat[T any](ctx context.Context, db *pgpkg.Client, t seriesTable, records []T) ([]T, error) {
	if len(records) == 0 {
		return nil, nil
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return nil, storeErr("begin "+t.series.String(), err)
	}
	defer tx.Rollback(ctx)

	rows, err := insertRows(ctx, tx, t.name, t.columns, "end_time", records,
		func(rec T) []interface{} { return columnValues(rec, t.columns) })
	if err != nil {
		return nil, storeErr("insert "+t.series.String(), err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storeErr("commit "+t.series.String(), err)
	}

	inserted := make([]T, 0, len(rows))
	for _, r := range rows {
		rec := records[r.index]
		setID(&rec, r.id)
		inserted = append(inserted, rec)
	}
	return inserted, nil
}

type insertedRow struct {
	index int
	id    int64
}

// insertRows pipelines one INSERT ... ON CONFLICT DO NOTHING RETURNING id per
// record and reports which records produced a row. A conflict returns no row.
func insertRows[T any](ctx context.Context, tx pgx.Tx, table string, cols []string, conflict string,
	records []T, values func(T) []interface{}) ([]insertedRow, error) {
	batch := &pgx.Batch{}
	for _, rec := range records {
		sqlStr, args, err := buildInsert(table, cols, values(rec), conflict)
		if err != nil {
			return nil, fmt.Errorf("build insert %s: %w", table, err)
		}
		batch.Queue(sqlStr, args...)
	}

	br := tx.SendBatch(ctx, batch)
	out := make([]insertedRow, 0, len(records))
	for i := range records {
		var id int64
		err := br.QueryRow().Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			_ = br.Close()
			return nil, err
		}
		out = append(out, insertedRow{index: i, id: id})
	}
	if err := br.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

func setID(ptr interface{}, id int64) {
	rv := reflect.ValueOf(ptr).Elem()
	if i, ok := fieldIndex(rv.Type())["id"]; ok {
		rv.Field(i).SetInt(id)
	}
}

// storeErr marks err as ErrStoreUnavailable only when the database could not
// be used; rejected statements and canceled contexts pass through.
func storeErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || !pgpkg.IsUnavailableError(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domrepo.ErrStoreUnavailable, err)
}
