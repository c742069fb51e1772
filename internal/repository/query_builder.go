package repository

import (
	sq "github.com/Masterminds/squirrel"

	"MidgardPull/internal/domain/models"
	domrepo "MidgardPull/internal/domain/repository"
)

// bucketExpr returns the calendar bucket of a row's end_time in UTC. The unit is
// a literal chosen from a closed set, never caller text.
func bucketExpr(alias string, b domrepo.Bucket) (string, bool) {
	var unit string
	switch b {
	case domrepo.BucketDay:
		unit = "day"
	case domrepo.BucketWeek:
		unit = "week"
	case domrepo.BucketMonth:
		unit = "month"
	case domrepo.BucketYear:
		unit = "year"
	default:
		return "", false
	}
	return "date_trunc('" + unit + "', to_timestamp(" + alias + ".end_time::bigint) AT TIME ZONE 'UTC')", true
}

// pageQuery selects one page of parent rows: time filters, optional bucketing
// (one row per bucket, greatest end_time then lowest id), allowlisted sort,
// LIMIT/OFFSET. Every caller-derived value is a bound argument.
func (t seriesTable) pageQuery(q models.HistoryQuery, extra ...sq.Sqlizer) sq.SelectBuilder {
	base := sq.Select(t.selectColumns()...).From(t.name + " " + t.alias)
	if q.StartTime != nil {
		base = base.Where(sq.Expr(t.col("start_time")+"::bigint >= ?", *q.StartTime))
	}
	if q.EndTime != nil {
		base = base.Where(sq.Expr(t.col("end_time")+"::bigint <= ?", *q.EndTime))
	}
	for _, w := range extra {
		base = base.Where(w)
	}

	page := base
	if expr, ok := bucketExpr(t.alias, domrepo.NormalizeBucket(q.Interval)); ok {
		base = base.Options("DISTINCT ON ("+expr+")").
			OrderBy(expr, t.col("end_time")+"::bigint DESC", t.col("id")+" ASC")
		page = sq.Select(t.selectColumns()...).FromSelect(base, t.alias)
	}

	order := domrepo.NormalizeOrder(q.Order)
	return page.
		OrderBy(t.sortExpr(q.SortBy)+" "+order, t.col("id")+" "+order).
		Suffix("LIMIT ? OFFSET ?", q.Limit, q.Offset())
}

// BuildFlatQuery renders the query for depth, swap or rune.
func BuildFlatQuery(series domrepo.Series, q models.HistoryQuery) (string, []interface{}, error) {
	t := tableFor(series)
	return t.pageQuery(q).PlaceholderFormat(sq.Dollar).ToSql()
}

// BuildEarningsQuery renders the earnings page joined to its pools. Pagination
// counts intervals; a pool filter keeps intervals having that pool and joins only it.
func BuildEarningsQuery(q models.HistoryQuery) (string, []interface{}, error) {
	t := earningsTable

	var extra []sq.Sqlizer
	join := "pools p ON p.interval_id = " + t.col("id")
	var joinArgs []interface{}
	if q.Pool != "" {
		extra = append(extra, sq.Expr(
			"EXISTS (SELECT 1 FROM pools pf WHERE pf.interval_id = "+t.col("id")+" AND pf.pool = ?)", q.Pool))
		join += " AND p.pool = ?"
		joinArgs = append(joinArgs, q.Pool)
	}

	cols := t.selectColumns()
	for _, c := range poolColumns {
		cols = append(cols, "p."+c)
	}

	order := domrepo.NormalizeOrder(q.Order)
	return sq.Select(cols...).
		FromSelect(t.pageQuery(q, extra...), t.alias).
		LeftJoin(join, joinArgs...).
		OrderBy(t.sortExpr(q.SortBy)+" "+order, t.col("id")+" "+order, "p.id ASC").
		PlaceholderFormat(sq.Dollar).
		ToSql()
}

// buildInsert renders one upsert-skip insert returning the new id.
func buildInsert(table string, cols []string, values []interface{}, conflict string) (string, []interface{}, error) {
	return sq.Insert(table).
		Columns(cols...).
		Values(values...).
		Suffix("ON CONFLICT (" + conflict + ") DO NOTHING RETURNING id").
		PlaceholderFormat(sq.Dollar).
		ToSql()
}

func tableFor(series domrepo.Series) seriesTable {
	switch series {
	case domrepo.SeriesSwaps:
		return swapsTable
	case domrepo.SeriesEarnings:
		return earningsTable
	case domrepo.SeriesRunePool:
		return runePoolTable
	default:
		return depthTable
	}
}
