package repository

import (
	"reflect"
	"strings"
	"sync"

	"MidgardPull/internal/domain/models"
	domrepo "MidgardPull/internal/domain/repository"
)

// seriesTable describes how one series is laid out in Postgres. Column lists and
// the sortable allowlist are derived once from the model's db tags.
type seriesTable struct {
	series   domrepo.Series
	name     string
	alias    string
	columns  []string // insert order, without id
	sortable map[string]string
}

var (
	depthTable    = newSeriesTable(domrepo.SeriesDepth, "depth_intervals", "d", models.DepthInterval{})
	swapsTable    = newSeriesTable(domrepo.SeriesSwaps, "swap_history_intervals", "s", models.SwapsInterval{})
	earningsTable = newSeriesTable(domrepo.SeriesEarnings, "earning_intervals", "ei", models.EarningInterval{})
	runePoolTable = newSeriesTable(domrepo.SeriesRunePool, "rune_pool_intervals", "r", models.RunePoolInterval{})
	poolColumns   = dbColumns(reflect.TypeOf(models.Pool{}))
)

func newSeriesTable(series domrepo.Series, name, alias string, rec interface{}) seriesTable {
	t := seriesTable{
		series:   series,
		name:     name,
		alias:    alias,
		columns:  dbColumns(reflect.TypeOf(rec)),
		sortable: make(map[string]string),
	}
	for _, c := range t.columns {
		if c == "start_time" || c == "end_time" {
			t.sortable[c] = t.col(c) + "::bigint"
			continue
		}
		t.sortable[c] = "NULLIF(" + t.col(c) + ", '')::numeric"
	}
	return t
}

func (t seriesTable) col(c string) string { return t.alias + "." + c }

// selectColumns lists id followed by every data column, qualified by alias.
func (t seriesTable) selectColumns() []string {
	out := make([]string, 0, len(t.columns)+1)
	out = append(out, t.col("id"))
	for _, c := range t.columns {
		out = append(out, t.col(c))
	}
	return out
}

func (t seriesTable) defaultSort() string { return t.col("end_time") + "::bigint" }

// sortExpr resolves a caller's sort_by token against the allowlist. Unknown
// tokens fall back to end_time; caller text never reaches the SQL.
func (t seriesTable) sortExpr(token string) string {
	if expr, ok := t.sortable[strings.ToLower(strings.TrimSpace(token))]; ok {
		return expr
	}
	return t.defaultSort()
}

// dbColumns returns the db tags of a struct in field order, skipping id and "-".
func dbColumns(rt reflect.Type) []string {
	cols := make([]string, 0, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		tag := rt.Field(i).Tag.Get("db")
		if tag == "" || tag == "-" || tag == "id" {
			continue
		}
		cols = append(cols, tag)
	}
	return cols
}

var fieldIndexCache sync.Map // reflect.Type -> map[string]int

func fieldIndex(rt reflect.Type) map[string]int {
	if v, ok := fieldIndexCache.Load(rt); ok {
		return v.(map[string]int)
	}
	idx := make(map[string]int, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		if tag := rt.Field(i).Tag.Get("db"); tag != "" && tag != "-" {
			idx[tag] = i
		}
	}
	fieldIndexCache.Store(rt, idx)
	return idx
}

// columnValues returns rec's values for cols, in order. rec is a struct value.
func columnValues(rec interface{}, cols []string) []interface{} {
	rv := reflect.ValueOf(rec)
	idx := fieldIndex(rv.Type())
	out := make([]interface{}, len(cols))
	for i, c := range cols {
		out[i] = rv.Field(idx[c]).Interface()
	}
	return out
}

// fieldPointers returns scan targets inside *ptr for cols, in order.
func fieldPointers(ptr interface{}, cols []string) []interface{} {
	rv := reflect.ValueOf(ptr).Elem()
	idx := fieldIndex(rv.Type())
	out := make([]interface{}, len(cols))
	for i, c := range cols {
		out[i] = rv.Field(idx[c]).Addr().Interface()
	}
	return out
}
