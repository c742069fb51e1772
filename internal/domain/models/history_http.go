package models

import "math"

// HistoryRequest is the query string accepted by /depth, /swap, /earnings and /rune.
// Limit 0 means the series default.
type HistoryRequest struct {
	Page      int    `query:"page" json:"page" default:"1" validate:"gte=1"`
	Limit     int    `query:"limit" json:"limit" validate:"gte=0,lte=1000"`
	StartTime string `query:"start_time" json:"start_time"`
	EndTime   string `query:"end_time" json:"end_time"`
	SortBy    string `query:"sort_by" json:"sort_by" validate:"max=64"`
	Order     string `query:"order" json:"order" default:"DESC" validate:"oneof=ASC DESC asc desc"`
	Pool      string `query:"pool" json:"pool" validate:"max=128"`
	Interval  string `query:"interval" json:"interval" default:"none" validate:"oneof=day week month year none"`
}

// HistoryQuery is a normalized HistoryRequest. Every field is safe to hand to the
// query builder: times are parsed, order is ASC or DESC, limit is resolved.
type HistoryQuery struct {
	Page      int
	Limit     int
	StartTime *int64
	EndTime   *int64
	SortBy    string
	Order     string
	Pool      string
	Interval  string
}

// PastEnd reports whether the page starts beyond any addressable row, i.e.
// (Page-1)*Limit does not fit in an int. Such a page is always empty.
func (q HistoryQuery) PastEnd() bool {
	return q.Page > 1 && q.Limit > 0 && q.Page-1 > math.MaxInt/q.Limit
}

// Offset is the number of rows skipped before the requested page. It saturates
// at math.MaxInt instead of overflowing.
func (q HistoryQuery) Offset() int {
	if q.Page < 1 || q.Limit < 1 {
		return 0
	}
	if q.PastEnd() {
		return math.MaxInt
	}
	return (q.Page - 1) * q.Limit
}
