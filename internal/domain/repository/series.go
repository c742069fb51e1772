package repository

import "strings"

// Series identifies one of the four tracked history streams.
type Series string

const (
	SeriesDepth    Series = "depth"
	SeriesSwaps    Series = "swap"
	SeriesEarnings Series = "earnings"
	SeriesRunePool Series = "rune"
)

// AllSeries lists every series in persist order; depth is last because the
// bootstrap cursor is read back from it.
var AllSeries = []Series{SeriesEarnings, SeriesSwaps, SeriesRunePool, SeriesDepth}

func (s Series) String() string { return string(s) }

// DefaultLimit is the page size used when the caller does not send one.
func (s Series) DefaultLimit() int {
	if s == SeriesEarnings {
		return 27
	}
	return 400
}

// SupportsPoolFilter reports whether the pool parameter applies.
func (s Series) SupportsPoolFilter() bool { return s == SeriesEarnings }

// Bucket is a calendar window used to thin a series to one row per window.
type Bucket string

const (
	BucketNone  Bucket = "none"
	BucketDay   Bucket = "day"
	BucketWeek  Bucket = "week"
	BucketMonth Bucket = "month"
	BucketYear  Bucket = "year"
)

// IsValidBucket returns true if b is a supported bucket.
func IsValidBucket(b Bucket) bool {
	switch b {
	case BucketNone, BucketDay, BucketWeek, BucketMonth, BucketYear:
		return true
	default:
		return false
	}
}

// NormalizeBucket converts a raw string to a bucket, falling back to none.
func NormalizeBucket(s string) Bucket {
	b := Bucket(strings.ToLower(strings.TrimSpace(s)))
	if IsValidBucket(b) {
		return b
	}
	return BucketNone
}

// NormalizeOrder returns ASC or DESC; anything else becomes DESC.
func NormalizeOrder(s string) string {
	if strings.EqualFold(strings.TrimSpace(s), "ASC") {
		return "ASC"
	}
	return "DESC"
}
