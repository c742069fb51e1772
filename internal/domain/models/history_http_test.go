package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHistoryQueryOffset(t *testing.T) {
	tests := []struct {
		name    string
		q       HistoryQuery
		offset  int
		pastEnd bool
	}{
		{"first page", HistoryQuery{Page: 1, Limit: 10}, 0, false},
		{"second page", HistoryQuery{Page: 2, Limit: 10}, 10, false},
		{"unset page", HistoryQuery{Limit: 10}, 0, false},
		{"largest representable", HistoryQuery{Page: math.MaxInt/1000 + 1, Limit: 1000}, (math.MaxInt / 1000) * 1000, false},
		{"overflowing page", HistoryQuery{Page: math.MaxInt64 / 100, Limit: 1000}, math.MaxInt, true},
		{"max page", HistoryQuery{Page: math.MaxInt, Limit: 2}, math.MaxInt, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.offset, tt.q.Offset())
			assert.Equal(t, tt.pastEnd, tt.q.PastEnd())
			assert.GreaterOrEqual(t, tt.q.Offset(), 0)
		})
	}
}
