package usecase

import "MidgardPull/internal/domain/models"

// AssembleEarnings folds the flat earnings/pools join back into intervals.
// One interval per distinct start_time in first-seen order; parent fields come
// from the first row, and every row with a pool appends it in row order.
func AssembleEarnings(rows []models.EarningRow) []models.EarningInterval {
	out := make([]models.EarningInterval, 0, len(rows))
	index := make(map[string]int, len(rows))

	for _, row := range rows {
		i, ok := index[row.Interval.StartTime]
		if !ok {
			parent := row.Interval
			parent.Pools = make([]models.Pool, 0, 1)
			out = append(out, parent)
			i = len(out) - 1
			index[row.Interval.StartTime] = i
		}
		if row.Pool != nil {
			out[i].Pools = append(out[i].Pools, *row.Pool)
		}
	}
	return out
}
