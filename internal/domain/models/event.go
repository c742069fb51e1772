package models

import "time"

// IntervalEvent announces one newly inserted interval to mirrors and live subscribers.
type IntervalEvent struct {
	Series     string      `json:"series"`
	StartTime  string      `json:"startTime"`
	EndTime    string      `json:"endTime"`
	IngestedAt time.Time   `json:"ingestedAt"`
	Record     interface{} `json:"record"`
}
