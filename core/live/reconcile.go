package live

import (
	"sort"
	"time"
)

// Merge reconciles an incoming snapshot with the previously held one.
//
// A full snapshot (or any snapshot when there is no previous state) replaces
// the held state unchanged. An incremental snapshot is folded in:
//   - ranking: the incoming one if non-empty, else carried forward from
//     previous (incremental fetches omit ranking to shrink the payload;
//     last known good is shown until the next full refresh);
//   - minute series: union keyed by minute, incoming wins on collisions,
//     sorted ascending, truncated from the front to seriesLimit rows;
//   - every scalar field is taken from incoming unconditionally.
//
// Neither input is mutated; the result shares their row/role values.
func Merge(previous, incoming *Snapshot, seriesLimit int) *Snapshot {
	if incoming == nil {
		return previous
	}
	if previous == nil || !incoming.Incremental {
		return incoming
	}

	merged := *incoming
	if len(incoming.Ranking) == 0 {
		merged.Ranking = previous.Ranking
	}
	merged.MinuteSeries = mergeSeries(previous.MinuteSeries, incoming.MinuteSeries, seriesLimit)
	return &merged
}

func mergeSeries(previous, incoming []MinuteSeriesRow, limit int) []MinuteSeriesRow {
	byMinute := make(map[int64]MinuteSeriesRow, len(previous)+len(incoming))
	for _, row := range previous {
		byMinute[row.minuteKey()] = row
	}
	// last-write-wins per bucket
	for _, row := range incoming {
		byMinute[row.minuteKey()] = row
	}

	rows := make([]MinuteSeriesRow, 0, len(byMinute))
	for _, row := range byMinute {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].minuteKey() < rows[j].minuteKey() })

	// keep the most recent rows only
	if limit > 0 && len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	return rows
}

// NextCursor yields the continuation token for the next incremental fetch:
// the snapshot's cursor, or its generation timestamp when the backend omits
// one. The timestamp substitute guarantees forward progress since it is
// monotonically increasing.
func NextCursor(incoming *Snapshot) string {
	if incoming == nil {
		return ""
	}
	if incoming.Cursor != "" {
		return incoming.Cursor
	}
	if !incoming.GeneratedAt.IsZero() {
		return incoming.GeneratedAt.UTC().Format(time.RFC3339)
	}
	return ""
}
