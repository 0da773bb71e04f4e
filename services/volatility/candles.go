package volatility

import (
	"sort"
	"time"

	"stablewatch/services/marketdata"
)

const dateLayout = "2006-01-02"

// MergeCandles combines candle tables fetched over different lookback
// windows into one row per calendar date, sorted ascending. On overlapping
// dates the earliest table passed wins, so callers put the narrowest (most
// recent, finest-grained) window first.
func MergeCandles(tables ...[]marketdata.Candle) []marketdata.Candle {
	seen := make(map[string]bool)
	var merged []marketdata.Candle

	for _, table := range tables {
		for _, c := range table {
			key := c.Date.Format(dateLayout)
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, c)
		}
	}

	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Date.Before(merged[j].Date)
	})
	return merged
}

// MissingDates returns every calendar date in [start, end] inclusive that
// is absent from existing, in ascending order.
func MissingDates(existing []time.Time, start, end time.Time) []time.Time {
	have := make(map[string]bool, len(existing))
	for _, d := range existing {
		have[d.Format(dateLayout)] = true
	}

	var missing []time.Time
	for d := truncateToDay(start); !d.After(truncateToDay(end)); d = d.AddDate(0, 0, 1) {
		if !have[d.Format(dateLayout)] {
			missing = append(missing, d)
		}
	}
	return missing
}

// truncateToDay normalizes a timestamp to midnight UTC
func truncateToDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
