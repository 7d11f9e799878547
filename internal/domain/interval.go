package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Interval is the bar frequency of a price series.
type Interval string

const (
	Interval1d  Interval = "1d"
	Interval1h  Interval = "1h"
	Interval30m Interval = "30m"
	Interval15m Interval = "15m"
	Interval5m  Interval = "5m"
	Interval1m  Interval = "1m"
)

// Regular US equity session length, used to annualize intraday bars.
const equitySessionMinutes = 390

var intervalDurations = map[Interval]time.Duration{
	Interval1d:  24 * time.Hour,
	Interval1h:  time.Hour,
	Interval30m: 30 * time.Minute,
	Interval15m: 15 * time.Minute,
	Interval5m:  5 * time.Minute,
	Interval1m:  time.Minute,
}

// ParseInterval validates s and returns the matching Interval. An empty
// string selects the daily interval.
func ParseInterval(s string) (Interval, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Interval1d, nil
	}
	iv := Interval(s)
	if _, ok := intervalDurations[iv]; !ok {
		return "", fmt.Errorf("%w: unsupported interval %q (supported: %s)",
			ErrInvalidRequest, s, strings.Join(SupportedIntervals(), ", "))
	}
	return iv, nil
}

// SupportedIntervals lists the accepted interval names, shortest first.
func SupportedIntervals() []string {
	out := make([]string, 0, len(intervalDurations))
	for iv := range intervalDurations {
		out = append(out, string(iv))
	}
	sort.Slice(out, func(i, j int) bool {
		return intervalDurations[Interval(out[i])] < intervalDurations[Interval(out[j])]
	})
	return out
}

// Duration returns the nominal bar length.
func (iv Interval) Duration() time.Duration {
	return intervalDurations[iv]
}

// Daily reports whether bars are one per trading day.
func (iv Interval) Daily() bool {
	return iv == Interval1d
}

// BarsPerYear is the annualization factor for per-bar statistics. Equity
// markets use 252 sessions of 6.5 hours; crypto trades 365 days around the
// clock.
func (iv Interval) BarsPerYear(crypto bool) float64 {
	d := iv.Duration()
	if d == 0 {
		return 252
	}
	if crypto {
		return 365 * float64(24*time.Hour) / float64(d)
	}
	if iv.Daily() {
		return 252
	}
	return 252 * float64(equitySessionMinutes*time.Minute) / float64(d)
}
