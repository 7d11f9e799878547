package util

import (
	"time"

	"github.com/scmhub/calendar"

	"quantdesk/internal/domain"
)

// maxCalendarSteps bounds the search for the next open slot so a broken
// calendar can never spin forever.
const maxCalendarSteps = 10000

// TradingCalendar generates future bar timestamps for a market.
type TradingCalendar struct {
	cal      *calendar.Calendar
	loc      *time.Location
	fallback bool
}

// NewTradingCalendar returns the NYSE calendar. When the calendar data
// cannot be loaded it falls back to Monday to Friday in New York time.
func NewTradingCalendar() *TradingCalendar {
	cal := calendar.GetCalendar("xnys")
	if cal == nil {
		loc, err := time.LoadLocation("America/New_York")
		if err != nil {
			loc = time.UTC
		}
		return &TradingCalendar{loc: loc, fallback: true}
	}
	return &TradingCalendar{cal: cal, loc: cal.Loc}
}

// IsTradingDay reports whether the session date of t is a business day.
func (tc *TradingCalendar) IsTradingDay(t time.Time) bool {
	if tc.loc != nil {
		t = t.In(tc.loc)
	}
	if tc.fallback {
		wd := t.Weekday()
		return wd != time.Saturday && wd != time.Sunday
	}
	return tc.cal.IsBusinessDay(t)
}

// IsOpen reports whether the regular session is open at t.
func (tc *TradingCalendar) IsOpen(t time.Time) bool {
	if tc.fallback {
		if !tc.IsTradingDay(t) {
			return false
		}
		t = t.In(tc.loc)
		mins := t.Hour()*60 + t.Minute()
		return mins >= 9*60+30 && mins < 16*60
	}
	return tc.cal.IsOpen(t)
}

// NextBars returns the n bar timestamps that follow last at the given
// interval. Crypto trades continuously, so its bars simply step by the
// interval. Daily equity bars step over business days; intraday equity bars
// step by the interval and skip slots when the session is closed.
func (tc *TradingCalendar) NextBars(last time.Time, iv domain.Interval, crypto bool, n int) []time.Time {
	if n <= 0 {
		return nil
	}
	step := iv.Duration()
	if step <= 0 {
		step = 24 * time.Hour
	}

	advance := func(t time.Time) time.Time { return t.Add(step) }
	if iv.Daily() && !crypto {
		// Daily equity bars are stamped at session-date midnight, so step by
		// calendar date in market time to stay on the right day across DST.
		advance = tc.nextDate
	}

	out := make([]time.Time, 0, n)
	t := last
	for len(out) < n {
		next := advance(t)
		if !crypto {
			for i := 0; i < maxCalendarSteps && !tc.accepts(next, iv); i++ {
				next = advance(next)
			}
		}
		out = append(out, next)
		t = next
	}
	return out
}

func (tc *TradingCalendar) nextDate(t time.Time) time.Time {
	d := t.In(tc.loc)
	return time.Date(d.Year(), d.Month(), d.Day()+1, 0, 0, 0, 0, tc.loc)
}

func (tc *TradingCalendar) accepts(t time.Time, iv domain.Interval) bool {
	if iv.Daily() {
		return tc.IsTradingDay(t)
	}
	return tc.IsOpen(t)
}
