package service

import (
	"time"

	"github.com/sylvester-francis/Resource-Reserver-sub000/internal/models"
)

// MaxOccurrences bounds every expansion. A rule that would keep producing
// occurrences past this point is cut off and the result marked capped, so a
// misconfigured or never-ending rule cannot generate unbounded rows.
const MaxOccurrences = 366

// Occurrence is one concrete window produced from a recurrence rule.
type Occurrence struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Expansion is the materialized series. Capped is true when the hard cap
// stopped generation before the rule's own termination did; callers surface
// it so owners know the series is bounded, not infinite.
type Expansion struct {
	Occurrences []Occurrence
	Capped      bool
}

// RecurrenceExpander turns a rule plus a base window into the full ordered
// list of occurrence windows. Expansion is eager, deterministic and pure:
// the same inputs always yield the same list.
type RecurrenceExpander struct{}

// Expand materializes the series in the given location. Calendar arithmetic
// is done on local wall-clock time, so a 10:00 meeting stays at 10:00 across
// daylight saving changes; each occurrence keeps the base duration.
func (RecurrenceExpander) Expand(baseStart, baseEnd time.Time, rule *models.RecurrenceRule, loc *time.Location) Expansion {
	if loc == nil {
		loc = time.UTC
	}
	duration := baseEnd.Sub(baseStart)
	start := baseStart.In(loc)
	term := rule.Termination()

	var exp Expansion
	// add appends one occurrence, reporting false once the series must stop,
	// either because the rule terminated or because the cap was hit.
	add := func(s time.Time) bool {
		if term.Kind == models.TerminationOnDate && s.After(term.Until) {
			return false
		}
		if term.Kind == models.TerminationAfterCount && len(exp.Occurrences) >= term.Count {
			return false
		}
		if len(exp.Occurrences) >= MaxOccurrences {
			exp.Capped = true
			return false
		}
		exp.Occurrences = append(exp.Occurrences, Occurrence{Start: s, End: s.Add(duration)})
		return true
	}

	switch rule.Frequency {
	case models.FrequencyDaily:
		stepDays(start, rule.Interval, add)
	case models.FrequencyWeekly:
		days := rule.Weekdays()
		if len(days) == 0 {
			stepDays(start, 7*rule.Interval, add)
		} else {
			stepWeekdays(start, rule.Interval, days, add)
		}
	case models.FrequencyMonthly:
		stepMonths(start, rule.Interval, loc, add)
	}
	return exp
}

func stepDays(start time.Time, intervalDays int, add func(time.Time) bool) {
	for k := 0; ; k++ {
		if !add(start.AddDate(0, 0, k*intervalDays)) {
			return
		}
	}
}

// stepWeekdays walks week blocks of intervalWeeks, emitting one occurrence
// per selected weekday in ascending order. Weeks run Sunday through Saturday
// to match time.Weekday ordering; candidates before the base start (weekdays
// earlier in the base week) are skipped.
func stepWeekdays(start time.Time, intervalWeeks int, days []time.Weekday, add func(time.Time) bool) {
	anchor := start.AddDate(0, 0, -int(start.Weekday()))
	for block := 0; ; block++ {
		for _, wd := range days {
			cand := anchor.AddDate(0, 0, block*7*intervalWeeks+int(wd))
			if cand.Before(start) {
				continue
			}
			if !add(cand) {
				return
			}
		}
	}
}

// stepMonths advances by calendar months keeping the base day-of-month,
// clamped to the last day of shorter months (Jan 31 monthly lands on Feb 28
// or 29, not Mar 2).
func stepMonths(start time.Time, intervalMonths int, loc *time.Location, add func(time.Time) bool) {
	year, month, day := start.Date()
	hour, min, sec := start.Clock()
	ns := start.Nanosecond()

	for k := 0; ; k++ {
		total := int(month) - 1 + k*intervalMonths
		y := year + total/12
		m := time.Month(total%12 + 1)
		d := day
		if last := daysInMonth(y, m); d > last {
			d = last
		}
		if !add(time.Date(y, m, d, hour, min, sec, ns, loc)) {
			return
		}
	}
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
