package service

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sylvester-francis/Resource-Reserver-sub000/internal/models"
)

// HoursValidator checks candidate windows against a resource's operating
// hours and blackout dates. All checks run on reference data in the
// resource's local timezone; no locks are taken.
type HoursValidator struct{}

// Validate returns nil when [start, end) lies entirely within open windows
// on every local calendar day it spans and intersects no blackout date.
// A resource with no configured hours at all is always open; a resource with
// hours but none for a spanned weekday is closed that day. occurrence is the
// index within a recurring expansion, or -1 for a single window.
func (HoursValidator) Validate(res *models.Resource, start, end time.Time, occurrence int) error {
	loc := res.Location()
	localStart := start.In(loc)
	localEnd := end.In(loc)

	byDay := make(map[time.Weekday][]models.BusinessHours)
	for _, h := range res.Hours {
		wd := time.Weekday(h.Weekday)
		byDay[wd] = append(byDay[wd], h)
	}
	blackouts := make(map[string]models.BlackoutDate, len(res.Blackouts))
	for _, b := range res.Blackouts {
		blackouts[b.Date.Format("2006-01-02")] = b
	}

	fail := func(reason string) error {
		return &BusinessHoursError{
			ResourceID: res.ID,
			Start:      start,
			End:        end,
			Occurrence: occurrence,
			Reason:     reason,
		}
	}

	day := time.Date(localStart.Year(), localStart.Month(), localStart.Day(), 0, 0, 0, 0, loc)
	for day.Before(localEnd) {
		next := day.AddDate(0, 0, 1)
		key := day.Format("2006-01-02")

		if b, ok := blackouts[key]; ok {
			if b.Reason != "" {
				return fail(fmt.Sprintf("blackout date %s (%s)", key, b.Reason))
			}
			return fail("blackout date " + key)
		}

		if len(res.Hours) > 0 {
			windows := byDay[day.Weekday()]
			if len(windows) == 0 {
				return fail("closed on " + day.Weekday().String())
			}
			segStart := localStart
			if segStart.Before(day) {
				segStart = day
			}
			segEnd := localEnd
			if segEnd.After(next) {
				segEnd = next
			}
			startMin := segStart.Hour()*60 + segStart.Minute()
			endMin := minuteCeil(segEnd, next)
			if !withinWindows(startMin, endMin, windows) {
				return fail(fmt.Sprintf("outside operating hours on %s (open %s)",
					day.Weekday(), describeWindows(windows)))
			}
		}

		day = next
	}
	return nil
}

// minuteCeil converts a segment end to minutes from local midnight, rounding
// partial minutes up so containment stays conservative. A segment running to
// the day boundary maps to 1440.
func minuteCeil(t, dayEnd time.Time) int {
	if !t.Before(dayEnd) {
		return 24 * 60
	}
	m := t.Hour()*60 + t.Minute()
	if t.Second() > 0 || t.Nanosecond() > 0 {
		m++
	}
	return m
}

// withinWindows reports whether [startMin, endMin) fits inside the merged
// open windows. Adjacent windows (one closing when the next opens) count as
// one contiguous window.
func withinWindows(startMin, endMin int, windows []models.BusinessHours) bool {
	type span struct{ open, close int }
	spans := make([]span, 0, len(windows))
	for _, w := range windows {
		if w.CloseMinute > w.OpenMinute {
			spans = append(spans, span{w.OpenMinute, w.CloseMinute})
		}
	}
	if len(spans) == 0 {
		return false
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].open < spans[j].open })

	merged := spans[:1]
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.open <= last.close {
			if s.close > last.close {
				last.close = s.close
			}
			continue
		}
		merged = append(merged, s)
	}

	for _, m := range merged {
		if startMin >= m.open && endMin <= m.close {
			return true
		}
	}
	return false
}

func describeWindows(windows []models.BusinessHours) string {
	parts := make([]string, 0, len(windows))
	for _, w := range windows {
		parts = append(parts, fmt.Sprintf("%s to %s",
			formatMinute(w.OpenMinute), formatMinute(w.CloseMinute)))
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}

func formatMinute(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}
