package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sylvester-francis/Resource-Reserver-sub000/internal/models"
)

func mustRule(t *testing.T, freq models.Frequency, interval int, weekdays []time.Weekday, term models.Termination) *models.RecurrenceRule {
	t.Helper()
	rule, err := models.NewRecurrenceRule(freq, interval, weekdays, term)
	assert.NoError(t, err)
	return rule
}

func TestExpand_DailyCount(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	rule := mustRule(t, models.FrequencyDaily, 1, nil, models.AfterCount(5))

	exp := RecurrenceExpander{}.Expand(start, end, rule, time.UTC)

	assert.Len(t, exp.Occurrences, 5)
	assert.False(t, exp.Capped)
	for i, occ := range exp.Occurrences {
		assert.True(t, occ.Start.Equal(start.AddDate(0, 0, i)), "occurrence %d start", i)
		assert.Equal(t, time.Hour, occ.End.Sub(occ.Start), "occurrence %d duration", i)
	}
}

func TestExpand_DailyInterval(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	rule := mustRule(t, models.FrequencyDaily, 3, nil, models.AfterCount(3))

	exp := RecurrenceExpander{}.Expand(start, start.Add(time.Hour), rule, time.UTC)

	assert.Len(t, exp.Occurrences, 3)
	assert.True(t, exp.Occurrences[1].Start.Equal(start.AddDate(0, 0, 3)))
	assert.True(t, exp.Occurrences[2].Start.Equal(start.AddDate(0, 0, 6)))
}

func TestExpand_Deterministic(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	rule := mustRule(t, models.FrequencyWeekly, 1,
		[]time.Weekday{time.Monday, time.Thursday}, models.AfterCount(8))

	a := RecurrenceExpander{}.Expand(start, start.Add(time.Hour), rule, time.UTC)
	b := RecurrenceExpander{}.Expand(start, start.Add(time.Hour), rule, time.UTC)

	assert.Equal(t, a, b)
}

func TestExpand_WeeklyWithWeekdaySet(t *testing.T) {
	// Wednesday March 4th 2026. Monday of the same week precedes the base
	// start and must not appear.
	start := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	rule := mustRule(t, models.FrequencyWeekly, 1,
		[]time.Weekday{time.Monday, time.Wednesday, time.Friday}, models.AfterCount(5))

	exp := RecurrenceExpander{}.Expand(start, start.Add(time.Hour), rule, time.UTC)

	want := []time.Time{
		time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC),  // Wed
		time.Date(2026, 3, 6, 10, 0, 0, 0, time.UTC),  // Fri
		time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC),  // Mon
		time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC), // Wed
		time.Date(2026, 3, 13, 10, 0, 0, 0, time.UTC), // Fri
	}
	assert.Len(t, exp.Occurrences, len(want))
	for i, w := range want {
		assert.True(t, exp.Occurrences[i].Start.Equal(w), "occurrence %d", i)
	}
}

func TestExpand_WeeklyIntervalSkipsWeeks(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) // Monday
	rule := mustRule(t, models.FrequencyWeekly, 2, nil, models.AfterCount(3))

	exp := RecurrenceExpander{}.Expand(start, start.Add(time.Hour), rule, time.UTC)

	assert.Len(t, exp.Occurrences, 3)
	assert.True(t, exp.Occurrences[1].Start.Equal(start.AddDate(0, 0, 14)))
	assert.True(t, exp.Occurrences[2].Start.Equal(start.AddDate(0, 0, 28)))
}

func TestExpand_MonthlyClampsShortMonths(t *testing.T) {
	start := time.Date(2026, 1, 31, 10, 0, 0, 0, time.UTC)
	rule := mustRule(t, models.FrequencyMonthly, 1, nil, models.AfterCount(4))

	exp := RecurrenceExpander{}.Expand(start, start.Add(time.Hour), rule, time.UTC)

	want := []time.Time{
		time.Date(2026, 1, 31, 10, 0, 0, 0, time.UTC),
		time.Date(2026, 2, 28, 10, 0, 0, 0, time.UTC), // clamped, not March 3rd
		time.Date(2026, 3, 31, 10, 0, 0, 0, time.UTC),
		time.Date(2026, 4, 30, 10, 0, 0, 0, time.UTC), // clamped
	}
	assert.Len(t, exp.Occurrences, len(want))
	for i, w := range want {
		assert.True(t, exp.Occurrences[i].Start.Equal(w), "occurrence %d", i)
	}
}

func TestExpand_OnDateIsInclusive(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	until := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	rule := mustRule(t, models.FrequencyDaily, 1, nil, models.OnDate(until))

	exp := RecurrenceExpander{}.Expand(start, start.Add(time.Hour), rule, time.UTC)

	// An occurrence starting exactly on the until instant is kept.
	assert.Len(t, exp.Occurrences, 3)
	assert.True(t, exp.Occurrences[2].Start.Equal(until))
	assert.False(t, exp.Capped)
}

func TestExpand_OnDateBeforeStartYieldsNothing(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	rule := mustRule(t, models.FrequencyDaily, 1, nil,
		models.OnDate(start.Add(-24*time.Hour)))

	exp := RecurrenceExpander{}.Expand(start, start.Add(time.Hour), rule, time.UTC)

	assert.Empty(t, exp.Occurrences)
	assert.False(t, exp.Capped)
}

func TestExpand_NeverTerminatingHitsCap(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	rule := mustRule(t, models.FrequencyDaily, 1, nil, models.Never())

	exp := RecurrenceExpander{}.Expand(start, start.Add(time.Hour), rule, time.UTC)

	assert.Len(t, exp.Occurrences, MaxOccurrences)
	assert.True(t, exp.Capped)
}

func TestExpand_CountAboveCapIsCapped(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	rule := mustRule(t, models.FrequencyDaily, 1, nil, models.AfterCount(1000))

	exp := RecurrenceExpander{}.Expand(start, start.Add(time.Hour), rule, time.UTC)

	assert.Len(t, exp.Occurrences, MaxOccurrences)
	assert.True(t, exp.Capped)
}

func TestExpand_KeepsWallClockAcrossDST(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	assert.NoError(t, err)

	// March 7th 2026 is the day before US daylight saving begins.
	start := time.Date(2026, 3, 7, 10, 0, 0, 0, ny)
	rule := mustRule(t, models.FrequencyDaily, 1, nil, models.AfterCount(2))

	exp := RecurrenceExpander{}.Expand(start, start.Add(time.Hour), rule, ny)

	assert.Len(t, exp.Occurrences, 2)
	second := exp.Occurrences[1].Start.In(ny)
	assert.Equal(t, 10, second.Hour(), "wall clock must stay at 10:00 across the transition")
	// The calendar day advanced by one but the absolute gap is 23 hours.
	assert.Equal(t, 23*time.Hour, exp.Occurrences[1].Start.Sub(exp.Occurrences[0].Start))
}
