package models

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

type TerminationKind string

const (
	TerminationNever      TerminationKind = "never"
	TerminationAfterCount TerminationKind = "after_count"
	TerminationOnDate     TerminationKind = "on_date"
)

var (
	ErrUnknownFrequency      = errors.New("unknown recurrence frequency")
	ErrIntervalTooSmall      = errors.New("recurrence interval must be at least 1")
	ErrWeekdaysRequireWeekly = errors.New("weekday set is only valid for weekly recurrence")
	ErrWeekdayOutOfRange     = errors.New("weekday must be between Sunday (0) and Saturday (6)")
	ErrUnknownTermination    = errors.New("unknown termination kind")
	ErrCountRequired         = errors.New("after_count termination requires a count of at least 1")
	ErrUntilRequired         = errors.New("on_date termination requires a date")
)

// Termination says when a series stops producing occurrences. Count is only
// meaningful for TerminationAfterCount, Until only for TerminationOnDate
// (inclusive: an occurrence starting exactly on Until is kept).
type Termination struct {
	Kind  TerminationKind
	Count int
	Until time.Time
}

func Never() Termination                 { return Termination{Kind: TerminationNever} }
func AfterCount(n int) Termination       { return Termination{Kind: TerminationAfterCount, Count: n} }
func OnDate(until time.Time) Termination { return Termination{Kind: TerminationOnDate, Until: until} }

// RecurrenceRule describes how a series repeats. Rows are only written
// through NewRecurrenceRule, so a persisted rule is always well formed.
type RecurrenceRule struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	Frequency        Frequency       `gorm:"type:varchar(10);not null" json:"frequency"`
	Interval         int             `gorm:"not null;default:1" json:"interval"`
	WeekdaySet       string          `gorm:"type:varchar(20)" json:"weekday_set,omitempty"`
	TerminationKind  TerminationKind `gorm:"type:varchar(15);not null" json:"termination_kind"`
	TerminationCount int             `json:"termination_count,omitempty"`
	TerminationUntil *time.Time      `json:"termination_until,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// NewRecurrenceRule validates and builds a rule. An empty weekday set for a
// weekly rule means "repeat on the weekday of the series start".
func NewRecurrenceRule(freq Frequency, interval int, weekdays []time.Weekday, term Termination) (*RecurrenceRule, error) {
	switch freq {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrequency, freq)
	}
	if interval < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrIntervalTooSmall, interval)
	}
	if len(weekdays) > 0 && freq != FrequencyWeekly {
		return nil, ErrWeekdaysRequireWeekly
	}
	for _, d := range weekdays {
		if d < time.Sunday || d > time.Saturday {
			return nil, fmt.Errorf("%w: got %d", ErrWeekdayOutOfRange, d)
		}
	}

	rule := &RecurrenceRule{
		Frequency:       freq,
		Interval:        interval,
		WeekdaySet:      encodeWeekdays(weekdays),
		TerminationKind: term.Kind,
	}

	switch term.Kind {
	case TerminationNever:
	case TerminationAfterCount:
		if term.Count < 1 {
			return nil, fmt.Errorf("%w: got %d", ErrCountRequired, term.Count)
		}
		rule.TerminationCount = term.Count
	case TerminationOnDate:
		if term.Until.IsZero() {
			return nil, ErrUntilRequired
		}
		until := term.Until
		rule.TerminationUntil = &until
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTermination, term.Kind)
	}

	return rule, nil
}

// Weekdays decodes the stored weekday set, sorted Sunday first. Nil when the
// rule has no explicit set.
func (r *RecurrenceRule) Weekdays() []time.Weekday {
	if r.WeekdaySet == "" {
		return nil
	}
	parts := strings.Split(r.WeekdaySet, ",")
	days := make([]time.Weekday, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			continue
		}
		days = append(days, time.Weekday(n))
	}
	return days
}

// Termination reassembles the termination value from the stored columns.
func (r *RecurrenceRule) Termination() Termination {
	t := Termination{Kind: r.TerminationKind, Count: r.TerminationCount}
	if r.TerminationUntil != nil {
		t.Until = *r.TerminationUntil
	}
	return t
}

func encodeWeekdays(days []time.Weekday) string {
	if len(days) == 0 {
		return ""
	}
	seen := make(map[time.Weekday]bool, len(days))
	uniq := make([]int, 0, len(days))
	for _, d := range days {
		if !seen[d] {
			seen[d] = true
			uniq = append(uniq, int(d))
		}
	}
	sort.Ints(uniq)
	parts := make([]string, len(uniq))
	for i, d := range uniq {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}
