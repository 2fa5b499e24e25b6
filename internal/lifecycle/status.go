// Package lifecycle tracks whether each catalog entry is accepting
// applications and how soon it must be checked again.
package lifecycle

import "time"

// Status is the application-window state of a catalog entry.
type Status string

// Lifecycle statuses.
const (
	StatusUnknown          Status = "unknown"
	StatusOpen             Status = "open"
	StatusClosingSoon      Status = "closing_soon"
	StatusScheduled        Status = "scheduled"
	StatusClosedByDeadline Status = "closed_by_deadline"
	StatusClosedByBudget   Status = "closed_by_budget"
	StatusSuspended        Status = "suspended"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := recheckIntervals[s]
	return ok
}

// IsClosed reports whether s ends the application window.
func IsClosed(s Status) bool {
	return s == StatusClosedByDeadline || s == StatusClosedByBudget
}

// Frequency labels a recheck interval.
type Frequency string

// Check frequencies.
const (
	Hourly  Frequency = "hourly"
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

const (
	hour  = time.Hour
	day   = 24 * time.Hour
	week  = 7 * day
	month = 30 * day
)

// UrgentPriority is the highest priority value treated as urgent.
const UrgentPriority = 2

// DefaultPriority applies when a record has no priority yet.
const DefaultPriority = 3

// recheckIntervals maps status to {urgent, normal} intervals.
var recheckIntervals = map[Status][2]time.Duration{
	StatusClosingSoon:      {hour, hour},
	StatusOpen:             {day, week},
	StatusUnknown:          {day, week},
	StatusScheduled:        {week, month},
	StatusClosedByDeadline: {month, month},
	StatusClosedByBudget:   {month, month},
	StatusSuspended:        {month, month},
}

// Interval returns the recheck interval for (status, priority). Priority 1
// is the most urgent. Unknown statuses are treated as unknown.
func Interval(status Status, priority int) time.Duration {
	iv, ok := recheckIntervals[status]
	if !ok {
		iv = recheckIntervals[StatusUnknown]
	}
	if priority <= UrgentPriority {
		return iv[0]
	}
	return iv[1]
}

// NextCheckAt is the earliest time the entry may be checked again. It is
// always strictly after now.
func NextCheckAt(status Status, priority int, now time.Time) time.Time {
	return now.Add(Interval(status, priority))
}

// FrequencyOf labels the interval for (status, priority).
func FrequencyOf(status Status, priority int) Frequency {
	return frequencyFor(Interval(status, priority))
}

func frequencyFor(d time.Duration) Frequency {
	switch {
	case d <= hour:
		return Hourly
	case d <= day:
		return Daily
	case d <= week:
		return Weekly
	default:
		return Monthly
	}
}
