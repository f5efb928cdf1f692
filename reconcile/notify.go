// ABOUTME: Reminder lead-time policy for a week of appointments
// ABOUTME: Gives the first appointment of each day an alternate reminder
package reconcile

import (
	"sort"
	"time"

	"github.com/harperreed/doctosync/models"
)

const (
	DefaultReminderMinutes    = 30
	DefaultFirstOfDayMinutes  = 0
	UseCalendarDefaultMinutes = 0
)

// startLayouts are the timestamp shapes the scheduling source is known to emit.
var startLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// NotificationPolicy assigns reminder minutes to appointments. A value of 0
// means "leave the destination calendar's default reminder in place".
// Days are counted in Location; a nil Location falls back to the date text
// of each start timestamp.
type NotificationPolicy struct {
	DefaultMinutes    int
	FirstOfDayMinutes int
	Location          *time.Location
}

// DefaultNotificationPolicy returns the policy used when nothing is configured.
func DefaultNotificationPolicy() NotificationPolicy {
	return NotificationPolicy{
		DefaultMinutes:    DefaultReminderMinutes,
		FirstOfDayMinutes: DefaultFirstOfDayMinutes,
	}
}

// Scheduled is an appointment with its assigned reminder lead time.
type Scheduled struct {
	Appointment models.Appointment
	Minutes     int
}

// Assign sorts appointments by start time (stable, so ties keep fetch order)
// and assigns reminder minutes in that order.
func (p NotificationPolicy) Assign(appts []models.Appointment) []Scheduled {
	sorted := make([]models.Appointment, len(appts))
	copy(sorted, appts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return startsBefore(sorted[i].StartTime, sorted[j].StartTime, p.location())
	})

	out := make([]Scheduled, 0, len(sorted))
	lastDay := ""
	for i, appt := range sorted {
		day := p.dayOf(appt)
		minutes := p.DefaultMinutes
		if (i == 0 || day != lastDay) && p.FirstOfDayMinutes > 0 {
			minutes = p.FirstOfDayMinutes
		}
		lastDay = day
		out = append(out, Scheduled{Appointment: appt, Minutes: minutes})
	}
	return out
}

func (p NotificationPolicy) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// dayOf is the calendar date an appointment starts on, on the same instant
// basis used for ordering.
func (p NotificationPolicy) dayOf(appt models.Appointment) string {
	if p.Location != nil {
		if t, ok := ParseTime(appt.StartTime, p.Location); ok {
			return t.In(p.Location).Format(time.DateOnly)
		}
	}
	return appt.Day()
}

// startsBefore compares instants when both values parse and falls back to
// plain string order otherwise.
func startsBefore(a, b string, loc *time.Location) bool {
	ta, okA := ParseTime(a, loc)
	tb, okB := ParseTime(b, loc)
	if okA && okB {
		return ta.Before(tb)
	}
	return a < b
}

// ParseTime parses a feed timestamp. Values without an offset are read in loc.
func ParseTime(v string, loc *time.Location) (time.Time, bool) {
	for _, layout := range startLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
