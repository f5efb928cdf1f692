// ABOUTME: iCalendar export of projected appointment events
// ABOUTME: Writes one VEVENT per event with a stable UID and reminders as display alarms
package ics

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/harperreed/doctosync/reconcile"
)

const productID = "-//doctosync//Appointment Export//EN"

// UID derives a stable event UID from an identity key.
func UID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16]) + "@doctosync"
}

// WriteCalendar serializes events as an iCalendar document. Times without an
// offset are read in loc.
func WriteCalendar(w io.Writer, name string, events []reconcile.Projected, loc *time.Location, now time.Time) error {
	if loc == nil {
		loc = time.UTC
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if name != "" {
		cal.SetXWRCalName(name)
	}
	cal.SetXWRTimezone(loc.String())

	for _, ev := range events {
		start, ok := reconcile.ParseTime(ev.Payload.Start.DateTime, loc)
		if !ok {
			return fmt.Errorf("invalid start time %q for %s", ev.Payload.Start.DateTime, ev.Key)
		}
		end, ok := reconcile.ParseTime(ev.Payload.End.DateTime, loc)
		if !ok {
			return fmt.Errorf("invalid end time %q for %s", ev.Payload.End.DateTime, ev.Key)
		}

		vevent := cal.AddEvent(UID(ev.Key))
		vevent.SetDtStampTime(now)
		vevent.SetStartAt(start)
		vevent.SetEndAt(end)
		vevent.SetSummary(ev.Payload.Summary)
		vevent.SetDescription(ev.Payload.Description)
		if ev.Payload.Location != "" {
			vevent.SetLocation(ev.Payload.Location)
		}

		// Calendar defaults do not exist outside Google; only explicit overrides become alarms.
		for _, o := range ev.Payload.Reminders.Overrides {
			alarm := vevent.AddAlarm()
			alarm.SetAction(ical.ActionDisplay)
			alarm.SetTrigger(fmt.Sprintf("-PT%dM", o.Minutes))
			alarm.SetProperty(ical.ComponentPropertyDescription, ev.Payload.Summary)
		}
	}

	if _, err := io.WriteString(w, cal.Serialize()); err != nil {
		return fmt.Errorf("failed to write calendar: %w", err)
	}
	return nil
}
