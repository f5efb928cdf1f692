// ABOUTME: Projection of source appointments into destination event payloads
// ABOUTME: Builds title, description, time window, location and reminder config
package reconcile

import (
	"fmt"
	"strings"

	"github.com/harperreed/doctosync/models"
)

// Projector turns scheduled appointments into event payloads for one calendar.
type Projector struct {
	Location string
	TimeZone string
}

// Projected is a payload together with the identity key it was built for.
type Projected struct {
	Key         string
	Appointment models.Appointment
	Payload     models.EventPayload
}

// Project builds the payload for a single appointment.
func (p Projector) Project(appt models.Appointment, minutes int, key string) models.EventPayload {
	status := appt.Status
	if status == "" {
		status = models.StatusConfirmed
	}

	payload := models.EventPayload{
		Summary:     fmt.Sprintf("%s [%s]", appt.SummaryLabel(), status),
		Description: Description(key),
		Start:       models.EventTime{DateTime: appt.StartTime, TimeZone: p.TimeZone},
		End:         models.EventTime{DateTime: appt.EndTime, TimeZone: p.TimeZone},
		Location:    strings.TrimSpace(p.Location),
		Reminders:   remindersFor(minutes),
	}
	return payload
}

// Build runs the policy and projection over a week of appointments. When two
// appointments share a key the later one in start order wins.
func Build(appts []models.Appointment, policy NotificationPolicy, projector Projector) []Projected {
	scheduled := policy.Assign(appts)

	index := make(map[string]int, len(scheduled))
	out := make([]Projected, 0, len(scheduled))
	for _, s := range scheduled {
		key := IdentityKey(s.Appointment)
		proj := Projected{
			Key:         key,
			Appointment: s.Appointment,
			Payload:     projector.Project(s.Appointment, s.Minutes, key),
		}
		if i, dup := index[key]; dup {
			out[i] = proj
			continue
		}
		index[key] = len(out)
		out = append(out, proj)
	}
	return out
}

func remindersFor(minutes int) models.Reminders {
	if minutes <= UseCalendarDefaultMinutes {
		return models.DefaultReminders()
	}
	return models.PopupReminder(minutes)
}
