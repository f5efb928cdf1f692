// ABOUTME: Identity keys linking source appointments to destination events
// ABOUTME: Builds the key and embeds/extracts it through the SYNC_KEY description marker
package reconcile

import (
	"strconv"
	"strings"

	"github.com/harperreed/doctosync/models"
)

const (
	// SyncKeyMarker precedes the identity key in an event description.
	SyncKeyMarker = "SYNC_KEY:"

	keyDelimiter = "|"

	descriptionPrefix = "Synced from Doctolib."
)

// IdentityKey derives the stable key for an appointment from its start, end and
// new-patient flag.
func IdentityKey(appt models.Appointment) string {
	return strings.Join([]string{
		appt.StartTime,
		appt.EndTime,
		strconv.FormatBool(appt.NewPatient),
	}, keyDelimiter)
}

// Description renders the event description carrying the key.
func Description(key string) string {
	return descriptionPrefix + " " + SyncKeyMarker + " " + key
}

// ExtractSyncKey returns the key embedded in a description, or false when the
// description has no marker. Text after a second marker is ignored.
func ExtractSyncKey(description string) (string, bool) {
	_, rest, found := strings.Cut(description, SyncKeyMarker)
	if !found {
		return "", false
	}
	if i := strings.Index(rest, SyncKeyMarker); i >= 0 {
		rest = rest[:i]
	}
	return strings.TrimSpace(rest), true
}

// ExistingByKey indexes destination events by their sync key. Events without a
// marker are left out so reconciliation never touches them.
func ExistingByKey(events []models.DestinationEvent) map[string]models.DestinationEvent {
	existing := make(map[string]models.DestinationEvent, len(events))
	for _, ev := range events {
		key := ev.SyncKey
		if key == "" {
			var ok bool
			if key, ok = ExtractSyncKey(ev.Description); !ok {
				continue
			}
			ev.SyncKey = key
		}
		existing[key] = ev
	}
	return existing
}
