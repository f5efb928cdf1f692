// ABOUTME: Data models for appointments, calendar events and sync history
// ABOUTME: Defines Appointment, DestinationEvent, EventPayload, Reminders and run records
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Appointment status constants.
const (
	StatusConfirmed = "confirmed"
	StatusDeleted   = "deleted"
)

// Summary labels.
const (
	LabelNewPatient = "new patient"
	LabelFollowUp   = "follow-up"
)

// ReminderMethodPopup is the only reminder method the sync writes.
const ReminderMethodPopup = "popup"

// Appointment is one record fetched from the scheduling source for a week.
// StartTime and EndTime are kept verbatim so identity keys stay stable across runs.
type Appointment struct {
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	NewPatient bool   `json:"new_patient"`
	Status     string `json:"status"`
}

// SummaryLabel returns the human label used in the event title.
func (a Appointment) SummaryLabel() string {
	if a.NewPatient {
		return LabelNewPatient
	}
	return LabelFollowUp
}

// Day returns the calendar day portion of the start time.
func (a Appointment) Day() string {
	day, _, _ := strings.Cut(a.StartTime, "T")
	return day
}

// IsDeleted reports whether the source marked the appointment as deleted.
func (a Appointment) IsDeleted() bool {
	return strings.EqualFold(a.Status, StatusDeleted)
}

type ReminderOverride struct {
	Method  string `json:"method"`
	Minutes int    `json:"minutes"`
}

// Reminders is either "use the calendar default" or an explicit override list.
type Reminders struct {
	UseDefault bool               `json:"use_default"`
	Overrides  []ReminderOverride `json:"overrides,omitempty"`
}

// DefaultReminders keeps the destination calendar's own reminder behaviour.
func DefaultReminders() Reminders {
	return Reminders{UseDefault: true}
}

// PopupReminder is a single popup override firing minutes before the start.
func PopupReminder(minutes int) Reminders {
	return Reminders{
		Overrides: []ReminderOverride{{Method: ReminderMethodPopup, Minutes: minutes}},
	}
}

// Equal compares reminder configs field by field, override order included.
func (r Reminders) Equal(other Reminders) bool {
	if r.UseDefault != other.UseDefault || len(r.Overrides) != len(other.Overrides) {
		return false
	}
	for i := range r.Overrides {
		if r.Overrides[i] != other.Overrides[i] {
			return false
		}
	}
	return true
}

type EventTime struct {
	DateTime string `json:"date_time"`
	TimeZone string `json:"time_zone"`
}

// EventPayload is the destination-side representation written on create and update.
type EventPayload struct {
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
	Start       EventTime `json:"start"`
	End         EventTime `json:"end"`
	Location    string    `json:"location,omitempty"`
	Reminders   Reminders `json:"reminders"`
}

// DestinationEvent is an event already present in the destination calendar.
// SyncKey is empty for events the sync did not create.
type DestinationEvent struct {
	ID          string    `json:"id"`
	Summary     string    `json:"summary,omitempty"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Reminders   Reminders `json:"reminders"`
	SyncKey     string    `json:"sync_key,omitempty"`
}

// Sync status constants.
const (
	SyncStatusIdle    = "idle"
	SyncStatusSyncing = "syncing"
	SyncStatusError   = "error"
)

// Week run outcome constants.
const (
	RunStatusOK      = "ok"
	RunStatusPartial = "partial"
	RunStatusSkipped = "skipped"
)

// Operation names recorded in the sync log.
const (
	OperationCreate = "create"
	OperationUpdate = "update"
	OperationDelete = "delete"
)

type SyncState struct {
	Calendar     string     `json:"calendar"`
	LastSyncTime *time.Time `json:"last_sync_time,omitempty"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// WeekRun records the outcome of synchronizing one week.
type WeekRun struct {
	ID           string    `json:"id"`
	Calendar     string    `json:"calendar"`
	WeekStart    string    `json:"week_start"`
	Appointments int       `json:"appointments"`
	Created      int       `json:"created"`
	Updated      int       `json:"updated"`
	Deleted      int       `json:"deleted"`
	Failed       int       `json:"failed"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	DryRun       bool      `json:"dry_run"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// SyncLog is one failed gateway operation within a week run.
type SyncLog struct {
	ID        uuid.UUID `json:"id"`
	RunID     string    `json:"run_id"`
	Operation string    `json:"operation"`
	SyncKey   string    `json:"sync_key,omitempty"`
	EventID   string    `json:"event_id,omitempty"`
	Error     string    `json:"error"`
	CreatedAt time.Time `json:"created_at"`
}
