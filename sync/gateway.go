// ABOUTME: Destination calendar gateway backed by the Google Calendar API
// ABOUTME: Lists a week's events with their sync keys and writes event payloads
package sync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"

	"github.com/harperreed/doctosync/models"
	"github.com/harperreed/doctosync/reconcile"
)

// Gateway reads and writes events of one Google calendar.
type Gateway struct {
	api        CalendarAPI
	calendarID string
}

// NewGateway creates a gateway for calendarID.
func NewGateway(api CalendarAPI, calendarID string) *Gateway {
	return &Gateway{api: api, calendarID: calendarID}
}

// ListEvents returns every event overlapping [start, end), following pagination.
func (g *Gateway) ListEvents(ctx context.Context, start, end time.Time) ([]models.DestinationEvent, error) {
	var out []models.DestinationEvent
	pageToken := ""
	for {
		page, err := g.api.ListEvents(ctx, g.calendarID, start.Format(time.RFC3339), end.Format(time.RFC3339), pageToken)
		if err != nil {
			return nil, fmt.Errorf("failed to list calendar events: %w", err)
		}
		for _, ev := range page.Items {
			if ev == nil || ev.Status == "cancelled" {
				continue
			}
			out = append(out, toDestinationEvent(ev))
		}
		pageToken = page.NextPageToken
		if pageToken == "" {
			return out, nil
		}
	}
}

// CreateEvent inserts a new event and returns its id.
func (g *Gateway) CreateEvent(ctx context.Context, payload models.EventPayload) (string, error) {
	created, err := g.api.InsertEvent(ctx, g.calendarID, toCalendarEvent(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create event: %w", err)
	}
	return created.Id, nil
}

// UpdateEvent replaces the event with the payload.
func (g *Gateway) UpdateEvent(ctx context.Context, id string, payload models.EventPayload) error {
	if _, err := g.api.UpdateEvent(ctx, g.calendarID, id, toCalendarEvent(payload)); err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	return nil
}

// DeleteEvent removes the event. An event that is already gone counts as deleted.
func (g *Gateway) DeleteEvent(ctx context.Context, id string) error {
	err := g.api.DeleteEvent(ctx, g.calendarID, id)
	if err != nil && !isGone(err) {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	return nil
}

func isGone(err error) bool {
	var ae *googleapi.Error
	if errors.As(err, &ae) {
		return ae.Code == http.StatusNotFound || ae.Code == http.StatusGone
	}
	return false
}

func toCalendarEvent(p models.EventPayload) *calendar.Event {
	reminders := &calendar.EventReminders{
		UseDefault:      p.Reminders.UseDefault,
		ForceSendFields: []string{"UseDefault"},
	}
	for _, o := range p.Reminders.Overrides {
		reminders.Overrides = append(reminders.Overrides, &calendar.EventReminder{
			Method:  o.Method,
			Minutes: int64(o.Minutes),
		})
	}

	return &calendar.Event{
		Summary:     p.Summary,
		Description: p.Description,
		Location:    p.Location,
		Start:       &calendar.EventDateTime{DateTime: p.Start.DateTime, TimeZone: p.Start.TimeZone},
		End:         &calendar.EventDateTime{DateTime: p.End.DateTime, TimeZone: p.End.TimeZone},
		Reminders:   reminders,
	}
}

func toDestinationEvent(ev *calendar.Event) models.DestinationEvent {
	out := models.DestinationEvent{
		ID:          ev.Id,
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
	}
	if ev.Reminders != nil {
		out.Reminders.UseDefault = ev.Reminders.UseDefault
		for _, o := range ev.Reminders.Overrides {
			if o == nil {
				continue
			}
			out.Reminders.Overrides = append(out.Reminders.Overrides, models.ReminderOverride{
				Method:  o.Method,
				Minutes: int(o.Minutes),
			})
		}
	}
	if key, ok := reconcile.ExtractSyncKey(ev.Description); ok {
		out.SyncKey = key
	}
	return out
}
