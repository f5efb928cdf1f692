// ABOUTME: Tests for the Google Calendar gateway using a function-field API mock
// ABOUTME: Covers pagination, event conversion and already-deleted handling
package sync

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"

	"github.com/harperreed/doctosync/models"
)

type MockCalendarAPI struct {
	ListEventsFunc  func(ctx context.Context, calendarID, timeMin, timeMax, pageToken string) (*calendar.Events, error)
	InsertEventFunc func(ctx context.Context, calendarID string, event *calendar.Event) (*calendar.Event, error)
	UpdateEventFunc func(ctx context.Context, calendarID, eventID string, event *calendar.Event) (*calendar.Event, error)
	DeleteEventFunc func(ctx context.Context, calendarID, eventID string) error
}

func (m *MockCalendarAPI) ListEvents(ctx context.Context, calendarID, timeMin, timeMax, pageToken string) (*calendar.Events, error) {
	return m.ListEventsFunc(ctx, calendarID, timeMin, timeMax, pageToken)
}

func (m *MockCalendarAPI) InsertEvent(ctx context.Context, calendarID string, event *calendar.Event) (*calendar.Event, error) {
	return m.InsertEventFunc(ctx, calendarID, event)
}

func (m *MockCalendarAPI) UpdateEvent(ctx context.Context, calendarID, eventID string, event *calendar.Event) (*calendar.Event, error) {
	return m.UpdateEventFunc(ctx, calendarID, eventID, event)
}

func (m *MockCalendarAPI) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	return m.DeleteEventFunc(ctx, calendarID, eventID)
}

func TestGatewayListEventsPaginates(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)
	start := time.Date(2025, time.January, 6, 0, 0, 0, 0, paris)

	var tokens []string
	api := &MockCalendarAPI{
		ListEventsFunc: func(_ context.Context, calendarID, timeMin, timeMax, pageToken string) (*calendar.Events, error) {
			assert.Equal(t, "cal@example.com", calendarID)
			assert.Equal(t, "2025-01-06T00:00:00+01:00", timeMin)
			assert.Equal(t, "2025-01-13T00:00:00+01:00", timeMax)
			tokens = append(tokens, pageToken)

			if pageToken == "" {
				return &calendar.Events{
					Items: []*calendar.Event{
						{
							Id:          "e1",
							Description: "Synced from Doctolib. SYNC_KEY: k1",
							Location:    "Clinic A",
							Reminders: &calendar.EventReminders{
								Overrides: []*calendar.EventReminder{{Method: "popup", Minutes: 30}},
							},
						},
						{Id: "gone", Status: "cancelled", Description: "SYNC_KEY: k-gone"},
					},
					NextPageToken: "page-2",
				}, nil
			}
			return &calendar.Events{
				Items: []*calendar.Event{
					{Id: "e2", Summary: "Lunch", Reminders: &calendar.EventReminders{UseDefault: true}},
				},
			}, nil
		},
	}

	events, err := NewGateway(api, "cal@example.com").ListEvents(context.Background(), start, start.AddDate(0, 0, 7))
	require.NoError(t, err)

	assert.Equal(t, []string{"", "page-2"}, tokens)
	assert.Equal(t, []models.DestinationEvent{
		{
			ID:          "e1",
			Description: "Synced from Doctolib. SYNC_KEY: k1",
			Location:    "Clinic A",
			Reminders:   models.PopupReminder(30),
			SyncKey:     "k1",
		},
		{
			ID:        "e2",
			Summary:   "Lunch",
			Reminders: models.DefaultReminders(),
		},
	}, events)
}

func TestGatewayListEventsError(t *testing.T) {
	api := &MockCalendarAPI{
		ListEventsFunc: func(context.Context, string, string, string, string) (*calendar.Events, error) {
			return nil, &googleapi.Error{Code: http.StatusForbidden, Message: "forbidden"}
		},
	}

	_, err := NewGateway(api, "primary").ListEvents(context.Background(), time.Now(), time.Now())
	assert.ErrorContains(t, err, "failed to list calendar events")
}

func TestGatewayCreateEvent(t *testing.T) {
	var sent *calendar.Event
	api := &MockCalendarAPI{
		InsertEventFunc: func(_ context.Context, calendarID string, event *calendar.Event) (*calendar.Event, error) {
			assert.Equal(t, "primary", calendarID)
			sent = event
			return &calendar.Event{Id: "new-id"}, nil
		},
	}

	payload := models.EventPayload{
		Summary:     "follow-up [confirmed]",
		Description: "Synced from Doctolib. SYNC_KEY: k1",
		Start:       models.EventTime{DateTime: "2025-01-06T09:00:00.000+01:00", TimeZone: "Europe/Paris"},
		End:         models.EventTime{DateTime: "2025-01-06T09:30:00.000+01:00", TimeZone: "Europe/Paris"},
		Location:    "Clinic A",
		Reminders:   models.PopupReminder(60),
	}

	id, err := NewGateway(api, "primary").CreateEvent(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, "new-id", id)

	require.NotNil(t, sent)
	assert.Equal(t, payload.Summary, sent.Summary)
	assert.Equal(t, payload.Description, sent.Description)
	assert.Equal(t, "Clinic A", sent.Location)
	assert.Equal(t, "2025-01-06T09:00:00.000+01:00", sent.Start.DateTime)
	assert.Equal(t, "Europe/Paris", sent.End.TimeZone)
	assert.False(t, sent.Reminders.UseDefault)
	assert.Contains(t, sent.Reminders.ForceSendFields, "UseDefault")
	require.Len(t, sent.Reminders.Overrides, 1)
	assert.Equal(t, "popup", sent.Reminders.Overrides[0].Method)
	assert.Equal(t, int64(60), sent.Reminders.Overrides[0].Minutes)
}

func TestGatewayUpdateEventUsesDefaultReminders(t *testing.T) {
	api := &MockCalendarAPI{
		UpdateEventFunc: func(_ context.Context, _ string, eventID string, event *calendar.Event) (*calendar.Event, error) {
			assert.Equal(t, "e1", eventID)
			assert.True(t, event.Reminders.UseDefault)
			assert.Empty(t, event.Reminders.Overrides)
			return event, nil
		},
	}

	err := NewGateway(api, "primary").UpdateEvent(context.Background(), "e1", models.EventPayload{Reminders: models.DefaultReminders()})
	assert.NoError(t, err)
}

func TestGatewayDeleteEvent(t *testing.T) {
	tests := []struct {
		name    string
		apiErr  error
		wantErr bool
	}{
		{name: "deleted", apiErr: nil},
		{name: "not found", apiErr: &googleapi.Error{Code: http.StatusNotFound}},
		{name: "gone", apiErr: &googleapi.Error{Code: http.StatusGone}},
		{name: "server error", apiErr: &googleapi.Error{Code: http.StatusInternalServerError}, wantErr: true},
		{name: "network", apiErr: errors.New("connection reset"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &MockCalendarAPI{
				DeleteEventFunc: func(context.Context, string, string) error { return tt.apiErr },
			}

			err := NewGateway(api, "primary").DeleteEvent(context.Background(), "e1")
			if tt.wantErr {
				assert.ErrorContains(t, err, "failed to delete event")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
