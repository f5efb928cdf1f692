// ABOUTME: Calendar API client setup and the low-level calls the gateway makes
// ABOUTME: Wraps calendar.Service behind CalendarAPI so tests can substitute a mock
package sync

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// CalendarAPI is the subset of the Google Calendar API used by the sync.
type CalendarAPI interface {
	ListEvents(ctx context.Context, calendarID, timeMin, timeMax, pageToken string) (*calendar.Events, error)
	InsertEvent(ctx context.Context, calendarID string, event *calendar.Event) (*calendar.Event, error)
	UpdateEvent(ctx context.Context, calendarID, eventID string, event *calendar.Event) (*calendar.Event, error)
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
}

// maxResults is the Google Calendar API page size limit.
const maxResults = 250

type calendarService struct {
	service *calendar.Service
}

// NewCalendarClient creates a Google Calendar API service from an OAuth token.
// Refreshed tokens are written back to tokenPath.
func NewCalendarClient(ctx context.Context, cfg *oauth2.Config, token *oauth2.Token, tokenPath string, logger zerolog.Logger) (CalendarAPI, error) {
	if token == nil {
		return nil, fmt.Errorf("token cannot be nil")
	}
	if cfg == nil {
		return nil, fmt.Errorf("oauth config cannot be nil")
	}

	ts := NewPersistingTokenSource(ctx, cfg, token, tokenPath, logger)
	client := oauth2.NewClient(ctx, ts)

	service, err := calendar.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	return &calendarService{service: service}, nil
}

func (a *calendarService) ListEvents(ctx context.Context, calendarID, timeMin, timeMax, pageToken string) (*calendar.Events, error) {
	call := a.service.Events.List(calendarID).
		Context(ctx).
		TimeMin(timeMin).
		TimeMax(timeMax).
		SingleEvents(true).
		MaxResults(maxResults)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	return call.Do()
}

func (a *calendarService) InsertEvent(ctx context.Context, calendarID string, event *calendar.Event) (*calendar.Event, error) {
	return a.service.Events.Insert(calendarID, event).Context(ctx).Do()
}

func (a *calendarService) UpdateEvent(ctx context.Context, calendarID, eventID string, event *calendar.Event) (*calendar.Event, error) {
	return a.service.Events.Update(calendarID, eventID, event).Context(ctx).Do()
}

func (a *calendarService) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	return a.service.Events.Delete(calendarID, eventID).Context(ctx).Do()
}
