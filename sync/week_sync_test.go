// ABOUTME: Tests for the week-by-week sync loop
// ABOUTME: Uses an in-memory calendar, a scripted appointment source and a recording history
package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/doctosync/models"
	"github.com/harperreed/doctosync/reconcile"
)

type scriptedSource struct {
	weeks map[string][]models.Appointment
	errs  map[string]error
	calls []string
}

func (s *scriptedSource) FetchWeek(_ context.Context, weekStart time.Time) ([]models.Appointment, error) {
	day := weekStart.Format(time.DateOnly)
	s.calls = append(s.calls, day)
	if err, ok := s.errs[day]; ok {
		return nil, err
	}
	return s.weeks[day], nil
}

type memoryCalendar struct {
	events  map[string]models.DestinationEvent
	nextID  int
	writes  int
	listErr error
}

func newMemoryCalendar() *memoryCalendar {
	return &memoryCalendar{events: make(map[string]models.DestinationEvent)}
}

func (m *memoryCalendar) ListEvents(context.Context, time.Time, time.Time) ([]models.DestinationEvent, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	ids := make([]string, 0, len(m.events))
	for id := range m.events {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]models.DestinationEvent, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.events[id])
	}
	return out, nil
}

func (m *memoryCalendar) CreateEvent(_ context.Context, p models.EventPayload) (string, error) {
	m.nextID++
	m.writes++
	id := fmt.Sprintf("ev-%d", m.nextID)
	m.events[id] = toStored(id, p)
	return id, nil
}

func (m *memoryCalendar) UpdateEvent(_ context.Context, id string, p models.EventPayload) error {
	m.writes++
	if _, ok := m.events[id]; !ok {
		return errors.New("not found")
	}
	m.events[id] = toStored(id, p)
	return nil
}

func (m *memoryCalendar) DeleteEvent(_ context.Context, id string) error {
	m.writes++
	delete(m.events, id)
	return nil
}

func toStored(id string, p models.EventPayload) models.DestinationEvent {
	return models.DestinationEvent{
		ID:          id,
		Summary:     p.Summary,
		Description: p.Description,
		Location:    p.Location,
		Reminders:   p.Reminders,
	}
}

type recordingHistory struct {
	statuses []string
	runs     []*models.WeekRun
	failures []models.SyncLog
}

func (r *recordingHistory) UpdateSyncStatus(_ string, status string, _ *string) error {
	r.statuses = append(r.statuses, status)
	return nil
}

func (r *recordingHistory) RecordWeekRun(run *models.WeekRun, failures []models.SyncLog) error {
	r.runs = append(r.runs, run)
	r.failures = append(r.failures, failures...)
	return nil
}

func newTestSyncer(src AppointmentSource, cal EventStore, history RunRecorder) *WeekSyncer {
	return &WeekSyncer{
		Source:     src,
		Calendar:   cal,
		CalendarID: "primary",
		Policy:     reconcile.NotificationPolicy{DefaultMinutes: 30, FirstOfDayMinutes: 60},
		Projector:  reconcile.Projector{Location: "Clinic A", TimeZone: "Europe/Paris"},
		Applier:    reconcile.NewApplier(cal, 1, zerolog.Nop()),
		Recorder:   history,
		Logger:     zerolog.Nop(),
	}
}

var weekOne = []models.Appointment{
	{StartTime: "2025-01-06T09:00:00+01:00", EndTime: "2025-01-06T09:30:00+01:00", Status: "confirmed"},
	{StartTime: "2025-01-06T10:00:00+01:00", EndTime: "2025-01-06T10:30:00+01:00", NewPatient: true, Status: "confirmed"},
}

func TestWeekStarts(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)

	tests := []struct {
		name string
		now  time.Time
		want string
	}{
		{name: "wednesday", now: time.Date(2025, time.January, 8, 15, 0, 0, 0, paris), want: "2025-01-06"},
		{name: "monday", now: time.Date(2025, time.January, 6, 0, 0, 0, 0, paris), want: "2025-01-06"},
		{name: "sunday night", now: time.Date(2025, time.January, 12, 23, 59, 0, 0, paris), want: "2025-01-06"},
		{name: "utc instant already monday in paris", now: time.Date(2025, time.January, 12, 23, 30, 0, 0, time.UTC), want: "2025-01-13"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			weeks := WeekStarts(tt.now, paris, 1)
			require.Len(t, weeks, 1)
			assert.Equal(t, tt.want, weeks[0].Format(time.DateOnly))
			assert.Equal(t, 0, weeks[0].Hour())
		})
	}
}

func TestWeekStartsAcrossDST(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)

	weeks := WeekStarts(time.Date(2025, time.March, 26, 12, 0, 0, 0, paris), paris, 3)

	require.Len(t, weeks, 3)
	for i, want := range []string{"2025-03-24", "2025-03-31", "2025-04-07"} {
		assert.Equal(t, want, weeks[i].Format(time.DateOnly))
		assert.Equal(t, 0, weeks[i].Hour())
		assert.Equal(t, time.Monday, weeks[i].Weekday())
	}
}

func TestRunCreatesThenConverges(t *testing.T) {
	monday := time.Date(2025, time.January, 6, 0, 0, 0, 0, time.UTC)
	src := &scriptedSource{weeks: map[string][]models.Appointment{"2025-01-06": weekOne}}
	cal := newMemoryCalendar()
	history := &recordingHistory{}
	syncer := newTestSyncer(src, cal, history)

	var reported []WeekResult
	syncer.OnWeek = func(r WeekResult) { reported = append(reported, r) }

	results, err := syncer.Run(context.Background(), monday, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 2, results[0].Result.Created)
	assert.Len(t, cal.events, 2)
	assert.Len(t, reported, 1)

	// First of the day gets the first-of-day reminder.
	reminders := map[string]models.Reminders{}
	for _, ev := range cal.events {
		reminders[ev.Summary] = ev.Reminders
	}
	assert.Equal(t, models.PopupReminder(60), reminders["follow-up [confirmed]"])
	assert.Equal(t, models.PopupReminder(30), reminders["new patient [confirmed]"])

	writes := cal.writes
	results, err = syncer.Run(context.Background(), monday, 1)
	require.NoError(t, err)
	assert.True(t, results[0].Plan.Empty())
	assert.Equal(t, writes, cal.writes)

	assert.Equal(t, []string{
		models.SyncStatusSyncing, models.SyncStatusIdle,
		models.SyncStatusSyncing, models.SyncStatusIdle,
	}, history.statuses)
	require.Len(t, history.runs, 2)
	assert.Equal(t, models.RunStatusOK, history.runs[0].Status)
	assert.Equal(t, 2, history.runs[0].Created)
	assert.Equal(t, "2025-01-06", history.runs[0].WeekStart)
}

func TestRunRemovesCancelledAppointments(t *testing.T) {
	monday := time.Date(2025, time.January, 6, 0, 0, 0, 0, time.UTC)
	src := &scriptedSource{weeks: map[string][]models.Appointment{"2025-01-06": weekOne}}
	cal := newMemoryCalendar()
	cal.events["personal"] = models.DestinationEvent{ID: "personal", Summary: "Dentist"}
	syncer := newTestSyncer(src, cal, nil)

	_, err := syncer.Run(context.Background(), monday, 1)
	require.NoError(t, err)

	src.weeks["2025-01-06"] = weekOne[1:]
	results, err := syncer.Run(context.Background(), monday, 1)
	require.NoError(t, err)

	assert.Equal(t, 1, results[0].Result.Deleted)
	assert.Len(t, cal.events, 2)
	assert.Contains(t, cal.events, "personal")
}

func TestRunIsolatesFailingWeek(t *testing.T) {
	monday := time.Date(2025, time.January, 6, 0, 0, 0, 0, time.UTC)
	src := &scriptedSource{
		weeks: map[string][]models.Appointment{
			"2025-01-13": {{StartTime: "2025-01-13T09:00:00+01:00", EndTime: "2025-01-13T09:30:00+01:00"}},
		},
		errs: map[string]error{"2025-01-06": errors.New("feed unavailable")},
	}
	cal := newMemoryCalendar()
	history := &recordingHistory{}
	syncer := newTestSyncer(src, cal, history)

	results, err := syncer.Run(context.Background(), monday, 2)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "week 2025-01-06")
	assert.Contains(t, err.Error(), "feed unavailable")
	assert.Equal(t, []string{"2025-01-06", "2025-01-13"}, src.calls)

	require.Len(t, results, 2)
	assert.True(t, results[0].Skipped())
	assert.False(t, results[1].Skipped())
	assert.Equal(t, 1, results[1].Result.Created)

	require.Len(t, history.runs, 2)
	assert.Equal(t, models.RunStatusSkipped, history.runs[0].Status)
	assert.Contains(t, history.runs[0].ErrorMessage, "feed unavailable")
	assert.Equal(t, models.RunStatusOK, history.runs[1].Status)
	assert.Equal(t, models.SyncStatusError, history.statuses[len(history.statuses)-1])
}

func TestRunSkipsWeekWhenListingFails(t *testing.T) {
	src := &scriptedSource{weeks: map[string][]models.Appointment{"2025-01-06": weekOne}}
	cal := newMemoryCalendar()
	cal.listErr = errors.New("quota exceeded")
	syncer := newTestSyncer(src, cal, nil)

	results, err := syncer.Run(context.Background(), time.Date(2025, time.January, 6, 0, 0, 0, 0, time.UTC), 1)

	assert.ErrorContains(t, err, "quota exceeded")
	require.Len(t, results, 1)
	assert.True(t, results[0].Skipped())
	assert.Zero(t, cal.writes)
}

func TestRunDryRunWritesNothing(t *testing.T) {
	src := &scriptedSource{weeks: map[string][]models.Appointment{"2025-01-06": weekOne}}
	cal := newMemoryCalendar()
	history := &recordingHistory{}
	syncer := newTestSyncer(src, cal, history)
	syncer.DryRun = true

	results, err := syncer.Run(context.Background(), time.Date(2025, time.January, 6, 0, 0, 0, 0, time.UTC), 1)

	require.NoError(t, err)
	assert.Len(t, results[0].Plan.Create, 2)
	assert.Zero(t, results[0].Result.Created)
	assert.Zero(t, cal.writes)
	require.Len(t, history.runs, 1)
	assert.True(t, history.runs[0].DryRun)
	assert.Equal(t, 2, history.runs[0].Created)
}

func TestRunRecordsOperationFailures(t *testing.T) {
	src := &scriptedSource{weeks: map[string][]models.Appointment{"2025-01-06": weekOne}}
	cal := newMemoryCalendar()
	history := &recordingHistory{}
	syncer := newTestSyncer(src, cal, history)

	// Point the applier at a gateway that rejects creates.
	syncer.Applier = reconcile.NewApplier(failingCreates{cal}, 1, zerolog.Nop())

	results, err := syncer.Run(context.Background(), time.Date(2025, time.January, 6, 0, 0, 0, 0, time.UTC), 1)

	require.Error(t, err)
	assert.Equal(t, 2, results[0].Result.CreateFailed)
	require.Len(t, history.runs, 1)
	assert.Equal(t, models.RunStatusPartial, history.runs[0].Status)
	assert.Equal(t, 2, history.runs[0].Failed)
	require.Len(t, history.failures, 2)
	assert.Equal(t, models.OperationCreate, history.failures[0].Operation)
	assert.Equal(t, "rate limited", history.failures[0].Error)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	src := &scriptedSource{}
	syncer := newTestSyncer(src, newMemoryCalendar(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := syncer.Run(ctx, time.Date(2025, time.January, 6, 0, 0, 0, 0, time.UTC), 3)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
	assert.Empty(t, src.calls)
}

func TestRunRecordsInterruptedWeek(t *testing.T) {
	src := &scriptedSource{weeks: map[string][]models.Appointment{"2025-01-06": weekOne}}
	cal := newMemoryCalendar()
	history := &recordingHistory{}
	syncer := newTestSyncer(src, cal, history)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	syncer.Applier = reconcile.NewApplier(cancellingCreates{cal, cancel}, 1, zerolog.Nop())

	results, err := syncer.Run(ctx, time.Date(2025, time.January, 6, 0, 0, 0, 0, time.UTC), 1)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Result.Created)
	assert.Equal(t, 1, results[0].Result.NotStarted)
	assert.Zero(t, results[0].Result.Failed())
	require.Len(t, history.runs, 1)
	assert.Equal(t, models.RunStatusPartial, history.runs[0].Status)
	assert.Zero(t, history.runs[0].Failed)
	assert.Contains(t, history.runs[0].ErrorMessage, "1 operations not started")
	assert.Empty(t, history.failures)
}

// cancellingCreates cancels the sync as soon as its first event is written.
type cancellingCreates struct {
	*memoryCalendar
	cancel context.CancelFunc
}

func (c cancellingCreates) CreateEvent(ctx context.Context, payload models.EventPayload) (string, error) {
	defer c.cancel()
	return c.memoryCalendar.CreateEvent(ctx, payload)
}

type failingCreates struct {
	*memoryCalendar
}

func (failingCreates) CreateEvent(context.Context, models.EventPayload) (string, error) {
	return "", errors.New("rate limited")
}
