// ABOUTME: Week-by-week sync loop from the scheduling feed into the destination calendar
// ABOUTME: Each week is fetched, reconciled and applied before the next one starts
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/harperreed/doctosync/models"
	"github.com/harperreed/doctosync/reconcile"
)

// AppointmentSource returns the appointments of one week.
type AppointmentSource interface {
	FetchWeek(ctx context.Context, weekStart time.Time) ([]models.Appointment, error)
}

// EventStore is the destination calendar.
type EventStore interface {
	reconcile.Gateway
	ListEvents(ctx context.Context, start, end time.Time) ([]models.DestinationEvent, error)
}

// RunRecorder stores sync history. Reconciliation never reads it back.
type RunRecorder interface {
	UpdateSyncStatus(calendar, status string, errMsg *string) error
	RecordWeekRun(run *models.WeekRun, failures []models.SyncLog) error
}

// WeekResult is the outcome of one week.
type WeekResult struct {
	WeekStart    time.Time
	Appointments int
	Plan         reconcile.Plan
	Result       reconcile.Result
	DryRun       bool
	Err          error
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Skipped reports whether the week could not be reconciled at all.
func (r WeekResult) Skipped() bool {
	return r.Err != nil
}

// WeekSyncer drives the sync of consecutive weeks.
type WeekSyncer struct {
	Source     AppointmentSource
	Calendar   EventStore
	CalendarID string
	Policy     reconcile.NotificationPolicy
	Projector  reconcile.Projector
	Applier    *reconcile.Applier
	Recorder   RunRecorder
	OnWeek     func(WeekResult)
	DryRun     bool
	Logger     zerolog.Logger
	Now        func() time.Time
}

// WeekStarts returns the Monday midnights of n consecutive weeks, starting with
// the week containing now in loc.
func WeekStarts(now time.Time, loc *time.Location, n int) []time.Time {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	offset := (int(local.Weekday()) + 6) % 7
	monday := time.Date(local.Year(), local.Month(), local.Day()-offset, 0, 0, 0, 0, loc)

	weeks := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		weeks = append(weeks, monday.AddDate(0, 0, 7*i))
	}
	return weeks
}

// SyncWeek reconciles the week starting at weekStart.
func (s *WeekSyncer) SyncWeek(ctx context.Context, weekStart time.Time) (res WeekResult) {
	res = WeekResult{WeekStart: weekStart, DryRun: s.DryRun, StartedAt: s.now()}
	defer func() { res.FinishedAt = s.now() }()

	log := s.Logger.With().Str("week", weekStart.Format(time.DateOnly)).Logger()

	appts, err := s.Source.FetchWeek(ctx, weekStart)
	if err != nil {
		res.Err = fmt.Errorf("failed to fetch appointments: %w", err)
		log.Error().Err(err).Msg("skipping week")
		return res
	}
	res.Appointments = len(appts)

	projected := reconcile.Build(appts, s.Policy, s.Projector)

	existing, err := s.Calendar.ListEvents(ctx, weekStart, weekStart.AddDate(0, 0, 7))
	if err != nil {
		res.Err = fmt.Errorf("failed to list destination events: %w", err)
		log.Error().Err(err).Msg("skipping week")
		return res
	}

	res.Plan = reconcile.Reconcile(projected, reconcile.ExistingByKey(existing))
	log.Debug().
		Int("appointments", len(appts)).
		Int("existing", len(existing)).
		Int("create", len(res.Plan.Create)).
		Int("update", len(res.Plan.Update)).
		Int("delete", len(res.Plan.Delete)).
		Msg("reconciled week")

	if s.DryRun || res.Plan.Empty() {
		return res
	}

	res.Result = s.Applier.Apply(ctx, res.Plan)
	return res
}

// Run syncs weeks consecutive weeks starting at firstWeek. A failing week does
// not stop the following ones; all failures are returned together.
func (s *WeekSyncer) Run(ctx context.Context, firstWeek time.Time, weeks int) ([]WeekResult, error) {
	s.updateStatus(models.SyncStatusSyncing, nil)

	var errs *multierror.Error
	results := make([]WeekResult, 0, weeks)
	for i := 0; i < weeks; i++ {
		if err := ctx.Err(); err != nil {
			errs = multierror.Append(errs, err)
			break
		}

		weekStart := firstWeek.AddDate(0, 0, 7*i)
		res := s.SyncWeek(ctx, weekStart)
		results = append(results, res)

		day := weekStart.Format(time.DateOnly)
		if res.Err != nil {
			errs = multierror.Append(errs, fmt.Errorf("week %s: %w", day, res.Err))
		} else if err := res.Result.Err(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("week %s: %w", day, err))
		}

		s.record(res)
		if s.OnWeek != nil {
			s.OnWeek(res)
		}
	}

	err := errs.ErrorOrNil()
	if err != nil {
		msg := err.Error()
		s.updateStatus(models.SyncStatusError, &msg)
	} else {
		s.updateStatus(models.SyncStatusIdle, nil)
	}
	return results, err
}

func (s *WeekSyncer) updateStatus(status string, errMsg *string) {
	if s.Recorder == nil {
		return
	}
	if err := s.Recorder.UpdateSyncStatus(s.CalendarID, status, errMsg); err != nil {
		s.Logger.Warn().Err(err).Str("status", status).Msg("failed to update sync status")
	}
}

func (s *WeekSyncer) record(res WeekResult) {
	if s.Recorder == nil {
		return
	}
	run, failures := weekRun(s.CalendarID, res)
	if err := s.Recorder.RecordWeekRun(run, failures); err != nil {
		s.Logger.Warn().Err(err).Str("week", run.WeekStart).Msg("failed to record week run")
	}
}

func (s *WeekSyncer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// weekRun converts a week result into its history row and failure log entries.
func weekRun(calendarID string, res WeekResult) (*models.WeekRun, []models.SyncLog) {
	run := &models.WeekRun{
		Calendar:     calendarID,
		WeekStart:    res.WeekStart.Format(time.DateOnly),
		Appointments: res.Appointments,
		DryRun:       res.DryRun,
		Status:       models.RunStatusOK,
		StartedAt:    res.StartedAt,
		FinishedAt:   res.FinishedAt,
	}

	switch {
	case res.Err != nil:
		run.Status = models.RunStatusSkipped
		run.ErrorMessage = res.Err.Error()
	case res.DryRun:
		run.Created = len(res.Plan.Create)
		run.Updated = len(res.Plan.Update)
		run.Deleted = len(res.Plan.Delete)
	default:
		run.Created = res.Result.Created
		run.Updated = res.Result.Updated
		run.Deleted = res.Result.Deleted
		run.Failed = res.Result.Failed()
		if run.Failed > 0 {
			run.Status = models.RunStatusPartial
		}
		if res.Result.NotStarted > 0 {
			run.Status = models.RunStatusPartial
			run.ErrorMessage = fmt.Sprintf("interrupted with %d operations not started", res.Result.NotStarted)
		}
	}

	failures := make([]models.SyncLog, 0, len(res.Result.Failures))
	for _, f := range res.Result.Failures {
		failures = append(failures, models.SyncLog{
			Operation: f.Operation,
			SyncKey:   f.Key,
			EventID:   f.EventID,
			Error:     f.Err.Error(),
			CreatedAt: res.FinishedAt,
		})
	}
	return run, failures
}
