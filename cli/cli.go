// ABOUTME: Shared state and wiring for doctosync CLI commands
// ABOUTME: Loads config, opens run history and builds the week syncer from its parts
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/harperreed/doctosync/config"
	"github.com/harperreed/doctosync/db"
	"github.com/harperreed/doctosync/reconcile"
	"github.com/harperreed/doctosync/report"
	"github.com/harperreed/doctosync/source"
	"github.com/harperreed/doctosync/sync"
)

// CalendarFactory connects to the destination calendar described by cfg.
type CalendarFactory func(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (sync.EventStore, error)

// Globals carries the global flags and process-wide dependencies.
type Globals struct {
	ConfigPath string
	DBPath     string
	Out        io.Writer
	Color      bool
	Logger     zerolog.Logger
	Now        func() time.Time

	NewCalendar CalendarFactory
	OpenBrowser func(url string) error
}

func (g *Globals) out() io.Writer {
	if g.Out != nil {
		return g.Out
	}
	return os.Stdout
}

func (g *Globals) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

func (g *Globals) printer() *report.Printer {
	return report.NewPrinter(g.out(), g.Color)
}

func (g *Globals) configPath() string {
	if g.ConfigPath != "" {
		return g.ConfigPath
	}
	return config.DefaultPath()
}

// loadConfig reads the config file. Validation is skipped for commands that
// only need paths.
func (g *Globals) loadConfig(validate bool) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if validate {
		cfg, err = config.Load(g.configPath())
	} else {
		cfg, err = config.Read(g.configPath())
	}
	if err != nil {
		return nil, err
	}
	if g.DBPath != "" {
		cfg.Sync.DBPath = g.DBPath
	}
	return cfg, nil
}

// GoogleCalendar is the default CalendarFactory.
func GoogleCalendar(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (sync.EventStore, error) {
	oauthCfg, err := sync.NewOAuthConfig(cfg.Calendar.CredentialsPath)
	if err != nil {
		return nil, err
	}

	token, err := sync.LoadToken(cfg.Calendar.TokenPath)
	if err != nil {
		return nil, fmt.Errorf("%w. Run 'doctosync init' first", err)
	}

	api, err := sync.NewCalendarClient(ctx, oauthCfg, token, cfg.Calendar.TokenPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar client: %w", err)
	}
	return sync.NewGateway(api, cfg.Calendar.ID), nil
}

// syncOptions are the per-invocation knobs of a sync run.
type syncOptions struct {
	DryRun  bool
	Workers int
}

// session holds the resources a sync run needs.
type session struct {
	syncer *sync.WeekSyncer
	loc    *time.Location
	close  func()
}

// openSession wires the feed client, calendar, applier and run history.
// The run history is optional: when it cannot be opened the sync runs without it.
func (g *Globals) openSession(ctx context.Context, cfg *config.Config, opts syncOptions) (*session, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid timezone: %w", err)
	}

	newCalendar := g.NewCalendar
	if newCalendar == nil {
		newCalendar = GoogleCalendar
	}
	calendar, err := newCalendar(ctx, cfg, g.Logger)
	if err != nil {
		return nil, err
	}

	workers := opts.Workers
	if workers < 1 {
		workers = cfg.Sync.Workers
	}

	syncer := &sync.WeekSyncer{
		Source:     source.NewClient(cfg.API, g.Logger),
		Calendar:   calendar,
		CalendarID: cfg.Calendar.ID,
		Policy: reconcile.NotificationPolicy{
			DefaultMinutes:    *cfg.Policy.Notification,
			FirstOfDayMinutes: *cfg.Policy.FirstOfDay,
			Location:          loc,
		},
		Projector: reconcile.Projector{Location: cfg.Policy.Location, TimeZone: cfg.Calendar.Timezone},
		Applier:   reconcile.NewApplier(calendar, workers, g.Logger),
		DryRun:    opts.DryRun,
		Logger:    g.Logger,
		Now:       g.Now,
	}

	closeFn := func() {}
	database, err := db.OpenDatabase(cfg.Sync.DBPath)
	if err != nil {
		g.Logger.Warn().Err(err).Str("path", cfg.Sync.DBPath).Msg("run history unavailable")
	} else {
		syncer.Recorder = db.NewHistory(database)
		closeFn = func() { _ = database.Close() }
	}

	return &session{syncer: syncer, loc: loc, close: closeFn}, nil
}

// run syncs weeks weeks starting with the current one and reports each week.
func (s *session) run(ctx context.Context, g *Globals, weeks int) error {
	printer := g.printer()
	printer.Start(weeks, s.syncer.DryRun)
	s.syncer.OnWeek = printer.Week

	first := sync.WeekStarts(g.now(), s.loc, 1)[0]
	_, err := s.syncer.Run(ctx, first, weeks)
	return err
}
