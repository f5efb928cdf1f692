// ABOUTME: Scheduled sync daemon CLI command
// ABOUTME: Runs the week sync on a cron schedule until interrupted, one run at a time
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// cronLogger adapts zerolog to the cron.Logger interface.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

// DaemonCommand syncs on a schedule until SIGINT or SIGTERM.
func DaemonCommand(g *Globals, args []string) error {
	flags := flag.NewFlagSet("daemon", flag.ContinueOnError)
	schedule := flags.String("schedule", "", "Cron schedule (default: sync.schedule)")
	weeks := flags.Int("weeks", 1, "Number of weeks to sync on every run")
	flags.IntVar(weeks, "w", 1, "Shorthand for --weeks")
	runNow := flags.Bool("run-now", true, "Run once immediately before waiting for the schedule")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *weeks < 1 {
		return fmt.Errorf("--weeks must be at least 1, got %d", *weeks)
	}

	cfg, err := g.loadConfig(true)
	if err != nil {
		return err
	}
	if *schedule == "" {
		*schedule = cfg.Sync.Schedule
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := g.openSession(ctx, cfg, syncOptions{})
	if err != nil {
		return err
	}
	defer sess.close()

	return runDaemon(ctx, g.Logger, sess.loc, *schedule, *runNow, func(ctx context.Context) {
		if err := sess.run(ctx, g, *weeks); err != nil {
			g.Logger.Error().Err(err).Msg("scheduled sync finished with errors")
		}
	})
}

// runDaemon schedules job and blocks until ctx is done, then waits for a
// running job to finish.
func runDaemon(ctx context.Context, logger zerolog.Logger, loc *time.Location, schedule string, runNow bool, job func(context.Context)) error {
	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	cl := cronLogger{logger: logger}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	entryID := c.Schedule(sched, cron.FuncJob(func() { job(ctx) }))

	logger.Info().Str("schedule", schedule).Str("tz", loc.String()).Msg("sync daemon started")
	if runNow {
		c.Entry(entryID).WrappedJob.Run()
	}

	c.Start()
	logger.Info().Time("next", sched.Next(time.Now().In(loc))).Msg("waiting for next run")

	<-ctx.Done()
	logger.Info().Msg("stopping sync daemon")
	<-c.Stop().Done()
	return nil
}
