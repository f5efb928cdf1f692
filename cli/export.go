// ABOUTME: iCalendar export CLI command
// ABOUTME: Projects the appointments of upcoming weeks and writes them as an .ics file
package cli

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/harperreed/doctosync/ics"
	"github.com/harperreed/doctosync/reconcile"
	"github.com/harperreed/doctosync/source"
	"github.com/harperreed/doctosync/sync"
)

// ExportCommand writes the projected events of the next weeks to an iCalendar file.
func ExportCommand(g *Globals, args []string) error {
	flags := flag.NewFlagSet("export", flag.ContinueOnError)
	weeks := flags.Int("weeks", 1, "Number of weeks to export, starting with the current one")
	flags.IntVar(weeks, "w", 1, "Shorthand for --weeks")
	out := flags.String("out", "-", "Output file, - for stdout")
	name := flags.String("name", "Doctolib", "Calendar name written to the file")
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
	loc, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("invalid timezone: %w", err)
	}

	client := source.NewClient(cfg.API, g.Logger)
	policy := reconcile.NotificationPolicy{
		DefaultMinutes:    *cfg.Policy.Notification,
		FirstOfDayMinutes: *cfg.Policy.FirstOfDay,
		Location:          loc,
	}
	projector := reconcile.Projector{Location: cfg.Policy.Location, TimeZone: cfg.Calendar.Timezone}

	ctx := context.Background()
	var errs *multierror.Error
	var events []reconcile.Projected
	for _, weekStart := range sync.WeekStarts(g.now(), loc, *weeks) {
		appts, err := client.FetchWeek(ctx, weekStart)
		if err != nil {
			g.Logger.Error().Err(err).Str("week", weekStart.Format(time.DateOnly)).Msg("skipping week")
			errs = multierror.Append(errs, fmt.Errorf("week %s: %w", weekStart.Format(time.DateOnly), err))
			continue
		}
		events = append(events, reconcile.Build(appts, policy, projector)...)
	}

	var buf bytes.Buffer
	if err := ics.WriteCalendar(&buf, *name, events, loc, g.now()); err != nil {
		return err
	}

	if *out == "-" {
		if _, err := g.out().Write(buf.Bytes()); err != nil {
			return fmt.Errorf("failed to write calendar: %w", err)
		}
	} else {
		if err := os.WriteFile(*out, buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", *out, err)
		}
		fmt.Fprintf(g.out(), "✓ Exported %d event%s to %s\n", len(events), pluralize(len(events)), *out)
	}

	if err := errs.ErrorOrNil(); err != nil {
		return fmt.Errorf("export incomplete: %w", err)
	}
	return nil
}

func pluralize(count int) string {
	if count == 1 {
		return ""
	}
	return "s"
}
