// ABOUTME: Sync status CLI command
// ABOUTME: Shows the calendar's sync state and the most recent week runs from the history database
package cli

import (
	"flag"
	"fmt"

	"github.com/harperreed/doctosync/db"
)

// StatusCommand prints the sync state and recent runs.
func StatusCommand(g *Globals, args []string) error {
	flags := flag.NewFlagSet("status", flag.ContinueOnError)
	limit := flags.Int("limit", 10, "Number of week runs to show")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := g.loadConfig(false)
	if err != nil {
		return err
	}

	database, err := db.OpenDatabase(cfg.Sync.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open run history: %w", err)
	}
	defer func() { _ = database.Close() }()

	history := db.NewHistory(database)
	state, err := history.GetSyncState(cfg.Calendar.ID)
	if err != nil {
		return err
	}
	runs, err := history.ListRecentRuns(*limit)
	if err != nil {
		return err
	}

	g.printer().Status(cfg.Calendar.ID, state, runs, g.now())
	return nil
}
