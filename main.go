// ABOUTME: Entry point for the doctosync CLI
// ABOUTME: Parses global flags, sets up logging and routes to the sync commands
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/harperreed/doctosync/cli"
	"github.com/harperreed/doctosync/report"
)

const version = "0.2.0"

func main() {
	// Global flags
	showVersion := flag.Bool("version", false, "Show version and exit")
	configPath := flag.String("config", "", "Config file (default: ~/.config/doctosync/config.yaml)")
	dbPath := flag.String("db-path", "", "Run history database (default: sync.db_path)")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	noColor := flag.Bool("no-color", false, "Disable colored output")

	// Parse global flags, subcommand flags come after the command name
	_ = flag.CommandLine.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("doctosync version %s\n", version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(0)
	}

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()

	g := &cli.Globals{
		ConfigPath: *configPath,
		DBPath:     *dbPath,
		Out:        os.Stdout,
		Color:      !*noColor && report.ColorEnabled(os.Stdout),
		Logger:     logger,
	}

	command := args[0]
	commandArgs := args[1:]

	var err error
	switch command {
	case "init":
		err = cli.SyncInitCommand(g, commandArgs)
	case "sync":
		err = cli.SyncCommand(g, commandArgs)
	case "status":
		err = cli.StatusCommand(g, commandArgs)
	case "daemon":
		err = cli.DaemonCommand(g, commandArgs)
	case "export":
		err = cli.ExportCommand(g, commandArgs)
	case "help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`doctosync v%s - Doctolib to Google Calendar sync

USAGE:
  doctosync [global flags] <command> [flags]

GLOBAL FLAGS:
  --version              Show version and exit
  --config <path>        Config file (default: ~/.config/doctosync/config.yaml)
  --db-path <path>       Run history database (default: ~/.local/share/doctosync/history.db)
  --verbose              Enable debug logging
  --no-color             Disable colored output

COMMANDS:
  init                   Write a starter config and authorize Google Calendar
    --credentials <file>   Google client secrets JSON

  sync                   Sync appointments to the calendar
    -w, --weeks <n>        Weeks to sync, starting with the current one (default: 1)
    --dry-run              Print the planned changes without writing them
    --workers <n>          Concurrent calendar calls (default: sync.workers)

  status                 Show sync state and recent week runs
    --limit <n>            Week runs to show (default: 10)

  daemon                 Sync on a cron schedule until interrupted
    --schedule <cron>      Cron expression (default: sync.schedule)
    -w, --weeks <n>        Weeks to sync on every run (default: 1)
    --run-now              Run once at startup (default: true)

  export                 Write projected events to an iCalendar file
    -w, --weeks <n>        Weeks to export (default: 1)
    --out <file>           Output file, - for stdout (default: -)
    --name <name>          Calendar name (default: Doctolib)

ENVIRONMENT:
  DOCTOSYNC_API_URL, DOCTOSYNC_COOKIE_PATH, DOCTOSYNC_CALENDAR_ID
  DOCTOSYNC_TIMEZONE, DOCTOSYNC_LOCATION
  GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET

EXAMPLES:
  # Authorize once
  doctosync init --credentials ~/Downloads/client_secret.json

  # Sync this week and the next three
  doctosync sync -w 4

  # Preview next week's changes
  doctosync sync -w 2 --dry-run

`, version)
}
