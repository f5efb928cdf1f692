// ABOUTME: Console rendering of sync results, dry-run plans and sync history
// ABOUTME: Uses lipgloss styles when writing to a color terminal and plain text otherwise
package report

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/term"

	"github.com/harperreed/doctosync/models"
	"github.com/harperreed/doctosync/sync"
)

type styles struct {
	title   lipgloss.Style
	header  lipgloss.Style
	created lipgloss.Style
	updated lipgloss.Style
	deleted lipgloss.Style
	idle    lipgloss.Style
	syncing lipgloss.Style
	failed  lipgloss.Style
	muted   lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		title:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("170")),
		header:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		created: r.NewStyle().Foreground(lipgloss.Color("10")),
		updated: r.NewStyle().Foreground(lipgloss.Color("12")),
		deleted: r.NewStyle().Foreground(lipgloss.Color("9")),
		idle:    r.NewStyle().Foreground(lipgloss.Color("10")),
		syncing: r.NewStyle().Foreground(lipgloss.Color("11")).Bold(true),
		failed:  r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		muted:   r.NewStyle().Foreground(lipgloss.Color("240")).Italic(true),
	}
}

func plainStyles() styles {
	plain := lipgloss.NewStyle()
	return styles{
		title: plain, header: plain, created: plain, updated: plain, deleted: plain,
		idle: plain, syncing: plain, failed: plain, muted: plain,
	}
}

// Printer writes human readable sync output.
type Printer struct {
	out    io.Writer
	styles styles
}

// NewPrinter creates a printer. Without color the output carries no escape codes.
func NewPrinter(out io.Writer, color bool) *Printer {
	p := &Printer{out: out, styles: plainStyles()}
	if color {
		p.styles = newStyles(lipgloss.NewRenderer(out))
	}
	return p
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// ColorEnabled reports whether colored output should be written to f.
func ColorEnabled(f *os.File) bool {
	return os.Getenv("NO_COLOR") == "" && IsTerminal(f)
}

// Start announces a sync over weeks weeks.
func (p *Printer) Start(weeks int, dryRun bool) {
	suffix := ""
	if dryRun {
		suffix = " " + p.styles.muted.Render("(dry run)")
	}
	fmt.Fprintf(p.out, "Syncing %d week%s...%s\n", weeks, pluralize(weeks), suffix)
}

// Week prints the summary line of one week, followed by the plan when it was a dry run.
func (p *Printer) Week(res sync.WeekResult) {
	day := res.WeekStart.Format(time.DateOnly)
	if res.Skipped() {
		fmt.Fprintf(p.out, "Week of %s: %s\n", day, p.styles.failed.Render("skipped: "+res.Err.Error()))
		return
	}

	created, updated, deleted := res.Result.Created, res.Result.Updated, res.Result.Deleted
	verbs := [3]string{"created", "updated", "deleted"}
	if res.DryRun {
		created, updated, deleted = len(res.Plan.Create), len(res.Plan.Update), len(res.Plan.Delete)
		verbs = [3]string{"to create", "to update", "to delete"}
	}

	line := fmt.Sprintf("Week of %s: %d appointment%s | %s / %s / %s",
		day,
		res.Appointments, pluralize(res.Appointments),
		p.count(p.styles.created, "+", created, verbs[0]),
		p.count(p.styles.updated, "~", updated, verbs[1]),
		p.count(p.styles.deleted, "-", deleted, verbs[2]),
	)
	if failed := res.Result.Failed(); failed > 0 {
		line += " " + p.styles.failed.Render(fmt.Sprintf("(%d failed)", failed))
	}
	if n := res.Result.NotStarted; n > 0 {
		line += " " + p.styles.failed.Render(fmt.Sprintf("(%d not started)", n))
	}
	fmt.Fprintln(p.out, line)

	if res.DryRun {
		p.plan(res)
	}
}

func (p *Printer) count(style lipgloss.Style, sign string, n int, verb string) string {
	s := fmt.Sprintf("%s%d %s", sign, n, verb)
	if n == 0 {
		return s
	}
	return style.Render(s)
}

func (p *Printer) plan(res sync.WeekResult) {
	for _, c := range res.Plan.Create {
		fmt.Fprintf(p.out, "  %s %s  %s\n", p.styles.created.Render("+"), c.Payload.Start.DateTime, c.Payload.Summary)
	}
	for _, u := range res.Plan.Update {
		fmt.Fprintf(p.out, "  %s %s  %s\n", p.styles.updated.Render("~"), u.Payload.Start.DateTime, u.Payload.Summary)
	}
	for _, d := range res.Plan.Delete {
		fmt.Fprintf(p.out, "  %s %s  %s\n", p.styles.deleted.Render("-"), d.EventID, p.styles.muted.Render(d.Key))
	}
}

// Status renders the sync state of a calendar and its recent week runs.
func (p *Printer) Status(calendar string, state *models.SyncState, runs []models.WeekRun, now time.Time) {
	fmt.Fprintln(p.out, p.styles.title.Render("Calendar "+calendar))

	switch {
	case state == nil:
		fmt.Fprintln(p.out, p.styles.muted.Render("  Not synced yet"))
	case state.Status == models.SyncStatusSyncing:
		fmt.Fprintln(p.out, p.styles.syncing.Render("  ⟳ Syncing"))
	case state.Status == models.SyncStatusError:
		fmt.Fprintln(p.out, p.styles.failed.Render("  ✗ Error: "+state.ErrorMessage))
	default:
		fmt.Fprintln(p.out, p.styles.idle.Render("  ✓ Idle"))
	}
	if state != nil && state.LastSyncTime != nil {
		fmt.Fprintln(p.out, p.styles.muted.Render("  Last successful sync "+FormatTimeSince(*state.LastSyncTime, now)))
	}

	fmt.Fprintln(p.out)
	if len(runs) == 0 {
		fmt.Fprintln(p.out, p.styles.muted.Render("No week runs recorded."))
		return
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		status := r.Status
		if r.DryRun {
			status += " (dry)"
		}
		rows = append(rows, []string{
			r.WeekStart,
			status,
			fmt.Sprint(r.Appointments),
			fmt.Sprintf("+%d ~%d -%d", r.Created, r.Updated, r.Deleted),
			fmt.Sprint(r.Failed),
			FormatTimeSince(r.FinishedAt, now),
		})
	}

	header := p.styles.header
	t := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return header.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers("WEEK", "STATUS", "APPTS", "CHANGES", "FAILED", "FINISHED").
		Rows(rows...)
	fmt.Fprintln(p.out, t.String())
}

// FormatTimeSince renders how long ago t was relative to now.
func FormatTimeSince(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		m := int(d.Minutes())
		return fmt.Sprintf("%d minute%s ago", m, pluralize(m))
	case d < 24*time.Hour:
		h := int(d.Hours())
		return fmt.Sprintf("%d hour%s ago", h, pluralize(h))
	default:
		days := int(d.Hours() / 24)
		return fmt.Sprintf("%d day%s ago", days, pluralize(days))
	}
}

func pluralize(count int) string {
	if count == 1 {
		return ""
	}
	return "s"
}
