// Package render provides output rendering for the certwatch CLI.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/mr-karan/certwatch/internal/notifier"
	"github.com/mr-karan/certwatch/pkg/models"
)

// Options configures the renderer
type Options struct {
	Format string // table, json
	Color  bool
	// Now is used for relative times. Defaults to time.Now.
	Now func() time.Time
}

// Renderer writes API results for humans or scripts.
type Renderer struct {
	opts Options
	w    io.Writer
}

// New creates a new renderer
func New(w io.Writer, opts Options) (*Renderer, error) {
	switch opts.Format {
	case "":
		opts.Format = "table"
	case "table", "json":
	default:
		return nil, fmt.Errorf("unknown output format: %s (valid: table, json)", opts.Format)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Renderer{opts: opts, w: w}, nil
}

var (
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

// History renders notification history rows.
func (r *Renderer) History(rows []*models.NotificationHistoryView) error {
	if r.opts.Format == "json" {
		return r.json(rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(r.w, "No notifications sent yet.")
		return nil
	}

	data := make([][]string, len(rows))
	for i, h := range rows {
		team := h.TeamName
		if team == "" {
			team = h.TeamID
		}
		data[i] = []string{
			r.relative(h.SentAt),
			h.ItemType.Label(),
			truncate(h.ItemName, 40),
			team,
			strconv.Itoa(h.DaysUntilExpiry),
			r.status(string(h.Status)),
			truncate(strings.Join(h.Recipients, ", "), 50),
			string(h.TriggeredBy),
		}
	}
	r.table([]string{"SENT", "TYPE", "NAME", "TEAM", "DAYS", "STATUS", "RECIPIENTS", "BY"}, data)
	return nil
}

// Upcoming renders items in the lookahead window.
func (r *Renderer) Upcoming(items []models.UpcomingExpiry) error {
	if r.opts.Format == "json" {
		return r.json(items)
	}
	if len(items) == 0 {
		fmt.Fprintln(r.w, "Nothing expires within the lookahead window.")
		return nil
	}

	data := make([][]string, len(items))
	for i, u := range items {
		data[i] = []string{
			u.Type.Label(),
			truncate(u.Name, 40),
			u.TeamID,
			u.ExpiryDate.UTC().Format("2006-01-02"),
			strconv.Itoa(u.DaysRemaining),
			optionalInt(u.NextNotificationDay),
			optionalInt(u.DaysUntilNextNotification),
		}
	}
	r.table([]string{"TYPE", "NAME", "TEAM", "EXPIRES", "DAYS", "NEXT", "IN"}, data)
	return nil
}

// Report renders the outcome of a notification run.
func (r *Renderer) Report(report *notifier.RunReport, degraded bool) error {
	if r.opts.Format == "json" {
		return r.json(struct {
			Degraded bool                `json:"degraded"`
			Report   *notifier.RunReport `json:"report"`
		}{degraded, report})
	}

	summary := fmt.Sprintf("Checked %d, sent %d, skipped %d, failed %d",
		report.Checked, report.Sent, report.Skipped, report.Failed)
	if degraded {
		fmt.Fprintln(r.w, r.style(warnStyle, summary+" (degraded)"))
	} else {
		fmt.Fprintln(r.w, r.style(successStyle, summary))
	}

	if len(report.Results) == 0 {
		return nil
	}
	data := make([][]string, len(report.Results))
	for i, res := range report.Results {
		data[i] = []string{
			res.Item.Type.Label(),
			truncate(res.Item.Name, 40),
			strconv.Itoa(res.Item.DaysRemaining),
			r.status(string(res.Outcome)),
			truncate(strings.Join(res.Recipients, ", "), 50),
			truncate(res.Error, 60),
		}
	}
	r.table([]string{"TYPE", "NAME", "DAYS", "OUTCOME", "RECIPIENTS", "ERROR"}, data)
	return nil
}

func (r *Renderer) json(v any) error {
	encoder := json.NewEncoder(r.w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func (r *Renderer) table(headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...)

	if r.opts.Color {
		headerStyle := lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("252"))
		t.BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("238")))
		t.StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if row%2 == 0 {
				return lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
			}
			return lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
		})
	}

	fmt.Fprintln(r.w, t.Render())
}

func (r *Renderer) status(s string) string {
	switch s {
	case "success", "sent":
		return r.style(successStyle, s)
	case "failed", "send_failed", "error", "no_contacts":
		return r.style(errorStyle, s)
	case "already_sent":
		return r.style(dimStyle, s)
	default:
		return s
	}
}

func (r *Renderer) style(st lipgloss.Style, s string) string {
	if !r.opts.Color {
		return s
	}
	return st.Render(s)
}

func (r *Renderer) relative(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return formatRelativeTime(r.opts.Now().Sub(t))
}

func formatRelativeTime(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func optionalInt(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
