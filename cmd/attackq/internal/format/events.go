package format

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/vulntor/attackq/pkg/event"
	"github.com/vulntor/attackq/pkg/extract"
	"github.com/vulntor/attackq/pkg/scheduler"
)

type eventStyles struct {
	subtle  lipgloss.Style
	success lipgloss.Style
	warn    lipgloss.Style
	failure lipgloss.Style
	info    lipgloss.Style
	title   lipgloss.Style
}

// newEventStyles binds the styles to w so colour detection follows the
// actual destination rather than the process stdout.
func newEventStyles(w io.Writer, enabled bool) eventStyles {
	r := lipgloss.NewRenderer(w)
	if !enabled {
		plain := r.NewStyle()
		return eventStyles{plain, plain, plain, plain, plain, plain}
	}
	return eventStyles{
		subtle:  r.NewStyle().Foreground(lipgloss.Color("240")),
		success: r.NewStyle().Foreground(lipgloss.Color("42")),
		warn:    r.NewStyle().Foreground(lipgloss.Color("214")),
		failure: r.NewStyle().Foreground(lipgloss.Color("203")).Bold(true),
		info:    r.NewStyle().Foreground(lipgloss.Color("75")),
		title:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("170")),
	}
}

func (s eventStyles) forType(t event.Type) lipgloss.Style {
	switch t {
	case event.Completed:
		return s.success
	case event.Failed:
		return s.failure
	case event.Stalled, event.Retrying, event.Cancelled:
		return s.warn
	case event.CredentialFound:
		return s.title
	case event.Progress:
		return s.subtle
	default:
		return s.info
	}
}

func (f *formatter) PrintEvent(evt event.Event) error {
	if f.mode == ModeJSON {
		// one object per line so the stream can be piped into jq
		return json.NewEncoder(f.stdout).Encode(evt)
	}
	if f.quiet && !evt.Type.Terminal() && evt.Type != event.CredentialFound {
		return nil
	}

	ts := evt.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	line := fmt.Sprintf("%s  %s  %s  %s",
		f.styles.subtle.Render(ts.Format("15:04:05")),
		f.styles.forType(evt.Type).Render(fmt.Sprintf("%-16s", evt.Type)),
		shortID(evt.JobID),
		DescribePayload(evt.Payload),
	)
	_, err := fmt.Fprintln(f.stdout, line)
	return err
}

// DescribePayload renders an event payload as a short human-readable string.
func DescribePayload(payload any) string {
	switch p := payload.(type) {
	case nil:
		return ""
	case scheduler.QueuedPayload:
		return fmt.Sprintf("lane=%s attempt=%d", p.Lane, p.Attempt)
	case scheduler.StartedPayload:
		return fmt.Sprintf("lane=%s attempt=%d", p.Lane, p.Attempt)
	case scheduler.ProgressPayload:
		return fmt.Sprintf("%d%%", p.Percent)
	case scheduler.StalledPayload:
		return fmt.Sprintf("no output for %s", time.Duration(p.IdleMS)*time.Millisecond)
	case scheduler.RetryingPayload:
		return fmt.Sprintf("attempt %d failed (%s), retrying in %s", p.Attempt, p.Error, time.Duration(p.DelayMS)*time.Millisecond)
	case scheduler.FinishedPayload:
		s := "exit=" + exitString(p.ExitCode)
		s += fmt.Sprintf(" attempt=%d credentials=%d duration=%s", p.Attempt, p.Credentials, time.Duration(p.DurationMS)*time.Millisecond)
		if p.Error != "" {
			s += " error=" + strconv.Quote(p.Error)
		}
		return s
	case extract.Record:
		return describeRecord(p)
	case *extract.Record:
		return describeRecord(*p)
	default:
		return fmt.Sprintf("%v", p)
	}
}

func describeRecord(r extract.Record) string {
	host := r.Host
	if r.Port > 0 {
		host += ":" + strconv.Itoa(r.Port)
	}
	if r.Service != "" {
		host = r.Service + "://" + host
	}
	return fmt.Sprintf("%s login=%s password=%s", host, r.Username, r.Password)
}

func exitString(code *int) string {
	if code == nil {
		return "-"
	}
	return strconv.Itoa(*code)
}

// shortID keeps the first block of a UUID, enough to tell jobs apart on a
// terminal.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
