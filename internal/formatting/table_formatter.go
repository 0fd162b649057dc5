package formatting

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"ciwarden/internal/app"
	pkgstrings "ciwarden/pkg/strings"
)

// errorMaxLen keeps pass errors on one terminal line.
const errorMaxLen = 120

// TableFormatter provides rich table output formatting
type TableFormatter struct {
	options Options
}

// NewTableFormatter creates a new table formatter
func NewTableFormatter(options Options) Formatter {
	return &TableFormatter{options: options}
}

// FormatReport writes the passes, the builds and a metrics summary.
func (f *TableFormatter) FormatReport(w io.Writer, report *app.ReconcileReport) error {
	view := NewReportView(report)

	if len(view.Passes) == 0 {
		_, err := fmt.Fprintln(w, f.colorize(text.FgYellow, "No credentials or projects configured"))
		return err
	}

	passes := f.createTable(w)
	passes.SetTitle("Passes")
	passes.AppendHeader(f.header("PASS", "CREDENTIAL", "STATE", "SCHEDULED", "SKIPPED", "ERRORS"))
	for _, p := range view.Passes {
		passes.AppendRow(table.Row{p.Pass, p.Credential, f.state(p.State), p.Scheduled, p.Skipped, len(p.Errors)})
	}
	passes.Render()

	for _, p := range view.Passes {
		for _, e := range p.Errors {
			fmt.Fprintf(w, "%s %s: %s\n", f.colorize(text.FgRed, "error"), p.Pass, pkgstrings.Truncate(e, errorMaxLen))
		}
	}

	if len(view.Builds) == 0 {
		fmt.Fprintln(w, f.colorize(text.FgYellow, "No builds scheduled"))
	} else {
		builds := f.createTable(w)
		builds.SetTitle("Builds")
		builds.AppendHeader(f.header("PROJECT", "SHA", "PASS", "FORK", "STATE", "DURATION"))
		for _, b := range view.Builds {
			fork := ""
			if b.Fork {
				fork = "yes"
			}
			builds.AppendRow(table.Row{b.Project, ShortSHA(b.SHA), b.Pass, fork, f.state(b.State), b.Duration})
		}
		builds.Render()
	}

	_, err := fmt.Fprintf(w, "%s %d scheduled, %d skipped, %d provider errors\n",
		f.colorize(text.FgHiBlue, "Total:"),
		view.Metrics.TotalScheduled,
		view.Metrics.TotalSkipped,
		view.Metrics.TotalProviderErrors)
	return err
}

// createTable creates a new table with standard styling
func (f *TableFormatter) createTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	return t
}

func (f *TableFormatter) header(names ...string) table.Row {
	row := make(table.Row, len(names))
	for i, name := range names {
		row[i] = f.colorize(text.FgHiCyan, name)
	}
	return row
}

func (f *TableFormatter) state(s string) string {
	switch s {
	case "Succeeded":
		return f.colorize(text.FgGreen, s)
	case "Failed":
		return f.colorize(text.FgRed, s)
	default:
		return f.colorize(text.FgYellow, s)
	}
}

func (f *TableFormatter) colorize(c text.Color, s string) string {
	if !f.options.Color {
		return s
	}
	return c.Sprint(s)
}
