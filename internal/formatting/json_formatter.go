package formatting

import (
	"fmt"
	"io"

	"ciwarden/internal/app"
)

// JSONFormatter provides JSON output formatting
type JSONFormatter struct {
	options Options
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter(options Options) Formatter {
	return &JSONFormatter{options: options}
}

func (f *JSONFormatter) FormatReport(w io.Writer, report *app.ReconcileReport) error {
	_, err := fmt.Fprintln(w, PrettyJSON(NewReportView(report)))
	return err
}
