package formatting

import (
	"io"

	"gopkg.in/yaml.v3"

	"ciwarden/internal/app"
)

// YAMLFormatter provides YAML output formatting
type YAMLFormatter struct {
	options Options
}

// NewYAMLFormatter creates a new YAML formatter
func NewYAMLFormatter(options Options) Formatter {
	return &YAMLFormatter{options: options}
}

func (f *YAMLFormatter) FormatReport(w io.Writer, report *app.ReconcileReport) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(NewReportView(report)); err != nil {
		return err
	}
	return enc.Close()
}
