package formatting

import (
	"encoding/json"
	"fmt"
	"time"

	"ciwarden/internal/app"
	"ciwarden/internal/reconciler"
)

// ReportView is the serializable form of a reconcile report.
type ReportView struct {
	Passes  []PassView                `json:"passes" yaml:"passes"`
	Builds  []BuildView               `json:"builds" yaml:"builds"`
	Metrics reconciler.MetricsSummary `json:"metrics" yaml:"metrics"`
}

type PassView struct {
	Pass       string   `json:"pass" yaml:"pass"`
	Credential string   `json:"credential" yaml:"credential"`
	State      string   `json:"state" yaml:"state"`
	Scheduled  int      `json:"scheduled" yaml:"scheduled"`
	Skipped    int      `json:"skipped" yaml:"skipped"`
	Errors     []string `json:"errors,omitempty" yaml:"errors,omitempty"`
}

type BuildView struct {
	Pass     string `json:"pass" yaml:"pass"`
	Project  string `json:"project" yaml:"project"`
	SHA      string `json:"sha" yaml:"sha"`
	Fork     bool   `json:"fork" yaml:"fork"`
	State    string `json:"state" yaml:"state"`
	Duration string `json:"duration" yaml:"duration"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewReportView flattens report. Passes that never produced a result are
// listed with zero counts.
func NewReportView(report *app.ReconcileReport) ReportView {
	view := ReportView{
		Passes:  []PassView{},
		Builds:  []BuildView{},
		Metrics: report.Metrics,
	}
	for _, pass := range report.Passes {
		pv := PassView{
			Pass:       string(pass.Pass),
			Credential: pass.Credential.Name,
		}
		if pass.Task != nil {
			pv.State = string(pass.Task.State())
		}
		if result := pass.Result(); result != nil {
			pv.Scheduled = len(result.Scheduled)
			pv.Skipped = result.Skipped
			for _, err := range result.Errors {
				pv.Errors = append(pv.Errors, err.Error())
			}
		}
		view.Passes = append(view.Passes, pv)
	}
	for _, build := range report.Builds {
		bv := BuildView{
			Pass:     string(build.Pass),
			Project:  build.ProjectID,
			SHA:      build.SHA,
			Fork:     build.Forked,
			State:    string(build.State),
			Duration: build.Duration.Round(time.Millisecond).String(),
		}
		if build.Err != nil {
			bv.Error = build.Err.Error()
		}
		view.Builds = append(view.Builds, bv)
	}
	return view
}

// ShortSHA abbreviates a commit sha for display.
func ShortSHA(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}

// PrettyJSON formats any value as indented JSON for human-readable display.
// It falls back to fmt.Sprintf when v cannot be marshaled.
func PrettyJSON(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
