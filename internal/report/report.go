// Package report derives run summaries from results and prints progress.
package report

import (
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"io"
	"text/template"
	"time"

	"github.com/FranksOps/firstlink/internal/storage"
	"gopkg.in/yaml.v3"
)

const kindAborted = "aborted"

// Summary contains aggregated counts about a run. It is derived from the
// result sequence and never stored.
type Summary struct {
	RunID          string         `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Engine         string         `json:"engine,omitempty" yaml:"engine,omitempty"`
	OutputFile     string         `json:"output_file,omitempty" yaml:"output_file,omitempty"`
	Total          int            `json:"total" yaml:"total"`
	Succeeded      int            `json:"succeeded" yaml:"succeeded"`
	Failed         int            `json:"failed" yaml:"failed"`
	Aborted        int            `json:"aborted" yaml:"aborted"`
	FailuresByKind map[string]int `json:"failures_by_kind" yaml:"failures_by_kind"`
	StartTime      time.Time      `json:"start_time" yaml:"start_time"`
	EndTime        time.Time      `json:"end_time" yaml:"end_time"`
	Duration       time.Duration  `json:"duration" yaml:"-"`
}

// GenerateSummary processes a slice of results to generate summary counts.
// Aborted results count as failed.
func GenerateSummary(results []*storage.Result) Summary {
	s := Summary{
		FailuresByKind: make(map[string]int),
	}

	if len(results) == 0 {
		return s
	}

	s.RunID = results[0].RunID
	s.Engine = results[0].Engine
	s.StartTime = results[0].CreatedAt.Add(-results[0].Duration)
	s.EndTime = results[0].CreatedAt

	for _, r := range results {
		s.Total++
		if r.Found() {
			s.Succeeded++
		} else {
			s.Failed++
			kind := r.Kind
			if kind == "" {
				kind = "unknown"
			}
			s.FailuresByKind[kind]++
			if kind == kindAborted {
				s.Aborted++
			}
		}

		if start := r.CreatedAt.Add(-r.Duration); start.Before(s.StartTime) {
			s.StartTime = start
		}
		if r.CreatedAt.After(s.EndTime) {
			s.EndTime = r.CreatedAt
		}
	}

	s.Duration = s.EndTime.Sub(s.StartTime)
	return s
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("report: encode json: %w", err)
	}
	return nil
}

// WriteYAML writes the summary as a YAML document. The duration is rendered
// in time.Duration notation.
func WriteYAML(w io.Writer, summary Summary) error {
	doc := struct {
		Summary  `yaml:",inline"`
		Duration string `yaml:"duration"`
	}{summary, summary.Duration.String()}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("report: encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("report: encode yaml: %w", err)
	}
	return nil
}

// WriteText writes a human-readable text summary to the provided writer.
func WriteText(w io.Writer, summary Summary) error {
	const textTmpl = `firstlink Run Summary
---------------------
{{- if .RunID}}
Run:           {{.RunID}}
{{- end}}
{{- if .Engine}}
Engine:        {{.Engine}}
{{- end}}
Time:          {{.StartTime.Format "2006-01-02 15:04:05"}} - {{.EndTime.Format "2006-01-02 15:04:05"}}
Duration:      {{.Duration}}
Queries:       {{.Total}}
Found:         {{.Succeeded}}
Not found:     {{.Failed}}
{{- if .Aborted}}
Aborted:       {{.Aborted}}
{{- end}}

Failures:
{{- range $kind, $count := .FailuresByKind}}
  {{$kind}}: {{$count}}
{{- else}}
  None
{{- end}}
`

	t, err := template.New("textReport").Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("report: parse template: %w", err)
	}

	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("report: render text: %w", err)
	}

	return nil
}

// WriteHTML writes a basic HTML report to the provided writer.
func WriteHTML(w io.Writer, summary Summary) error {
	const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<title>firstlink Run Report</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 150px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  table { border-collapse: collapse; margin-top: 10px; }
  th, td { padding: 8px 12px; border: 1px solid #ccc; text-align: left; }
  th { background: #eaeaea; }
</style>
</head>
<body>
  <h1>firstlink Run Report</h1>
  <p><strong>Time:</strong> {{.StartTime.Format "2006-01-02 15:04:05"}} to {{.EndTime.Format "2006-01-02 15:04:05"}} ({{.Duration}})</p>
  {{- if .Engine}}
  <p><strong>Engine:</strong> {{.Engine}}</p>
  {{- end}}

  <div class="stat-card">
    <div>Queries</div>
    <div class="stat-val">{{.Total}}</div>
  </div>
  <div class="stat-card">
    <div>Found</div>
    <div class="stat-val" style="color: green;">{{.Succeeded}}</div>
  </div>
  <div class="stat-card">
    <div>Not found</div>
    <div class="stat-val" style="color: {{if gt .Failed 0}}red{{else}}green{{end}};">{{.Failed}}</div>
  </div>

  <h3>Failures By Kind</h3>
  <table>
    <tr><th>Kind</th><th>Count</th></tr>
    {{- range $kind, $count := .FailuresByKind}}
    <tr><td>{{$kind}}</td><td>{{$count}}</td></tr>
    {{- else}}
    <tr><td colspan="2">None</td></tr>
    {{- end}}
  </table>
</body>
</html>
`
	t, err := htmltemplate.New("htmlReport").Parse(htmlTmpl)
	if err != nil {
		return fmt.Errorf("report: parse template: %w", err)
	}

	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("report: render html: %w", err)
	}

	return nil
}
