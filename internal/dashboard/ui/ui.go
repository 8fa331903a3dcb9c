// Package ui renders the dashboard's HTML admin pages from embedded
// templates: the funnel overview (stat cards, drop-off chart, step and
// session tables) and the per-session event timeline.
package ui

import (
	"html/template"
	"io"

	"github.com/stepfunnel/analytics-platform/internal/dashboard/view"
	"github.com/stepfunnel/analytics-platform/internal/funnel"
)

// OverviewData feeds the overview page template.
type OverviewData struct {
	Summary    funnel.Summary
	Steps      []funnel.StepStats
	Sessions   []view.SessionView
	NextCursor string

	// Echoed filter/sort state so the controls keep their values.
	Search string
	Status string
	Device string
	Sort   string
	Dir    string
}

// SessionData feeds the session detail page template.
type SessionData struct {
	Session view.SessionView
	Events  []funnel.StepEvent
}

// Renderer holds the parsed page templates.
type Renderer struct {
	overview *template.Template
	session  *template.Template
}

// New parses the templates. Parse failures are programmer errors and panic
// at startup.
func New() *Renderer {
	funcs := template.FuncMap{
		"duration": view.FormatDuration,
		"durationf": func(f float64) string {
			return view.FormatDuration(int(f))
		},
		"deref": func(p *int) int {
			if p == nil {
				return 0
			}
			return *p
		},
	}
	return &Renderer{
		overview: template.Must(template.New("overview").Funcs(funcs).Parse(overviewTmpl)),
		session:  template.Must(template.New("session").Funcs(funcs).Parse(sessionTmpl)),
	}
}

// Overview renders the funnel overview page.
func (r *Renderer) Overview(w io.Writer, data OverviewData) error {
	return r.overview.Execute(w, data)
}

// Session renders the session detail page.
func (r *Renderer) Session(w io.Writer, data SessionData) error {
	return r.session.Execute(w, data)
}

const overviewTmpl = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Funnel Analytics</title>
<script src="https://cdn.jsdelivr.net/npm/chart.js@4"></script>
<style>
body { font-family: -apple-system, sans-serif; margin: 2rem; background: #f6f7f9; color: #1f2328; }
h1 { font-size: 1.4rem; }
.cards { display: flex; gap: 1rem; flex-wrap: wrap; margin-bottom: 1.5rem; }
.card { background: #fff; border: 1px solid #d8dee4; border-radius: 8px; padding: 1rem 1.5rem; min-width: 10rem; }
.card .value { font-size: 1.6rem; font-weight: 600; }
.card .label { color: #57606a; font-size: 0.85rem; }
table { border-collapse: collapse; width: 100%; background: #fff; margin-bottom: 1.5rem; }
th, td { border: 1px solid #d8dee4; padding: 0.4rem 0.7rem; text-align: left; font-size: 0.9rem; }
th { background: #eaeef2; }
form.controls { margin-bottom: 1rem; display: flex; gap: 0.5rem; flex-wrap: wrap; }
.chart-wrap { background: #fff; border: 1px solid #d8dee4; border-radius: 8px; padding: 1rem; max-width: 720px; margin-bottom: 1.5rem; }
a { color: #0969da; text-decoration: none; }
</style>
</head>
<body>
<h1>Funnel Analytics</h1>

<div class="cards">
  <div class="card"><div class="value">{{.Summary.TotalSessions}}</div><div class="label">Total sessions</div></div>
  <div class="card"><div class="value">{{.Summary.CompletedSessions}}</div><div class="label">Completed</div></div>
  <div class="card"><div class="value">{{.Summary.AbandonedSessions}}</div><div class="label">Abandoned</div></div>
  <div class="card"><div class="value">{{printf "%.1f%%" .Summary.ConversionRate}}</div><div class="label">Conversion rate</div></div>
  <div class="card"><div class="value">{{durationf .Summary.AverageTimeSpent}}</div><div class="label">Avg. time spent</div></div>
</div>

<div class="chart-wrap">
  <canvas id="dropoff"></canvas>
</div>

<h2>Steps</h2>
<table>
  <tr><th>#</th><th>Step</th><th>Entrances</th><th>Exits</th><th>Avg. time</th><th>Drop-off</th></tr>
  {{range .Steps}}
  <tr>
    <td>{{.StepIndex}}</td>
    <td>{{.StepName}}</td>
    <td>{{.Entrances}}</td>
    <td>{{.Exits}}</td>
    <td>{{printf "%.1fs" .AverageTimeSpent}}</td>
    <td>{{printf "%.1f%%" .DropOffRate}}</td>
  </tr>
  {{end}}
</table>

<h2>Sessions</h2>
<form class="controls" method="get" action="/">
  <input type="text" name="search" placeholder="Search…" value="{{.Search}}">
  <select name="status">
    <option value="">any status</option>
    <option value="completed" {{if eq .Status "completed"}}selected{{end}}>completed</option>
    <option value="abandoned" {{if eq .Status "abandoned"}}selected{{end}}>abandoned</option>
    <option value="ineligible" {{if eq .Status "ineligible"}}selected{{end}}>ineligible</option>
  </select>
  <select name="device">
    <option value="">any device</option>
    <option value="desktop" {{if eq .Device "desktop"}}selected{{end}}>desktop</option>
    <option value="mobile" {{if eq .Device "mobile"}}selected{{end}}>mobile</option>
    <option value="tablet" {{if eq .Device "tablet"}}selected{{end}}>tablet</option>
  </select>
  <select name="sort">
    <option value="date" {{if eq .Sort "date"}}selected{{end}}>by date</option>
    <option value="duration" {{if eq .Sort "duration"}}selected{{end}}>by duration</option>
    <option value="step" {{if eq .Sort "step"}}selected{{end}}>by step</option>
  </select>
  <select name="dir">
    <option value="desc" {{if eq .Dir "desc"}}selected{{end}}>desc</option>
    <option value="asc" {{if eq .Dir "asc"}}selected{{end}}>asc</option>
  </select>
  <button type="submit">Apply</button>
  <a href="/api/v1/export/sessions.csv">Export CSV</a>
</form>
<table>
  <tr><th>Session</th><th>Started</th><th>Device</th><th>Browser</th><th>OS</th><th>Step</th><th>Duration</th><th>Status</th></tr>
  {{range .Sessions}}
  <tr>
    <td><a href="/sessions/{{.ID}}">{{printf "%.8s" .ID}}</a></td>
    <td>{{.CreatedAt.Format "2006-01-02 15:04"}}</td>
    <td>{{.Client.Device}}</td>
    <td>{{.Client.Browser}}</td>
    <td>{{.Client.OS}}</td>
    <td>{{.CurrentStep}}</td>
    <td>{{duration .TimeSpentSec}}</td>
    <td>{{if .ExitReason}}{{.ExitReason}}{{else}}active{{end}}</td>
  </tr>
  {{end}}
</table>
{{if .NextCursor}}<p><a href="/?cursor={{.NextCursor}}">Next page →</a></p>{{end}}

<script>
new Chart(document.getElementById("dropoff"), {
  type: "bar",
  data: {
    labels: [{{range .Steps}}"{{.StepName}}",{{end}}],
    datasets: [{
      label: "Drop-off rate (%)",
      data: [{{range .Steps}}{{printf "%.2f" .DropOffRate}},{{end}}],
      backgroundColor: "#d1242f88"
    }, {
      label: "Entrances",
      data: [{{range .Steps}}{{.Entrances}},{{end}}],
      backgroundColor: "#0969da88"
    }]
  },
  options: { scales: { y: { beginAtZero: true } } }
});
</script>
</body>
</html>
`

const sessionTmpl = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Session {{printf "%.8s" .Session.ID}} - Funnel Analytics</title>
<style>
body { font-family: -apple-system, sans-serif; margin: 2rem; background: #f6f7f9; color: #1f2328; }
h1 { font-size: 1.2rem; }
table { border-collapse: collapse; width: 100%; background: #fff; }
th, td { border: 1px solid #d8dee4; padding: 0.4rem 0.7rem; text-align: left; font-size: 0.9rem; }
th { background: #eaeef2; }
dl { background: #fff; border: 1px solid #d8dee4; border-radius: 8px; padding: 1rem; }
dt { font-weight: 600; margin-top: 0.5rem; }
a { color: #0969da; text-decoration: none; }
</style>
</head>
<body>
<p><a href="/">← Overview</a></p>
<h1>Session {{.Session.ID}}</h1>

<dl>
  <dt>Started</dt><dd>{{.Session.CreatedAt.Format "2006-01-02 15:04:05 MST"}}</dd>
  <dt>Client</dt><dd>{{.Session.Client.Browser}} on {{.Session.Client.OS}} ({{.Session.Client.Device}})</dd>
  <dt>Current step</dt><dd>{{.Session.CurrentStep}}</dd>
  <dt>Time spent</dt><dd>{{duration .Session.TimeSpentSec}}</dd>
  <dt>Status</dt><dd>{{if .Session.ExitReason}}{{.Session.ExitReason}}{{else}}active{{end}}</dd>
  {{if .Session.Answers}}<dt>Answers</dt><dd><table>
    {{range $key, $val := .Session.Answers}}<tr><td>{{$key}}</td><td>{{$val}}</td></tr>{{end}}
  </table></dd>{{end}}
</dl>

<h2>Timeline</h2>
<table>
  <tr><th>Time</th><th>Step</th><th>Name</th><th>Action</th><th>Time spent</th><th>Reason</th></tr>
  {{range .Events}}
  <tr>
    <td>{{.CreatedAt.Format "15:04:05"}}</td>
    <td>{{.StepIndex}}</td>
    <td>{{.StepName}}</td>
    <td>{{.Action}}</td>
    <td>{{if .TimeSpentSec}}{{duration (deref .TimeSpentSec)}}{{end}}</td>
    <td>{{.ExitReason}}</td>
  </tr>
  {{end}}
</table>
</body>
</html>
`
