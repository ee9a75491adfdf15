package report

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>HTTP KPI report</title>
<style>
body { font-family: system-ui, sans-serif; margin: 2rem; color: #222; }
.cards { display: flex; gap: 1rem; margin-bottom: 2rem; }
.card { border: 1px solid #ddd; border-radius: 6px; padding: 1rem 1.5rem; min-width: 9rem; }
.card .value { font-size: 1.6rem; font-weight: 600; }
.card .label { color: #666; font-size: .85rem; }
table { border-collapse: collapse; margin-bottom: 2rem; }
th, td { border: 1px solid #ddd; padding: .35rem .7rem; text-align: right; }
th:first-child, td:first-child { text-align: left; }
tr.alert td { background: #fde2e2; color: #a40000; }
svg text { font-size: 12px; }
</style>
</head>
<body>
<h1>HTTP KPI report</h1>
<p>Period {{.DateFrom}} to {{.DateTo}}. Generated {{.GeneratedAt.Format "2006-01-02 15:04:05"}} UTC. p90 threshold {{num .ThresholdMs}} ms.</p>

<div class="cards">
  <div class="card"><div class="value">{{.Global.TotalRequests}}</div><div class="label">Requests</div></div>
  <div class="card"><div class="value">{{pct .Global.Pct2xx}}%</div><div class="label">2xx</div></div>
  <div class="card"><div class="value">{{pct .Global.PctErrors}}%</div><div class="label">4xx + 5xx</div></div>
  <div class="card"><div class="value">{{ms .Global.P90Ms}}</div><div class="label">p90 ms (approx.)</div></div>
  <div class="card"><div class="value">{{.AlertCount}}</div><div class="label">p90 alerts</div></div>
</div>

<table>
<thead>
<tr><th>Endpoint</th><th>Requests</th><th>2xx</th><th>4xx</th><th>5xx</th><th>Parse errors</th><th>% 2xx</th><th>% 4xx</th><th>% 5xx</th><th>Avg ms</th><th>p90 ms</th><th>Alert</th></tr>
</thead>
<tbody>
{{- range .Endpoints}}
<tr{{if .AlertP90}} class="alert"{{end}}><td>{{.EndpointBase}}</td><td>{{.RequestsTotal}}</td><td>{{.Success2xx}}</td><td>{{.Client4xx}}</td><td>{{.Server5xx}}</td><td>{{.ParseErrors}}</td><td>{{pct .Pct2xx}}</td><td>{{pct .Pct4xx}}</td><td>{{pct .Pct5xx}}</td><td>{{ms .AvgElapsedMs}}</td><td>{{ms .P90ElapsedMs}}</td><td>{{if .AlertP90}}p90{{end}}</td></tr>
{{- end}}
</tbody>
</table>

{{range .Charts}}
<h2>{{.Title}}</h2>
<svg xmlns="http://www.w3.org/2000/svg" width="{{.Width}}" height="{{.Height}}">
{{- range .Bars}}
  <g transform="translate(0,{{.Y}})">
    <text x="0" y="16">{{.Label}}</text>
    <rect x="180" y="4" width="{{.Width}}" height="18" fill="{{if .Alert}}#d9534f{{else}}#4a7bd0{{end}}"></rect>
    <text x="{{.Width}}" dx="186" y="16">{{.Value}}</text>
  </g>
{{- end}}
</svg>
{{end}}
</body>
</html>
`
