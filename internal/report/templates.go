package report

// DashboardTemplate is the single-file HTML report. Everything it
// references is inlined so the file can be mailed or archived as-is.
const DashboardTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>QA Run {{.Run.RunID}}</title>
<style>
  body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif; margin: 0; background: #f5f6f8; color: #1d2330; }
  header { background: #1d2330; color: #fff; padding: 24px 32px; }
  header h1 { margin: 0 0 4px; font-size: 20px; }
  header .meta { color: #9aa3b5; font-size: 13px; }
  .totals { display: flex; gap: 16px; padding: 24px 32px; flex-wrap: wrap; }
  .stat { background: #fff; border-radius: 8px; padding: 16px 24px; min-width: 110px; box-shadow: 0 1px 3px rgba(0,0,0,.08); }
  .stat .num { font-size: 28px; font-weight: 700; }
  .stat .label { font-size: 12px; color: #6b7487; text-transform: uppercase; letter-spacing: .05em; }
  .stat.pass .num { color: #1a7f37; }
  .stat.fail .num { color: #c62828; }
  .stat.skip .num { color: #9aa3b5; }
  .stat.error .num { color: #b26a00; }
  section { margin: 0 32px 24px; }
  section h2 { font-size: 16px; margin: 24px 0 12px; }
  .summary { background: #fff; border-radius: 8px; padding: 16px 24px; box-shadow: 0 1px 3px rgba(0,0,0,.08); line-height: 1.5; }
  .regression { background: #fdecea; border-left: 4px solid #c62828; border-radius: 4px; padding: 12px 16px; margin-bottom: 8px; }
  table { width: 100%; border-collapse: collapse; background: #fff; border-radius: 8px; overflow: hidden; box-shadow: 0 1px 3px rgba(0,0,0,.08); }
  th, td { text-align: left; padding: 10px 16px; border-bottom: 1px solid #eceff3; font-size: 14px; }
  th { background: #fafbfc; color: #6b7487; font-size: 12px; text-transform: uppercase; letter-spacing: .05em; }
  .badge { display: inline-block; padding: 2px 10px; border-radius: 10px; font-size: 12px; font-weight: 600; }
  .badge.pass { background: #e6f4ea; color: #1a7f37; }
  .badge.fail { background: #fdecea; color: #c62828; }
  .badge.skip { background: #eceff3; color: #6b7487; }
  .badge.error { background: #fff3e0; color: #b26a00; }
  .flaky { color: #b26a00; font-size: 12px; margin-left: 6px; }
  .evidence img { max-width: 220px; border: 1px solid #eceff3; border-radius: 4px; margin: 4px 4px 0 0; }
  .reason { color: #6b7487; font-size: 13px; }
  footer { color: #9aa3b5; font-size: 12px; padding: 24px 32px; }
</style>
</head>
<body>
<header>
  <h1>QA Run Report</h1>
  <div class="meta">{{.Run.TargetURL}} &middot; run {{.Run.RunID}} &middot; plan {{.Run.PlanID}} &middot; {{.Run.StartedAt.Format "2006-01-02 15:04:05 MST"}}</div>
</header>

<div class="totals">
  <div class="stat"><div class="num">{{.Run.Totals.Total}}</div><div class="label">Total</div></div>
  <div class="stat pass"><div class="num">{{.Run.Totals.Passed}}</div><div class="label">Passed</div></div>
  <div class="stat fail"><div class="num">{{.Run.Totals.Failed}}</div><div class="label">Failed</div></div>
  <div class="stat skip"><div class="num">{{.Run.Totals.Skipped}}</div><div class="label">Skipped</div></div>
  <div class="stat error"><div class="num">{{.Run.Totals.Errored}}</div><div class="label">Errored</div></div>
  <div class="stat"><div class="num">{{printf "%.0f%%" (percent .Run.Totals.Passed .Run.Totals.Total)}}</div><div class="label">Pass rate</div></div>
</div>

{{if .AISummary}}
<section>
  <h2>Summary</h2>
  <div class="summary">{{.AISummary}}</div>
</section>
{{end}}

{{if .Regressions}}
<section>
  <h2>Regressions ({{len .Regressions}})</h2>
  {{range .Regressions}}
  <div class="regression">
    <strong>{{.TestName}}</strong> went {{.Previous}} &rarr; {{.Current}}
    {{if .FailureReason}}<div class="reason">{{.FailureReason}}</div>{{end}}
  </div>
  {{end}}
</section>
{{end}}

<section>
  <h2>Tests</h2>
  <table>
    <tr><th>Test</th><th>Category</th><th>Priority</th><th>Result</th><th>Assertions</th><th>Duration</th><th>Evidence</th></tr>
    {{range .Tests}}
    <tr>
      <td>
        {{.Result.Name}}
        {{if .Result.PotentiallyFlaky}}<span class="flaky">flaky?</span>{{end}}
        {{if .Result.FailureReason}}<div class="reason">{{.Result.FailureReason}}</div>{{end}}
      </td>
      <td>{{.Result.Category}}</td>
      <td>P{{.Result.Priority}}</td>
      <td><span class="badge {{statusClass .Result.Result}}">{{.Result.Result}}</span></td>
      <td>{{.Result.AssertionsPassed}}/{{.Result.AssertionsTotal}}</td>
      <td>{{.Result.Duration}}</td>
      <td class="evidence">
        {{range .Screenshots}}<img src="{{.}}" alt="evidence">{{end}}
        {{if .VideoHref}}<div><a href="{{.VideoHref}}">video</a></div>{{end}}
      </td>
    </tr>
    {{end}}
  </table>
</section>

<footer>Generated {{.GeneratedAt.Format "2006-01-02 15:04:05 MST"}}</footer>
</body>
</html>`
