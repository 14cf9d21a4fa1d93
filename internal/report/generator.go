// Package report renders a run's results as a self-contained HTML
// dashboard (screenshots inlined as data URIs, videos linked via
// file://) and as machine-readable JSON, with an optional AI-written
// summary when an LLM client is available.
package report

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/qaengine/qaengine/internal/coverage/regression"
	"github.com/qaengine/qaengine/internal/domain"
	"github.com/qaengine/qaengine/internal/llm"
)

// Generator renders run reports.
type Generator struct {
	llmClient *llm.ClaudeClient // nil disables the AI summary
	templates *template.Template
	logger    *zap.Logger
}

// New parses the dashboard template and returns a generator.
func New(llmClient *llm.ClaudeClient, logger *zap.Logger) (*Generator, error) {
	tmpl, err := template.New("dashboard").Funcs(template.FuncMap{
		"percent": func(a, b int) float64 {
			if b == 0 {
				return 0
			}
			return float64(a) / float64(b) * 100
		},
		"statusClass": func(s domain.ResultStatus) string {
			return string(s)
		},
	}).Parse(DashboardTemplate)
	if err != nil {
		return nil, fmt.Errorf("report: parsing template: %w", err)
	}
	return &Generator{llmClient: llmClient, templates: tmpl, logger: logger}, nil
}

// viewModel is what the dashboard template renders.
type viewModel struct {
	Run         *domain.RunResult
	Regressions []regression.Regression
	GeneratedAt time.Time
	AISummary   string
	Tests       []testView
}

type testView struct {
	Result      *domain.TestResult
	Screenshots []template.URL
	VideoHref   template.URL
}

// Generate renders the requested formats into outDir and returns the
// written paths. previous may be nil; without it the regression list
// is empty (the registry still counts regressions by signature).
func (g *Generator) Generate(ctx context.Context, run, previous *domain.RunResult, formats []string, outDir string) ([]string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("report: creating output dir: %w", err)
	}

	vm := &viewModel{
		Run:         run,
		Regressions: regression.Detect(previous, run),
		GeneratedAt: time.Now().UTC(),
	}
	vm.AISummary = g.aiSummary(ctx, run)
	run.AISummary = vm.AISummary
	for i := range run.TestResults {
		vm.Tests = append(vm.Tests, buildTestView(&run.TestResults[i]))
	}

	var paths []string
	for _, format := range formats {
		switch strings.ToLower(strings.TrimSpace(format)) {
		case "html":
			path := filepath.Join(outDir, "report.html")
			html, err := g.renderHTML(vm)
			if err != nil {
				return paths, err
			}
			if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
				return paths, fmt.Errorf("report: writing html: %w", err)
			}
			paths = append(paths, path)
		case "json":
			path := filepath.Join(outDir, "report.json")
			data, err := json.MarshalIndent(run, "", "  ")
			if err != nil {
				return paths, fmt.Errorf("report: encoding json: %w", err)
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return paths, fmt.Errorf("report: writing json: %w", err)
			}
			paths = append(paths, path)
		default:
			if g.logger != nil {
				g.logger.Warn("report: unknown format skipped", zap.String("format", format))
			}
		}
	}
	return paths, nil
}

func (g *Generator) renderHTML(vm *viewModel) (string, error) {
	var buf bytes.Buffer
	if err := g.templates.ExecuteTemplate(&buf, "dashboard", vm); err != nil {
		return "", fmt.Errorf("report: rendering html: %w", err)
	}
	return buf.String(), nil
}

// buildTestView inlines evidence so the HTML file stands alone:
// screenshots become data URIs, the video a file:// link.
func buildTestView(tr *domain.TestResult) testView {
	tv := testView{Result: tr}
	for _, path := range tr.Evidence.ScreenshotPaths {
		if uri, ok := dataURI(path); ok {
			tv.Screenshots = append(tv.Screenshots, uri)
		}
		if len(tv.Screenshots) >= 4 {
			break
		}
	}
	if tr.Evidence.VideoPath != "" {
		if abs, err := filepath.Abs(tr.Evidence.VideoPath); err == nil {
			tv.VideoHref = template.URL("file://" + abs)
		}
	}
	return tv
}

func dataURI(path string) (template.URL, bool) {
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return "", false
	}
	return template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(data)), true
}

const summarySystemPrompt = `You are a QA analyst. Summarize this automated test run for an engineering ` +
	`team in 3-5 sentences: overall health, the most important failures, any flaky tests, and what to ` +
	`look at first. Plain prose, no markdown headers.`

// aiSummary asks the LLM for a short narrative; absence or failure of
// the client just yields an empty summary.
func (g *Generator) aiSummary(ctx context.Context, run *domain.RunResult) string {
	if g.llmClient == nil {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Run %s against %s: %d total, %d passed, %d failed, %d skipped, %d errored, %d flaky.\n\n",
		run.RunID, run.TargetURL, run.Totals.Total, run.Totals.Passed, run.Totals.Failed,
		run.Totals.Skipped, run.Totals.Errored, run.Totals.Flaky)
	for _, tr := range run.TestResults {
		if tr.Result == domain.ResultFail || tr.Result == domain.ResultError {
			fmt.Fprintf(&b, "- %s [%s] %s: %s\n", tr.Name, tr.Category, tr.Result, tr.FailureReason)
		}
	}

	text, _, err := g.llmClient.Complete(ctx, summarySystemPrompt, b.String())
	if err != nil {
		if g.logger != nil {
			g.logger.Warn("report: ai summary failed", zap.Error(err))
		}
		return ""
	}
	return strings.TrimSpace(text)
}
