// Package report wraps report rendering as a Temporal activity.
package report

import (
	"context"
	"fmt"
	"path/filepath"

	"go.temporal.io/sdk/activity"

	"github.com/qaengine/qaengine/internal/pipeline"
	reportgen "github.com/qaengine/qaengine/internal/report"
	"github.com/qaengine/qaengine/internal/workflows"
)

// Activity implements the report activity.
type Activity struct {
	service   *pipeline.Service
	generator *reportgen.Generator
}

func NewActivity(service *pipeline.Service, generator *reportgen.Generator) *Activity {
	return &Activity{service: service, generator: generator}
}

// Execute renders the configured report formats for the run.
func (a *Activity) Execute(ctx context.Context, input workflows.ReportInput) (*workflows.ReportOutput, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Starting report activity", "run_id", input.RunID)

	run, err := a.service.LoadRun(input.RunID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("run %s not found", input.RunID)
	}

	outDir := filepath.Join(a.service.RunsDir(), run.RunID)
	paths, err := a.generator.Generate(ctx, run, nil, a.service.ReportFormats(), outDir)
	if err != nil {
		return nil, err
	}

	return &workflows.ReportOutput{ReportPaths: paths}, nil
}
