// Package coverage wraps the registry merge as a Temporal activity.
package coverage

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/activity"

	"github.com/qaengine/qaengine/internal/pipeline"
	"github.com/qaengine/qaengine/internal/workflows"
)

// Activity implements the coverage merge activity.
type Activity struct {
	service *pipeline.Service
}

func NewActivity(service *pipeline.Service) *Activity {
	return &Activity{service: service}
}

// Execute folds the identified run into the coverage registry.
func (a *Activity) Execute(ctx context.Context, input workflows.MergeInput) (*workflows.MergeOutput, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Starting coverage merge activity", "run_id", input.RunID)

	run, err := a.service.LoadRun(input.RunID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("run %s not found", input.RunID)
	}

	reg, err := a.service.MergeCoverage(run)
	if err != nil {
		return nil, err
	}

	return &workflows.MergeOutput{
		OverallScore:    reg.GlobalStats.OverallScore,
		RegressionCount: reg.GlobalStats.RegressionCount,
		PagesTested:     reg.GlobalStats.PagesTested,
	}, nil
}
