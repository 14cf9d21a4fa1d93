// Package execute wraps the pipeline's execution stage as a Temporal
// activity.
package execute

import (
	"context"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/qaengine/qaengine/internal/pipeline"
	"github.com/qaengine/qaengine/internal/workflows"
)

// Activity implements the execute activity.
type Activity struct {
	service *pipeline.Service
}

func NewActivity(service *pipeline.Service) *Activity {
	return &Activity{service: service}
}

// Execute runs the stored latest plan and persists the run result.
func (a *Activity) Execute(ctx context.Context, _ workflows.ExecuteInput) (*workflows.ExecuteOutput, error) {
	logger := activity.GetLogger(ctx)
	startTime := time.Now()

	logger.Info("Starting execute activity")
	activity.RecordHeartbeat(ctx, "executing tests")

	run, err := a.service.Execute(ctx, nil)
	if err != nil {
		return nil, err
	}

	return &workflows.ExecuteOutput{
		RunID:    run.RunID,
		Totals:   run.Totals,
		Duration: time.Since(startTime),
	}, nil
}
