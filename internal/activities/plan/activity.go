// Package plan wraps the pipeline's planning stage as a Temporal
// activity.
package plan

import (
	"context"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/qaengine/qaengine/internal/pipeline"
	"github.com/qaengine/qaengine/internal/workflows"
)

// Activity implements the plan activity.
type Activity struct {
	service *pipeline.Service
}

func NewActivity(service *pipeline.Service) *Activity {
	return &Activity{service: service}
}

// Execute generates a test plan from the stored site model and
// coverage gaps.
func (a *Activity) Execute(ctx context.Context, _ workflows.PlanInput) (*workflows.PlanOutput, error) {
	logger := activity.GetLogger(ctx)
	startTime := time.Now()

	logger.Info("Starting plan activity")

	testPlan, err := a.service.Plan(ctx, nil)
	if err != nil {
		return nil, err
	}

	return &workflows.PlanOutput{
		PlanID:    testPlan.PlanID,
		TestCases: len(testPlan.TestCases),
		Duration:  time.Since(startTime),
	}, nil
}
