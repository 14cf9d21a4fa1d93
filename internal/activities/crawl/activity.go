// Package crawl wraps the pipeline's crawl stage as a Temporal
// activity.
package crawl

import (
	"context"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/qaengine/qaengine/internal/pipeline"
	"github.com/qaengine/qaengine/internal/workflows"
)

// Activity implements the crawl activity.
type Activity struct {
	service *pipeline.Service
}

func NewActivity(service *pipeline.Service) *Activity {
	return &Activity{service: service}
}

// Execute crawls the target and persists the site model.
func (a *Activity) Execute(ctx context.Context, input workflows.CrawlInput) (*workflows.CrawlOutput, error) {
	logger := activity.GetLogger(ctx)
	startTime := time.Now()

	logger.Info("Starting crawl activity", "target_url", input.TargetURL)
	activity.RecordHeartbeat(ctx, "crawling")

	site, err := a.service.Crawl(ctx, input.TargetURL)
	if err != nil {
		return nil, err
	}

	return &workflows.CrawlOutput{
		PagesFound:   len(site.Pages),
		APIEndpoints: len(site.APIEndpoints),
		Duration:     time.Since(startTime),
	}, nil
}
