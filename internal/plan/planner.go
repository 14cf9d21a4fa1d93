// Package plan turns a crawled site model and a coverage-gap report
// into an executable test plan. The planning LLM proposes test cases;
// everything it returns is defensively parsed, schema-validated, and
// credential-injected before the executor sees it. When the LLM is
// unavailable or unusable, a deterministic fallback plan keeps the
// pipeline moving.
package plan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/qaengine/qaengine/internal/coverage"
	"github.com/qaengine/qaengine/internal/domain"
	"github.com/qaengine/qaengine/internal/llm"
)

// Config controls one planning cycle.
type Config struct {
	Categories          []domain.Category
	MaxTests            int
	VisualDiffTolerance float64
	Viewports           []string
	Hints               []string
	DebugDir            string // parse-failure artifacts land here; empty disables
}

// DefaultConfig enables every category with a 50-test budget.
func DefaultConfig() Config {
	return Config{
		Categories:          []domain.Category{domain.CategoryFunctional, domain.CategoryVisual, domain.CategorySecurity},
		MaxTests:            50,
		VisualDiffTolerance: 0.05,
	}
}

// Planner invokes the planning LLM and validates its output.
type Planner struct {
	client *llm.ClaudeClient // nil forces the fallback plan
	cfg    Config
	logger *zap.Logger
}

func New(client *llm.ClaudeClient, cfg Config, logger *zap.Logger) *Planner {
	return &Planner{client: client, cfg: cfg, logger: logger}
}

// llmPlanResponse is the shape the planning prompt demands back.
type llmPlanResponse struct {
	TestCases []domain.TestCase `json:"test_cases"`
}

// Plan produces a validated, credential-injected test plan for site.
// It never returns an error for LLM trouble — the deterministic
// fallback plan is the degraded path — only for an unusable site model.
func (p *Planner) Plan(ctx context.Context, site *domain.SiteModel, gaps *coverage.GapReport, creds AuthCredentials) (*domain.TestPlan, error) {
	if site == nil || len(site.Pages) == 0 {
		return nil, fmt.Errorf("plan: site model has no pages")
	}

	planID := uuid.New().String()

	testPlan := p.llmPlan(ctx, planID, site, gaps)
	if testPlan == nil {
		if p.logger != nil {
			p.logger.Warn("plan: using deterministic fallback plan", zap.String("plan_id", planID))
		}
		testPlan = FallbackPlan(planID, site, p.cfg)
	}

	p.filterInvalid(testPlan)
	InjectCredentials(testPlan, creds, p.logger)

	if p.cfg.MaxTests > 0 && len(testPlan.TestCases) > p.cfg.MaxTests {
		testPlan.TestCases = testPlan.TestCases[:p.cfg.MaxTests]
	}
	return testPlan, nil
}

// llmPlan asks the LLM for a plan; returns nil if the client is absent,
// the call fails, or the response is unusable after the cleanup ladder.
func (p *Planner) llmPlan(ctx context.Context, planID string, site *domain.SiteModel, gaps *coverage.GapReport) *domain.TestPlan {
	if p.client == nil {
		return nil
	}

	siteJSON := summarizeSiteJSON(site)
	gapsJSON := summarizeGapsJSON(gaps)

	raw, _, err := p.client.Complete(ctx, systemPrompt(), userPrompt(siteJSON, gapsJSON, p.cfg))
	if err != nil {
		if p.logger != nil {
			p.logger.Warn("plan: llm call failed", zap.Error(err))
		}
		return nil
	}

	var resp llmPlanResponse
	cleaned, err := DecodeLLMJSON(raw, &resp)
	if err != nil {
		p.persistParseFailure(raw, cleaned, err)
		if p.logger != nil {
			p.logger.Warn("plan: llm response unusable after cleanup", zap.Error(err))
		}
		return nil
	}
	if len(resp.TestCases) == 0 {
		return nil
	}

	return &domain.TestPlan{PlanID: planID, TargetURL: site.BaseURL, TestCases: resp.TestCases}
}

// filterInvalid drops test cases that fail schema validation, keeping
// the rest of the plan usable. Duplicate test_ids drop the later case.
func (p *Planner) filterInvalid(testPlan *domain.TestPlan) {
	seen := make(map[string]bool, len(testPlan.TestCases))
	kept := testPlan.TestCases[:0]
	for _, tc := range testPlan.TestCases {
		if seen[tc.TestID] {
			if p.logger != nil {
				p.logger.Warn("plan: dropping duplicate test_id", zap.String("test_id", tc.TestID))
			}
			continue
		}
		if err := tc.Validate(); err != nil {
			if p.logger != nil {
				p.logger.Warn("plan: dropping invalid test case", zap.String("test_id", tc.TestID), zap.Error(err))
			}
			continue
		}
		seen[tc.TestID] = true
		kept = append(kept, tc)
	}
	testPlan.TestCases = kept
}

// persistParseFailure writes the raw response, the cleaned response,
// the error, and a hex dump around the error offset, so a bad LLM day
// is debuggable after the fact.
func (p *Planner) persistParseFailure(raw, cleaned string, parseErr error) {
	if p.cfg.DebugDir == "" {
		return
	}
	stamp := time.Now().UTC().Format("20060102-150405")
	base := filepath.Join(p.cfg.DebugDir, "plan-parse-failure-"+stamp)

	_ = os.MkdirAll(p.cfg.DebugDir, 0o755)
	_ = os.WriteFile(base+".raw.txt", []byte(raw), 0o644)
	_ = os.WriteFile(base+".cleaned.txt", []byte(cleaned), 0o644)

	var offset int64 = -1
	var synErr *json.SyntaxError
	if errors.As(parseErr, &synErr) {
		offset = synErr.Offset
	}
	ctx := fmt.Sprintf("error: %v\noffset: %d\nhex around offset:\n%s\n",
		parseErr, offset, hexDumpAround(cleaned, offset, 32))
	_ = os.WriteFile(base+".context.txt", []byte(ctx), 0o644)
}
