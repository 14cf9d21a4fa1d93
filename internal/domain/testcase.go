package domain

import "fmt"

// TestCase is one unit of the planner's output, unique by TestID within a plan.
type TestCase struct {
	TestID            string      `json:"test_id"`
	Name              string      `json:"name"`
	Category          Category    `json:"category"`
	Priority          Priority    `json:"priority"`
	TargetPageID      string      `json:"target_page_id"`
	CoverageSignature string      `json:"coverage_signature"`
	RequiresAuth      bool        `json:"requires_auth"`
	Preconditions     []Action    `json:"preconditions,omitempty"`
	Steps             []Action    `json:"steps"`
	Assertions        []Assertion `json:"assertions"`
	TimeoutSeconds    int         `json:"timeout_seconds"`
}

// Validate enforces the per-test-case invariants: at least one step,
// a valid category, a priority in [1,5], and every action's own
// selector/value constraints.
func (tc *TestCase) Validate() error {
	if tc.TestID == "" {
		return fmt.Errorf("test case missing test_id")
	}
	if len(tc.Steps) == 0 {
		return fmt.Errorf("test case %s has no steps", tc.TestID)
	}
	if !tc.Category.IsValid() {
		return fmt.Errorf("test case %s has invalid category %q", tc.TestID, tc.Category)
	}
	if !tc.Priority.IsValid() {
		return fmt.Errorf("test case %s has invalid priority %d", tc.TestID, tc.Priority)
	}
	for i, a := range tc.Preconditions {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("test case %s precondition %d: %w", tc.TestID, i, err)
		}
	}
	for i, a := range tc.Steps {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("test case %s step %d: %w", tc.TestID, i, err)
		}
	}
	return nil
}

// TestPlan is the planner's complete output for a single crawl.
type TestPlan struct {
	PlanID    string     `json:"plan_id"`
	TargetURL string     `json:"target_url"`
	TestCases []TestCase `json:"test_cases"`
}

// Validate runs the plan-level schema checks: no duplicate test_id,
// and every test case individually valid.
func (p *TestPlan) Validate() []error {
	var errs []error
	seen := make(map[string]bool, len(p.TestCases))
	for i := range p.TestCases {
		tc := &p.TestCases[i]
		if seen[tc.TestID] {
			errs = append(errs, fmt.Errorf("duplicate test_id %q", tc.TestID))
			continue
		}
		seen[tc.TestID] = true
		if err := tc.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
