// Package regression diffs two run results for tests that passed last
// time and fail now. The coverage merger counts regressions
// independently via signature history; this detector feeds the
// reporter's run-over-run view.
package regression

import (
	"github.com/qaengine/qaengine/internal/domain"
)

// Regression is one pass -> {fail, error} transition between runs.
type Regression struct {
	TestID       string              `json:"test_id"`
	TestName     string              `json:"test_name"`
	TargetPageID string              `json:"target_page_id,omitempty"`
	Previous     domain.ResultStatus `json:"previous"`
	Current      domain.ResultStatus `json:"current"`
	FailureReason string             `json:"failure_reason,omitempty"`
}

// Detect compares previous and current by test name and returns every
// test that went from pass to fail or error. Tests present in only one
// run are ignored; there is no baseline to regress from.
func Detect(previous, current *domain.RunResult) []Regression {
	if previous == nil || current == nil {
		return nil
	}

	prevByName := previous.ResultByTestName()

	var out []Regression
	for i := range current.TestResults {
		curr := &current.TestResults[i]
		prev, ok := prevByName[curr.Name]
		if !ok {
			continue
		}
		if prev.Result != domain.ResultPass {
			continue
		}
		if curr.Result != domain.ResultFail && curr.Result != domain.ResultError {
			continue
		}
		out = append(out, Regression{
			TestID:        curr.TestID,
			TestName:      curr.Name,
			TargetPageID:  curr.TargetPageID,
			Previous:      prev.Result,
			Current:       curr.Result,
			FailureReason: curr.FailureReason,
		})
	}
	return out
}
