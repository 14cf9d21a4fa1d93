package exec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/qaengine/qaengine/internal/domain"
)

func TestDeriveResult(t *testing.T) {
	assert.Equal(t, domain.ResultPass, deriveResult(false, 0))
	assert.Equal(t, domain.ResultError, deriveResult(true, 0))
	assert.Equal(t, domain.ResultFail, deriveResult(true, 2))
	assert.Equal(t, domain.ResultFail, deriveResult(false, 1))
}

func TestOrderTests_PriorityThenGroup(t *testing.T) {
	tcs := []domain.TestCase{
		{TestID: "a", TargetPageID: "p1", Priority: 3},
		{TestID: "b", TargetPageID: "p2", Priority: 1},
		{TestID: "c", TargetPageID: "p1", Priority: 1},
		{TestID: "d", TargetPageID: "p2", Priority: 2},
	}
	ordered := orderTests(tcs)
	ids := make([]string, len(ordered))
	for i, tc := range ordered {
		ids[i] = tc.TestID
	}
	// p2 is the first group (test b has the lowest priority overall);
	// within groups, priority ascending.
	assert.Equal(t, []string{"b", "d", "c", "a"}, ids)
}

func TestOrderTests_StableWithinEqualPriority(t *testing.T) {
	tcs := []domain.TestCase{
		{TestID: "x", TargetPageID: "p", Priority: 2},
		{TestID: "y", TargetPageID: "p", Priority: 2},
		{TestID: "z", TargetPageID: "p", Priority: 2},
	}
	ordered := orderTests(tcs)
	assert.Equal(t, "x", ordered[0].TestID)
	assert.Equal(t, "y", ordered[1].TestID)
	assert.Equal(t, "z", ordered[2].TestID)
}

func TestResolveDynamicVars_OneTimestampAcrossPreconditionsAndSteps(t *testing.T) {
	tc := &domain.TestCase{
		TestID: "t1",
		Preconditions: []domain.Action{
			{ActionType: domain.ActionFill, Selector: "#name", Value: "user-{{$timestamp}}"},
		},
		Steps: []domain.Action{
			{ActionType: domain.ActionFill, Selector: "#search", Value: "user-{{$timestamp}}"},
		},
	}
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	resolveDynamicVars(tc, now, zap.NewNop())

	assert.Equal(t, tc.Preconditions[0].Value, tc.Steps[0].Value)
	assert.NotContains(t, tc.Steps[0].Value, "{{$")
}

func TestResolveDynamicVars_UnknownTokenLeftInPlace(t *testing.T) {
	tc := &domain.TestCase{
		TestID: "t1",
		Steps: []domain.Action{
			{ActionType: domain.ActionFill, Selector: "#x", Value: "{{$order_id}}"},
		},
	}
	resolveDynamicVars(tc, time.Now(), zap.NewNop())
	assert.Equal(t, "{{$order_id}}", tc.Steps[0].Value)
}

func TestParseFallbackResponse_ValidDecisions(t *testing.T) {
	resp, ok := parseFallbackResponse(`{"decision": "retry", "new_selector": "#submit"}`)
	require.True(t, ok)
	assert.Equal(t, DecisionRetry, resp.Decision)
	assert.Equal(t, "#submit", resp.NewSelector)

	resp, ok = parseFallbackResponse(`{"decision": "adapt", "new_action": {"action_type": "click", "selector": "#other"}}`)
	require.True(t, ok)
	require.NotNil(t, resp.NewAction)
	assert.Equal(t, domain.ActionClick, resp.NewAction.ActionType)

	_, ok = parseFallbackResponse(`{"decision": "skip"}`)
	assert.True(t, ok)
	_, ok = parseFallbackResponse(`{"decision": "abort"}`)
	assert.True(t, ok)
}

func TestParseFallbackResponse_RejectsIncompleteDecisions(t *testing.T) {
	_, ok := parseFallbackResponse(`{"decision": "retry"}`)
	assert.False(t, ok, "retry without new_selector")

	_, ok = parseFallbackResponse(`{"decision": "adapt"}`)
	assert.False(t, ok, "adapt without new_action")

	_, ok = parseFallbackResponse(`{"decision": "explode"}`)
	assert.False(t, ok, "unknown decision")

	_, ok = parseFallbackResponse("not json")
	assert.False(t, ok)
}

func TestParseFallbackResponse_FencedJSON(t *testing.T) {
	resp, ok := parseFallbackResponse("```json\n{\"decision\": \"skip\", \"reasoning\": \"element gone\"}\n```")
	require.True(t, ok)
	assert.Equal(t, DecisionSkip, resp.Decision)
}

func TestSkippedResult(t *testing.T) {
	tc := &domain.TestCase{TestID: "t1", Name: "n", Category: domain.CategoryFunctional, Priority: 2, TargetPageID: "p"}
	res := skippedResult(tc, "Time limit reached")
	assert.Equal(t, domain.ResultSkip, res.Result)
	assert.Equal(t, "Time limit reached", res.FailureReason)
	assert.Equal(t, "t1", res.TestID)
}
