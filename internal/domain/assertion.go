package domain

// Assertion is one expectation checked against current page state.
type Assertion struct {
	AssertionType AssertionType `json:"assertion_type"`
	Selector      string        `json:"selector,omitempty"`
	ExpectedValue string        `json:"expected_value,omitempty"`
	Tolerance     float64       `json:"tolerance,omitempty"`
	Description   string        `json:"description,omitempty"`
}

// selectorlessAssertions are the kinds that evaluate against the page
// or body rather than a specific element.
var selectorlessAssertions = map[AssertionType]bool{
	AssertURLMatches:         true,
	AssertNoConsoleErrors:    true,
	AssertNetworkRequestMade: true,
	AssertResponseStatus:     true,
	AssertScreenshotDiff:     true,
	AssertAIEvaluate:         true,
}

// RequiresSelector reports whether a's assertion kind needs a selector
// to be meaningful (it may still be evaluated with an empty selector
// falling back to the document body for the text_* kinds).
func (a AssertionType) RequiresSelector() bool {
	return !selectorlessAssertions[a]
}
