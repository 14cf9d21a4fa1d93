// Package domain holds the core entities shared across every pipeline
// stage: the crawler's page/site model, the planner's test cases, the
// executor's results, and the coverage registry's records. Keeping them
// in one package lets the
// crawler, planner, executor, and coverage packages all depend on a
// single stable vocabulary instead of redefining it pairwise.
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Timestamps provides common time fields for persisted records.
type Timestamps struct {
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// SetTimestamps sets CreatedAt and UpdatedAt to the current time.
func (t *Timestamps) SetTimestamps() {
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
}

// JSONB wraps JSON data stored in the Postgres coverage mirror's jsonb columns.
type JSONB map[string]any

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value any) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, j)
}

// NullUUID wraps uuid.UUID for nullable UUID columns.
type NullUUID struct {
	UUID  uuid.UUID
	Valid bool
}

func (n NullUUID) Value() (driver.Value, error) {
	if !n.Valid {
		return nil, nil
	}
	return n.UUID.String(), nil
}

func (n *NullUUID) Scan(value any) error {
	if value == nil {
		n.UUID, n.Valid = uuid.Nil, false
		return nil
	}
	n.Valid = true
	switch v := value.(type) {
	case string:
		var err error
		n.UUID, err = uuid.Parse(v)
		return err
	case []byte:
		var err error
		n.UUID, err = uuid.Parse(string(v))
		return err
	}
	return errors.New("unsupported type for NullUUID")
}

// PageType classifies a crawled page. Priority order when more than one
// classifier matches: error > form > dashboard > listing > detail > static.
type PageType string

const (
	PageTypeStatic    PageType = "static"
	PageTypeForm      PageType = "form"
	PageTypeListing   PageType = "listing"
	PageTypeDetail    PageType = "detail"
	PageTypeDashboard PageType = "dashboard"
	PageTypeError     PageType = "error"
)

// Category is a test case's functional category.
type Category string

const (
	CategoryFunctional Category = "functional"
	CategoryVisual     Category = "visual"
	CategorySecurity   Category = "security"
)

func (c Category) IsValid() bool {
	switch c {
	case CategoryFunctional, CategoryVisual, CategorySecurity:
		return true
	}
	return false
}

// ActionType enumerates the nine actions the executor can perform.
type ActionType string

const (
	ActionNavigate   ActionType = "navigate"
	ActionClick      ActionType = "click"
	ActionFill       ActionType = "fill"
	ActionSelect     ActionType = "select"
	ActionHover      ActionType = "hover"
	ActionWait       ActionType = "wait"
	ActionScroll     ActionType = "scroll"
	ActionScreenshot ActionType = "screenshot"
	ActionKeyboard   ActionType = "keyboard"
)

// selectorRequiredActions are the actions that must carry a non-empty selector.
var selectorRequiredActions = map[ActionType]bool{
	ActionClick:  true,
	ActionFill:   true,
	ActionSelect: true,
	ActionHover:  true,
}

// RequiresSelector reports whether a's action needs a resolvable selector.
func (a ActionType) RequiresSelector() bool {
	return selectorRequiredActions[a]
}

// AssertionType enumerates the twelve assertion kinds the checker supports.
type AssertionType string

const (
	AssertElementVisible     AssertionType = "element_visible"
	AssertElementHidden      AssertionType = "element_hidden"
	AssertTextContains       AssertionType = "text_contains"
	AssertTextEquals         AssertionType = "text_equals"
	AssertTextMatches        AssertionType = "text_matches"
	AssertURLMatches         AssertionType = "url_matches"
	AssertScreenshotDiff     AssertionType = "screenshot_diff"
	AssertElementCount       AssertionType = "element_count"
	AssertNetworkRequestMade AssertionType = "network_request_made"
	AssertNoConsoleErrors    AssertionType = "no_console_errors"
	AssertResponseStatus     AssertionType = "response_status"
	AssertAIEvaluate         AssertionType = "ai_evaluate"
)

// Priority is a test case's execution priority, 1 (highest) through 5 (lowest).
type Priority int

const (
	PriorityHighest Priority = 1
	PriorityLowest  Priority = 5
)

// IsValid reports whether p is within the 1..5 range.
func (p Priority) IsValid() bool {
	return p >= PriorityHighest && p <= PriorityLowest
}

// ResultStatus is the outcome of a test case or individual step.
type ResultStatus string

const (
	ResultPass  ResultStatus = "pass"
	ResultFail  ResultStatus = "fail"
	ResultSkip  ResultStatus = "skip"
	ResultError ResultStatus = "error"
)

// RunState tracks a pipeline run's lifecycle: pending -> running -> a
// terminal result, with flake_rerunning as a transient sub-state of running.
type RunState string

const (
	RunStatePending        RunState = "pending"
	RunStateRunning        RunState = "running"
	RunStateFlakeRerunning RunState = "flake_rerunning"
	RunStatePass           RunState = "pass"
	RunStateFail           RunState = "fail"
	RunStateSkip           RunState = "skip"
	RunStateError          RunState = "error"
)

func (s RunState) IsTerminal() bool {
	switch s {
	case RunStatePass, RunStateFail, RunStateSkip, RunStateError:
		return true
	}
	return false
}

// FrontierPriority is the crawl frontier's tier, lower values dequeue first.
type FrontierPriority int

const (
	PriorityStart   FrontierPriority = 0
	PriorityOrganic FrontierPriority = 10
	PrioritySitemap FrontierPriority = 50
)

func (p FrontierPriority) String() string {
	switch p {
	case PriorityStart:
		return "start"
	case PriorityOrganic:
		return "organic"
	case PrioritySitemap:
		return "sitemap"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}
