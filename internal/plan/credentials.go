package plan

import (
	"strings"

	"go.uber.org/zap"

	"github.com/qaengine/qaengine/internal/domain"
)

// Credential placeholder tokens, substituted post-validation.
const (
	PlaceholderUsername = "{{auth_username}}"
	PlaceholderPassword = "{{auth_password}}"
	PlaceholderLoginURL = "{{auth_login_url}}"
)

var authPlaceholders = []string{PlaceholderUsername, PlaceholderPassword, PlaceholderLoginURL}

// AuthCredentials are the values substituted for the placeholders.
// A zero value means "no auth configured".
type AuthCredentials struct {
	Username string
	Password string
	LoginURL string
}

func (c AuthCredentials) Configured() bool {
	return c.Username != "" || c.Password != "" || c.LoginURL != ""
}

// InjectCredentials substitutes the auth placeholders in every action
// value and assertion expected_value of the plan. Substitution is
// textual and touches only those two fields — never selectors — so the
// mechanism stays auditable. When no auth is configured, any test case
// still carrying a placeholder is dropped entirely: running a login
// flow with a literal "{{auth_password}}" would be worse than not
// running it.
func InjectCredentials(p *domain.TestPlan, creds AuthCredentials, logger *zap.Logger) {
	if creds.Configured() {
		for ti := range p.TestCases {
			tc := &p.TestCases[ti]
			substituteActions(tc.Preconditions, creds)
			substituteActions(tc.Steps, creds)
			for ai := range tc.Assertions {
				tc.Assertions[ai].ExpectedValue = substitute(tc.Assertions[ai].ExpectedValue, creds)
			}
		}
		return
	}

	kept := p.TestCases[:0]
	for _, tc := range p.TestCases {
		if testCaseHasAuthPlaceholder(&tc) {
			if logger != nil {
				logger.Warn("plan: dropping test case with auth placeholder but no auth configured",
					zap.String("test_id", tc.TestID))
			}
			continue
		}
		kept = append(kept, tc)
	}
	p.TestCases = kept
}

func substituteActions(actions []domain.Action, creds AuthCredentials) {
	for i := range actions {
		actions[i].Value = substitute(actions[i].Value, creds)
	}
}

func substitute(s string, creds AuthCredentials) string {
	s = strings.ReplaceAll(s, PlaceholderUsername, creds.Username)
	s = strings.ReplaceAll(s, PlaceholderPassword, creds.Password)
	s = strings.ReplaceAll(s, PlaceholderLoginURL, creds.LoginURL)
	return s
}

func testCaseHasAuthPlaceholder(tc *domain.TestCase) bool {
	for _, a := range tc.Preconditions {
		if hasAuthPlaceholder(a.Value) {
			return true
		}
	}
	for _, a := range tc.Steps {
		if hasAuthPlaceholder(a.Value) {
			return true
		}
	}
	for _, as := range tc.Assertions {
		if hasAuthPlaceholder(as.ExpectedValue) {
			return true
		}
	}
	return false
}

func hasAuthPlaceholder(s string) bool {
	for _, p := range authPlaceholders {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
