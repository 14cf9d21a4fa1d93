package exec

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/qaengine/qaengine/internal/domain"
)

// dynamicVarRe matches {{$name}} tokens in action values.
var dynamicVarRe = regexp.MustCompile(`\{\{\$([A-Za-z][A-Za-z0-9_]*)\}\}`)

// resolveDynamicVars substitutes {{$timestamp}} in-place across the
// test's preconditions and steps, using one snapshot for the whole
// test so a value created in a precondition remains referenceable in a
// step. Unknown {{$name}} tokens are left in place with a warning.
func resolveDynamicVars(tc *domain.TestCase, now time.Time, logger *zap.Logger) {
	timestamp := fmt.Sprintf("%d", now.Unix())

	resolve := func(actions []domain.Action) {
		for i := range actions {
			if actions[i].Value == "" {
				continue
			}
			actions[i].Value = dynamicVarRe.ReplaceAllStringFunc(actions[i].Value, func(token string) string {
				name := dynamicVarRe.FindStringSubmatch(token)[1]
				if strings.EqualFold(name, "timestamp") {
					return timestamp
				}
				if logger != nil {
					logger.Warn("exec: unknown dynamic variable left unsubstituted",
						zap.String("token", token),
						zap.String("test_id", tc.TestID))
				}
				return token
			})
		}
	}

	resolve(tc.Preconditions)
	resolve(tc.Steps)
}
