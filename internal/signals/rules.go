// Package signals summarises an entity's onboarding activity: entry counts
// per category, which sections ended complete, the direction of progress and
// the attention flags raised by count rules.
package signals

import (
	"fmt"
	"time"

	"github.com/google/cel-go/cel"
)

// Rule raises an attention flag when at least Count entries of EventType,
// matching Condition, fall within Within of the newest entry.
type Rule struct {
	ID        string        `json:"id"`
	EventType string        `json:"event_type"`
	Condition string        `json:"condition,omitempty"` // CEL over `payload`
	Count     int           `json:"count"`
	Within    time.Duration `json:"within"`
	Weight    string        `json:"weight"`
	Message   string        `json:"message"`
}

// DefaultRules are the attention rules of the onboarding form.
var DefaultRules = []Rule{
	{
		ID:        "section_reopened",
		EventType: "section_status_changed",
		Condition: "!payload.complete",
		Count:     1,
		Within:    24 * time.Hour,
		Weight:    "minor",
		Message:   "A completed section lost a required value",
	},
	{
		ID:        "funding_churn",
		EventType: "funding_removed",
		Count:     3,
		Within:    time.Hour,
		Weight:    "major",
		Message:   "Funding instances were removed repeatedly",
	},
	{
		ID:        "large_transfer_removed",
		EventType: "funding_removed",
		Condition: `payload.type == "initial-ach" || payload.type == "acat"`,
		Count:     1,
		Within:    24 * time.Hour,
		Weight:    "minor",
		Message:   "An initial transfer was removed",
	},
}

type compiledRule struct {
	Rule
	prg cel.Program // nil when the rule has no condition
}

func compile(rules []Rule) ([]compiledRule, error) {
	env, err := cel.NewEnv(cel.Variable("payload", cel.DynType))
	if err != nil {
		return nil, fmt.Errorf("creating CEL environment: %w", err)
	}
	out := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if r.Count <= 0 {
			return nil, fmt.Errorf("rule %s: count must be positive", r.ID)
		}
		cr := compiledRule{Rule: r}
		if r.Condition != "" {
			ast, iss := env.Compile(r.Condition)
			if iss != nil && iss.Err() != nil {
				return nil, fmt.Errorf("rule %s: compiling condition: %w", r.ID, iss.Err())
			}
			prg, err := env.Program(ast)
			if err != nil {
				return nil, fmt.Errorf("rule %s: building program: %w", r.ID, err)
			}
			cr.prg = prg
		}
		out = append(out, cr)
	}
	return out, nil
}

// matches evaluates the condition against a decoded payload. Evaluation
// errors, such as a missing key, count as no match.
func (r compiledRule) matches(payload map[string]any) bool {
	if r.prg == nil {
		return true
	}
	out, _, err := r.prg.Eval(map[string]any{"payload": payload})
	if err != nil {
		return false
	}
	ok, _ := out.Value().(bool)
	return ok
}
