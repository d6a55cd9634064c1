package signals

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/matthewbaird/onboarding/internal/activity"
	"github.com/matthewbaird/onboarding/internal/types"
)

// CategorySummary counts the entries of one category.
type CategorySummary struct {
	Category string         `json:"category"`
	Count    int            `json:"count"`
	ByWeight map[string]int `json:"by_weight"`
	Latest   time.Time      `json:"latest"`
}

// Flag is a rule that fired.
type Flag struct {
	Rule            Rule      `json:"rule"`
	TriggeringCount int       `json:"triggering_count"`
	Earliest        time.Time `json:"earliest"`
	Latest          time.Time `json:"latest"`
}

// Summary is the digest of one entity's activity within a window.
type Summary struct {
	Entity     types.EntityRef            `json:"entity"`
	Since      time.Time                  `json:"since"`
	Until      time.Time                  `json:"until"`
	Categories map[string]CategorySummary `json:"categories"`
	// Completed lists the sections whose latest status change was to
	// complete.
	Completed []types.Section `json:"completed"`
	// Progress is "progressing", "regressing", "stable" or "idle".
	Progress  string `json:"progress"`
	Attention []Flag `json:"attention"`
}

// Aggregator evaluates a fixed rule set.
type Aggregator struct {
	rules []compiledRule
}

// New compiles rules. A condition that does not compile is an error.
func New(rules []Rule) (*Aggregator, error) {
	compiled, err := compile(rules)
	if err != nil {
		return nil, err
	}
	return &Aggregator{rules: compiled}, nil
}

// MustNew is New for package initialisation.
func MustNew(rules []Rule) *Aggregator {
	a, err := New(rules)
	if err != nil {
		panic(err)
	}
	return a
}

// Aggregate summarises entries of ref that fall within [since, until].
func (a *Aggregator) Aggregate(entries []activity.Entry, ref types.EntityRef, since, until time.Time) Summary {
	window := make([]activity.Entry, 0, len(entries))
	for _, e := range entries {
		if e.Entity != ref || e.OccurredAt.Before(since) || e.OccurredAt.After(until) {
			continue
		}
		window = append(window, e)
	}
	sort.SliceStable(window, func(i, j int) bool {
		return window[i].OccurredAt.Before(window[j].OccurredAt)
	})

	categories := make(map[string]CategorySummary)
	for _, e := range window {
		cs, ok := categories[e.Category]
		if !ok {
			cs = CategorySummary{Category: e.Category, ByWeight: make(map[string]int)}
		}
		cs.Count++
		cs.ByWeight[e.Weight]++
		if e.OccurredAt.After(cs.Latest) {
			cs.Latest = e.OccurredAt
		}
		categories[e.Category] = cs
	}

	payloads := decodePayloads(window)
	completed, progress := completion(window, payloads)
	attention := a.evaluate(window, payloads)
	if attention == nil {
		attention = []Flag{}
	}

	return Summary{
		Entity:     ref,
		Since:      since,
		Until:      until,
		Categories: categories,
		Completed:  completed,
		Progress:   progress,
		Attention:  attention,
	}
}

func decodePayloads(entries []activity.Entry) []map[string]any {
	out := make([]map[string]any, len(entries))
	for i, e := range entries {
		var m map[string]any
		if len(e.Payload) > 0 {
			_ = json.Unmarshal(e.Payload, &m)
		}
		if m == nil {
			m = map[string]any{}
		}
		out[i] = m
	}
	return out
}

// completion replays status changes oldest first. Progress is the sign of
// completions minus reopenings.
func completion(entries []activity.Entry, payloads []map[string]any) ([]types.Section, string) {
	latest := make(map[types.Section]bool)
	net, seen := 0, 0
	for i, e := range entries {
		if e.EventType != "section_status_changed" {
			continue
		}
		seen++
		complete, _ := payloads[i]["complete"].(bool)
		var section types.Section
		if ref, ok := payloads[i]["section"].(map[string]any); ok {
			s, _ := ref["section"].(string)
			section = types.Section(s)
		}
		if section != "" {
			latest[section] = complete
		}
		if complete {
			net++
		} else {
			net--
		}
	}

	completed := []types.Section{}
	for _, s := range types.AllSections {
		if latest[s] {
			completed = append(completed, s)
		}
	}

	switch {
	case seen == 0:
		return completed, "idle"
	case net > 0:
		return completed, "progressing"
	case net < 0:
		return completed, "regressing"
	}
	return completed, "stable"
}

// evaluate applies each rule to the entries within its window, measured back
// from the newest entry.
func (a *Aggregator) evaluate(entries []activity.Entry, payloads []map[string]any) []Flag {
	if len(entries) == 0 {
		return nil
	}
	newest := entries[len(entries)-1].OccurredAt

	var flags []Flag
	for _, r := range a.rules {
		start := newest.Add(-r.Within)
		var matching []activity.Entry
		for i, e := range entries {
			if e.EventType != r.EventType || e.OccurredAt.Before(start) {
				continue
			}
			if !r.matches(payloads[i]) {
				continue
			}
			matching = append(matching, e)
		}
		if len(matching) < r.Count {
			continue
		}
		flags = append(flags, Flag{
			Rule:            r.Rule,
			TriggeringCount: len(matching),
			Earliest:        matching[0].OccurredAt,
			Latest:          matching[len(matching)-1].OccurredAt,
		})
	}
	return flags
}
