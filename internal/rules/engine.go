package rules

import (
	"sort"
	"sync/atomic"

	"trendguard/pkg/models"
)

// Engine matches detections against an immutable rule snapshot. Reload swaps
// the whole snapshot atomically; an in-flight match never sees a mix of old
// and new rules.
type Engine struct {
	snap atomic.Pointer[snapshot]
}

type snapshot struct {
	rules []Rule // enabled only, priority descending
}

// NewEngine creates an engine holding the given rule set.
func NewEngine(ruleSet []Rule) *Engine {
	e := &Engine{}
	e.Reload(ruleSet)
	return e
}

// Reload replaces the active rule set wholesale.
func (e *Engine) Reload(ruleSet []Rule) {
	enabled := make([]Rule, 0, len(ruleSet))
	for _, r := range ruleSet {
		if r.Enabled {
			enabled = append(enabled, r)
		}
	}
	sort.SliceStable(enabled, func(i, j int) bool {
		return enabled[i].Priority > enabled[j].Priority
	})
	e.snap.Store(&snapshot{rules: enabled})
}

// Rules returns a copy of the active (enabled) rule set, priority descending.
func (e *Engine) Rules() []Rule {
	s := e.snap.Load()
	out := make([]Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Match evaluates one detection against the active snapshot and returns the
// consolidated action list, ordered by derived action priority. Pure: all
// side effects belong to the executor.
func (e *Engine) Match(det *models.DetectionResult, meta ContentMeta) []models.ResponseAction {
	s := e.snap.Load()

	var matched []Rule
	for _, r := range s.rules {
		if r.Conditions.matches(det, meta) {
			matched = append(matched, r)
		}
	}
	if len(matched) == 0 {
		return nil
	}
	return Consolidate(matched)
}

type actionKey struct {
	typ      models.ActionType
	severity models.Severity
}

// Consolidate merges the action lists of matched rules. For each
// (type, severity) pair only the occurrence contributed by the
// highest-priority rule survives; the result is ordered by
// typeWeight x severityWeight descending. Idempotent over its own output.
func Consolidate(matched []Rule) []models.ResponseAction {
	rules := make([]Rule, len(matched))
	copy(rules, matched)
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority > rules[j].Priority
	})

	seen := make(map[actionKey]struct{})
	var out []models.ResponseAction
	for _, r := range rules {
		for _, a := range r.Actions {
			key := actionKey{typ: a.Type, severity: a.Severity}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			a.Automated = true
			out = append(out, a)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := actionPriority(out[i]), actionPriority(out[j])
		if pi != pj {
			return pi > pj
		}
		if out[i].Type != out[j].Type {
			return typeWeight(out[i].Type) > typeWeight(out[j].Type)
		}
		return severityWeight(out[i].Severity) > severityWeight(out[j].Severity)
	})
	return out
}
